package hydrate

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/lpsinger/hydrate/pkg/engine"
)

// Entry describes one copied path.
type Entry struct {
	// Path is slash-separated and relative to the tree root.
	Path string

	// Mode is the file mode, including the type bits.
	Mode fs.FileMode

	// Size is the file size in bytes. Zero for directories and links.
	Size int64

	// SHA256 is the hex digest of a regular file's content.
	SHA256 string

	// Link is the target of a symbolic link.
	Link string
}

// copyTree copies src into the existing directory dst, preserving modes,
// modification times and symbolic links. Entries are returned in lexical order.
func copyTree(ctx context.Context, src, dst string) ([]Entry, error) {
	var entries []Entry
	type dirTime struct {
		path  string
		mtime time.Time
	}
	var dirs []dirTime

	walkErr := filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)

		if rel == "." {
			dirs = append(dirs, dirTime{target, info.ModTime()})
			return os.Chmod(dst, info.Mode().Perm()|0o700)
		}

		entry := Entry{Path: filepath.ToSlash(rel), Mode: info.Mode()}
		switch {
		case d.IsDir():
			if err := os.Mkdir(target, info.Mode().Perm()|0o700); err != nil {
				return err
			}
			dirs = append(dirs, dirTime{target, info.ModTime()})
		case d.Type()&fs.ModeSymlink != 0:
			link, err := os.Readlink(path)
			if err != nil {
				return err
			}
			if err := os.Symlink(link, target); err != nil {
				return err
			}
			entry.Link = link
		case d.Type().IsRegular():
			sum, err := copyFile(path, target, info)
			if err != nil {
				return err
			}
			entry.Size = info.Size()
			entry.SHA256 = sum
		default:
			return engine.NewHydrationError(fmt.Sprintf("unsupported file type %s", info.Mode().Type()), nil).
				WithCode(engine.ErrCodeInvalidSource).
				WithDetail("path", entry.Path)
		}
		entries = append(entries, entry)
		return nil
	})
	if walkErr != nil {
		if e, ok := walkErr.(*engine.Error); ok {
			return nil, e
		}
		if ctx.Err() != nil {
			return nil, engine.NewHydrationError("copy cancelled", walkErr).WithOp("copy").WithCode(engine.ErrCodeCancelled)
		}
		return nil, engine.NewHydrationError("copying tree", walkErr).WithOp("copy").WithCode(engine.ErrCodeCopy)
	}

	// Directory times are restored last, deepest first, since writing
	// children updates them.
	for i := len(dirs) - 1; i >= 0; i-- {
		if err := os.Chtimes(dirs[i].path, dirs[i].mtime, dirs[i].mtime); err != nil {
			return nil, engine.NewHydrationError("restoring directory times", err).WithOp("copy").WithCode(engine.ErrCodeCopy)
		}
	}
	return entries, nil
}

func copyFile(src, dst string, info fs.FileInfo) (string, error) {
	in, err := os.Open(src)
	if err != nil {
		return "", err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_EXCL|os.O_WRONLY, info.Mode().Perm()|0o200)
	if err != nil {
		return "", err
	}

	h := sha256.New()
	if _, err := io.Copy(io.MultiWriter(out, h), in); err != nil {
		out.Close()
		return "", err
	}
	if err := out.Close(); err != nil {
		return "", err
	}
	if err := os.Chmod(dst, info.Mode().Perm()); err != nil {
		return "", err
	}
	if err := os.Chtimes(dst, info.ModTime(), info.ModTime()); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
