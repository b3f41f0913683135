// Package watch reports debounced batches of file changes under a set of
// source trees. Watch mode uses it to re-hydrate shared and views code when
// their sources change.
package watch
