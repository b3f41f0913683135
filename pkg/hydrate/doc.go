// Package hydrate copies project shared and views code into function
// directories.
//
// Both hydrators use Mount, which stages a copy next to the runtime mount
// point, writes marker files into the stage and then swaps it into place:
//
//	<fn>/node_modules/@architect/shared/   .arc  shared.md  static.json
//	<fn>/node_modules/@architect/views/    views.md
//
// Python and ruby functions use vendor/shared and vendor/views instead.
// Markers carry no timestamps, so hydrating an unchanged project twice
// yields byte-identical trees.
package hydrate
