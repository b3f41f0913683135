// Package config loads and validates project files.
//
// A project file (app.yaml, app.yml, or hydrate.yaml at the project root)
// holds the app definition consumed by the manifest resolver, plus an
// optional hydrate section with engine settings:
//
//	app: notes
//	runtime: node
//	http:
//	  - get /
//	  - route: get /memories
//	    runtime: python3.12
//	views:
//	  only:
//	    - get /
//	hydrate:
//	  parallelism: 4
//	  state_db: .hydrate/state.db
//	  watch:
//	    debounce: 250ms
//	  telemetry:
//	    logging:
//	      level: debug
//
// # Validation
//
// Loading happens in three passes. The raw document is first checked
// against a CUE schema (SchemaRegistry) so structural mistakes, such as
// unknown keys or a list where a mapping belongs, are reported with file
// positions. The document is then decoded with yaml.v3 and the decoded
// structs are checked with validator/v10, which adds the runtime and
// localpath tags. Finally the telemetry settings validate themselves.
//
// Every failure is an engine manifest error with code MALFORMED; Errors
// extracts the individual ValidationError values.
//
// The raw bytes are kept on Project so they can be written verbatim into
// the provenance marker of each shared mount.
package config
