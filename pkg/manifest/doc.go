// Package manifest resolves a declarative app definition into function
// descriptors and hydration policies, and classifies functions by runtime.
//
// HTTP routes become function names by joining the method and path
// segments with dashes:
//
//	get /                  -> http:get-index
//	get /notes/:id         -> http:get-notes-000id
//	any /time_is_good/*    -> http:any-time_is_good-catchall
//
// Policy lists (shared.disable, views.only, views.disable) accept
// "trigger:name", "method /path" or a bare name that is unique across
// trigger types. Declaring views.only switches views hydration from
// default-all to explicit opt-in, even when the list is empty.
package manifest
