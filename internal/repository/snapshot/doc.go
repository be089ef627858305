// Package snapshot implements persistence for region snapshots.
//
// The FileRepository keeps one JSON file per region key in the versioning
// directory. Replacement goes through go-update, which writes the new record
// next to the old one and swaps them by rename.
package snapshot
