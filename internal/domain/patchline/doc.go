// Package patchline contains core domain types of the version watcher.
//
// It defines RegionConfig (one deployment region as announced by the
// configuration source), VersionRecord (fields extracted from a shipping
// binary) and RegionSnapshot (the persisted merge of the two).
package patchline
