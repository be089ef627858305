// Package config defines the watcher settings and provides helpers to load,
// validate and save them in YAML format.
//
// Every constant of the poll cycle (timeouts, directories, marker, retrieval
// tool paths) lives in Config and is handed to components explicitly.
package config
