// Package signature extracts the version record embedded in a shipping binary.
//
// The build system places a marker encoded as UTF-16LE in front of four
// null-separated UTF-16LE strings: branch, build date, build version and
// version. Extract works on bytes only; ExtractFile is a thin reader on top.
package signature
