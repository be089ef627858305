// Package source fetches the list of region configurations from the remote
// client configuration endpoint.
package source
