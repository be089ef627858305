// Package retriever runs the external retrieval tool that fetches the
// shipping binary of a region into the working directory.
//
// The command shape differs per host platform and is hidden behind the
// Launcher interface; Retriever adds the timeout, output capture and the
// post-run check that the requested file actually exists.
package retriever
