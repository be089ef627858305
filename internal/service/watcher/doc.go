// Package watcher runs the poll cycle.
//
// A Watcher fetches the region list, hands every region to a Processor in
// list order and cleans the working directory afterwards. The Processor
// retrieves, extracts and stores one region and never lets a failure leave
// its boundary: a failed region keeps its previous snapshot untouched.
package watcher
