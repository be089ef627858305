package main

import "github.com/oshokin/patchline-watcher/cmd/patchline-watcher/cmd"

func main() {
	cmd.Execute()
}
