package main

import (
	"github.com/calgate/calgate/cmd"
)

// version is set by goreleaser at build time
var version = "dev"

func main() {
	cmd.SetVersion(version)
	cmd.Execute()
}
