package main

import (
	"os"

	"knlsetup/internal/cli"
)

// Set with -ldflags "-X main.version=v1.2.3".
var version = "dev"

func main() {
	os.Exit(cli.Execute(version))
}
