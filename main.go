package main

import (
	"os"

	"github.com/wormholehq/wormhole/cmd/wormhole"
)

func main() {
	if err := wormhole.Execute(); err != nil {
		os.Exit(1)
	}
}
