package main

import (
	"fmt"
	"os"

	"github.com/KOMKZ/go-yogan-throttle/application"
)

// set with -ldflags "-X main.version=..."
var version = "dev"

func main() {
	if err := application.NewRootCommand(version).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
