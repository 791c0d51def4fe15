package main

import (
	"fmt"
	"os"

	"github.com/naturethrive/birdmonitor/cmd"
	"github.com/naturethrive/birdmonitor/internal/buildinfo"
)

func main() {
	if err := cmd.RootCommand(buildinfo.Current()).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
