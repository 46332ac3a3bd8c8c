package main

import (
	"log"
	"os"
)

// Version information (set by ldflags)
var (
	Version   = "dev"
	BuildTime = "unknown"
	GoVersion = "unknown"
)

func main() {
	log.SetFlags(0)
	log.SetPrefix("doomctl: ")

	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
