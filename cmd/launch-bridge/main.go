package main

import (
	"os"

	"github.com/dgellow/launch-bridge/internal/log"
)

var BuildVersion = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		log.LogError("%v", err)
		os.Exit(1)
	}
}
