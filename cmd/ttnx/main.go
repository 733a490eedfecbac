package main

import (
	"os"

	"github.com/loraworks/ttn-export/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
