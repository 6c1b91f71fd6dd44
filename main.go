package main

import (
	"os"

	"github.com/spigell/freelance-pipeline/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
