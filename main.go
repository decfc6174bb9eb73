package main

import (
	"os"

	"github.com/spigell/edital-checker/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
