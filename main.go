package main

import (
	"os"

	"github.com/promptab/promptab/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
