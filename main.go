package main

import (
	"os"

	"github.com/conneroisu/rescomp/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
