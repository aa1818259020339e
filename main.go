package main

import (
	"os"

	"github.com/bselee/enviroflow/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
