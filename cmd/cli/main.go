package main

import (
	"os"

	"github.com/careerpath-dev/careerpath/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
