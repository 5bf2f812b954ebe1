package main

import (
	"os"

	"github.com/desenyon/infiniteidea-sub000/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
