package main

import (
	"os"

	"github.com/solatis/modmail/cmd/modmail/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
