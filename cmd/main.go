package main

import (
	"os"

	"icebreaker-bingo/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
