package main

import (
	"os"

	"loosevault/cmd/lv/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
