package main

import (
	"os"

	"github.com/xraph/chatrelay/cmd/chatrelayd/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
