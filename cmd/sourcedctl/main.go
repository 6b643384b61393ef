// Command sourcedctl inspects the streams and events of a sourced event store.
package main

import (
	"os"

	"github.com/go-sourced/sourced/cli/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
