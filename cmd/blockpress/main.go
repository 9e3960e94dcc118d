// Command blockpress serves and manages block-based documents.
package main

import (
	"fmt"
	"os"

	"github.com/livetemplate/blockpress/cmd/blockpress/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
