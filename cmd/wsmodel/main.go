// Command wsmodel builds and maintains the endpoint metamodel of a JAX-RS
// program description.
package main

import (
	"os"

	"github.com/conduit-lang/wsmodel/internal/cli/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
