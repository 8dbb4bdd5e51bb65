// Command vsltail reads a Varnish Shared Log stream and emits correlated
// client/backend/session records.
package main

import (
	"fmt"
	"os"

	"github.com/vsl-go/vslcore/cmd/vsltail/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(commands.ExitCodeFor(err))
	}
}
