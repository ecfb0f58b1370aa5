// Command dicomdispatch runs the DICOM event dispatcher: it watches an
// archive's stable-resource callbacks, routes matching resources through
// hot-reloadable out-of-process modules, and re-submits what they return.
package main

import (
	"fmt"
	"os"

	"github.com/oriongate/dicomdispatch/cmd/dicomdispatch/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
