// Package main implements the voxpack CLI: a tool repacking audio datasets
// between the flat training layout and the partitioned layout tracked by the
// external version-control collaborator.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
)

func main() {
	cmd := newRootCommand()
	if err := cmd.Execute(); err != nil {
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}
