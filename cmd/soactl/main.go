// Command soactl validates SOA rule documents and checks test values against them from the
// command line.
package main

import (
	"errors"
	"fmt"
	"os"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	cmd := newRootCmd(os.Stdout)
	cmd.SetArgs(args)
	err := cmd.Execute()
	if err != nil && !errors.Is(err, errNotCompliant) {
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	return exitCode(err)
}

// exitCode is 0 on success, 2 when limits were violated and 1 for any other failure.
func exitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, errNotCompliant):
		return 2
	default:
		return 1
	}
}
