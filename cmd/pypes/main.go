// Package main provides the pypes CLI entry point.
package main

import (
	"fmt"
	"os"

	"github.com/davidthor/pypes/internal/cli"
	"github.com/davidthor/pypes/pkg/errors"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		code := errors.ExitCode(err)
		if errors.CodeOf(err) == "" {
			// Flag and usage errors are configuration errors.
			code = errors.ExitConfig
		}
		os.Exit(code)
	}
}
