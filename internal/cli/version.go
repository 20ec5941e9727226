package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Version is the release version, overridden at build time via
// -ldflags "-X github.com/davidthor/pypes/internal/cli.Version=...".
var Version = "0.1.0"

// UserAgent is the HTTP user agent sent to component registries.
func UserAgent() string {
	return fmt.Sprintf("pypes/%s", Version)
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the pypes version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("pypes %s\n", Version)
		},
	}
}
