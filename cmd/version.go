package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/onyxcmd/onyxd/system"
)

var versionCommand = &cobra.Command{
	Use:   "version",
	Short: "Prints the current executable version and exits.",
	Run: func(cmd *cobra.Command, _ []string) {
		fmt.Printf("onyxd v%s\n", system.Version)
	},
}
