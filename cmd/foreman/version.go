package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/opsforge/foreman/internal/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the foreman version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("foreman", version.Get())
	},
}
