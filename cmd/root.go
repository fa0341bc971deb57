/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "foundly",
	Short: "Foundly lost-and-found marketplace backend",
	Long: `Foundly is the backend API for the Foundly lost-and-found marketplace.

Run "foundly server" to start the HTTP API, "foundly migrate up" to apply
database migrations, or "foundly purge" to run the retention sweep once.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}
