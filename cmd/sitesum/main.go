package main

import (
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var version = "dev"

var noColor bool

var rootCmd = &cobra.Command{
	Use:   "sitesum",
	Short: "Summarize web pages through a remote prompt service",
	Long: `sitesum turns a URL into a short summary by ingesting it into a remote
prompt service, applying a summarization prompt and reading the result back.
Objects created on the service are tracked so they can be deleted afterwards.

Run without arguments in a terminal to open the interactive UI.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		if !term.IsTerminal(int(os.Stdin.Fd())) {
			return cmd.Help()
		}
		return runTUI()
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")

	rootCmd.AddCommand(summarizeCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(submitCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(callsCmd)
	rootCmd.AddCommand(artifactsCmd)
	rootCmd.AddCommand(resetCmd)
	rootCmd.AddCommand(cleanupCmd)
	rootCmd.AddCommand(tuiCmd)
	rootCmd.AddCommand(configCmd)
}

func main() {
	if os.Getenv("NO_COLOR") != "" {
		noColor = true
	}
	if err := rootCmd.Execute(); err != nil {
		printError("%v", err)
		os.Exit(1)
	}
}
