package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// rootCmd represents the base command for the calgate application
var rootCmd = &cobra.Command{
	Use:   "calgate",
	Short: "MCP gateway for Google Calendar",
	Long: `calgate bridges MCP (Model Context Protocol) clients to the Google
Calendar API. It owns the OAuth2 credential lifecycle: authorization,
persistence, automatic refresh and revocation.

It can run as:
  - An MCP server over stdio (default)
  - An MCP server over SSE with OAuth and health endpoints`,
	SilenceUsage: true,
}

// version will be set by main
var version = "dev"

// SetVersion sets the version for the root command
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}

// Execute is the main entry point for the CLI application
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "calgate version %s\n" .Version}}`)

	// If no subcommand is provided, run the serve command by default
	if len(os.Args) == 1 {
		os.Args = append(os.Args, "serve")
	}

	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the calgate version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("calgate version %s\n", version)
		},
	}
}

func init() {
	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newAuthCmd())
	rootCmd.AddCommand(newVersionCmd())
}
