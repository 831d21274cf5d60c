// Command macroind normalizes macroeconomic indicators and serves them over HTTP.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"macroind/internal/config"
)

var (
	domainPath string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:           "macroind",
	Short:         "Macroeconomic indicator pipeline and query service",
	Version:       config.GetVersion(),
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&domainPath, "domain", "d", "", "Domain configuration file (default: $DOMAIN_CONFIG)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level override (debug, info, warn, error)")

	rootCmd.AddCommand(normalizeCmd)
	rootCmd.AddCommand(serveCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
