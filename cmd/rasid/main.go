// Rasid — bilingual admin assistant for reseller billing panels.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "rasid",
	Short: "Rasid — chat-driven admin assistant for reseller billing panels.",
	Long: `Rasid manages resellers, invoices, and payments through natural-language
commands in Persian or English. An AI interpreter proposes operations;
anything destructive is held behind an explicit confirmation button
before it executes.`,
	RunE:          runServe, // Default to serve mode.
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.AddCommand(serveCmd, seedCmd, versionCmd)
	_ = godotenv.Load()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}
