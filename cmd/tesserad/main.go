package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tessera-ai/tessera/internal/cli"
	"github.com/tessera-ai/tessera/internal/cli/admin"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "tesserad",
		Short: "Tessera daemon and CLI",
		Long:  "Tessera daemon for running the encrypted ingestion pipeline and managing knowledge sources",
	}

	cli.AddHelpJSONFlag(rootCmd)
	rootCmd.AddCommand(admin.ServeCmd())
	rootCmd.AddCommand(admin.SourceCmd())
	rootCmd.AddCommand(admin.IngestCmd())
	rootCmd.AddCommand(admin.PurgeCmd())

	if len(os.Args) == 1 {
		os.Args = append(os.Args, "serve")
	}

	cli.CheckHelpJSON(rootCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
