package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	cfgFile      string
	outputFormat string
)

var rootCmd = &cobra.Command{
	Use:   "filingrag",
	Short: "SEC 10-K ingestion and retrieval for grounded question answering",
	Long: `filingrag turns SEC 10-K filings into a searchable vector index.

The pipeline includes:
  - EDGAR submissions lookup and filing download
  - Table classification and structured table export
  - Image extraction with vision-model captions
  - Item-aware section splitting and chunking
  - Filtered similarity retrieval and answer generation`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		switch outputFormat {
		case "yaml", "json":
			return nil
		}
		return fmt.Errorf("unknown output format: %s", outputFormat)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&cfgFile, "config", "", "config file (default: ./filingrag.yaml or ~/.filingrag/filingrag.yaml)",
	)
	rootCmd.PersistentFlags().StringVarP(
		&outputFormat, "output", "o", "yaml", "output format: yaml or json",
	)
}
