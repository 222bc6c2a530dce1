package main

import (
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/dgallion1/filingrag/internal/edgar"
	"github.com/dgallion1/filingrag/internal/pipeline"
)

var (
	ingestLimit      int
	ingestForce      bool
	ingestFormType   string
	ingestAccessions []string
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <cik>",
	Short: "Index a filer's 10-K filings",
	Long: `Fetch a filer's recent filings from EDGAR and index them in the
foreground. Filings already in the index are skipped unless --force is set.

Examples:
  filingrag ingest 320193 --limit 3
  filingrag ingest 0000320193 --accession 0000320193-23-000106 --force`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cik, err := edgar.TrimCIK(args[0])
		if err != nil {
			return err
		}

		a, err := newApp(true)
		if err != nil {
			return err
		}
		defer a.Close()
		if err := a.cfg.ValidateForIngest(); err != nil {
			return err
		}

		job := pipeline.NewJob(uuid.NewString(), pipeline.Request{
			CIK:        cik,
			FormType:   ingestFormType,
			Accessions: ingestAccessions,
			Limit:      ingestLimit,
			Force:      ingestForce,
		})
		a.worker().Process(cmd.Context(), job)

		return writeOutput(cmd.OutOrStdout(), outputFormat, job.Snapshot())
	},
}

func init() {
	ingestCmd.Flags().IntVar(&ingestLimit, "limit", 0, "index only the N most recent filings (0 means all)")
	ingestCmd.Flags().BoolVar(&ingestForce, "force", false, "re-index filings already in the index")
	ingestCmd.Flags().StringVar(&ingestFormType, "form", "", "form type (default from config)")
	ingestCmd.Flags().StringSliceVar(&ingestAccessions, "accession", nil, "restrict to these accession numbers")

	rootCmd.AddCommand(ingestCmd)
}
