package main

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dgallion1/filingrag/internal/retrieval"
)

var (
	queryJSON    string
	queryAnd     []string
	queryOr      []string
	queryTopK    int
	queryAnswer  bool
	queryContext bool
)

var queryCmd = &cobra.Command{
	Use:   "query [question]",
	Short: "Retrieve filing chunks for a question",
	Long: `Run a filtered similarity search against the index.

Filters are field=value pairs over company, fiscal_year, filing_type,
section, section_title and content_type. Values that look like integers
are sent as integers.

Examples:
  filingrag query "How did net sales change?" --and company="Apple Inc." --and fiscal_year=2023
  filingrag query "risk factors" --or fiscal_year=2022 --or fiscal_year=2023 --answer
  filingrag query --json '{"query":"liquidity","filters":{"and":[{"section":"Item 7"}]}}'`,
	RunE: func(cmd *cobra.Command, args []string) error {
		body, err := queryBody(args)
		if err != nil {
			return err
		}
		req, err := retrieval.DecodeRequest(body)
		if err != nil {
			_ = writeOutput(cmd.OutOrStdout(), outputFormat, retrieval.NewErrorResult(err))
			return err
		}

		a, err := newApp(true)
		if err != nil {
			return err
		}
		defer a.Close()

		res, err := a.retriever().Retrieve(cmd.Context(), req)
		if err != nil {
			_ = writeOutput(cmd.OutOrStdout(), outputFormat, retrieval.NewErrorResult(err))
			return err
		}

		switch {
		case queryContext:
			fmt.Fprintln(cmd.OutOrStdout(), retrieval.BuildContext(res))
			return nil
		case queryAnswer:
			answer, err := retrieval.Answer(cmd.Context(), a.generator(), req.Query, res)
			if err != nil {
				return err
			}
			return writeOutput(cmd.OutOrStdout(), outputFormat, map[string]any{
				"answer":  answer,
				"model":   a.cfg.Generation.Model,
				"results": res,
			})
		}
		return writeOutput(cmd.OutOrStdout(), outputFormat, res)
	},
}

// queryBody assembles the JSON request from flags so it is validated the
// same way as an HTTP request.
func queryBody(args []string) ([]byte, error) {
	if queryJSON != "" {
		if len(args) > 0 || len(queryAnd) > 0 || len(queryOr) > 0 {
			return nil, fmt.Errorf("--json cannot be combined with a question or filter flags")
		}
		return []byte(queryJSON), nil
	}

	req := map[string]any{"query": strings.Join(args, " ")}
	if queryTopK > 0 {
		req["top_k"] = queryTopK
	}
	if len(queryAnd) > 0 || len(queryOr) > 0 {
		and, err := parsePairs(queryAnd)
		if err != nil {
			return nil, err
		}
		or, err := parsePairs(queryOr)
		if err != nil {
			return nil, err
		}
		req["filters"] = map[string]any{"and": and, "or": or}
	}
	return json.Marshal(req)
}

func parsePairs(pairs []string) ([]map[string]any, error) {
	out := make([]map[string]any, 0, len(pairs))
	for _, p := range pairs {
		key, value, ok := strings.Cut(p, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("filter %q must be field=value", p)
		}
		out = append(out, map[string]any{key: filterValue(value)})
	}
	return out, nil
}

func filterValue(s string) any {
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i
	}
	return s
}

func init() {
	queryCmd.Flags().StringVar(&queryJSON, "json", "", "raw JSON retrieval request")
	queryCmd.Flags().StringArrayVar(&queryAnd, "and", nil, "AND filter field=value (repeatable)")
	queryCmd.Flags().StringArrayVar(&queryOr, "or", nil, "OR filter field=value (repeatable)")
	queryCmd.Flags().IntVar(&queryTopK, "top-k", 0, "number of chunks to return (default from config)")
	queryCmd.Flags().BoolVar(&queryAnswer, "answer", false, "generate an answer from the retrieved chunks")
	queryCmd.Flags().BoolVar(&queryContext, "context", false, "print the rendered context block instead of results")

	rootCmd.AddCommand(queryCmd)
}
