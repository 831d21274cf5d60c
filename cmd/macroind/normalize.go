package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"
)

var record bool

var normalizeCmd = &cobra.Command{
	Use:   "normalize",
	Short: "Fetch, normalize and write the domain's canonical dataset",
	Long: `Fetches every configured series from the World Bank, ILO and IMF,
merges them into the canonical schema, attaches the country classification,
computes group aggregates and writes the result to storage. A run manifest is
printed to stdout.`,
	RunE: runNormalize,
}

func init() {
	normalizeCmd.Flags().BoolVar(&record, "record", false, "Save live provider responses as mock fixtures")
}

func runNormalize(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	p, err := a.pipeline(record)
	if err != nil {
		return err
	}
	manifest, err := p.Run(ctx)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(manifest)
}
