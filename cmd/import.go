package cmd

import (
	"context"
	"fmt"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/kozaktomas/rollcall/internal/roster"
)

var importCmd = &cobra.Command{
	Use:   "import <roster.yaml>",
	Short: "Enroll every sample listed in a roster file",
	Long: `Bulk-enroll embeddings from a YAML roster.

Samples beyond an identity's capacity are skipped and counted. Invalid samples
are reported and the import continues. A storage failure stops the import.

Example roster:
  identities:
    - identity: alice
      samples:
        - vector: [0.12, -0.03, 0.4]
          image_ref: alice-01.jpg
    - identity: bob
      vectors:
        - [0.4, 0.1, -0.2]`,
	Args: cobra.ExactArgs(1),
	RunE: runImport,
}

func init() {
	rootCmd.AddCommand(importCmd)

	importCmd.Flags().Bool("json", false, "Output summary as JSON")
}

func runImport(cmd *cobra.Command, args []string) error {
	jsonOutput := mustGetBool(cmd, "json")

	r, err := roster.Load(args[0])
	if err != nil {
		return err
	}

	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	importer := roster.NewImporter(a.manager)
	var bar *progressbar.ProgressBar
	if !jsonOutput {
		bar = progressbar.NewOptions(r.SampleCount(),
			progressbar.OptionSetDescription("Enrolling"),
			progressbar.OptionShowCount(),
			progressbar.OptionShowIts(),
			progressbar.OptionSetItsString("samples"),
			progressbar.OptionShowElapsedTimeOnFinish(),
			progressbar.OptionFullWidth(),
		)
		importer.OnSample = func() { bar.Add(1) }
	}

	summary, err := importer.Import(context.Background(), r)
	if bar != nil {
		bar.Finish()
		fmt.Println()
	}
	if err != nil {
		return err
	}

	if jsonOutput {
		return printJSON(summary)
	}

	fmt.Printf("Enrolled:   %d\n", summary.Enrolled)
	fmt.Printf("At limit:   %d\n", summary.Rejected)
	fmt.Printf("Duplicates: %d\n", summary.Duplicates)
	if len(summary.Failed) > 0 {
		fmt.Printf("Failed:     %d\n", len(summary.Failed))
		for _, f := range summary.Failed {
			fmt.Printf("  %s sample %d: %v\n", f.Identity, f.Index+1, f.Err)
		}
	}
	return nil
}
