package cmd

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var identitiesCmd = &cobra.Command{
	Use:   "identities",
	Short: "List enrolled identities",
	Args:  cobra.NoArgs,
	RunE:  runIdentities,
}

func init() {
	rootCmd.AddCommand(identitiesCmd)

	identitiesCmd.Flags().Bool("json", false, "Output as JSON")
}

func runIdentities(cmd *cobra.Command, args []string) error {
	jsonOutput := mustGetBool(cmd, "json")

	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	identities, err := a.store.Identities(context.Background())
	if err != nil {
		return fmt.Errorf("failed to list identities: %w", err)
	}

	if jsonOutput {
		return printJSON(identities)
	}
	if len(identities) == 0 {
		fmt.Println("No identities enrolled")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "IDENTITY\tSAMPLES\tLAST ENROLLED")
	for _, id := range identities {
		fmt.Fprintf(w, "%s\t%d/%d\t%s\n", id.Identity, id.Count, a.manager.MaxPerIdentity(), id.LastEnrolled.Format(time.DateTime))
	}
	return w.Flush()
}
