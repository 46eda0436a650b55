package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/rollcall/internal/enrollment"
)

var enrollCmd = &cobra.Command{
	Use:   "enroll <identity> <embedding.json>",
	Short: "Enroll one embedding sample for an identity",
	Long: `Enroll one face embedding for an identity.

The embedding file holds a JSON array of numbers. Use "-" to read it from stdin.
An identity holds at most MAX_EMBEDDINGS_PER_IDENTITY samples.

Examples:
  rollcall enroll alice alice-01.json
  rollcall enroll "Bob Smith" - --image-ref bob-03.jpg < bob-03.json`,
	Args: cobra.ExactArgs(2),
	RunE: runEnroll,
}

func init() {
	rootCmd.AddCommand(enrollCmd)

	enrollCmd.Flags().String("image-ref", "", "Reference to the source image")
	enrollCmd.Flags().Float64("score", enrollment.DefaultScore, "Detection score of the sample")
	enrollCmd.Flags().Bool("json", false, "Output as JSON")
}

func runEnroll(cmd *cobra.Command, args []string) error {
	jsonOutput := mustGetBool(cmd, "json")

	vector, err := readVector(args[1])
	if err != nil {
		return err
	}

	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	score := mustGetFloat64(cmd, "score")
	result, err := a.manager.Enroll(context.Background(), enrollment.Request{
		Identity: args[0],
		Vector:   vector,
		ImageRef: mustGetString(cmd, "image-ref"),
		Score:    &score,
	})
	if err != nil {
		var capErr *enrollment.CapacityError
		if errors.As(err, &capErr) {
			return fmt.Errorf("%s already has %d of %d samples; clear it first", capErr.Identity, capErr.Count, capErr.Limit)
		}
		return err
	}

	if jsonOutput {
		return printJSON(result)
	}

	fmt.Printf("Enrolled %s (%d-dim), %d/%d samples, %d remaining\n",
		result.Embedding.Identity, result.Embedding.Vector.Dim(),
		result.Count, a.manager.MaxPerIdentity(), result.Remaining)
	if n := result.NearestOther; n != nil {
		fmt.Printf("Warning: sample is %.4f from %s; the two identities may be confused\n", n.Distance, n.Identity)
	}
	return nil
}
