package cmd

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/kozaktomas/rollcall/internal/recognition"
)

var identifyCmd = &cobra.Command{
	Use:   "identify <embedding.json>",
	Short: "Identify a probe embedding against the enrolled set",
	Long: `Identify a probe face embedding.

Prints the matched identity with distance and confidence, or "unknown" when no
identity is closer than the threshold. With --session an accepted match is
recorded present in that session.

Examples:
  rollcall identify probe.json
  rollcall identify probe.json --threshold 0.5 --json
  rollcall identify probe.json --session 6f1c...`,
	Args: cobra.ExactArgs(1),
	RunE: runIdentify,
}

func init() {
	rootCmd.AddCommand(identifyCmd)

	identifyCmd.Flags().Float64("threshold", 0, "Distance threshold for this probe (0 uses MATCH_THRESHOLD)")
	identifyCmd.Flags().String("session", "", "Record an accepted match in this session")
	identifyCmd.Flags().String("image-ref", "", "Reference to the probe image, stored with the record")
	identifyCmd.Flags().Bool("json", false, "Output as JSON")
}

func runIdentify(cmd *cobra.Command, args []string) error {
	jsonOutput := mustGetBool(cmd, "json")

	vector, err := readVector(args[0])
	if err != nil {
		return err
	}

	frame := recognition.Frame{
		Embedding: vector,
		ImageRef:  mustGetString(cmd, "image-ref"),
	}
	if t := mustGetFloat64(cmd, "threshold"); t > 0 {
		frame.Threshold = &t
	}
	if s := mustGetString(cmd, "session"); s != "" {
		id, err := uuid.Parse(s)
		if err != nil {
			return fmt.Errorf("invalid session id %q: %w", s, err)
		}
		frame.SessionID = id
	}

	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	outcome, err := a.recognizer.ProcessFrame(context.Background(), frame)
	if err != nil {
		return err
	}

	if jsonOutput {
		return printJSON(outcome)
	}

	d := outcome.Decision
	if !d.Accepted {
		if d.Candidate != "" {
			fmt.Printf("unknown (nearest %s at %.4f, threshold %.4f)\n", d.Candidate, d.Distance, d.Threshold)
		} else {
			fmt.Println("unknown (no enrolled identities)")
		}
		return nil
	}

	fmt.Printf("%s  distance=%.4f  confidence=%.1f%%\n", d.Identity, d.Distance, d.Confidence*100)
	if outcome.Recorded {
		fmt.Printf("Recorded %s present in session %s\n", d.Identity, frame.SessionID)
	}
	return nil
}
