package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/rollcall/internal/face"
)

var clearCmd = &cobra.Command{
	Use:   "clear [identity]",
	Short: "Remove enrolled samples of one identity or of everyone",
	Long: `Remove every enrolled sample of an identity, or of all identities with --all.

Attendance records are kept.

Examples:
  rollcall clear alice
  rollcall clear --all --yes`,
	Args: cobra.MaximumNArgs(1),
	RunE: runClear,
}

func init() {
	rootCmd.AddCommand(clearCmd)

	clearCmd.Flags().Bool("all", false, "Clear every identity")
	clearCmd.Flags().Bool("yes", false, "Skip confirmation prompt")
}

func runClear(cmd *cobra.Command, args []string) error {
	all := mustGetBool(cmd, "all")
	skipConfirm := mustGetBool(cmd, "yes")

	switch {
	case all && len(args) > 0:
		return errors.New("use either an identity or --all, not both")
	case !all && len(args) == 0:
		return errors.New("an identity or --all is required")
	}

	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()
	ctx := context.Background()

	if all {
		identities, err := a.store.Identities(ctx)
		if err != nil {
			return fmt.Errorf("failed to list identities: %w", err)
		}
		if len(identities) == 0 {
			fmt.Println("No identities enrolled")
			return nil
		}
		if !skipConfirm && !confirmAction(fmt.Sprintf("Remove all samples of %d identities? [y/N]: ", len(identities))) {
			fmt.Println("Aborted")
			return nil
		}
		if err := a.manager.ClearAll(ctx); err != nil {
			return err
		}
		fmt.Printf("Cleared %d identities\n", len(identities))
		return nil
	}

	identity := face.NormalizeLabel(args[0])
	if identity == "" {
		return errors.New("identity must not be blank")
	}
	count, err := a.store.Count(ctx, identity)
	if err != nil {
		return fmt.Errorf("failed to count samples: %w", err)
	}
	if count == 0 {
		fmt.Printf("%s has no enrolled samples\n", identity)
		return nil
	}
	if !skipConfirm && !confirmAction(fmt.Sprintf("Remove %d samples of %s? [y/N]: ", count, identity)) {
		fmt.Println("Aborted")
		return nil
	}
	if err := a.manager.Clear(ctx, identity); err != nil {
		return err
	}
	fmt.Printf("Cleared %d samples of %s\n", count, identity)
	return nil
}
