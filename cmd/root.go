package cmd

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	debugLogs bool
	logFormat string
)

var rootCmd = &cobra.Command{
	Use:   "rollcall",
	Short: "Face-embedding attendance matcher",
	Long: `Rollcall enrolls face embeddings per identity, identifies probe embeddings
against the enrolled set and records attendance for class sessions.

Embeddings are produced by an external face model; rollcall only stores and
compares them. Storage is a JSON file, PostgreSQL or MySQL/MariaDB.`,
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().BoolVar(&debugLogs, "debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "Log format: text, json or pretty (overrides LOG_FORMAT)")
}

func initConfig() {
	// .env file is optional, don't fail if not found
	_ = godotenv.Load()
}
