package cmd

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "facebench",
	Short: "A CLI harness for face identification experiments",
	Long: `Facebench downloads a face dataset, splits it into template and probe
sets, and evaluates a face-embedding service against it: every probe
photo is matched to the enrolled templates and accuracy, precision and
rejection rate are aggregated into a result report.

The embedding computation itself is delegated to an external service
speaking the DeepFace represent contract.`,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
}

func initConfig() {
	// .env file is optional, don't fail if not found
	_ = godotenv.Load()
}
