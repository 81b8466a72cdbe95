// Command tokenscope explores precomputed token neighbor datasets
// from the terminal.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	app := &app{}

	cmd := &cobra.Command{
		Use:           "tokenscope",
		Short:         "Explore precomputed token nearest-neighbor datasets",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return app.setup(cmd)
		},
	}

	cmd.PersistentFlags().String("base-url", "", "artifact location: http(s) URL, s3://bucket/prefix, or a local directory (env TOKENSCOPE_BASE_URL)")
	cmd.PersistentFlags().String("registry", "", "path to registry JSON file (env TOKENSCOPE_REGISTRY)")
	cmd.PersistentFlags().String("dataset", "", "dataset id (env TOKENSCOPE_DATASET)")
	cmd.PersistentFlags().String("variant", "input", "embedding variant: input or output (env TOKENSCOPE_VARIANT)")
	cmd.PersistentFlags().Bool("verbose", false, "enable debug logging")

	cmd.AddCommand(
		newSearchCmd(app),
		newResolveCmd(app),
		newInfoCmd(app),
		newPrefetchCmd(app),
	)
	return cmd
}
