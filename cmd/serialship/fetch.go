package main

import (
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/bft-labs/serialship/pkg/serialship"
	"github.com/bft-labs/serialship/plugins/partialcleanup"
)

func newFetchCommand(env *cliEnv) *cobra.Command {
	var (
		output     string
		partialAge time.Duration
	)
	cmd := &cobra.Command{
		Use:   "fetch <dataset> <serial_port>",
		Short: "Mirror a dataset recorded on the board into a local directory",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			dataset, port := args[0], args[1]

			progress := newProgress(os.Stderr)
			options := []serialship.Option{
				serialship.WithLogger(env.logger),
				serialship.WithEventHandler(progress),
			}
			if partialAge > 0 {
				options = append(options, partialcleanup.WithPartialCleanup(partialcleanup.Config{
					Root:   output,
					MaxAge: partialAge,
				}))
			}

			client, err := serialship.New(env.cfg.Client(port), options...)
			if err != nil {
				return err
			}
			if err := client.Open(cmd.Context()); err != nil {
				return err
			}
			defer client.Close()

			summary, err := client.Fetch(cmd.Context(), dataset, output)
			progress.finish()
			printMirror(os.Stdout, summary)
			return err
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", ".", "directory receiving <dataset>/")
	cmd.Flags().DurationVar(&partialAge, "partial-max-age", time.Hour, "remove *.part files older than this under the output (0 disables)")
	return cmd
}
