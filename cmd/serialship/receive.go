package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/bft-labs/serialship/internal/app"
	"github.com/bft-labs/serialship/pkg/serialship"
	"github.com/bft-labs/serialship/plugins/partialcleanup"
)

func newReceiveCommand(env *cliEnv) *cobra.Command {
	var (
		root        string
		mode        string
		datasetRoot string
		partialAge  time.Duration
	)
	cmd := &cobra.Command{
		Use:   "receive <serial_port>",
		Short: "Act as the board: accept sessions and serve datasets until interrupted",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mirrorMode := app.MirrorMode(mode)
			if mirrorMode != serialship.ModeMirror && mirrorMode != serialship.ModeSingle {
				return fmt.Errorf("mode must be %q or %q", serialship.ModeMirror, serialship.ModeSingle)
			}

			progress := newProgress(os.Stderr)
			options := []serialship.Option{
				serialship.WithLogger(env.logger),
				serialship.WithEventHandler(progress),
			}
			if partialAge > 0 {
				options = append(options, partialcleanup.WithPartialCleanup(partialcleanup.Config{
					Root:   root,
					MaxAge: partialAge,
				}))
			}

			client, err := serialship.New(env.cfg.Client(args[0]), options...)
			if err != nil {
				return err
			}
			if err := client.Open(cmd.Context()); err != nil {
				return err
			}
			defer client.Close()

			env.logger.Info("receiving, press Ctrl-C to stop")
			err = client.Receive(cmd.Context(), serialship.ReceiveConfig{
				Root:        root,
				Mode:        mirrorMode,
				DatasetRoot: datasetRoot,
			})
			progress.finish()
			return err
		},
	}
	cmd.Flags().StringVar(&root, "root", "", "directory receiving pushed files")
	cmd.Flags().StringVar(&mode, "mode", string(serialship.ModeMirror), "size mismatch handling: mirror keeps the file, single discards it")
	cmd.Flags().StringVar(&datasetRoot, "dataset-root", "", "serve DATASET_REQUEST from this directory (empty disables)")
	cmd.Flags().DurationVar(&partialAge, "partial-max-age", time.Hour, "remove *.part files older than this under the root (0 disables)")
	_ = cmd.MarkFlagRequired("root")
	return cmd
}
