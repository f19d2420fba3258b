package main

import (
	"context"
	"os"

	"github.com/spf13/cobra"
	pflag "github.com/spf13/pflag"

	pkglog "github.com/bft-labs/serialship/pkg/log"
	"github.com/bft-labs/serialship/pkg/serialship"
	"github.com/bft-labs/serialship/plugins/filewatcher"
)

type sendOptions struct {
	output     string
	standalone bool
	watch      bool
}

func (o *sendOptions) register(fs *pflag.FlagSet) {
	fs.StringVarP(&o.output, "output", "o", "", "session name on the board (remote name for a single file)")
	fs.BoolVar(&o.standalone, "standalone", false, "send one file with the TRANSFER_V2 exchange instead of a session")
	fs.BoolVar(&o.watch, "watch", false, "keep running and re-send when the local files change")
}

func newSendCommand(env *cliEnv) *cobra.Command {
	var opts sendOptions
	cmd := &cobra.Command{
		Use:   "send <file_or_model_name> <serial_port>",
		Short: "Push a file, directory or model bundle to the board",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSend(cmd.Context(), env, args[0], args[1], opts)
		},
	}
	opts.register(cmd.Flags())
	return cmd
}

func runSend(ctx context.Context, env *cliEnv, target, port string, opts sendOptions) error {
	progress := newProgress(os.Stderr)
	options := []serialship.Option{
		serialship.WithLogger(env.logger),
		serialship.WithEventHandler(progress),
	}
	if opts.watch {
		wcfg := filewatcher.DefaultConfig(target)
		wcfg.Output = opts.output
		wcfg.Standalone = opts.standalone
		wcfg.OnPush = func(report serialship.Report, err error) {
			printReport(os.Stdout, report, err)
		}
		options = append(options, filewatcher.WithFileWatcher(wcfg))
	}

	client, err := serialship.New(env.cfg.Client(port), options...)
	if err != nil {
		return err
	}
	if err := client.Open(ctx); err != nil {
		return err
	}
	defer client.Close()

	report, err := client.Send(ctx, serialship.SendRequest{
		Target:     target,
		Output:     opts.output,
		Standalone: opts.standalone,
	})
	progress.finish()
	printReport(os.Stdout, report, err)

	if !opts.watch {
		return err
	}
	if err != nil {
		env.logger.Warn("first push failed, still watching", pkglog.Err(err))
	}
	env.logger.Info("watching for changes, press Ctrl-C to stop")
	return waitWatching(ctx, err)
}

// waitWatching blocks until ctx ends and returns the first push's error so
// a failed initial push still exits non-zero.
func waitWatching(ctx context.Context, first error) error {
	<-ctx.Done()
	return first
}
