package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"runtime/debug"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	pflag "github.com/spf13/pflag"

	logAdapter "github.com/bft-labs/serialship/internal/adapters/log"
	"github.com/bft-labs/serialship/internal/cliconfig"
	pkglog "github.com/bft-labs/serialship/pkg/log"
)

const helpDescription = `
Push model bundles and data files to a microcontroller over a serial link,
and mirror recorded datasets back.

Highlights:
  - Chunked transfer with CRC-32, per-chunk acknowledgments and bounded retries.
  - Resynchronizes on boot banners and debug prints mixed into the stream.
  - Expands a model name into its bundle (config, forest, quantized dataset).
  - Configure via file ($HOME/.serialship/config.toml), SERIALSHIP_* env or flags.
`

var exampleUsage = strings.TrimSpace(`
  serialship mnist /dev/ttyUSB0
  serialship send ./build/mnist_forest.bin /dev/ttyUSB0 --output forest.bin
  serialship send gesture_dp.csv COM3 --standalone
  serialship fetch walk /dev/ttyUSB0 --output ./datasets
  serialship receive /dev/ttyUSB1 --root ./incoming --dataset-root ./datasets
`)

func getVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		return info.Main.Version
	}
	return "dev"
}

// cliEnv carries the resolved configuration and logger into subcommands.
type cliEnv struct {
	cfg     cliconfig.Config
	cfgPath string
	logger  *logAdapter.Logger
}

// prepare resolves configuration with precedence flags > env > file and
// builds the logger.
func (e *cliEnv) prepare(cmd *cobra.Command) error {
	if err := cliconfig.LoadDotEnv(); err != nil {
		return fmt.Errorf("load .env: %w", err)
	}

	cfgFile := e.cfgPath
	if cfgFile == "" {
		cfgFile = cliconfig.DefaultConfigPath()
	}

	changed := map[string]bool{}
	cmd.Flags().Visit(func(f *pflag.Flag) { changed[f.Name] = true })

	if cfgFile != "" && cliconfig.FileExists(cfgFile) {
		fc, err := cliconfig.LoadFileConfig(cfgFile)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if err := cliconfig.ApplyFileConfig(&e.cfg, fc, changed); err != nil {
			return err
		}
	} else if e.cfgPath != "" {
		return fmt.Errorf("config file %s not found", e.cfgPath)
	}

	if err := cliconfig.ApplyEnvConfig(&e.cfg, changed); err != nil {
		return err
	}
	if err := e.cfg.Validate(); err != nil {
		return err
	}

	logger, err := logAdapter.New(logAdapter.Options{
		Level: e.cfg.LogLevel,
		File:  e.cfg.LogFile,
	})
	if err != nil {
		return err
	}
	e.logger = logger
	logger.Debug("configuration resolved", pkglog.Any("config", e.cfg))
	return nil
}

func (e *cliEnv) close() {
	if e.logger != nil {
		_ = e.logger.Close()
		e.logger = nil
	}
}

func newRootCommand(env *cliEnv) *cobra.Command {
	var opts sendOptions

	root := &cobra.Command{
		Use:     "serialship <file_or_model_name> <serial_port>",
		Short:   "Reliable chunked file transfer to a microcontroller over serial",
		Long:    strings.TrimSpace(helpDescription),
		Example: exampleUsage,
		Version: fmt.Sprintf("%s %s/%s", getVersion(), runtime.GOOS, runtime.GOARCH),
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 || len(args) == 2 {
				return nil
			}
			return fmt.Errorf("accepts 2 args, received %d", len(args))
		},
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return env.prepare(cmd)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return cmd.Help()
			}
			return runSend(cmd.Context(), env, args[0], args[1], opts)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&env.cfgPath, "config", "", "path to config file (default: $HOME/.serialship/config.toml)")
	pf.IntVar(&env.cfg.BaudRate, "baud", env.cfg.BaudRate, "serial baud rate")
	pf.DurationVar(&env.cfg.Settle, "settle", env.cfg.Settle, "wait after opening the port while the board resets")
	pf.StringVar(&env.cfg.Variant, "variant", env.cfg.Variant, "protocol variant: v1 or v2")
	pf.IntVar(&env.cfg.ChunkSize, "chunk-size", env.cfg.ChunkSize, "chunk payload size in bytes")
	pf.DurationVar(&env.cfg.ChunkDelay, "chunk-delay", env.cfg.ChunkDelay, "pause between chunks")
	pf.IntVar(&env.cfg.MaxRetries, "max-retries", env.cfg.MaxRetries, "attempts per chunk before the file fails")
	pf.DurationVar(&env.cfg.AckTimeout, "ack-timeout", env.cfg.AckTimeout, "wait for each chunk acknowledgment")
	pf.DurationVar(&env.cfg.Handshake, "handshake-timeout", env.cfg.Handshake, "wait for READY after opening a session")
	pf.StringVar(&env.cfg.FailurePolicy, "failure-policy", env.cfg.FailurePolicy, "on a failed file: skip or abort")
	pf.StringVar(&env.cfg.ReportDir, "report-dir", env.cfg.ReportDir, "directory for last-session.json (empty disables)")
	pf.StringVar(&env.cfg.LogLevel, "log-level", env.cfg.LogLevel, "log level: debug, info, warn, error")
	pf.StringVar(&env.cfg.LogFile, "log-file", env.cfg.LogFile, "also write JSON logs to this rotated file")
	pf.StringSliceVar(&env.cfg.Bundle.SearchDirs, "bundle-dir", env.cfg.Bundle.SearchDirs, "directories searched for model bundle files")

	opts.register(root.Flags())

	root.AddCommand(newSendCommand(env), newFetchCommand(env), newReceiveCommand(env))
	return root
}

func main() {
	env := &cliEnv{cfg: cliconfig.DefaultConfig()}
	root := newRootCommand(env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := root.ExecuteContext(ctx)
	env.close()
	if err != nil {
		fmt.Fprintln(os.Stderr, color.RedString("error:"), err)
		stop()
		os.Exit(1)
	}
}
