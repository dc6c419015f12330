package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	sddaemon "github.com/coreos/go-systemd/v22/daemon"
	"github.com/spf13/cobra"

	"github.com/modoterra/rtilog/internal/buildinfo"
	"github.com/modoterra/rtilog/pkg/config"
	"github.com/modoterra/rtilog/pkg/daemon"
)

var (
	configPath string
	socketFlag string
	levelFlag  string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:           "rtilogd [flags] <logfile>",
	Short:         "Home-automation text log daemon",
	Long:          "rtilogd appends categorized, sequence-numbered records to a text log on behalf of LOGTXT commands received over a Unix socket.",
	Args:          cobra.MaximumNArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := resolveConfig(cmd, args)
		if err != nil {
			fmt.Fprintln(os.Stderr, "rtilogd:", err)
			return err
		}

		logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()}))

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := run(ctx, cfg, logger); err != nil {
			logger.Error("daemon error", "err", err)
			return err
		}
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, _ []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "rtilogd %s (%s) built %s\n", buildinfo.Version, buildinfo.Commit, buildinfo.Date)
	},
}

func init() {
	rootCmd.Flags().StringVar(&configPath, "config", "", "path to rtilog.yaml (default ./"+config.DefaultPath+" if present)")
	rootCmd.Flags().StringVar(&socketFlag, "socket", "", "control socket path (overrides config)")
	rootCmd.Flags().StringVar(&levelFlag, "log-level", "", "debug, info, warn or error (overrides config)")
	rootCmd.AddCommand(versionCmd)
}

// resolveConfig merges defaults, the config file and flags, in that order.
// The positional log file argument wins over log_file.
func resolveConfig(cmd *cobra.Command, args []string) (config.Config, error) {
	cfg := config.Default()

	switch {
	case configPath != "":
		loaded, err := config.Load(configPath)
		if err != nil {
			return config.Config{}, err
		}
		cfg = loaded
	default:
		loaded, err := config.Load(config.DefaultPath)
		if err == nil {
			cfg = loaded
		} else if !errors.Is(err, fs.ErrNotExist) {
			return config.Config{}, err
		}
	}

	if cmd.Flags().Changed("socket") {
		cfg.Socket = socketFlag
	}
	if cmd.Flags().Changed("log-level") {
		cfg.LogLevel = levelFlag
	}
	if len(args) > 0 {
		cfg.LogFile = args[0]
	}

	if errs := config.Validate(cfg); len(errs) > 0 {
		return config.Config{}, errors.Join(errs...)
	}
	if cfg.LogFile == "" {
		return config.Config{}, errors.New("log file path is required")
	}
	return cfg, nil
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	d, err := daemon.New(daemon.Options{
		SocketPath:    cfg.Socket,
		LogFile:       cfg.LogFile,
		QueueCapacity: cfg.QueueCapacity,
		PushInterval:  cfg.PushInterval.Duration,
		DrainTimeout:  cfg.DrainTimeout.Duration,
		Logger:        logger,
		Notify: func(state string) {
			if _, err := sddaemon.SdNotify(false, state); err != nil {
				logger.Warn("sd_notify failed", "state", state, "err", err)
			}
		},
	})
	if err != nil {
		return err
	}

	logger.Info("starting rtilogd", "version", buildinfo.Version, "socket", cfg.Socket, "log_file", cfg.LogFile)
	return d.Run(ctx)
}
