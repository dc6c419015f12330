package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/modoterra/rtilog/internal/buildinfo"
	"github.com/modoterra/rtilog/pkg/config"
	"github.com/modoterra/rtilog/pkg/core"
	"github.com/modoterra/rtilog/pkg/daemon/service"
	"github.com/modoterra/rtilog/pkg/export"
	"github.com/modoterra/rtilog/pkg/tail"
	"github.com/modoterra/rtilog/pkg/transport/uds"
	"github.com/modoterra/rtilog/pkg/txtlog"
	tuimodel "github.com/modoterra/rtilog/pkg/tui/model"
)

const requestTimeout = 2 * time.Second

var socketPath string

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:          "rtilog",
	Short:        "Client for the rtilogd home-automation text log",
	Long:         "rtilog sends commands to rtilogd, watches its status pushes, and reads, follows and exports text log files.",
	SilenceUsage: true,
	RunE:         runWatch,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&socketPath, "socket", config.Default().Socket, "daemon socket path")

	rootCmd.AddCommand(pingCmd)
	rootCmd.AddCommand(logCmd)
	rootCmd.AddCommand(idxCmd)
	rootCmd.AddCommand(exitCmd)
	rootCmd.AddCommand(openCmd)
	rootCmd.AddCommand(closeCmd)
	rootCmd.AddCommand(periodCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(tailCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(serviceCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}

func dialDaemon() (*uds.Client, error) {
	client, err := uds.Dial(socketPath)
	if err != nil {
		return nil, fmt.Errorf("cannot connect to daemon at %s: %w", socketPath, err)
	}
	return client, nil
}

// sendCommand sends one text command and returns the text response.
func sendCommand(name, text string) (string, error) {
	client, err := dialDaemon()
	if err != nil {
		return "", err
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	return client.Command(ctx, name, text)
}

// --- Watch (TUI) ---

func runWatch(_ *cobra.Command, _ []string) error {
	app := tuimodel.New(socketPath)
	p := tea.NewProgram(app, tea.WithAltScreen())
	_, err := p.Run()
	return err
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch status and new records, and log records interactively",
	RunE:  runWatch,
}

// --- Ping ---

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Check if daemon is running",
	RunE: func(cmd *cobra.Command, _ []string) error {
		client, err := dialDaemon()
		if err != nil {
			return err
		}
		defer client.Close()

		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()

		resp, err := client.Request(ctx, uds.MethodPing, nil)
		if err != nil {
			return err
		}

		var pong uds.PingResponse
		if err := resp.UnmarshalData(&pong); err != nil {
			return err
		}
		if pong.Pong {
			fmt.Fprintln(cmd.OutOrStdout(), "pong ✓")
		}
		return nil
	},
}

// --- Commands ---

var logCmd = &cobra.Command{
	Use:   "log <category> <text...>",
	Short: "Append a record (categories: Security, Weather, Climate, Status, Lighting, Sump)",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cat, err := core.ParseCategory(args[0])
		if err != nil {
			return err
		}
		idx, err := sendCommand(cat.Command(), strings.Join(args[1:], " "))
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), idx)
		return nil
	},
}

var idxCmd = &cobra.Command{
	Use:   "idx",
	Short: "Print the current sequence index",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return printCommand(cmd, uds.CmdGetTxtIdx, "")
	},
}

var exitCmd = &cobra.Command{
	Use:   "exit [flag]",
	Short: "Ask the daemon to drain and exit (flag 0 is a no-op)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		flag := "1"
		if len(args) > 0 {
			flag = args[0]
		}
		return printCommand(cmd, uds.CmdExit, flag)
	},
}

var openCmd = &cobra.Command{
	Use:   "open [path]",
	Short: "Open the text log file (reopens the last file when path is omitted)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := ""
		if len(args) > 0 {
			path = args[0]
		}
		resp, err := sendCommand(uds.CmdOpenTxtFile, path)
		if err != nil {
			return err
		}
		if resp != "1" {
			return errors.New("daemon could not open the log file")
		}
		fmt.Fprintln(cmd.OutOrStdout(), "opened")
		return nil
	},
}

var closeCmd = &cobra.Command{
	Use:   "close",
	Short: "Close the text log file; submissions fail until it is reopened",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		resp, err := sendCommand(uds.CmdCloseTxtFile, "")
		if err != nil {
			return err
		}
		if resp != "0" {
			return errors.New("daemon could not close the log file")
		}
		fmt.Fprintln(cmd.OutOrStdout(), "closed")
		return nil
	},
}

var periodCmd = &cobra.Command{
	Use:   "period <seconds>",
	Short: "Set the status push period",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := strconv.ParseFloat(args[0], 64); err != nil {
			return fmt.Errorf("invalid period %q: %w", args[0], err)
		}
		return printCommand(cmd, uds.CmdSetPushPeriod, args[0])
	},
}

func printCommand(cmd *cobra.Command, name, text string) error {
	resp, err := sendCommand(name, text)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), resp)
	return nil
}

// --- Status ---

var statusJSON bool

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show daemon and service status",
	RunE: func(cmd *cobra.Command, _ []string) error {
		out := cmd.OutOrStdout()

		client, err := dialDaemon()
		if err != nil {
			fmt.Fprintln(out, service.Status(socketPath))
			return err
		}
		defer client.Close()

		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()

		resp, err := client.Request(ctx, uds.MethodStatus, nil)
		if err != nil {
			return err
		}
		var s core.Status
		if err := resp.UnmarshalData(&s); err != nil {
			return err
		}

		if statusJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(s)
		}

		state := "closed"
		if s.FileOpen {
			state = "open"
		}
		fmt.Fprintf(out, "boot id:        %s\n", s.BootID)
		fmt.Fprintf(out, "log file:       %s (%s)\n", s.Path, state)
		fmt.Fprintf(out, "txt idx:        %d\n", s.Index)
		fmt.Fprintf(out, "written:        %d\n", s.Written)
		fmt.Fprintf(out, "write failures: %d\n", s.WriteFailures)
		fmt.Fprintf(out, "dropped:        %d\n", s.Dropped)
		fmt.Fprintf(out, "dropped events: %d\n", s.DroppedEvents)
		fmt.Fprintln(out, service.Status(socketPath))
		return nil
	},
}

func init() {
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "output as JSON")
}

// --- Tail ---

var (
	tailFollow     bool
	tailLines      int
	tailCategories []string
)

var tailCmd = &cobra.Command{
	Use:   "tail <logfile>",
	Short: "Print the last records of a text log, optionally following it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		filter, err := categoryFilter(tailCategories)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()

		recs, err := tail.Last(args[0], tailLines, time.Local, filter)
		if err != nil {
			return err
		}
		for _, rec := range recs {
			fmt.Fprint(out, formatRecord(rec))
		}
		if !tailFollow {
			return nil
		}

		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		ch, err := tail.NewFollower(args[0], time.Local, filter, nil).Follow(ctx)
		if err != nil {
			return err
		}
		for rec := range ch {
			fmt.Fprint(out, formatRecord(rec))
		}
		return nil
	},
}

func init() {
	tailCmd.Flags().BoolVarP(&tailFollow, "follow", "f", false, "keep printing records as they are appended")
	tailCmd.Flags().IntVarP(&tailLines, "lines", "n", 10, "number of records to print")
	tailCmd.Flags().StringSliceVar(&tailCategories, "category", nil, "only records of these categories")
}

// --- Export ---

var (
	exportFormat     string
	exportOutput     string
	exportZstd       bool
	exportUnzstd     bool
	exportCategories []string
	exportMinSeq     uint32
)

var exportCmd = &cobra.Command{
	Use:   "export <logfile>",
	Short: "Export records as text, jsonl or csv, optionally zstd-compressed",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		filter, err := categoryFilter(exportCategories)
		if err != nil {
			return err
		}
		filter.MinSeq = exportMinSeq

		res, err := export.File(args[0], exportOutput, cmd.OutOrStdout(), export.Options{
			Format:     export.Format(exportFormat),
			Filter:     filter,
			Compress:   exportZstd,
			Decompress: exportUnzstd,
			Location:   time.Local,
		})
		if err != nil {
			return err
		}
		if exportOutput != "" {
			fmt.Fprintf(cmd.ErrOrStderr(), "exported %d records to %s\n", res.Records, exportOutput)
		}
		if res.Malformed > 0 {
			fmt.Fprintf(cmd.ErrOrStderr(), "skipped %d malformed lines\n", res.Malformed)
		}
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportFormat, "format", string(export.FormatText), "output format: text, jsonl or csv")
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "output file (default stdout)")
	exportCmd.Flags().BoolVar(&exportZstd, "zstd", false, "compress output with zstd")
	exportCmd.Flags().BoolVar(&exportUnzstd, "decompress", false, "read a zstd-compressed text export as input")
	exportCmd.Flags().StringSliceVar(&exportCategories, "category", nil, "only records of these categories")
	exportCmd.Flags().Uint32Var(&exportMinSeq, "since", 0, "only records with sequence at or above this value")
}

// --- Stats ---

var statsCmd = &cobra.Command{
	Use:   "stats <logfile>",
	Short: "Summarize a text log by category",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
		defer f.Close()

		s, err := export.Collect(f, time.Local)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "records:   %d\n", s.Records)
		if s.Records > 0 {
			fmt.Fprintf(out, "sequence:  %05d .. %05d (%d resets)\n", s.FirstSeq, s.LastSeq, s.Gaps)
			fmt.Fprintf(out, "span:      %s .. %s\n", s.First.Format(time.DateTime), s.Last.Format(time.DateTime))
		}
		if s.Malformed > 0 {
			fmt.Fprintf(out, "malformed: %d\n", s.Malformed)
		}
		for _, c := range s.Categories() {
			fmt.Fprintf(out, "  %-*s %d\n", core.LabelWidth, c, s.ByCategory[c])
		}
		return nil
	},
}

// --- Service ---

var serviceCmd = &cobra.Command{
	Use:   "service",
	Short: "Manage the rtilogd systemd user service",
}

var serviceConfig string

var serviceInstallCmd = &cobra.Command{
	Use:   "install <logfile>",
	Short: "Install and start rtilogd as a systemd user service",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := service.Install(serviceConfig, args[0]); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "rtilogd service installed and started ✓")
		return nil
	},
}

var serviceUninstallCmd = &cobra.Command{
	Use:   "uninstall",
	Short: "Stop and remove the rtilogd systemd user service",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := service.Uninstall(); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "rtilogd service removed ✓")
		return nil
	},
}

var serviceStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show socket and systemd service state",
	Run: func(cmd *cobra.Command, _ []string) {
		fmt.Fprintln(cmd.OutOrStdout(), service.Status(socketPath))
	},
}

func init() {
	serviceInstallCmd.Flags().StringVar(&serviceConfig, "config", "", "config file passed to rtilogd")
	serviceCmd.AddCommand(serviceInstallCmd)
	serviceCmd.AddCommand(serviceUninstallCmd)
	serviceCmd.AddCommand(serviceStatusCmd)
}

// --- Config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage rtilog.yaml",
}

var configInitOutput string

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default rtilog.yaml",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if _, err := os.Stat(configInitOutput); err == nil {
			return fmt.Errorf("%s already exists", configInitOutput)
		}
		b, err := config.Marshal(config.Default())
		if err != nil {
			return err
		}
		if err := os.WriteFile(configInitOutput, b, 0o644); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Generated %s\n", configInitOutput)
		return nil
	},
}

var configValidateCmd = &cobra.Command{
	Use:   "validate [file]",
	Short: "Validate a rtilog.yaml file",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := config.DefaultPath
		if len(args) > 0 {
			path = args[0]
		}

		cfg, err := config.Load(path)
		if err != nil {
			return err
		}

		errs := config.Validate(cfg)
		if len(errs) == 0 {
			fmt.Fprintf(cmd.OutOrStdout(), "%s: valid\n", path)
			return nil
		}

		fmt.Fprintf(cmd.ErrOrStderr(), "%s: %d error(s)\n", path, len(errs))
		for _, e := range errs {
			fmt.Fprintf(cmd.ErrOrStderr(), "  • %s\n", e)
		}
		return fmt.Errorf("%s: invalid", path)
	},
}

func init() {
	configInitCmd.Flags().StringVar(&configInitOutput, "output", config.DefaultPath, "output file path")
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configValidateCmd)
}

// --- Version ---

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, _ []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "rtilog %s (%s) built %s\n", buildinfo.Version, buildinfo.Commit, buildinfo.Date)
	},
}

// --- Helpers ---

func categoryFilter(names []string) (tail.Filter, error) {
	var f tail.Filter
	for _, n := range names {
		c, err := core.ParseCategory(n)
		if err != nil {
			return tail.Filter{}, err
		}
		f.Categories = append(f.Categories, c)
	}
	return f, nil
}

func formatRecord(rec core.Record) string {
	return txtlog.Format(rec.Category, rec.Payload, rec.Seq, rec.Time)
}
