package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"

	"github.com/modoterra/rtilog/pkg/config"
	"github.com/modoterra/rtilog/pkg/core"
	"github.com/modoterra/rtilog/pkg/transport/uds"
)

// newTestCmd returns a command carrying the daemon's flags, parsed from args.
func newTestCmd(t *testing.T, args ...string) (*cobra.Command, []string) {
	t.Helper()
	configPath, socketFlag, levelFlag = "", "", ""
	cmd := &cobra.Command{}
	cmd.Flags().StringVar(&configPath, "config", "", "")
	cmd.Flags().StringVar(&socketFlag, "socket", "", "")
	cmd.Flags().StringVar(&levelFlag, "log-level", "", "")
	if err := cmd.Flags().Parse(args); err != nil {
		t.Fatal(err)
	}
	return cmd, cmd.Flags().Args()
}

func TestResolveConfigFileAndFlags(t *testing.T) {
	dir := t.TempDir()
	cfgFile := filepath.Join(dir, "rtilog.yaml")
	content := []byte("version: 1\nsocket: /tmp/from-file.sock\nlog_file: /tmp/from-file.log\nqueue_capacity: 64\n")
	if err := os.WriteFile(cfgFile, content, 0o644); err != nil {
		t.Fatal(err)
	}

	cmd, args := newTestCmd(t, "--config", cfgFile, "--socket", "/tmp/flag.sock", "/tmp/arg.log")
	cfg, err := resolveConfig(cmd, args)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if cfg.Socket != "/tmp/flag.sock" {
		t.Errorf("socket: got %q", cfg.Socket)
	}
	if cfg.LogFile != "/tmp/arg.log" {
		t.Errorf("log file: got %q", cfg.LogFile)
	}
	if cfg.QueueCapacity != 64 {
		t.Errorf("queue capacity: got %d", cfg.QueueCapacity)
	}
}

func TestResolveConfigRequiresLogFile(t *testing.T) {
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(t.TempDir()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chdir(wd) })
	cmd, args := newTestCmd(t)
	if _, err := resolveConfig(cmd, args); err == nil || !strings.Contains(err.Error(), "log file") {
		t.Fatalf("expected log file error, got %v", err)
	}
}

func TestResolveConfigRejectsInvalid(t *testing.T) {
	cmd, args := newTestCmd(t, "--log-level", "loud", "/tmp/x.log")
	if _, err := resolveConfig(cmd, args); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestRunServesAndExits(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Socket = filepath.Join(dir, "rtilogd.sock")
	cfg.LogFile = filepath.Join(dir, "txt.log")
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	errCh := make(chan error, 1)
	go func() { errCh <- run(context.Background(), cfg, logger) }()

	var c *uds.Client
	var err error
	for i := 0; i < 50; i++ {
		if c, err = uds.Dial(cfg.Socket); err == nil {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := c.Command(ctx, core.CategoryLighting.Command(), "porch on"); err != nil {
		t.Fatalf("log: %v", err)
	}
	if _, err := c.Command(ctx, uds.CmdExit, "1"); err != nil {
		t.Fatalf("exit: %v", err)
	}

	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("daemon did not stop")
	}

	data, err := os.ReadFile(cfg.LogFile)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasSuffix(string(data), "Lighting | porch on\n") {
		t.Errorf("unexpected log contents %q", data)
	}
}

func TestVersionCommand(t *testing.T) {
	buf := &bytes.Buffer{}
	versionCmd.SetOut(buf)
	versionCmd.Run(versionCmd, nil)
	if !strings.HasPrefix(buf.String(), "rtilogd ") {
		t.Errorf("unexpected output %q", buf.String())
	}
}
