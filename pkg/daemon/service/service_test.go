package service

import (
	"os"
	"strings"
	"testing"
)

func TestUnitContents(t *testing.T) {
	got := UnitContents("/usr/local/bin/rtilogd", "/etc/rtilog.yaml", "/var/log/boathouse.txt")

	if !strings.Contains(got, "ExecStart=/usr/local/bin/rtilogd --config /etc/rtilog.yaml /var/log/boathouse.txt") {
		t.Errorf("unit file missing ExecStart with binary, config and log paths:\n%s", got)
	}
	if !strings.Contains(got, "Type=notify") {
		t.Error("unit file missing Type=notify")
	}
	if !strings.Contains(got, "Restart=on-failure") {
		t.Error("unit file missing Restart=on-failure")
	}
	if !strings.Contains(got, "[Install]") {
		t.Error("unit file missing [Install] section")
	}
}

func TestUnitContentsWithoutConfig(t *testing.T) {
	got := UnitContents("/usr/local/bin/rtilogd", "", "/var/log/boathouse.txt")
	if !strings.Contains(got, "ExecStart=/usr/local/bin/rtilogd /var/log/boathouse.txt\n") {
		t.Errorf("unexpected ExecStart:\n%s", got)
	}
}

func TestInstallRequiresLogFile(t *testing.T) {
	if err := Install("", ""); err == nil {
		t.Error("expected error without log file")
	}
}

func TestUnitPath(t *testing.T) {
	path, err := UnitPath()
	if err != nil {
		t.Fatalf("UnitPath() error: %v", err)
	}
	if !strings.HasSuffix(path, "systemd/user/rtilogd.service") {
		t.Errorf("UnitPath() = %q, want suffix systemd/user/rtilogd.service", path)
	}
}

func TestStatusNoSocket(t *testing.T) {
	got := Status("/tmp/rtilog-test-nonexistent.sock")
	if !strings.Contains(got, "socket: inactive") {
		t.Errorf("Status() should report inactive socket, got: %s", got)
	}
}

func TestStatusWithSocket(t *testing.T) {
	// Create a temporary file to simulate a socket
	f, err := os.CreateTemp("", "rtilog-test-*.sock")
	if err != nil {
		t.Fatal(err)
	}
	defer os.Remove(f.Name())
	f.Close()

	got := Status(f.Name())
	if !strings.Contains(got, "socket: active") {
		t.Errorf("Status() should report active socket, got: %s", got)
	}
}
