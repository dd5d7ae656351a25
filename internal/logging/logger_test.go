package logging_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/omochice/toy-socket-arena/internal/logging"
)

func TestNew_WritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "client.log")

	log, closer := logging.New(logging.Options{File: path, Debug: true})
	log.Debugw("frame dropped", "reason", "malformed")
	log.Infof("connected to %s", "127.0.0.1:8080")
	if err := closer.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read log file: %v", err)
	}
	out := string(data)
	for _, want := range []string{"DEBUG", "frame dropped", "reason", "INFO", "connected to 127.0.0.1:8080"} {
		if !strings.Contains(out, want) {
			t.Errorf("log output missing %q:\n%s", want, out)
		}
	}
}

func TestNew_InfoLevelDropsDebug(t *testing.T) {
	path := filepath.Join(t.TempDir(), "client.log")

	log, closer := logging.New(logging.Options{File: path})
	log.Debug("hidden")
	log.Info("shown")
	closer.Close()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read log file: %v", err)
	}
	if strings.Contains(string(data), "hidden") {
		t.Error("debug entry written at info level")
	}
	if !strings.Contains(string(data), "shown") {
		t.Error("info entry missing")
	}
}

func TestNop(t *testing.T) {
	logging.Nop().Infow("discarded", "k", "v")
}
