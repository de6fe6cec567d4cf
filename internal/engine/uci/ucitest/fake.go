// Package ucitest writes scripted stand-in engines for tests.
package ucitest

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

// Script describes how the fake engine answers "go".
type Script struct {
	// BestMove is echoed after every go command; "(none)" mimics a mated position.
	BestMove string
	// Silent makes the engine never answer go.
	Silent bool
	// Delay is a sleep argument (seconds, e.g. "0.2") before answering go.
	Delay string
}

// Engine is a fake engine on disk. Log holds every command it received, one per line.
type Engine struct {
	Path string
	Log  string
}

func (e Engine) Commands(t *testing.T) []string {
	t.Helper()
	raw, err := os.ReadFile(e.Log)
	if err != nil {
		t.Fatalf("read engine log: %v", err)
	}
	return strings.Split(strings.TrimSpace(string(raw)), "\n")
}

// Write creates the script in a temp dir. It skips the test where /bin/sh is unavailable.
func Write(t *testing.T, sc Script) Engine {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake engine needs /bin/sh")
	}
	dir := t.TempDir()
	logPath := filepath.Join(dir, "commands.log")

	answer := fmt.Sprintf(`echo "info depth 1 multipv 1 score cp 31 pv %[1]s"; echo "bestmove %[1]s"`, sc.BestMove)
	if sc.Silent {
		answer = ":"
	} else if sc.Delay != "" {
		answer = "sleep " + sc.Delay + "; " + answer
	}

	script := fmt.Sprintf(`#!/bin/sh
while IFS= read -r line; do
  echo "$line" >> %q
  case "$line" in
    uci) echo "id name fakefish"; echo "uciok" ;;
    isready) echo "readyok" ;;
    go*) %s ;;
    quit) exit 0 ;;
  esac
done
`, logPath, answer)

	path := filepath.Join(dir, "fakefish")
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatalf("write fake engine: %v", err)
	}
	return Engine{Path: path, Log: logPath}
}
