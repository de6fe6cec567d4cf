package main

import (
	"bufio"
	"context"
	"io"
	"strings"
)

// readLines feeds trimmed stdin lines into the returned channel until EOF.
// The scanning goroutine outlives ctx if stdin never returns; the process exits around it.
func readLines(ctx context.Context, r io.Reader) <-chan string {
	out := make(chan string)
	go func() {
		defer close(out)
		sc := bufio.NewScanner(r)
		for sc.Scan() {
			select {
			case out <- strings.TrimSpace(sc.Text()):
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

type command struct {
	name string
	args []string
}

// parseCommand splits "/name args"; ok is false for a plain move.
func parseCommand(line string) (command, bool) {
	if !strings.HasPrefix(line, "/") {
		return command{}, false
	}
	parts := strings.Fields(strings.TrimPrefix(line, "/"))
	if len(parts) == 0 {
		return command{name: ""}, true
	}
	return command{name: strings.ToLower(parts[0]), args: parts[1:]}, true
}
