package uci

import (
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"
	"time"
)

// mateScore stands in for a forced mate when candidates are ranked by centipawns.
const mateScore = 30000

type Limits struct {
	Depth          int
	MoveTimeMillis int
	NodeCap        int
}

// goCommand renders the limits as a "go" line. At least one limit is required.
func (l Limits) goCommand() (string, error) {
	tokens := []string{"go"}
	for _, lim := range []struct {
		name  string
		value int
	}{
		{"depth", l.Depth},
		{"movetime", l.MoveTimeMillis},
		{"nodes", l.NodeCap},
	} {
		if lim.value > 0 {
			tokens = append(tokens, lim.name, strconv.Itoa(lim.value))
		}
	}
	if len(tokens) == 1 {
		return "", fmt.Errorf("no search limits specified")
	}
	return strings.Join(tokens, " "), nil
}

// timeout bounds how long a search may take before the session gives up on it.
func (l Limits) timeout() time.Duration {
	switch {
	case l.MoveTimeMillis > 0:
		return 3 * time.Duration(l.MoveTimeMillis+2000) * time.Millisecond
	case l.Depth > 0:
		return min(max(time.Duration(l.Depth)*300*time.Millisecond, 6*time.Second), 20*time.Second)
	default:
		return 6 * time.Second
	}
}

// positionCommand uses startpos for an empty FEN.
func positionCommand(fen string, moves []string) string {
	fen = strings.TrimSpace(fen)
	tokens := []string{"position"}
	if fen == "" || fen == "startpos" {
		tokens = append(tokens, "startpos")
	} else {
		tokens = append(tokens, "fen", fen)
	}
	if len(moves) > 0 {
		tokens = append(tokens, "moves")
		tokens = append(tokens, moves...)
	}
	return strings.Join(tokens, " ")
}

type Candidate struct {
	Move   string
	EvalCP int
	// MateIn is non-zero for a forced mate; negative when the engine is being mated.
	MateIn    int
	Principal []string
}

// info is one parsed "info ... pv ..." line.
type info struct {
	rank int
	cand Candidate
}

// parseInfo reads the multipv rank, score and principal variation. Lines without a pv are skipped.
func parseInfo(line string) (info, bool) {
	fields := strings.Fields(line)
	if len(fields) == 0 || fields[0] != "info" {
		return info{}, false
	}
	out := info{rank: 1}
	for i := 1; i < len(fields); i++ {
		switch fields[i] {
		case "multipv":
			if n, ok := intAt(fields, i+1); ok {
				out.rank = n
			}
			i++
		case "score":
			if n, ok := intAt(fields, i+2); ok {
				switch fields[i+1] {
				case "cp":
					out.cand.EvalCP = n
				case "mate":
					out.cand.MateIn = n
					out.cand.EvalCP = mateScore
					if n < 0 {
						out.cand.EvalCP = -mateScore
					}
				}
			}
			i += 2
		case "pv":
			pv := fields[i+1:]
			if len(pv) == 0 {
				return info{}, false
			}
			out.cand.Move = pv[0]
			out.cand.Principal = slices.Clone(pv)
			return out, true
		}
	}
	return info{}, false
}

func intAt(fields []string, i int) (int, bool) {
	if i >= len(fields) {
		return 0, false
	}
	n, err := strconv.Atoi(fields[i])
	return n, err == nil
}

// ranked returns the latest candidate per multipv rank, best rank first.
func ranked(byRank map[int]Candidate) []Candidate {
	if len(byRank) == 0 {
		return nil
	}
	out := make([]Candidate, 0, len(byRank))
	for _, rank := range slices.Sorted(maps.Keys(byRank)) {
		out = append(out, byRank[rank])
	}
	return out
}

// parseBestMove reads "bestmove <move> [ponder <move>]".
func parseBestMove(line string) (best, ponder string) {
	fields := strings.Fields(line)
	if len(fields) >= 2 {
		best = fields[1]
	}
	if len(fields) >= 4 && fields[2] == "ponder" {
		ponder = fields[3]
	}
	return best, ponder
}
