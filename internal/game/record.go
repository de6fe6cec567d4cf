// Package game holds the per-game metadata record and the rules for merging updates into it.
package game

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/park285/termchess/internal/domain"
)

// ErrData marks a malformed or unexpected update. The record is left unchanged.
var ErrData = errors.New("game data error")

func dataErr(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrData, fmt.Sprintf(format, args...))
}

// Sides holds one value per color.
type Sides[T any] struct {
	White T `json:"white"`
	Black T `json:"black"`
}

func (s Sides[T]) Get(c domain.Color) T {
	if c == domain.Black {
		return s.Black
	}
	return s.White
}

type Clock struct {
	Time      time.Duration `json:"time"`
	Increment time.Duration `json:"increment"`
}

// Player is populated from a full snapshot. Rating 0 means no rating.
type Player struct {
	ID          string `json:"id,omitempty"`
	Name        string `json:"name"`
	Title       string `json:"title,omitempty"`
	Rating      int    `json:"rating,omitempty"`
	Provisional bool   `json:"provisional,omitempty"`
	AILevel     int    `json:"ai_level,omitempty"`
}

func (p Player) IsEngine() bool { return p.AILevel > 0 }

// EngineName is the synthesized display name of an engine opponent.
func EngineName(level int) string { return fmt.Sprintf("Stockfish level %d", level) }

type ChatLine struct {
	Room     string `json:"room"`
	Username string `json:"username"`
	Text     string `json:"text"`
}

// Finish is a game-finish notice as reported by the lifecycle feed.
type Finish struct {
	GameID string       `json:"game_id"`
	Status string       `json:"status,omitempty"`
	Winner domain.Color `json:"winner,omitempty"`
}

// Metadata is the reconciled record of a single game. Values are copies; mutate only through Merge.
type Metadata struct {
	GameID       string             `json:"game_id,omitempty"`
	Variant      domain.Variant     `json:"variant"`
	ColorChoice  domain.ColorChoice `json:"color_choice,omitempty"`
	MyColor      domain.Color       `json:"my_color"`
	Rated        bool               `json:"rated"`
	AILevel      int                `json:"ai_level,omitempty"`
	Speed        domain.Speed       `json:"speed,omitempty"`
	Clock        Sides[Clock]       `json:"clock"`
	Players      Sides[Player]      `json:"players"`
	InitialFEN   string             `json:"initial_fen,omitempty"`
	Status       string             `json:"status,omitempty"`
	Winner       domain.Color       `json:"winner,omitempty"`
	Chat         []ChatLine         `json:"chat,omitempty"`
	OpponentGone bool               `json:"opponent_gone,omitempty"`
	ClaimWinIn   time.Duration      `json:"claim_win_in,omitempty"`
	Finished     *Finish            `json:"finished,omitempty"`
	// SnapshotSeen is set by the first full snapshot; the variant is fixed from then on.
	SnapshotSeen bool `json:"snapshot_seen,omitempty"`
}

// New returns an empty record.
func New() Metadata {
	return Metadata{Variant: domain.Standard}
}

// Clone returns a deep copy.
func (m Metadata) Clone() Metadata {
	out := m
	if m.Chat != nil {
		out.Chat = append([]ChatLine(nil), m.Chat...)
	}
	if m.Finished != nil {
		f := *m.Finished
		out.Finished = &f
	}
	return out
}

// Opponent returns the player record of the side opposite MyColor.
func (m Metadata) Opponent() Player {
	return m.Players.Get(m.MyColor.Opposite())
}

// Merge applies u and returns the new record. On error the receiver is returned
// unchanged together with an error wrapping ErrData.
func (m Metadata) Merge(u Update) (Metadata, error) {
	next := m.Clone()
	var err error
	switch u := u.(type) {
	case Selection:
		err = next.mergeSelection(u)
	case LifecycleStart:
		err = next.mergeStart(u)
	case Snapshot:
		err = next.mergeSnapshot(u)
	case Incremental:
		err = next.mergeIncremental(u)
	case Chat:
		err = next.mergeChat(u)
	case OpponentGone:
		err = next.mergeGone(u)
	case Finished:
		err = next.mergeFinished(u)
	case nil:
		err = dataErr("nil update")
	default:
		err = dataErr("unrecognized update source %T", u)
	}
	if err != nil {
		return m, err
	}
	return next, nil
}

func (m *Metadata) mergeSelection(u Selection) error {
	if u.Minutes < 0 || u.IncrementSeconds < 0 {
		return dataErr("negative clock selection %d+%d", u.Minutes, u.IncrementSeconds)
	}
	if u.AILevel < 0 || u.AILevel > MaxAILevel {
		return dataErr("ai level %d out of range", u.AILevel)
	}
	if u.Variant != "" {
		if err := m.setVariant(u.Variant); err != nil {
			return err
		}
	}
	choice := u.Color
	if choice == "" {
		choice = domain.ChooseRandom
	}
	m.ColorChoice = choice
	m.MyColor = choice.Provisional()
	m.Rated = u.Rated
	m.AILevel = u.AILevel
	clk := Clock{
		Time:      time.Duration(u.Minutes) * time.Minute,
		Increment: time.Duration(u.IncrementSeconds) * time.Second,
	}
	m.Clock = Sides[Clock]{White: clk, Black: clk}
	if clk.Time > 0 {
		m.Speed = domain.SpeedFor(clk.Time, clk.Increment)
	}
	return nil
}

func (m *Metadata) mergeStart(u LifecycleStart) error {
	if err := m.bindGame(u.GameID); err != nil {
		return err
	}
	if u.Variant != "" {
		if err := m.setVariant(u.Variant); err != nil {
			return err
		}
	}
	if u.Color.Valid() {
		m.MyColor = u.Color
	}
	m.Rated = u.Rated
	if u.Speed != "" {
		m.Speed = u.Speed
	}
	return nil
}

func (m *Metadata) mergeSnapshot(u Snapshot) error {
	clock, err := u.Clock.normalize()
	if err != nil {
		return err
	}
	if err := m.bindGame(u.GameID); err != nil {
		return err
	}
	v := u.Variant
	if v == "" {
		v = domain.Standard
	}
	if err := m.setVariant(v); err != nil {
		return err
	}
	m.SnapshotSeen = true
	if u.MyColor.Valid() {
		m.MyColor = u.MyColor
	}
	m.Players = Sides[Player]{White: u.White.normalized(), Black: u.Black.normalized()}
	m.Clock = clock
	m.Rated = u.Rated
	if u.Speed != "" {
		m.Speed = u.Speed
	}
	m.InitialFEN = normalizeFEN(u.InitialFEN)
	m.Status = u.Status
	return nil
}

func (m *Metadata) mergeIncremental(u Incremental) error {
	clock, err := u.Clock.normalize()
	if err != nil {
		return err
	}
	m.Clock = clock
	m.Status = u.Status
	if u.Winner != domain.NoColor {
		if !u.Winner.Valid() {
			return dataErr("unknown winner %q", u.Winner)
		}
		m.Winner = u.Winner
	}
	return nil
}

func (m *Metadata) mergeChat(u Chat) error {
	if strings.TrimSpace(u.Line.Username) == "" && strings.TrimSpace(u.Line.Text) == "" {
		return dataErr("empty chat line")
	}
	m.Chat = append(m.Chat, u.Line)
	return nil
}

func (m *Metadata) mergeGone(u OpponentGone) error {
	if u.ClaimWinInSeconds < 0 {
		return dataErr("negative claim countdown %d", u.ClaimWinInSeconds)
	}
	m.OpponentGone = u.Gone
	m.ClaimWinIn = time.Duration(u.ClaimWinInSeconds) * time.Second
	if !u.Gone {
		m.ClaimWinIn = 0
	}
	return nil
}

func (m *Metadata) mergeFinished(u Finished) error {
	if u.GameID == "" {
		return dataErr("finish notice without game id")
	}
	if m.GameID != "" && m.GameID != u.GameID {
		return dataErr("finish for game %q, record is %q", u.GameID, m.GameID)
	}
	m.Finished = &Finish{GameID: u.GameID, Status: u.Status, Winner: u.Winner}
	return nil
}

func (m *Metadata) bindGame(id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return dataErr("missing game id")
	}
	if m.GameID != "" && m.GameID != id {
		return dataErr("game id %q does not match record %q", id, m.GameID)
	}
	m.GameID = id
	return nil
}

func (m *Metadata) setVariant(v domain.Variant) error {
	if m.SnapshotSeen && m.Variant != v {
		return dataErr("variant %q conflicts with snapshot variant %q", v, m.Variant)
	}
	m.Variant = v
	return nil
}

func normalizeFEN(fen string) string {
	fen = strings.TrimSpace(fen)
	if fen == "startpos" {
		return ""
	}
	return fen
}
