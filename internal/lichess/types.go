package lichess

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownEvent is returned for a well-formed event with an unhandled type; sources skip it.
var ErrUnknownEvent = errors.New("unknown event type")

// ErrMalformedEvent is returned when a line cannot be decoded at all.
var ErrMalformedEvent = errors.New("malformed event")

type Variant struct {
	Key   string `json:"key"`
	Name  string `json:"name"`
	Short string `json:"short,omitempty"`
}

type Compat struct {
	Bot   bool `json:"bot"`
	Board bool `json:"board"`
}

type GameStatus struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// LifecycleEvent is *GameStart or *GameFinish.
type LifecycleEvent interface {
	lifecycleEvent()
	EventType() string
}

// GameInfo is the "game" object carried by gameStart and gameFinish.
type GameInfo struct {
	GameID   string     `json:"gameId"`
	FullID   string     `json:"fullId,omitempty"`
	Color    string     `json:"color"`
	FEN      string     `json:"fen,omitempty"`
	HasMoved bool       `json:"hasMoved"`
	IsMyTurn bool       `json:"isMyTurn"`
	Rated    bool       `json:"rated"`
	Speed    string     `json:"speed"`
	Source   string     `json:"source,omitempty"`
	Variant  Variant    `json:"variant"`
	Compat   Compat     `json:"compat"`
	Status   GameStatus `json:"status"`
	Winner   string     `json:"winner,omitempty"`
}

type GameStart struct {
	Game GameInfo `json:"game"`
}

type GameFinish struct {
	Game GameInfo `json:"game"`
}

func (*GameStart) lifecycleEvent()  {}
func (*GameFinish) lifecycleEvent() {}

func (*GameStart) EventType() string  { return "gameStart" }
func (*GameFinish) EventType() string { return "gameFinish" }

// GameEvent is *GameFull, *GameState, *ChatLine or *OpponentGone.
type GameEvent interface {
	gameEvent()
	EventType() string
}

// Player is either a human account or an engine (AILevel > 0).
type Player struct {
	ID          string `json:"id,omitempty"`
	Name        string `json:"name,omitempty"`
	Title       string `json:"title,omitempty"`
	Rating      int    `json:"rating,omitempty"`
	Provisional bool   `json:"provisional,omitempty"`
	AILevel     int    `json:"aiLevel,omitempty"`
}

// Clock values are milliseconds.
type Clock struct {
	Initial   int64 `json:"initial"`
	Increment int64 `json:"increment"`
}

type GameState struct {
	Moves  string `json:"moves"`
	WTime  int64  `json:"wtime"`
	BTime  int64  `json:"btime"`
	WInc   int64  `json:"winc"`
	BInc   int64  `json:"binc"`
	Status string `json:"status"`
	Winner string `json:"winner,omitempty"`
	// MovesSet reports whether the event carried a move list at all.
	MovesSet bool `json:"-"`
}

func (s *GameState) UnmarshalJSON(b []byte) error {
	type plain GameState
	var aux struct {
		plain
		Moves *string `json:"moves"`
	}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	*s = GameState(aux.plain)
	if aux.Moves != nil {
		s.Moves = *aux.Moves
		s.MovesSet = true
	}
	return nil
}

// MoveList splits the space-separated UCI move string.
func (s GameState) MoveList() []string {
	return strings.Fields(s.Moves)
}

type GameFull struct {
	ID         string    `json:"id"`
	Rated      bool      `json:"rated"`
	Variant    Variant   `json:"variant"`
	Clock      *Clock    `json:"clock,omitempty"`
	Speed      string    `json:"speed"`
	White      Player    `json:"white"`
	Black      Player    `json:"black"`
	InitialFEN string    `json:"initialFen"`
	State      GameState `json:"state"`
}

type ChatLine struct {
	Room     string `json:"room"`
	Username string `json:"username"`
	Text     string `json:"text"`
}

type OpponentGone struct {
	Gone              bool `json:"gone"`
	ClaimWinInSeconds int  `json:"claimWinInSeconds,omitempty"`
}

func (*GameFull) gameEvent()     {}
func (*GameState) gameEvent()    {}
func (*ChatLine) gameEvent()     {}
func (*OpponentGone) gameEvent() {}

func (*GameFull) EventType() string     { return "gameFull" }
func (*GameState) EventType() string    { return "gameState" }
func (*ChatLine) EventType() string     { return "chatLine" }
func (*OpponentGone) EventType() string { return "opponentGone" }

type envelope struct {
	Type string `json:"type"`
}

func peekType(raw []byte) (string, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if env.Type == "" {
		return "", fmt.Errorf("%w: missing type", ErrMalformedEvent)
	}
	return env.Type, nil
}

// DecodeLifecycleEvent decodes one line of the account event stream.
func DecodeLifecycleEvent(raw []byte) (LifecycleEvent, error) {
	typ, err := peekType(raw)
	if err != nil {
		return nil, err
	}
	var ev LifecycleEvent
	switch typ {
	case "gameStart":
		ev = &GameStart{}
	case "gameFinish":
		ev = &GameFinish{}
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownEvent, typ)
	}
	if err := json.Unmarshal(raw, ev); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformedEvent, typ, err)
	}
	return ev, nil
}

// DecodeGameEvent decodes one line of a per-game board stream.
func DecodeGameEvent(raw []byte) (GameEvent, error) {
	typ, err := peekType(raw)
	if err != nil {
		return nil, err
	}
	var ev GameEvent
	switch typ {
	case "gameFull":
		ev = &GameFull{}
	case "gameState":
		ev = &GameState{}
	case "chatLine":
		ev = &ChatLine{}
	case "opponentGone":
		ev = &OpponentGone{}
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownEvent, typ)
	}
	if err := json.Unmarshal(raw, ev); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformedEvent, typ, err)
	}
	return ev, nil
}

// Account is the subset of /api/account used here.
type Account struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Title    string `json:"title,omitempty"`
}

// APIError is a non-2xx response from the server.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("lichess api error: status=%d %s", e.Status, e.Message)
}
