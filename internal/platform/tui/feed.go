package tui

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"

	"github.com/vovakirdan/snake-arena/internal/frame"
	"github.com/vovakirdan/snake-arena/internal/match"
	"github.com/vovakirdan/snake-arena/internal/spectator"
)

// EventKind identifies a feed event.
type EventKind int

const (
	EventFrame EventKind = iota
	EventEnd
	EventError
)

// Event is one update from a feed. It is delivered to the model as a
// tea.Msg.
type Event struct {
	Kind   EventKind
	Frame  *frame.Frame
	Status string
	Text   string
}

// Feed delivers the frames of a match from turn from onward. Run returns
// after the end event, on error or when ctx is done.
type Feed interface {
	Run(ctx context.Context, matchID string, from int, out chan<- Event) error
}

func send(ctx context.Context, out chan<- Event, ev Event) error {
	select {
	case out <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// StreamFeed reads a match in process through a spectator.Streamer, from
// the store and, when the streamer has a hub, live.
type StreamFeed struct {
	Streamer *spectator.Streamer
}

// Run implements Feed.
func (f StreamFeed) Run(ctx context.Context, matchID string, from int, out chan<- Event) error {
	return f.Streamer.Stream(ctx, matchID, from, &eventSink{ctx: ctx, out: out})
}

// eventSink adapts a channel of events to spectator.Sink.
type eventSink struct {
	ctx context.Context
	out chan<- Event
}

func (s *eventSink) Frame(_ int, data json.RawMessage) error {
	f, err := frame.Decode(data)
	if err != nil {
		return err
	}
	return send(s.ctx, s.out, Event{Kind: EventFrame, Frame: f})
}

func (s *eventSink) End(status match.Status) error {
	return send(s.ctx, s.out, Event{Kind: EventEnd, Status: string(status)})
}

func (s *eventSink) Error(text string) error {
	return send(s.ctx, s.out, Event{Kind: EventError, Text: text})
}

// WSFeed follows a match on a remote spectator server. After a lag error it
// reconnects and resumes from the first turn it has not seen.
type WSFeed struct {
	BaseURL    string // http(s) or ws(s) address of the server
	Dialer     *websocket.Dialer
	MaxRetries int
	Backoff    time.Duration
	Logger     *log.Logger
}

// ErrRemote wraps error messages sent by the server.
var ErrRemote = errors.New("tui: server error")

// EventsURL builds the WebSocket address for a match stream.
func EventsURL(base, matchID string, from int) (string, error) {
	u, err := url.Parse(strings.TrimRight(base, "/"))
	if err != nil {
		return "", fmt.Errorf("tui: invalid server address: %w", err)
	}
	switch u.Scheme {
	case "http", "":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	u.Path += "/api/games/" + url.PathEscape(matchID) + "/events"
	q := u.Query()
	q.Set("from", strconv.Itoa(from))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Run implements Feed.
func (f WSFeed) Run(ctx context.Context, matchID string, from int, out chan<- Event) error {
	dialer := f.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	retries := f.MaxRetries
	if retries == 0 {
		retries = 5
	}
	backoff := f.Backoff
	if backoff == 0 {
		backoff = 500 * time.Millisecond
	}
	logger := f.Logger
	if logger == nil {
		logger = log.Default()
	}

	next := from
	for attempt := 0; ; attempt++ {
		lagged, err := f.session(ctx, dialer, matchID, &next, out)
		if !lagged {
			return err
		}
		if attempt >= retries {
			_ = send(ctx, out, Event{Kind: EventError, Text: spectator.MsgLagged})
			return fmt.Errorf("%w: %s", ErrRemote, spectator.MsgLagged)
		}
		logger.Debug("stream lagged, resuming", "match", matchID, "from", next)

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// session reads one connection. It reports lagged when the server dropped
// the viewer for falling behind.
func (f WSFeed) session(ctx context.Context, dialer *websocket.Dialer, matchID string, next *int, out chan<- Event) (lagged bool, err error) {
	addr, err := EventsURL(f.BaseURL, matchID, *next)
	if err != nil {
		return false, err
	}
	conn, _, err := dialer.DialContext(ctx, addr, nil)
	if err != nil {
		return false, fmt.Errorf("tui: cannot connect to %s: %w", addr, err)
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	for {
		var m spectator.Message
		if err := conn.ReadJSON(&m); err != nil {
			if ctx.Err() != nil {
				return false, ctx.Err()
			}
			return false, fmt.Errorf("tui: stream closed: %w", err)
		}

		switch m.Type {
		case spectator.TypeFrame:
			fr, err := frame.Decode(m.Data)
			if err != nil {
				return false, err
			}
			if fr.Turn < *next {
				continue
			}
			if err := send(ctx, out, Event{Kind: EventFrame, Frame: fr}); err != nil {
				return false, err
			}
			*next = fr.Turn + 1

		case spectator.TypeGameEnd:
			var end spectator.EndData
			_ = json.Unmarshal(m.Data, &end)
			return false, send(ctx, out, Event{Kind: EventEnd, Status: end.Status})

		case spectator.TypeError:
			var e spectator.ErrorData
			_ = json.Unmarshal(m.Data, &e)
			if e.Message == spectator.MsgLagged {
				return true, nil
			}
			_ = send(ctx, out, Event{Kind: EventError, Text: e.Message})
			return false, fmt.Errorf("%w: %s", ErrRemote, e.Message)
		}
	}
}
