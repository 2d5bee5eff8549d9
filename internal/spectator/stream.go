package spectator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/charmbracelet/log"

	"github.com/vovakirdan/snake-arena/internal/broadcast"
	"github.com/vovakirdan/snake-arena/internal/frame"
	"github.com/vovakirdan/snake-arena/internal/match"
)

// Reader is the read side of the turn store a stream needs.
type Reader interface {
	MatchByID(ctx context.Context, matchID string) (*match.Info, error)
	TurnsFrom(ctx context.Context, matchID string, from int) ([]match.TurnRecord, error)
}

// Sink receives a stream. An error from any method ends the stream.
type Sink interface {
	Frame(turn int, data json.RawMessage) error
	End(status match.Status) error
	Error(text string) error
}

// Streamer replays and follows matches for any transport.
type Streamer struct {
	store  Reader
	hub    *broadcast.Hub
	logger *log.Logger
}

// NewStreamer creates a streamer. Without a hub only stored turns are sent.
func NewStreamer(store Reader, hub *broadcast.Hub, logger *log.Logger) *Streamer {
	if logger == nil {
		logger = log.Default()
	}
	return &Streamer{store: store, hub: hub, logger: logger}
}

// Stream sends every frame of matchID from turn from onward, in order and
// without repeats, then follows the live match until it ends, ctx is done or
// the sink fails. A viewer that lags behind the broadcast gets an error
// message and the stream returns an error matching broadcast.ErrLagged.
func (s *Streamer) Stream(ctx context.Context, matchID string, from int, sink Sink) error {
	if from < 0 {
		from = 0
	}

	// Subscribe before reading the store so no turn falls between the two.
	var sub *broadcast.Subscription
	if s.hub != nil {
		sub = s.hub.Subscribe(matchID)
		defer sub.Close()
	}

	info, err := s.store.MatchByID(ctx, matchID)
	if err != nil {
		if errors.Is(err, match.ErrNotFound) {
			_ = sink.Error(MsgNotFound)
			return err
		}
		_ = sink.Error(MsgInternal)
		return fmt.Errorf("spectator: cannot load match: %w", err)
	}

	st := &stream{Streamer: s, matchID: matchID, sink: sink, last: from - 1}
	if err := st.flush(ctx); err != nil {
		return err
	}
	if info.Status.Done() || sub == nil {
		return sink.End(info.Status)
	}

	for {
		n, err := sub.Recv(ctx)
		if err != nil {
			var lag *broadcast.LagError
			if errors.As(err, &lag) {
				s.logger.Warn("viewer lagged, closing", "match", matchID, "missed", lag.Missed)
				_ = sink.Error(MsgLagged)
			}
			return err
		}

		switch n.Kind {
		case broadcast.KindTurn:
			if n.Turn <= st.last {
				continue
			}
			if err := st.flush(ctx); err != nil {
				return err
			}
		case broadcast.KindEnd:
			if err := st.flush(ctx); err != nil {
				return err
			}
			return sink.End(match.Status(n.Status))
		}
	}
}

// stream tracks the last turn sent to one sink.
type stream struct {
	*Streamer
	matchID string
	sink    Sink
	last    int
}

// flush sends every stored turn after the last one sent.
func (st *stream) flush(ctx context.Context) error {
	records, err := st.store.TurnsFrom(ctx, st.matchID, st.last+1)
	if err != nil {
		_ = st.sink.Error(MsgInternal)
		return fmt.Errorf("spectator: cannot load turns: %w", err)
	}

	for _, rec := range records {
		if rec.Turn <= st.last {
			continue
		}
		if _, err := frame.Decode(rec.Frame); err != nil {
			_ = st.sink.Error(MsgMalformed)
			return &ProtocolError{MatchID: st.matchID, Turn: rec.Turn, Err: fmt.Errorf("%w: %w", ErrMalformedFrame, err)}
		}
		if err := st.sink.Frame(rec.Turn, rec.Frame); err != nil {
			return err
		}
		st.last = rec.Turn
	}
	return nil
}
