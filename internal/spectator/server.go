package spectator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"

	"github.com/vovakirdan/snake-arena/internal/broadcast"
	"github.com/vovakirdan/snake-arena/internal/match"
	"github.com/vovakirdan/snake-arena/internal/rules"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 25 * time.Second

	defaultRecent = 20
)

// Catalog is the store surface the server reads from.
type Catalog interface {
	Reader
	RecentMatches(ctx context.Context, limit int) ([]match.Info, error)
}

// Submitter starts matches in the background.
type Submitter interface {
	Start(spec match.Spec) (string, error)
}

// Options configures a Server.
type Options struct {
	// Defaults fills fields a submitted match leaves empty.
	Defaults match.Spec
	// AllowedOrigins restricts WebSocket origins; empty allows any.
	AllowedOrigins []string
}

// Server exposes matches over HTTP and WebSocket.
type Server struct {
	store     Catalog
	streamer  *Streamer
	submitter Submitter
	opts      Options
	logger    *log.Logger
	upgrader  websocket.Upgrader
	mux       *http.ServeMux
}

// NewServer creates a server. submitter may be nil, in which case match
// submission is disabled.
func NewServer(store Catalog, hub *broadcast.Hub, submitter Submitter, opts Options, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.Default()
	}
	s := &Server{
		store:     store,
		streamer:  NewStreamer(store, hub, logger),
		submitter: submitter,
		opts:      opts,
		logger:    logger,
		mux:       http.NewServeMux(),
	}
	s.upgrader = websocket.Upgrader{CheckOrigin: s.checkOrigin}

	s.mux.HandleFunc("GET /api/games", s.handleList)
	s.mux.HandleFunc("POST /api/games", s.handleSubmit)
	s.mux.HandleFunc("GET /api/games/{id}", s.handleInfo)
	s.mux.HandleFunc("GET /api/games/{id}/events", s.handleEvents)
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// ListenAndServe serves on addr until ctx is done, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		errc <- srv.ListenAndServe()
	}()
	s.logger.Info("spectator server listening", "addr", addr)

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) checkOrigin(r *http.Request) bool {
	if len(s.opts.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	for _, o := range s.opts.AllowedOrigins {
		if o == origin {
			return true
		}
	}
	return false
}

// GameInfo is the body of GET /api/games/{id}.
type GameInfo struct {
	ID          string
	Status      string
	Width       int
	Height      int
	Ruleset     string
	RulesetName string
	Map         string
	Turn        int `json:",omitempty"`
}

type gameInfoResponse struct {
	Game GameInfo
}

type gameListResponse struct {
	Games []GameSummary
}

// GameSummary is one entry of GET /api/games.
type GameSummary struct {
	ID        string
	Status    string
	Width     int
	Height    int
	Ruleset   string
	CreatedAt time.Time
}

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	info, err := s.store.MatchByID(r.Context(), id)
	if errors.Is(err, match.ErrNotFound) {
		writeError(w, http.StatusNotFound, MsgNotFound)
		return
	}
	if err != nil {
		s.logger.Error("cannot load match", "match", id, "err", err)
		writeError(w, http.StatusInternalServerError, MsgInternal)
		return
	}

	writeJSON(w, http.StatusOK, gameInfoResponse{Game: gameInfo(info)})
}

func gameInfo(info *match.Info) GameInfo {
	name := info.Ruleset
	if rs, err := rules.ParseRuleset(info.Ruleset); err == nil {
		name = rs.DisplayName()
	}
	return GameInfo{
		ID:          info.ID,
		Status:      string(info.Status),
		Width:       info.Width,
		Height:      info.Height,
		Ruleset:     info.Ruleset,
		RulesetName: name,
		Map:         "standard",
	}
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	limit := defaultRecent
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	infos, err := s.store.RecentMatches(r.Context(), limit)
	if err != nil {
		s.logger.Error("cannot list matches", "err", err)
		writeError(w, http.StatusInternalServerError, MsgInternal)
		return
	}

	resp := gameListResponse{Games: make([]GameSummary, 0, len(infos))}
	for _, info := range infos {
		resp.Games = append(resp.Games, GameSummary{
			ID:        info.ID,
			Status:    string(info.Status),
			Width:     info.Width,
			Height:    info.Height,
			Ruleset:   info.Ruleset,
			CreatedAt: info.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// SubmitRequest is the body of POST /api/games.
type SubmitRequest struct {
	ID            string            `json:"id,omitempty"`
	Width         int               `json:"width,omitempty"`
	Height        int               `json:"height,omitempty"`
	Ruleset       string            `json:"ruleset,omitempty"`
	Agents        []match.AgentSpec `json:"agents"`
	MoveTimeoutMS int               `json:"move_timeout_ms,omitempty"`
	MaxTurns      int               `json:"max_turns,omitempty"`
	TurnDelayMS   int               `json:"turn_delay_ms,omitempty"`
	Seed          int64             `json:"seed,omitempty"`
}

// SubmitResponse is returned for an accepted match.
type SubmitResponse struct {
	ID string `json:"id"`
}

// Spec merges the request over defaults.
func (req SubmitRequest) Spec(defaults match.Spec) match.Spec {
	spec := defaults
	spec.ID = req.ID
	spec.Agents = req.Agents
	spec.Source = "api"
	if req.Width > 0 {
		spec.Width = req.Width
	}
	if req.Height > 0 {
		spec.Height = req.Height
	}
	if req.Ruleset != "" {
		spec.Ruleset = req.Ruleset
	}
	if req.MoveTimeoutMS > 0 {
		spec.MoveTimeout = time.Duration(req.MoveTimeoutMS) * time.Millisecond
	}
	if req.MaxTurns > 0 {
		spec.MaxTurns = req.MaxTurns
	}
	if req.TurnDelayMS > 0 {
		spec.TurnDelay = time.Duration(req.TurnDelayMS) * time.Millisecond
	}
	if req.Seed != 0 {
		spec.Seed = req.Seed
	}
	return spec
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	if s.submitter == nil {
		writeError(w, http.StatusNotImplemented, "match submission disabled")
		return
	}

	var req SubmitRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	spec := req.Spec(s.opts.Defaults)
	if err := match.Validate(spec); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if req.ID != "" {
		_, err := s.store.MatchByID(r.Context(), req.ID)
		switch {
		case err == nil:
			writeError(w, http.StatusConflict, fmt.Sprintf("match %s already exists", req.ID))
			return
		case !errors.Is(err, match.ErrNotFound):
			s.logger.Error("cannot look up match", "match", req.ID, "err", err)
			writeError(w, http.StatusInternalServerError, MsgInternal)
			return
		}
	}

	id, err := s.submitter.Start(spec)
	switch {
	case errors.Is(err, match.ErrBusy), errors.Is(err, match.ErrShutdown):
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	case errors.Is(err, match.ErrDuplicateMatch):
		writeError(w, http.StatusConflict, err.Error())
		return
	case err != nil:
		s.logger.Error("cannot start match", "err", err)
		writeError(w, http.StatusInternalServerError, MsgInternal)
		return
	}

	s.logger.Info("match submitted", "match", id, "agents", len(spec.Agents), "remote", r.RemoteAddr)
	writeJSON(w, http.StatusAccepted, SubmitResponse{ID: id})
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	from := 0
	if v := r.URL.Query().Get("from"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			http.Error(w, "invalid from", http.StatusBadRequest)
			return
		}
		from = n
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "match", id, "err", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	conn.SetReadLimit(1 << 16)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	go readPump(conn, cancel)
	go pingPump(ctx, conn)

	s.logger.Debug("viewer connected", "match", id, "from", from, "remote", r.RemoteAddr)
	err = s.streamer.Stream(ctx, id, from, &wsSink{conn: conn})
	switch {
	case err == nil, errors.Is(err, context.Canceled):
	case errors.Is(err, broadcast.ErrLagged), errors.Is(err, match.ErrNotFound):
		s.logger.Debug("viewer stream closed", "match", id, "err", err)
	default:
		s.logger.Warn("viewer stream failed", "match", id, "err", err)
	}

	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(writeWait))
}

// readPump discards client messages and cancels the stream once the client
// goes away. Control frames are handled by the connection.
func readPump(conn *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func pingPump(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

// wsSink writes stream messages to a WebSocket. Only the stream goroutine
// writes data messages.
type wsSink struct {
	conn *websocket.Conn
}

func (s *wsSink) write(m Message) error {
	if err := s.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return s.conn.WriteJSON(m)
}

func (s *wsSink) Frame(_ int, data json.RawMessage) error {
	return s.write(NewFrameMessage(data))
}

func (s *wsSink) End(status match.Status) error {
	return s.write(NewEndMessage(string(status)))
}

func (s *wsSink) Error(text string) error {
	return s.write(NewErrorMessage(text))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, text string) {
	writeJSON(w, status, ErrorData{Message: text})
}
