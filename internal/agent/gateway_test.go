package agent

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"

	"github.com/vovakirdan/snake-arena/internal/core"
)

func testGateway() *Gateway {
	return NewGateway(nil, log.New(io.Discard))
}

func testState() *core.State {
	return &core.State{
		Width:  11,
		Height: 11,
		Turn:   4,
		Agents: []core.Agent{
			{ID: "a", Name: "Alpha", Body: []core.Point{{X: 5, Y: 5}, {X: 5, Y: 4}}, Health: 90, Alive: true},
			{ID: "b", Name: "Beta", Body: []core.Point{{X: 0, Y: 9}, {X: 0, Y: 8}}, Health: 80, Alive: true},
			{ID: "c", Name: "Gamma", Body: []core.Point{{X: 3, Y: 3}}, Health: 0, Alive: false},
		},
		Food: []core.Point{{X: 1, Y: 1}},
	}
}

func moveServer(t *testing.T, handler func(w http.ResponseWriter, r *http.Request)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(handler))
	t.Cleanup(srv.Close)
	return srv
}

func target(id, url string) Target {
	return Target{
		AgentID:  id,
		Endpoint: url,
		Request:  BuildRequest(testState(), Game{ID: "g1"}, id, nil),
		Last:     core.MoveLeft,
		HasLast:  true,
	}
}

func TestRequestMoveSuccess(t *testing.T) {
	var gotPath, gotYou string
	srv := moveServer(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		var req Request
		_ = json.NewDecoder(r.Body).Decode(&req)
		gotYou = req.You.ID
		_, _ = w.Write([]byte(`{"move":"DOWN","shout":"hello"}`))
	})

	res := testGateway().RequestMove(context.Background(), target("a", srv.URL+"/"), time.Second)

	if gotPath != "/move" {
		t.Errorf("Expected path /move, got %q", gotPath)
	}
	if gotYou != "a" {
		t.Errorf("Expected you=a, got %q", gotYou)
	}
	if res.Move != core.MoveDown {
		t.Errorf("Expected down, got %s", res.Move)
	}
	if res.TimedOut || !res.LatencyMeasured {
		t.Errorf("Expected timely measured result, got %+v", res)
	}
	if res.Shout != "hello" {
		t.Errorf("Expected shout hello, got %q", res.Shout)
	}
}

func TestRequestMoveMalformedResponses(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"invalid move", http.StatusOK, `{"move":"sideways"}`},
		{"malformed body", http.StatusOK, `not json`},
		{"empty body", http.StatusOK, ``},
		{"server error", http.StatusInternalServerError, `{"move":"up"}`},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			srv := moveServer(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			})

			res := testGateway().RequestMove(context.Background(), target("a", srv.URL), time.Second)

			if res.Move != core.MoveLeft {
				t.Errorf("Expected fallback to last move left, got %s", res.Move)
			}
			if res.TimedOut {
				t.Error("Expected timed_out=false for a timely response")
			}
			if !res.LatencyMeasured {
				t.Error("Expected latency to be measured")
			}
		})
	}
}

func TestRequestMoveTimeout(t *testing.T) {
	srv := moveServer(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	})

	start := time.Now()
	res := testGateway().RequestMove(context.Background(), target("a", srv.URL), 50*time.Millisecond)

	if !res.TimedOut {
		t.Error("Expected timed_out=true")
	}
	if res.LatencyMeasured {
		t.Error("Expected no latency for a timeout")
	}
	if res.Move != core.MoveLeft {
		t.Errorf("Expected fallback left, got %s", res.Move)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("Expected the call to respect the timeout, took %v", elapsed)
	}
}

func TestRequestMoveUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	tgt := target("a", url)
	tgt.HasLast = false

	res := testGateway().RequestMove(context.Background(), tgt, 200*time.Millisecond)

	if !res.TimedOut {
		t.Error("Expected timed_out=true for an unreachable agent")
	}
	if res.Move != core.MoveUp {
		t.Errorf("Expected Up without a last move, got %s", res.Move)
	}
	if res.AgentID != "a" {
		t.Errorf("Expected agent id a, got %q", res.AgentID)
	}
}

func TestRequestMovesWaitsForAll(t *testing.T) {
	fast := moveServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"move":"right"}`))
	})
	slow := moveServer(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	})
	broken := moveServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{`))
	})

	targets := []Target{target("a", slow.URL), target("b", fast.URL), target("c", broken.URL)}
	start := time.Now()
	results := testGateway().RequestMoves(context.Background(), targets, 100*time.Millisecond)
	elapsed := time.Since(start)

	if len(results) != 3 {
		t.Fatalf("Expected 3 results, got %d", len(results))
	}
	for i, id := range []string{"a", "b", "c"} {
		if results[i].AgentID != id {
			t.Errorf("Expected result %d for %s, got %s", i, id, results[i].AgentID)
		}
	}
	if !results[0].TimedOut {
		t.Error("Expected slow agent to time out")
	}
	if results[1].Move != core.MoveRight || results[1].TimedOut {
		t.Errorf("Expected fast agent to move right, got %+v", results[1])
	}
	if results[2].TimedOut || results[2].Move != core.MoveLeft {
		t.Errorf("Expected broken agent to fall back without timing out, got %+v", results[2])
	}
	if elapsed > time.Second {
		t.Errorf("Expected turn bounded by the timeout, took %v", elapsed)
	}
}

func TestNotifyAll(t *testing.T) {
	var mu sync.Mutex
	paths := map[string]int{}
	srv := moveServer(t, func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		paths[r.URL.Path]++
		mu.Unlock()
	})

	targets := []Target{target("a", srv.URL), target("b", srv.URL)}
	testGateway().NotifyAll(context.Background(), CallStart, targets, time.Second)

	mu.Lock()
	defer mu.Unlock()
	if paths["/start"] != 2 {
		t.Errorf("Expected 2 start calls, got %v", paths)
	}
}

func TestNotifyAllBoundsConcurrency(t *testing.T) {
	var mu sync.Mutex
	calls, inFlight, peak := 0, 0, 0
	srv := moveServer(t, func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls++
		inFlight++
		peak = max(peak, inFlight)
		mu.Unlock()

		time.Sleep(20 * time.Millisecond)

		mu.Lock()
		inFlight--
		mu.Unlock()
	})

	var targets []Target
	for i := 0; i < maxLifecycleCalls+8; i++ {
		targets = append(targets, target("a", srv.URL))
	}
	testGateway().NotifyAll(context.Background(), CallEnd, targets, time.Second)

	mu.Lock()
	defer mu.Unlock()
	if calls != len(targets) {
		t.Errorf("Expected %d end calls, got %d", len(targets), calls)
	}
	if peak > maxLifecycleCalls {
		t.Errorf("Expected at most %d concurrent calls, got %d", maxLifecycleCalls, peak)
	}
}

func TestCustomFallbackPolicy(t *testing.T) {
	srv := moveServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"move":"nowhere"}`))
	})

	g := testGateway()
	var seen Failure
	g.SetFallback(func(f Failure) core.Move {
		seen = f
		return core.MoveRight
	})

	res := g.RequestMove(context.Background(), target("b", srv.URL), time.Second)

	if res.Move != core.MoveRight {
		t.Errorf("Expected policy move right, got %s", res.Move)
	}
	if seen.AgentID != "b" || seen.Err == nil || seen.TimedOut {
		t.Errorf("Unexpected failure passed to policy: %+v", seen)
	}
}
