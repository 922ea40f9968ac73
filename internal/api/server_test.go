package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rewired-gh/evgraph/internal/chart"
	"github.com/rewired-gh/evgraph/internal/models"
	"github.com/rewired-gh/evgraph/internal/segment"
	"github.com/rewired-gh/evgraph/internal/storage"
	"github.com/rewired-gh/evgraph/internal/viewport"
)

var t0 = time.Date(2025, 3, 1, 21, 0, 0, 0, time.UTC)

func init() {
	gin.SetMode(gin.TestMode)
}

func ptr[T any](v T) *T { return &v }

// memCache is an in-process ChartCache that counts lookups.
type memCache struct {
	mu     sync.Mutex
	items  map[string]*chart.Chart
	hits   int
	misses int
}

func (m *memCache) Get(_ context.Context, key string) (*chart.Chart, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.items[key]
	if ok {
		m.hits++
	} else {
		m.misses++
	}
	return c, ok
}

func (m *memCache) Set(_ context.Context, key string, c *chart.Chart) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[key] = c
}

// seedStore creates one closed session with a placed bet that has 30 EV
// records, one per second, above threshold from second 10 through 20. The
// odds drop after second 20, which closes the segment there.
func seedStore(t *testing.T) (*storage.SQLite, int64) {
	t.Helper()
	ctx := context.Background()
	s, err := storage.NewSQLite(":memory:")
	if err != nil {
		t.Fatalf("NewSQLite: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	sessionID, err := s.AddSession(ctx, &models.Session{
		StartTime:         t0,
		EndTime:           ptr(t0.Add(time.Hour)),
		StartTotalBalance: 100.10,
		EndTotalBalance:   ptr(150.35),
	})
	if err != nil {
		t.Fatalf("AddSession: %v", err)
	}

	_, err = s.AddBet(ctx, &models.Bet{
		BetID:          "bet-1",
		Profit:         6,
		Koef:           2.0,
		AvgKoef:        1.88,
		Home:           "Arsenal",
		Away:           "Chelsea",
		Market:         "1X2",
		PinnacleMarket: "moneyline",
		BookmakerName:  "cloudbet",
		Time:           t0.Add(10 * time.Second),
		PlacedAt:       ptr(t0.Add(20 * time.Second)),
		UpdatedAt:      ptr(t0.Add(20 * time.Second)),
		Status:         models.StatusWin,
	})
	if err != nil {
		t.Fatalf("AddBet: %v", err)
	}

	for i := 0; i < 30; i++ {
		ev, koef := 1.0, 2.0
		if i >= 10 && i <= 20 {
			ev = 6.0
		}
		if i > 20 {
			koef = 1.9
		}
		_, err := s.AddEVRecord(ctx, &models.EVRecord{
			BetID:          "bet-1",
			Profit:         ev,
			AvgKoef:        1.88,
			Koef:           ptr(koef),
			Market:         "1X2",
			PinnacleMarket: "moneyline",
			BookmakerName:  "cloudbet",
			Home:           "Arsenal",
			Away:           "Chelsea",
			Time:           t0.Add(time.Duration(i) * time.Second),
		})
		if err != nil {
			t.Fatalf("AddEVRecord: %v", err)
		}
	}
	return s, sessionID
}

func newTestServer(t *testing.T) (*Server, *memCache) {
	t.Helper()
	store, _ := seedStore(t)
	mc := &memCache{items: map[string]*chart.Chart{}}
	return New(store, mc, Options{QueryLimit: 100, Segment: segment.DefaultOptions()}), mc
}

func do(t *testing.T, s *Server, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, target, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("invalid JSON response %q: %v", w.Body.String(), err)
	}
	return v
}

func TestRootAndHealth(t *testing.T) {
	s, _ := newTestServer(t)

	w := do(t, s, http.MethodGet, "/", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("GET / = %d", w.Code)
	}
	root := decode[map[string]string](t, w)
	if root["message"] != "EVGraph API" || root["version"] != Version {
		t.Errorf("unexpected root body: %v", root)
	}

	w = do(t, s, http.MethodGet, "/health", nil)
	if w.Code != http.StatusOK || decode[map[string]string](t, w)["status"] != "ok" {
		t.Errorf("GET /health = %d %s", w.Code, w.Body.String())
	}
}

func TestListSessions(t *testing.T) {
	s, _ := newTestServer(t)

	w := do(t, s, http.MethodGet, "/api/sessions", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	sessions := decode[[]map[string]any](t, w)
	if len(sessions) != 1 {
		t.Fatalf("got %d sessions, want 1", len(sessions))
	}
	got := sessions[0]
	if got["total_bets"] != float64(1) || got["placed_bets"] != float64(1) {
		t.Errorf("stats not merged: %v", got)
	}
	if got["balance_change"] != "50.25" {
		t.Errorf("balance_change = %v, want \"50.25\"", got["balance_change"])
	}

	w = do(t, s, http.MethodGet, "/api/sessions?include_stats=false", nil)
	sessions = decode[[]map[string]any](t, w)
	if _, ok := sessions[0]["total_bets"]; ok {
		t.Error("stats should be omitted when include_stats=false")
	}
}

func TestBadParameters(t *testing.T) {
	s, _ := newTestServer(t)
	tests := []struct {
		method, target string
		body           any
	}{
		{http.MethodGet, "/api/sessions?limit=0", nil},
		{http.MethodGet, "/api/sessions?limit=abc", nil},
		{http.MethodGet, "/api/sessions?include_stats=maybe", nil},
		{http.MethodGet, "/api/sessions/abc", nil},
		{http.MethodGet, "/api/sessions/0/bets", nil},
		{http.MethodGet, "/api/bets", nil},
		{http.MethodGet, "/api/bets/ev", nil},
		{http.MethodGet, "/api/bets/chart?bet_id=bet-1&session_id=x", nil},
		{http.MethodPost, "/api/viewport", map[string]any{"n": -1, "event": map[string]any{"type": "zoom_in"}}},
		{http.MethodPost, "/api/viewport", map[string]any{"n": 10, "event": map[string]any{"type": "spin"}}},
		{http.MethodPost, "/api/viewport", map[string]any{"n": 10, "event": map[string]any{"type": "drag_move"}}},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.target, func(t *testing.T) {
			w := do(t, s, tt.method, tt.target, tt.body)
			if w.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400 (%s)", w.Code, w.Body.String())
			}
			if decode[map[string]string](t, w)["error"] == "" {
				t.Error("missing error message")
			}
		})
	}
}

func TestNotFound(t *testing.T) {
	s, _ := newTestServer(t)
	tests := []struct {
		target, msg string
	}{
		{"/api/sessions/999", "Session not found"},
		{"/api/bets?bet_id=missing", "Bet not found"},
		{"/api/bets/ev?bet_id=missing", "Bet not found"},
		{"/api/bets/chart?bet_id=missing", "Bet not found"},
		{"/api/bets/chart?bet_id=bet-1&session_id=999", "Session not found"},
		{"/api/nowhere", "route not found"},
	}
	for _, tt := range tests {
		w := do(t, s, http.MethodGet, tt.target, nil)
		if w.Code != http.StatusNotFound {
			t.Errorf("GET %s = %d, want 404", tt.target, w.Code)
			continue
		}
		if got := decode[map[string]string](t, w)["error"]; got != tt.msg {
			t.Errorf("GET %s error = %q, want %q", tt.target, got, tt.msg)
		}
	}
}

func TestSessionAndBets(t *testing.T) {
	s, _ := newTestServer(t)

	w := do(t, s, http.MethodGet, "/api/sessions/1", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if got := decode[map[string]any](t, w); got["total_bets"] != float64(1) {
		t.Errorf("session stats missing: %v", got)
	}

	w = do(t, s, http.MethodGet, "/api/sessions/1/bets?limit=5", nil)
	bets := decode[[]models.Bet](t, w)
	if len(bets) != 1 || bets[0].BetID != "bet-1" {
		t.Errorf("unexpected session bets: %+v", bets)
	}

	w = do(t, s, http.MethodGet, "/api/sessions/999/bets", nil)
	if w.Code != http.StatusOK || w.Body.String() != "[]" {
		t.Errorf("unknown session bets = %d %s, want 200 []", w.Code, w.Body.String())
	}

	w = do(t, s, http.MethodGet, "/api/bets?bet_id=bet-1", nil)
	if bet := decode[models.Bet](t, w); bet.Home != "Arsenal" || bet.PlacedAt == nil {
		t.Errorf("unexpected bet: %+v", bet)
	}

	w = do(t, s, http.MethodGet, "/api/bets/ev?bet_id=bet-1", nil)
	if records := decode[[]models.EVRecord](t, w); len(records) != 30 {
		t.Errorf("got %d ev records, want 30", len(records))
	}
}

func TestChart(t *testing.T) {
	s, mc := newTestServer(t)

	w := do(t, s, http.MethodGet, "/api/bets/chart?bet_id=bet-1&session_id=1", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	c := decode[chart.Chart](t, w)
	if c.N() != 30 || c.Empty {
		t.Fatalf("chart has %d samples (empty=%v)", c.N(), c.Empty)
	}
	if c.Viewport == nil || *c.Viewport != (viewport.Viewport{Start: 0, End: 29}) {
		t.Errorf("initial viewport = %+v", c.Viewport)
	}
	want := segment.Segment{StartTime: t0.Add(10 * time.Second).UnixMilli(), EndTime: t0.Add(20 * time.Second).UnixMilli(), Level: 6}
	if len(c.Segments) != 1 || c.Segments[0] != want {
		t.Errorf("segments = %+v, want [%+v]", c.Segments, want)
	}
	if c.Markers[10] != chart.MarkerAppeared || c.Markers[20] != chart.MarkerPlaced {
		t.Errorf("markers at 10/20 = %s/%s", c.Markers[10], c.Markers[20])
	}

	do(t, s, http.MethodGet, "/api/bets/chart?bet_id=bet-1&session_id=1", nil)
	if mc.hits != 1 || mc.misses != 1 {
		t.Errorf("cache hits=%d misses=%d, want 1/1", mc.hits, mc.misses)
	}
}

func TestApplyViewport(t *testing.T) {
	s, _ := newTestServer(t)
	tests := []struct {
		name string
		body map[string]any
		want *viewport.Viewport
	}{
		{
			name: "zoom in from full range",
			body: map[string]any{"n": 100, "event": map[string]any{"type": "zoom_in"}},
			want: &viewport.Viewport{Start: 24, End: 74},
		},
		{
			name: "pan right",
			body: map[string]any{"n": 100, "viewport": map[string]any{"start_index": 24, "end_index": 74}, "event": map[string]any{"type": "pan_right"}},
			want: &viewport.Viewport{Start: 36, End: 86},
		},
		{
			name: "reset",
			body: map[string]any{"n": 100, "viewport": map[string]any{"start_index": 24, "end_index": 74}, "event": map[string]any{"type": "reset"}},
			want: &viewport.Viewport{Start: 0, End: 99},
		},
		{
			name: "wheel zoom in at center",
			body: map[string]any{"n": 100, "event": map[string]any{"type": "wheel", "delta_y": -1, "anchor_fraction": 0.5}},
			want: &viewport.Viewport{Start: 10, End: 89},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, s, http.MethodPost, "/api/viewport", tt.body)
			if w.Code != http.StatusOK {
				t.Fatalf("status = %d: %s", w.Code, w.Body.String())
			}
			got := decode[viewportResponse](t, w)
			if got.Viewport == nil || *got.Viewport != *tt.want {
				t.Errorf("viewport = %+v, want %+v", got.Viewport, tt.want)
			}
		})
	}

	w := do(t, s, http.MethodPost, "/api/viewport", map[string]any{"n": 0, "event": map[string]any{"type": "zoom_in"}})
	if got := decode[viewportResponse](t, w); !got.Empty || got.Viewport != nil {
		t.Errorf("empty sequence response = %+v", got)
	}
}

func TestMiddleware(t *testing.T) {
	s, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/sessions", nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	if w.Code != http.StatusNoContent {
		t.Errorf("preflight status = %d", w.Code)
	}
	if w.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Error("missing CORS header")
	}

	w = do(t, s, http.MethodGet, "/", nil)
	if w.Header().Get(requestIDHeader) == "" {
		t.Error("request ID not assigned")
	}

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(requestIDHeader, "abc-123")
	w = httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	if got := w.Header().Get(requestIDHeader); got != "abc-123" {
		t.Errorf("request ID not propagated: %q", got)
	}

	w = do(t, s, http.MethodGet, "/metrics", nil)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "evgraph_api_requests_total") {
		t.Errorf("metrics endpoint missing request counter")
	}
}
