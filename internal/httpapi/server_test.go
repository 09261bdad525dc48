package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/pdrpinto/gridpath"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

// openConfig is a 5x5 grid of 1x1 cells centred on the origin, walkable
// everywhere except the cell at (x=2, y=4), with penalty 2 on every walkable
// cell.
func openConfig() gridpath.GridConfig {
	return gridpath.GridConfig{
		WorldSize:  gridpath.Size{Width: 5, Height: 5},
		CellRadius: 0.5,
		IsWalkable: func(p gridpath.Vec3, _ float64) bool {
			return !(p.X == 0 && p.Z == 2)
		},
		GroundPenalty: func(gridpath.Vec3, float64) int { return 2 },
	}
}

type stubReloader struct {
	service *gridpath.Service
	err     error
}

func (r *stubReloader) Reload(ctx context.Context) (*gridpath.Grid, uint64, error) {
	if r.err != nil {
		return nil, 0, r.err
	}
	regeneration := r.service.RegenerateGrid(ctx, openConfig())
	grid, err := regeneration.Wait(ctx)
	return grid, regeneration.Version(), err
}

func newTestServer(t *testing.T, options Options) (*Server, *gridpath.Service) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	service, err := gridpath.NewService(openConfig(), gridpath.WithLogger(logger))
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	t.Cleanup(service.Close)
	options.Logger = logger
	return New(service, options), service
}

func do(t *testing.T, s *Server, method, path, body string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

func TestCreatePath_Wait(t *testing.T) {
	s, _ := newTestServer(t, Options{})
	rec := do(t, s, http.MethodPost, "/api/paths", `{"start":{"x":-2,"z":-2},"target":{"x":2,"z":2},"wait":true}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body)
	}
	response := decode[pathResponse](t, rec)
	if response.Status != statusFound || response.TotalCost != 56 || len(response.Waypoints) != 4 {
		t.Fatalf("unexpected response %+v", response)
	}
	if response.GridVersion != 1 {
		t.Fatalf("expected grid version 1, got %d", response.GridVersion)
	}
}

func TestCreatePath_NotFound(t *testing.T) {
	s, _ := newTestServer(t, Options{})
	rec := do(t, s, http.MethodPost, "/api/paths", `{"start":{"x":-2,"z":-2},"target":{"x":0,"z":2},"wait":true}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if response := decode[pathResponse](t, rec); response.Status != statusNotFound || len(response.Waypoints) != 0 {
		t.Fatalf("expected not_found, got %+v", response)
	}
}

func TestCreatePath_AsyncThenPoll(t *testing.T) {
	s, _ := newTestServer(t, Options{})
	rec := do(t, s, http.MethodPost, "/api/paths", `{"start":{"x":-2,"z":-2},"target":{"x":2,"z":-2}}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body)
	}
	accepted := decode[map[string]string](t, rec)
	id := accepted["id"]
	if _, err := uuid.Parse(id); err != nil {
		t.Fatalf("expected a uuid, got %q", id)
	}

	deadline := time.Now().Add(5 * time.Second)
	for {
		rec = do(t, s, http.MethodGet, "/api/paths/"+id, "")
		if rec.Code != http.StatusOK {
			t.Fatalf("poll: expected 200, got %d", rec.Code)
		}
		response := decode[pathResponse](t, rec)
		if response.Status != statusPending {
			if response.Status != statusFound || response.TotalCost != 40 || response.ID != id {
				t.Fatalf("unexpected result %+v", response)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("request never finished")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestCreatePath_BadRequests(t *testing.T) {
	s, _ := newTestServer(t, Options{})
	cases := []struct {
		method, path, body string
		want               int
	}{
		{http.MethodPost, "/api/paths", `{"start":{"x":0,"z":0}}`, http.StatusBadRequest},
		{http.MethodPost, "/api/paths", `not json`, http.StatusBadRequest},
		{http.MethodGet, "/api/paths/not-a-uuid", "", http.StatusBadRequest},
		{http.MethodGet, "/api/paths/" + uuid.NewString(), "", http.StatusNotFound},
		{http.MethodPost, "/api/snap", `{}`, http.StatusBadRequest},
	}
	for _, tc := range cases {
		if rec := do(t, s, tc.method, tc.path, tc.body); rec.Code != tc.want {
			t.Fatalf("%s %s %s: expected %d, got %d", tc.method, tc.path, tc.body, tc.want, rec.Code)
		}
	}
}

func TestCreatePath_ClosedService(t *testing.T) {
	s, service := newTestServer(t, Options{})
	service.Close()
	rec := do(t, s, http.MethodPost, "/api/paths", `{"start":{"x":-2,"z":-2},"target":{"x":2,"z":2},"wait":true}`)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
	if response := decode[pathResponse](t, rec); response.Status != statusError || response.Error == "" {
		t.Fatalf("expected an error response, got %+v", response)
	}
}

func TestSnap(t *testing.T) {
	s, _ := newTestServer(t, Options{})
	rec := do(t, s, http.MethodPost, "/api/snap", `{"position":{"x":1.2,"y":0,"z":1.1}}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var response struct {
		Position gridpath.Vec3    `json:"position"`
		Cell     gridpath.NodeRef `json:"cell"`
		Walkable bool             `json:"walkable"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &response); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if response.Position != (gridpath.Vec3{X: 1, Z: 1}) || response.Cell != (gridpath.NodeRef{X: 3, Y: 3}) || !response.Walkable {
		t.Fatalf("unexpected snap %+v", response)
	}
}

func TestGridSummary(t *testing.T) {
	s, _ := newTestServer(t, Options{})
	rec := do(t, s, http.MethodGet, "/api/grid", "")
	summary := decode[gridSummary](t, rec)
	if summary.Width != 5 || summary.Height != 5 || summary.Walkable != 24 || summary.Version != 1 {
		t.Fatalf("unexpected summary %+v", summary)
	}
}

func TestGridNodes_Encodings(t *testing.T) {
	s, _ := newTestServer(t, Options{})

	check := func(t *testing.T, dump nodeDump) {
		t.Helper()
		if len(dump.Nodes) != 25 || dump.Width != 5 {
			t.Fatalf("expected 25 nodes, got %d", len(dump.Nodes))
		}
		if first := dump.Nodes[0]; first.Position != (gridpath.Vec3{X: -2, Z: -2}) || !first.Walkable || first.Penalty != 2 {
			t.Fatalf("unexpected first node %+v", first)
		}
		if blocked := dump.Nodes[4*5+2]; blocked.Walkable || blocked.Penalty != 0 {
			t.Fatalf("expected blocked node at (2,4), got %+v", blocked)
		}
	}

	t.Run("json", func(t *testing.T) {
		rec := do(t, s, http.MethodGet, "/api/grid/nodes", "")
		if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "application/json") {
			t.Fatalf("unexpected content type %q", ct)
		}
		check(t, decode[nodeDump](t, rec))
	})

	t.Run("msgpack", func(t *testing.T) {
		rec := do(t, s, http.MethodGet, "/api/grid/nodes", "", "Accept", contentTypeMsgpack)
		if ct := rec.Header().Get("Content-Type"); ct != contentTypeMsgpack {
			t.Fatalf("unexpected content type %q", ct)
		}
		var dump nodeDump
		if err := msgpack.Unmarshal(rec.Body.Bytes(), &dump); err != nil {
			t.Fatalf("decode msgpack: %v", err)
		}
		check(t, dump)
	})

	t.Run("brotli", func(t *testing.T) {
		rec := do(t, s, http.MethodGet, "/api/grid/nodes", "", "Accept-Encoding", "gzip, br")
		if rec.Header().Get("Content-Encoding") != "br" {
			t.Fatal("expected a brotli body")
		}
		plain, err := io.ReadAll(brotli.NewReader(bytes.NewReader(rec.Body.Bytes())))
		if err != nil {
			t.Fatalf("decompress: %v", err)
		}
		var dump nodeDump
		if err := json.Unmarshal(plain, &dump); err != nil {
			t.Fatalf("decode: %v", err)
		}
		check(t, dump)
	})
}

func TestRegenerate(t *testing.T) {
	t.Run("unconfigured", func(t *testing.T) {
		s, _ := newTestServer(t, Options{})
		if rec := do(t, s, http.MethodPost, "/api/grid/regenerate", ""); rec.Code != http.StatusNotImplemented {
			t.Fatalf("expected 501, got %d", rec.Code)
		}
	})

	t.Run("publishes", func(t *testing.T) {
		reloader := &stubReloader{}
		s, service := newTestServer(t, Options{Reloader: reloader})
		reloader.service = service
		rec := do(t, s, http.MethodPost, "/api/grid/regenerate", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body)
		}
		if summary := decode[gridSummary](t, rec); summary.Version != 2 || service.GridVersion() != 2 {
			t.Fatalf("expected version 2, got %+v", summary)
		}
	})

	t.Run("failure", func(t *testing.T) {
		s, service := newTestServer(t, Options{Reloader: &stubReloader{err: errors.New("config: grid.cell_radius: must be positive")}})
		rec := do(t, s, http.MethodPost, "/api/grid/regenerate", "")
		if rec.Code != http.StatusUnprocessableEntity {
			t.Fatalf("expected 422, got %d", rec.Code)
		}
		if service.GridVersion() != 1 {
			t.Fatal("failed regeneration changed the grid version")
		}
	})
}

func TestWebSocket(t *testing.T) {
	s, _ := newTestServer(t, Options{})
	server := httptest.NewServer(s.Handler())
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/api/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"id":"a","start":{"x":-2,"z":-2},"target":{"x":2,"z":2}}`)); err != nil {
		t.Fatalf("write: %v", err)
	}
	messageType, payload, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if messageType != websocket.BinaryMessage {
		t.Fatalf("expected a binary frame, got type %d", messageType)
	}
	var response pathResponse
	if err := msgpack.Unmarshal(payload, &response); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if response.ID != "a" || response.Status != statusFound || response.TotalCost != 56 {
		t.Fatalf("unexpected response %+v", response)
	}

	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"id":"b"}`)); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, payload, err = conn.ReadMessage(); err != nil {
		t.Fatalf("read: %v", err)
	}
	response = pathResponse{}
	if err := msgpack.Unmarshal(payload, &response); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if response.ID != "b" || response.Status != statusError {
		t.Fatalf("expected an error frame for the malformed request, got %+v", response)
	}
}

func TestMetrics(t *testing.T) {
	s, _ := newTestServer(t, Options{})
	do(t, s, http.MethodPost, "/api/paths", `{"start":{"x":-2,"z":-2},"target":{"x":2,"z":2},"wait":true}`)
	rec := do(t, s, http.MethodGet, "/metrics", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	for _, name := range []string{"gridpath_path_requests_total", "gridpath_grid_nodes", "gridpath_search_duration_seconds"} {
		if !strings.Contains(rec.Body.String(), name) {
			t.Fatalf("metrics output is missing %s", name)
		}
	}
}

func TestRegistry_EvictsFinishedAfterTTL(t *testing.T) {
	_, service := newTestServer(t, Options{})
	r := newRegistry(time.Minute)
	now := time.Unix(1000, 0)
	r.now = func() time.Time { return now }

	request := service.RequestPath(context.Background(), gridpath.Vec3{X: -2, Z: -2}, gridpath.Vec3{X: 2, Z: 2})
	<-request.Done()
	r.add(request)

	if _, ok := r.get(request.ID); !ok {
		t.Fatal("request should be registered")
	}
	now = now.Add(59 * time.Second)
	if _, ok := r.get(request.ID); !ok {
		t.Fatal("request evicted before its ttl")
	}
	now = now.Add(2 * time.Second)
	if _, ok := r.get(request.ID); ok {
		t.Fatal("request should have expired")
	}
	if r.len() != 0 {
		t.Fatalf("expected an empty registry, got %d", r.len())
	}
}
