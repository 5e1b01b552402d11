package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/lazypower/tiermem/internal/config"
	"github.com/lazypower/tiermem/internal/embed"
	"github.com/lazypower/tiermem/internal/engine"
	"github.com/lazypower/tiermem/internal/events"
	"github.com/lazypower/tiermem/internal/eviction"
	"github.com/lazypower/tiermem/internal/store"
)

const dims = 32

type fixture struct {
	*Server
	eng *engine.Engine
	db  *store.DB
	bus *events.Bus
}

func testServer(t *testing.T) *fixture {
	t.Helper()
	db, err := store.OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	cfg := config.Default()
	cfg.Memory.Dimensions = dims
	bus := events.NewBus()
	eng, err := engine.New(cfg,
		engine.WithVectorizer(embed.Vectorizer(embed.NewHash(dims))),
		engine.WithBus(bus),
		engine.WithPersister(db),
	)
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}
	t.Cleanup(eng.Stop)

	return &fixture{Server: New(eng, db, bus, "test-version"), eng: eng, db: db, bus: bus}
}

func (f *fixture) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	w := httptest.NewRecorder()
	f.ServeHTTP(w, req)
	return w
}

func (f *fixture) store(t *testing.T, content string) string {
	t.Helper()
	w := f.do(t, "POST", "/api/traces", `{"content":"`+content+`","tags":["ops"]}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("store: status = %d, body: %s", w.Code, w.Body.String())
	}
	var resp map[string]string
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp["id"] == "" {
		t.Fatalf("store: no id in %s", w.Body.String())
	}
	return resp["id"]
}

func TestHealthEndpoint(t *testing.T) {
	srv := testServer(t)

	w := srv.do(t, "GET", "/api/health", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}

	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("status = %v, want ok", body["status"])
	}
	if body["version"] != "test-version" {
		t.Errorf("version = %v, want test-version", body["version"])
	}
	if body["db"] != true {
		t.Errorf("db = %v, want true", body["db"])
	}
}

func TestHealthWithoutDatabase(t *testing.T) {
	f := testServer(t)
	srv := New(f.eng, nil, nil, "v")

	w := httptest.NewRecorder()
	srv.ServeHTTP(w, httptest.NewRequest("GET", "/api/health", nil))

	var body map[string]any
	json.Unmarshal(w.Body.Bytes(), &body)
	if body["db"] != false {
		t.Errorf("db = %v, want false", body["db"])
	}
}

func TestStoreAndGet(t *testing.T) {
	srv := testServer(t)
	id := srv.store(t, "deploy failed on staging")

	w := srv.do(t, "GET", "/api/traces/"+id, "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body: %s", w.Code, w.Body.String())
	}
	var tr map[string]any
	json.Unmarshal(w.Body.Bytes(), &tr)
	if tr["content"] != "deploy failed on staging" {
		t.Errorf("content = %v", tr["content"])
	}
	if tr["tier"] != "working" {
		t.Errorf("tier = %v, want working", tr["tier"])
	}
}

func TestStoreVectorOnly(t *testing.T) {
	srv := testServer(t)
	vec := make([]float64, dims)
	vec[3] = 1
	body, _ := json.Marshal(map[string]any{"vector": vec})

	w := srv.do(t, "POST", "/api/traces", string(body))
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, body: %s", w.Code, w.Body.String())
	}
	var resp map[string]string
	json.Unmarshal(w.Body.Bytes(), &resp)

	got, ok := srv.eng.Get(resp["id"])
	if !ok {
		t.Fatalf("trace %q not stored", resp["id"])
	}
	if got.Content != nil {
		t.Errorf("content = %v, want nil", got.Content)
	}
	if len(got.Vector) != dims || got.Vector[3] != 1 {
		t.Errorf("vector = %v", got.Vector)
	}
}

func TestGetMissing(t *testing.T) {
	srv := testServer(t)
	w := srv.do(t, "GET", "/api/traces/nope", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestStoreRejectsBadInput(t *testing.T) {
	srv := testServer(t)

	cases := []struct {
		name string
		body string
	}{
		{"invalid json", `{not json`},
		{"missing content", `{"tags":["x"]}`},
		{"wrong vector length", `{"content":"x","vector":[1,2,3]}`},
	}
	for _, tc := range cases {
		w := srv.do(t, "POST", "/api/traces", tc.body)
		if w.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want %d", tc.name, w.Code, http.StatusBadRequest)
		}
	}
	if n := srv.eng.Stats().Total; n != 0 {
		t.Errorf("Total = %d after rejected stores, want 0", n)
	}
}

func TestDelete(t *testing.T) {
	srv := testServer(t)
	id := srv.store(t, "temporary")

	if w := srv.do(t, "DELETE", "/api/traces/"+id, ""); w.Code != http.StatusOK {
		t.Fatalf("delete: status = %d", w.Code)
	}
	if w := srv.do(t, "DELETE", "/api/traces/"+id, ""); w.Code != http.StatusNotFound {
		t.Errorf("second delete: status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestRetrieve(t *testing.T) {
	srv := testServer(t)
	id := srv.store(t, "database migration rolled back")
	srv.store(t, "lunch order for friday")

	w := srv.do(t, "POST", "/api/retrieve", `{"text":"database migration rolled back","tags":["o*"]}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body: %s", w.Code, w.Body.String())
	}
	var res engine.Result
	if err := json.Unmarshal(w.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(res.Traces) == 0 || res.Traces[0].Trace.ID != id {
		t.Fatalf("top match = %+v, want %s", res.Traces, id)
	}
	if res.Confidence <= 0 || res.Confidence > 1 {
		t.Errorf("confidence = %v, want in (0,1]", res.Confidence)
	}
}

func TestRetrieveEmptyIsNotAnError(t *testing.T) {
	srv := testServer(t)

	w := srv.do(t, "POST", "/api/retrieve", `{"text":"anything at all"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"traces":[]`) {
		t.Errorf("body = %s, want empty traces array", w.Body.String())
	}
}

func TestRetrieveNeedsTextOrVector(t *testing.T) {
	srv := testServer(t)
	if w := srv.do(t, "POST", "/api/retrieve", `{"limit":5}`); w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestPath(t *testing.T) {
	srv := testServer(t)
	a := srv.store(t, "release checklist")
	b := srv.store(t, "release checklist")

	w := srv.do(t, "GET", "/api/path?from="+a+"&to="+b, "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var resp struct {
		Found bool     `json:"found"`
		Path  []string `json:"path"`
	}
	json.Unmarshal(w.Body.Bytes(), &resp)
	if !resp.Found || len(resp.Path) != 2 {
		t.Errorf("path = %+v, want direct link", resp)
	}

	if w := srv.do(t, "GET", "/api/path?from="+a, ""); w.Code != http.StatusBadRequest {
		t.Errorf("missing to: status = %d, want %d", w.Code, http.StatusBadRequest)
	}
	if w := srv.do(t, "GET", "/api/path?from="+a+"&to="+b+"&max_hops=x", ""); w.Code != http.StatusBadRequest {
		t.Errorf("bad max_hops: status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestTickPersistsSnapshot(t *testing.T) {
	srv := testServer(t)
	srv.store(t, "one")
	srv.store(t, "two")

	w := srv.do(t, "POST", "/api/tick", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var report map[string]any
	json.Unmarshal(w.Body.Bytes(), &report)
	if _, ok := report["promoted"]; !ok {
		t.Errorf("report = %v, want promoted count", report)
	}

	n, err := srv.db.TraceCount(context.Background())
	if err != nil {
		t.Fatalf("TraceCount: %v", err)
	}
	if n != 2 {
		t.Errorf("persisted %d traces, want 2", n)
	}
}

func TestPressure(t *testing.T) {
	srv := testServer(t)

	if w := srv.do(t, "POST", "/api/pressure", `{"level":"high"}`); w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if p := srv.eng.Stats().Pressure; p != "high" {
		t.Errorf("Pressure = %q, want high", p)
	}
	if w := srv.do(t, "POST", "/api/pressure", `{"level":"extreme"}`); w.Code != http.StatusBadRequest {
		t.Errorf("unknown level: status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestStats(t *testing.T) {
	srv := testServer(t)
	srv.store(t, "one")

	w := srv.do(t, "GET", "/api/stats", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var stats engine.Stats
	if err := json.Unmarshal(w.Body.Bytes(), &stats); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if stats.Total != 1 {
		t.Errorf("Total = %d, want 1", stats.Total)
	}
	if stats.Tiers["working"].Capacity != 7 {
		t.Errorf("working capacity = %d, want 7", stats.Tiers["working"].Capacity)
	}
}

func TestEvictions(t *testing.T) {
	srv := testServer(t)
	recs := []eviction.Record{
		{TraceID: "a", Tier: "working", Reason: eviction.LowStrength, Strength: 3, At: time.Now()},
		{TraceID: "b", Tier: "working", Reason: eviction.DecayThreshold, Strength: 2, At: time.Now()},
	}
	if err := srv.db.RecordEvictions(context.Background(), recs); err != nil {
		t.Fatalf("RecordEvictions: %v", err)
	}

	w := srv.do(t, "GET", "/api/evictions?reason=decay_threshold", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var got []eviction.Record
	json.Unmarshal(w.Body.Bytes(), &got)
	if len(got) != 1 || got[0].TraceID != "b" {
		t.Errorf("evictions = %+v, want only b", got)
	}

	noDB := New(srv.eng, nil, nil, "v")
	rec := httptest.NewRecorder()
	noDB.ServeHTTP(rec, httptest.NewRequest("GET", "/api/evictions", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("without db: status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}
}

func TestEventStream(t *testing.T) {
	f := testServer(t)
	ts := httptest.NewServer(f)
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/events?type=trace.stored"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for f.bus.Subscribers() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("subscriber never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	id := f.store(t, "streamed")

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var ev events.Event
	if err := conn.ReadJSON(&ev); err != nil {
		t.Fatalf("ReadJSON: %v", err)
	}
	if ev.Type != events.TraceStored || ev.TraceID != id {
		t.Errorf("event = %+v, want trace.stored for %s", ev, id)
	}
}

func TestEventStreamDisabled(t *testing.T) {
	f := testServer(t)
	srv := New(f.eng, f.db, nil, "v")

	w := httptest.NewRecorder()
	srv.ServeHTTP(w, httptest.NewRequest("GET", "/api/events", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", w.Code, http.StatusServiceUnavailable)
	}
}
