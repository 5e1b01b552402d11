package cli

import (
	"bytes"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/lazypower/tiermem/internal/config"
	"github.com/lazypower/tiermem/internal/embed"
	"github.com/lazypower/tiermem/internal/engine"
	"github.com/lazypower/tiermem/internal/server"
)

func testURL(t *testing.T) string {
	t.Helper()
	cfg := config.Default()
	cfg.Memory.Dimensions = 32
	eng, err := engine.New(cfg, engine.WithVectorizer(embed.Vectorizer(embed.NewHash(32))))
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}
	t.Cleanup(eng.Stop)
	ts := httptest.NewServer(server.New(eng, nil, nil, "test"))
	t.Cleanup(ts.Close)
	return ts.URL
}

func run(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("%v: %v\n%s", args, err, out.String())
	}
	return out.String()
}

func TestStoreRetrieveStats(t *testing.T) {
	url := testURL(t)

	id := strings.TrimSpace(run(t, "store", "--url", url, "-t", "ops", "restart", "the", "queue", "workers"))
	if id == "" {
		t.Fatal("store printed no id")
	}

	out := run(t, "retrieve", "--url", url, "restart the queue workers")
	if !strings.Contains(out, id) || !strings.Contains(out, "restart the queue workers") {
		t.Errorf("retrieve output missing trace:\n%s", out)
	}

	out = run(t, "tick", "--url", url)
	if !strings.Contains(out, "promoted 1") {
		t.Errorf("tick output = %q, want one promotion", out)
	}

	out = run(t, "stats", "--url", url)
	if !strings.Contains(out, "short_term") || !strings.Contains(out, "total 1 / 10000") {
		t.Errorf("stats output:\n%s", out)
	}
}

func TestVersion(t *testing.T) {
	out := run(t, "version")
	if !strings.HasPrefix(out, "tiermem dev") {
		t.Errorf("version = %q", out)
	}
}

func TestPreview(t *testing.T) {
	if got := preview("a\n  b"); got != "a b" {
		t.Errorf("preview = %q, want %q", got, "a b")
	}
	if got := preview(map[string]any{"k": 1}); got != `{"k":1}` {
		t.Errorf("preview = %q", got)
	}
	if got := preview(strings.Repeat("x", 300)); len(got) != 203 {
		t.Errorf("len(preview) = %d, want 203", len(got))
	}
}
