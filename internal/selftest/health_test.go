package selftest

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/joss/elf/internal/config"
	"github.com/joss/elf/internal/vector"
)

type fakePinger struct {
	err   error
	delay time.Duration
}

func (p fakePinger) Ping(ctx context.Context) error {
	time.Sleep(p.delay)
	return p.err
}

func TestPingCheck(t *testing.T) {
	ctx := context.Background()

	if got := PingCheck("docs", fakePinger{}, time.Second).Run(ctx); got.Status != StatusOK {
		t.Errorf("expected ok, got %s", got.Status)
	}
	if got := PingCheck("docs", fakePinger{err: errors.New("locked")}, 0).Run(ctx); got.Status != StatusError || got.Error != "locked" {
		t.Errorf("expected error 'locked', got %+v", got)
	}
	if got := PingCheck("graph", fakePinger{delay: 20 * time.Millisecond}, time.Millisecond).Run(ctx); got.Status != StatusDegraded {
		t.Errorf("expected degraded, got %s", got.Status)
	}
}

func TestIndexCheck(t *testing.T) {
	ctx := context.Background()
	index, err := vector.NewLanceStore(filepath.Join(t.TempDir(), "vectors"))
	if err != nil {
		t.Fatal(err)
	}
	defer index.Close()

	if got := IndexCheck(index, "filings").Run(ctx); got.Status != StatusDegraded {
		t.Errorf("empty index should be degraded, got %s", got.Status)
	}

	if err := index.Upsert(ctx, vector.Entry{ID: "filing_1", Namespace: "filings", Vector: []float32{1, 0}}); err != nil {
		t.Fatal(err)
	}
	got := IndexCheck(index, "filings", "transcripts").Run(ctx)
	if got.Status != StatusOK {
		t.Errorf("expected ok, got %s", got.Status)
	}
	if got.Detail != "filings=1 transcripts=0" {
		t.Errorf("unexpected detail %q", got.Detail)
	}
}

func TestRemoteCheck(t *testing.T) {
	ok := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer ok.Close()

	if got := RemoteCheck(ok.URL+"/", ok.Client()).Run(context.Background()); got.Status != StatusOK {
		t.Errorf("expected ok, got %+v", got)
	}

	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer down.Close()

	if got := RemoteCheck(down.URL, down.Client()).Run(context.Background()); got.Status != StatusError {
		t.Errorf("expected error, got %s", got.Status)
	}
}

func TestCredentialCheck(t *testing.T) {
	t.Setenv("ELF_PROVIDER", "openai")
	t.Setenv("ELF_EMBEDDING_PROVIDER", "")
	t.Setenv("OPENAI_API_KEY", "")
	config.ResetEnv()
	t.Cleanup(config.ResetEnv)

	if got := CredentialCheck(config.Env()).Run(context.Background()); got.Status != StatusError {
		t.Errorf("missing key should be an error, got %s", got.Status)
	}

	t.Setenv("OPENAI_API_KEY", "sk-test")
	config.ResetEnv()
	got := CredentialCheck(config.Env()).Run(context.Background())
	if got.Status != StatusOK {
		t.Errorf("expected ok, got %+v", got)
	}
	if !strings.Contains(got.Detail, "credentials=[index,llm]") {
		t.Errorf("unexpected detail %q", got.Detail)
	}
}

func TestCheckHealth(t *testing.T) {
	report := CheckHealth(context.Background(),
		PingCheck("docs", fakePinger{}, 0),
		Check{Name: "index", Run: func(context.Context) ComponentStatus { return ComponentStatus{Status: StatusDegraded} }},
	)
	if report.Status != "degraded" {
		t.Errorf("expected degraded, got %s", report.Status)
	}
	if !report.IsHealthy() {
		t.Error("degraded report should still be healthy")
	}
	if len(report.Components) != 2 {
		t.Errorf("expected 2 components, got %d", len(report.Components))
	}

	report = CheckHealth(context.Background(), PingCheck("docs", fakePinger{}, 0), Failed("graph", errors.New("refused")))
	if report.Status != "unhealthy" || report.IsHealthy() {
		t.Errorf("expected unhealthy, got %s", report.Status)
	}
}
