package main

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"grovecraft.io/internal/sim/world"
	"grovecraft.io/internal/transport/ws"
)

func testMux(t *testing.T) (*world.World, *httptest.Server) {
	t.Helper()
	w := world.New(world.Config{ID: "grove", Seed: 42, TickRateHz: 20, SpawnRadius: 128, MaxParticipants: 4}, world.Options{})
	wsSrv := ws.NewServer(w, ws.Config{}, nil, nil)
	srv := httptest.NewServer(newMux(w, wsSrv, nil, nil))
	t.Cleanup(srv.Close)
	return w, srv
}

func get(t *testing.T, url string) (int, string) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("get %s: %v", url, err)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, string(b)
}

func TestHealthz(t *testing.T) {
	_, srv := testMux(t)
	if code, body := get(t, srv.URL+"/healthz"); code != 200 || body != "ok" {
		t.Fatalf("healthz: %d %q", code, body)
	}
}

func TestMetricsExposition(t *testing.T) {
	w, srv := testMux(t)
	w.StepOnce()
	w.StepOnce()
	_, body := get(t, srv.URL+"/metrics")
	for _, want := range []string{
		`grovecraft_world_tick{world="grove"} 2`,
		`# TYPE grovecraft_world_materialized_total counter`,
		`grovecraft_index_dropped_total{world="grove"} 0`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("metrics missing %q:\n%s", want, body)
		}
	}
}

func TestAdminState(t *testing.T) {
	w, srv := testMux(t)
	w.StepOnce()
	code, body := get(t, srv.URL+"/admin/v1/state")
	if code != 200 {
		t.Fatalf("status %d", code)
	}
	var st adminState
	if err := json.Unmarshal([]byte(body), &st); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if st.WorldID != "grove" || st.Tick != 1 || st.Metrics.Tick != 1 {
		t.Fatalf("state: %+v", st)
	}
}
