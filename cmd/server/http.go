package main

import (
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"

	"grovecraft.io/internal/persistence/indexdb"
	"grovecraft.io/internal/sim/world"
	"grovecraft.io/internal/transport/observer"
	"grovecraft.io/internal/transport/ws"
)

type adminState struct {
	WorldID  string             `json:"world_id"`
	Tick     uint64             `json:"tick"`
	Metrics  world.WorldMetrics `json:"metrics"`
	Sessions []ws.SessionInfo   `json:"sessions"`
	Index    indexdb.Stats      `json:"index"`
}

func newMux(w *world.World, wsSrv *ws.Server, idx *indexdb.SQLiteIndex, log logrus.FieldLogger) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(http.StatusOK)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "text/plain; version=0.0.4")
		writeMetrics(rw, w.ID(), w.Metrics(), idx.Stats())
	})

	// Local-only admin endpoints.
	mux.HandleFunc("/admin/v1/state", func(rw http.ResponseWriter, r *http.Request) {
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		rw.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(rw).Encode(adminState{
			WorldID:  w.ID(),
			Tick:     w.Tick(),
			Metrics:  w.Metrics(),
			Sessions: wsSrv.Sessions(),
			Index:    idx.Stats(),
		})
	})
	obsSrv := observer.NewServer(w, log)
	mux.HandleFunc("/admin/v1/observer/bootstrap", obsSrv.BootstrapHandler())
	mux.HandleFunc("/admin/v1/observer/ws", obsSrv.WSHandler())

	mux.HandleFunc("/v1/ws", wsSrv.Handler())
	return mux
}

// writeMetrics renders the Prometheus text exposition format.
func writeMetrics(rw http.ResponseWriter, worldID string, m world.WorldMetrics, is indexdb.Stats) {
	gauge := func(name, help string, v any) {
		fmt.Fprintf(rw, "# HELP grovecraft_%s %s\n", name, help)
		fmt.Fprintf(rw, "# TYPE grovecraft_%s gauge\n", name)
		fmt.Fprintf(rw, "grovecraft_%s{world=%q} %v\n", name, worldID, v)
	}
	counter := func(name, help string, v uint64) {
		fmt.Fprintf(rw, "# HELP grovecraft_%s %s\n", name, help)
		fmt.Fprintf(rw, "# TYPE grovecraft_%s counter\n", name)
		fmt.Fprintf(rw, "grovecraft_%s{world=%q} %d\n", name, worldID, v)
	}

	gauge("world_tick", "Current world tick.", m.Tick)
	gauge("world_participants", "Connected participants.", m.Participants)
	gauge("world_observers", "Connected spectators.", m.Observers)
	gauge("world_resources", "Materialized resources.", m.Resources)
	gauge("world_items", "Items on the ground.", m.Items)
	gauge("world_planted", "Planted seeds.", m.Planted)
	gauge("world_cleared", "Cleared resource ids.", m.Cleared)
	gauge("world_pending_respawns", "Pending resource respawns.", m.PendingRespawns)
	gauge("world_pending_growth", "Pending plant transformations.", m.PendingGrowth)
	gauge("world_step_ms", "Last step duration in milliseconds.", fmt.Sprintf("%.3f", m.StepMS))
	counter("world_materialized_total", "Lazily materialized resources.", m.Materialized)
	counter("world_rejections_total", "Rejected actions.", m.Rejections)
	counter("broadcast_sent_total", "Messages queued to outboxes.", m.Broadcast.Sent)
	counter("broadcast_dropped_total", "Messages dropped for slow consumers.", m.Broadcast.Dropped)

	gauge("index_queue_depth", "Index writer backlog.", is.QueueDepth)
	counter("index_dropped_total", "Index writes dropped because the queue was full.",
		is.DropAuditTotal+is.DropSessionTotal+is.DropSnapshotTotal)
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
