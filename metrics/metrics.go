// Package metrics exposes prometheus gauges for the agent's own
// operational health: connection counts, flood-queue depth and mesh
// link count. It is ambient observability, not a protocol feature, so
// its endpoint is bound to loopback only. Grounded on
// presbrey-pkg/echoprom's registry-plus-promhttp-server pattern,
// generalized from HTTP middleware counters to gauges updated directly
// by the subsystems that own the numbers.
package metrics

import (
	"context"
	"errors"
	"net"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is this agent's private metrics registry; it is never the
// global default so accidentally importing an unrelated package that
// registers against prometheus.DefaultRegisterer cannot collide.
var Registry = prometheus.NewRegistry()

var (
	// IRCConnections reports each server's IRC connection state, labeled
	// by server id: 1 while registered, 0 otherwise.
	IRCConnections = promauto.With(Registry).NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "munin_irc_connection_state",
			Help: "IRC connection state (1=registered, 0=not) per server id.",
		},
		[]string{"server_id"},
	)

	// FloodQueueDepth reports how many outgoing lines are buffered
	// behind the flood-control token bucket, per server id.
	FloodQueueDepth = promauto.With(Registry).NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "munin_flood_queue_depth",
			Help: "Messages queued behind the flood-control token bucket.",
		},
		[]string{"server_id"},
	)

	// MeshLinks reports the number of authenticated mesh peer links.
	MeshLinks = promauto.With(Registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "munin_mesh_links",
			Help: "Number of currently authenticated bot-mesh peer links.",
		},
	)

	// ControlSessions reports the number of live control-plane sessions.
	ControlSessions = promauto.With(Registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "munin_control_sessions",
			Help: "Number of currently connected control-plane sessions.",
		},
	)

	// EventsDropped counts event-bus messages dropped due to a full
	// subscriber queue (events.Bus's drop-oldest-with-warning policy).
	EventsDropped = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "munin_events_dropped_total",
			Help: "Event-bus messages dropped because a subscriber queue was full.",
		},
		[]string{"event_kind"},
	)

	// TriggersFired counts rule matches, per rule name.
	TriggersFired = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "munin_triggers_fired_total",
			Help: "Number of times each trigger rule has matched and fired.",
		},
		[]string{"rule"},
	)
)

// Server serves the Registry on a loopback-only HTTP listener.
type Server struct {
	http *http.Server
}

// ErrNotLoopback is returned by NewServer when addr's host does not
// resolve to a loopback address.
var ErrNotLoopback = errors.New("metrics: bind address must be loopback")

// NewServer builds a metrics Server bound to addr, which must resolve to
// a loopback address (spec.md's ambient-observability stance never
// expects this endpoint to be reachable off-host).
func NewServer(addr string) (*Server, error) {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, err
	}
	if host != "localhost" {
		ip := net.ParseIP(host)
		if ip == nil || !ip.IsLoopback() {
			return nil, ErrNotLoopback
		}
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(Registry, promhttp.HandlerOpts{}))
	return &Server{http: &http.Server{Addr: addr, Handler: mux}}, nil
}

// ListenAndServe blocks serving metrics until the server is shut down.
func (s *Server) ListenAndServe() error {
	err := s.http.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown gracefully stops the metrics server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}
