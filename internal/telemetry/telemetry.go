// Package telemetry exposes process counters as Prometheus text
// exposition, generalising the teacher's hand-rolled vector-of-strings
// approach to the connection/exchange/websocket domain of spec.md §4.9.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	units "github.com/docker/go-units"
)

type registry struct {
	enabled bool
	mu      sync.RWMutex

	connectionsAccepted map[string]uint64
	connectionsClosed   map[string]uint64
	exchangesCompleted  map[string]uint64
	routingLatencySum   map[string]float64
	routingLatencyCount map[string]uint64
	wsFrames            map[string]uint64
	wsBytes             map[string]uint64
}

var (
	mu  sync.RWMutex
	reg = registry{}
)

// Enable turns on metric collection; a no-op if already enabled, matching
// the teacher's idempotent EnablePrometheusMetrics().
func Enable() {
	mu.Lock()
	defer mu.Unlock()
	if reg.enabled {
		return
	}
	reg.connectionsAccepted = make(map[string]uint64)
	reg.connectionsClosed = make(map[string]uint64)
	reg.exchangesCompleted = make(map[string]uint64)
	reg.routingLatencySum = make(map[string]float64)
	reg.routingLatencyCount = make(map[string]uint64)
	reg.wsFrames = make(map[string]uint64)
	reg.wsBytes = make(map[string]uint64)
	reg.enabled = true
}

// Serve runs a /metrics HTTP server until ctx is cancelled, per the
// teacher's StartMetricsServer(ctx, addr) idiom.
func Serve(ctx context.Context, addr string) error {
	if strings.TrimSpace(addr) == "" {
		return errors.New("telemetry: empty metrics address")
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/metrics", handler)
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	err := srv.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("telemetry: metrics server: %w", err)
	}
	return nil
}

// ConnectionAccepted records a new connection on the given transport
// ("http1", "http2", "h2c").
func ConnectionAccepted(transport string) {
	mu.RLock()
	if !reg.enabled {
		mu.RUnlock()
		return
	}
	reg.mu.Lock()
	mu.RUnlock()
	defer reg.mu.Unlock()
	reg.connectionsAccepted[fmt.Sprintf("transport=%s", transport)]++
}

// ConnectionClosed records a connection closing, tagged with the reason
// ("graceful", "error", "idle-timeout").
func ConnectionClosed(transport, reason string) {
	mu.RLock()
	if !reg.enabled {
		mu.RUnlock()
		return
	}
	reg.mu.Lock()
	mu.RUnlock()
	defer reg.mu.Unlock()
	reg.connectionsClosed[fmt.Sprintf("transport=%s,reason=%s", transport, reason)]++
}

// ExchangeCompleted records a finished exchange by its response status
// class ("2xx", "4xx", "5xx", ...).
func ExchangeCompleted(transport string, statusClass string) {
	mu.RLock()
	if !reg.enabled {
		mu.RUnlock()
		return
	}
	reg.mu.Lock()
	mu.RUnlock()
	defer reg.mu.Unlock()
	reg.exchangesCompleted[fmt.Sprintf("transport=%s,status=%s", transport, statusClass)]++
}

// RoutingLatency records how long Router.Resolve took for one request.
// It does no sampling of its own, and nothing in this repository calls
// it.
func RoutingLatency(d time.Duration) {
	mu.RLock()
	if !reg.enabled {
		mu.RUnlock()
		return
	}
	reg.mu.Lock()
	mu.RUnlock()
	defer reg.mu.Unlock()
	reg.routingLatencyCount["dimension=all"]++
	reg.routingLatencySum["dimension=all"] += d.Seconds()
}

// WSFrame records one websocket frame transferred in the given direction
// ("inbound", "outbound") and size.
func WSFrame(direction string, size int) {
	mu.RLock()
	if !reg.enabled {
		mu.RUnlock()
		return
	}
	reg.mu.Lock()
	mu.RUnlock()
	defer reg.mu.Unlock()
	key := fmt.Sprintf("direction=%s", direction)
	reg.wsFrames[key]++
	reg.wsBytes[key] += uint64(size)
}

// HumanBytes renders n using the teacher-style human-readable byte size
// formatting pulled from docker/go-units, for log lines rather than the
// exposition format (which must stay machine-parseable raw numbers).
func HumanBytes(n int64) string {
	return units.HumanSize(float64(n))
}

func handler(w http.ResponseWriter, _ *http.Request) {
	mu.RLock()
	enabled := reg.enabled
	mu.RUnlock()
	if !enabled {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("# metrics disabled\n"))
		return
	}
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")

	reg.mu.RLock()
	defer reg.mu.RUnlock()

	writeCounterVec(w, "httpcore_connections_accepted_total", reg.connectionsAccepted)
	writeCounterVec(w, "httpcore_connections_closed_total", reg.connectionsClosed)
	writeCounterVec(w, "httpcore_exchanges_completed_total", reg.exchangesCompleted)
	writeSummaryAsCountAndSum(w, "httpcore_routing_resolve_duration_seconds", reg.routingLatencyCount, reg.routingLatencySum)
	writeCounterVec(w, "httpcore_ws_frames_total", reg.wsFrames)
	writeCounterVec(w, "httpcore_ws_bytes_total", reg.wsBytes)
}

func writeCounterVec(w http.ResponseWriter, name string, data map[string]uint64) {
	keys := sortedKeys(data)
	for _, k := range keys {
		fmt.Fprintf(w, "%s{%s} %d\n", name, toPromLabels(k), data[k])
	}
}

func writeSummaryAsCountAndSum(w http.ResponseWriter, name string, counts map[string]uint64, sums map[string]float64) {
	keys := sortedKeys(counts)
	for _, k := range keys {
		labels := toPromLabels(k)
		fmt.Fprintf(w, "%s_count{%s} %d\n", name, labels, counts[k])
		fmt.Fprintf(w, "%s_sum{%s} %f\n", name, labels, sums[k])
	}
}

func sortedKeys(data any) []string {
	var keys []string
	switch m := data.(type) {
	case map[string]uint64:
		for k := range m {
			keys = append(keys, k)
		}
	case map[string]float64:
		for k := range m {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

func toPromLabels(s string) string {
	parts := strings.Split(s, ",")
	for i, p := range parts {
		kv := strings.SplitN(p, "=", 2)
		if len(kv) != 2 {
			continue
		}
		parts[i] = fmt.Sprintf("%s=\"%s\"", kv[0], strings.ReplaceAll(kv[1], "\"", "\\\""))
	}
	return strings.Join(parts, ",")
}
