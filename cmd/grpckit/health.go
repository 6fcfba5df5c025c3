package main

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/vyrodovalexey/grpckit/internal/grpc/server"
	"github.com/vyrodovalexey/grpckit/internal/observability"
	"github.com/vyrodovalexey/grpckit/internal/store"
)

const readinessTimeout = 2 * time.Second

// pinger is implemented by stores that can report connectivity.
type pinger interface {
	Ping(ctx context.Context) error
}

// healthResponse is the JSON body of the health endpoints.
type healthResponse struct {
	Status  string            `json:"status"`
	Version string            `json:"version,omitempty"`
	Uptime  string            `json:"uptime,omitempty"`
	Checks  map[string]string `json:"checks,omitempty"`
}

// healthChecks serves liveness and readiness over HTTP for orchestrators that
// cannot speak the gRPC health protocol.
type healthChecks struct {
	server *server.Server
	store  store.Store
	logger observability.Logger
}

func (p *healthChecks) live(w http.ResponseWriter, _ *http.Request) {
	writeHealth(w, http.StatusOK, healthResponse{
		Status:  "ok",
		Version: version,
		Uptime:  p.server.Uptime().Round(time.Second).String(),
	}, p.logger)
}

func (p *healthChecks) ready(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ready", Checks: map[string]string{}}
	code := http.StatusOK

	if p.server.IsRunning() {
		resp.Checks["grpc"] = "ok"
	} else {
		resp.Checks["grpc"] = p.server.State().String()
		code = http.StatusServiceUnavailable
	}

	if pg, ok := p.store.(pinger); ok {
		ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
		defer cancel()

		if err := pg.Ping(ctx); err != nil {
			resp.Checks["store"] = err.Error()
			code = http.StatusServiceUnavailable
		} else {
			resp.Checks["store"] = "ok"
		}
	}

	if code != http.StatusOK {
		resp.Status = "not_ready"
	}
	writeHealth(w, code, resp, p.logger)
}

func writeHealth(w http.ResponseWriter, code int, resp healthResponse, logger observability.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		logger.Debug("failed to write health response", observability.Error(err))
	}
}
