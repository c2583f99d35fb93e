// internal/app/features/health/handler.go
package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/dalemusser/promptshelf/internal/app/system/timeouts"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Check tests one dependency. A failing Required check fails the whole
// endpoint; any other failure only degrades it.
type Check struct {
	Name     string
	Required bool
	Ping     func(ctx context.Context) error
}

// MongoCheck pings the primary.
func MongoCheck(client *mongo.Client) Check {
	return Check{Name: "database", Required: true, Ping: func(ctx context.Context) error {
		return client.Ping(ctx, readpref.Primary())
	}}
}

// RedisCheck pings the tab store backend. Guests cannot keep sessions
// without it, so it is required.
func RedisCheck(rdb redis.UniversalClient) Check {
	return Check{Name: "redis", Required: true, Ping: func(ctx context.Context) error {
		return rdb.Ping(ctx).Err()
	}}
}

// NATSCheck reports the event connection. Events are best effort.
func NATSCheck(nc *nats.Conn) Check {
	return Check{Name: "nats", Ping: func(context.Context) error {
		if !nc.IsConnected() {
			return errors.New("nats " + nc.Status().String())
		}
		return nil
	}}
}

// Handler holds dependencies needed for health checks.
type Handler struct {
	Checks []Check
	Log    *zap.Logger
}

// NewHandler constructs a health Handler from a set of checks.
func NewHandler(logger *zap.Logger, checks ...Check) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{Checks: checks, Log: logger}
}

// healthResponse is the JSON structure for the health check response.
type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// Serve handles GET /health.
//
// All checks run concurrently under the ping timeout. Responses:
//
//	200 { "status":"ok",       "checks":{"database":"ok","redis":"ok"} }
//	200 { "status":"degraded", "checks":{"database":"ok","nats":"nats RECONNECTING"} }
//	503 { "status":"error",    "checks":{"database":"…"} }
func (h *Handler) Serve(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Ping())
	defer cancel()

	errs := make([]error, len(h.Checks))
	var g errgroup.Group
	for i, c := range h.Checks {
		g.Go(func() error {
			errs[i] = c.Ping(ctx)
			return nil
		})
	}
	_ = g.Wait()

	resp := healthResponse{Status: "ok", Checks: make(map[string]string, len(h.Checks))}
	status := http.StatusOK
	for i, c := range h.Checks {
		if errs[i] == nil {
			resp.Checks[c.Name] = "ok"
			continue
		}
		resp.Checks[c.Name] = errs[i].Error()
		h.Log.Error("health-check failed", zap.String("check", c.Name), zap.Error(errs[i]))
		if c.Required {
			resp.Status = "error"
			status = http.StatusServiceUnavailable
		} else if resp.Status == "ok" {
			resp.Status = "degraded"
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}
