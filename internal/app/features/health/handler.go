package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/dalemusser/stratacomm/internal/app/system/timeouts"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.uber.org/zap"
)

var errNATSDisconnected = errors.New("nats connection is not connected")

// Handler holds the backends the health check pings. Nil backends are not
// configured and are reported as such.
type Handler struct {
	Client *mongo.Client
	Redis  *redis.Client
	NATS   *nats.Conn
	Log    *zap.Logger
}

// NewHandler constructs a health Handler. Any backend may be nil.
func NewHandler(client *mongo.Client, rdb *redis.Client, nc *nats.Conn, logger *zap.Logger) *Handler {
	return &Handler{
		Client: client,
		Redis:  rdb,
		NATS:   nc,
		Log:    logger,
	}
}

// healthResponse is the JSON structure for the health check response.
type healthResponse struct {
	Status   string            `json:"status"`
	Database string            `json:"database"`
	Redis    string            `json:"redis,omitempty"`
	NATS     string            `json:"nats,omitempty"`
	Message  string            `json:"message,omitempty"`
	Errors   map[string]string `json:"errors,omitempty"`
}

// Serve handles GET /health.
//
// On success: 200 and
//
//	{ "status":"ok", "database":"connected", "redis":"connected" }
//
// When any configured backend fails: 503 and
//
//	{ "status":"error", "database":"disconnected", "message":"Backend unavailable", "errors":{"database":"…"} }
//
// With the in-memory store, database is "memory".
func (h *Handler) Serve(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Ping())
	defer cancel()

	w.Header().Set("Content-Type", "application/json")

	resp := healthResponse{Status: "ok", Database: "memory"}
	fail := func(backend string, err error) string {
		h.Log.Error("health-check: ping failed", zap.String("backend", backend), zap.Error(err))
		if resp.Errors == nil {
			resp.Errors = make(map[string]string)
		}
		resp.Errors[backend] = err.Error()
		return "disconnected"
	}

	if h.Client != nil {
		resp.Database = "connected"
		if err := h.Client.Ping(ctx, readpref.Primary()); err != nil {
			resp.Database = fail("database", err)
		}
	}
	if h.Redis != nil {
		resp.Redis = "connected"
		if err := h.Redis.Ping(ctx).Err(); err != nil {
			resp.Redis = fail("redis", err)
		}
	}
	if h.NATS != nil {
		resp.NATS = "connected"
		if !h.NATS.IsConnected() {
			resp.NATS = fail("nats", errNATSDisconnected)
		}
	}

	if len(resp.Errors) > 0 {
		resp.Status = "error"
		resp.Message = "Backend unavailable"
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	_ = json.NewEncoder(w).Encode(resp)
}
