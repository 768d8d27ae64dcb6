package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/af-corp/prism-gateway/internal/config"
	"github.com/af-corp/prism-gateway/internal/endpoint"
	"github.com/af-corp/prism-gateway/internal/filter"
	"github.com/af-corp/prism-gateway/internal/httputil"
	"github.com/af-corp/prism-gateway/internal/idempotency"
	"github.com/af-corp/prism-gateway/internal/router"
	"github.com/af-corp/prism-gateway/internal/router/adapters"
	"github.com/af-corp/prism-gateway/internal/store"
	"github.com/af-corp/prism-gateway/internal/telemetry"
	"github.com/af-corp/prism-gateway/internal/transport"
	"github.com/af-corp/prism-gateway/internal/types"
)

// Handler holds dependencies for the gateway HTTP handlers.
type Handler struct {
	router      *router.Router
	factory     *adapters.Factory
	client      *transport.Client
	health      *transport.HealthTracker
	replay      *idempotency.ReplayCache
	operations  store.OperationStore
	filterChain *filter.Chain
	metrics     *telemetry.Metrics
	cfg         func() *config.Config
}

func NewHandler(rt *router.Router, factory *adapters.Factory, client *transport.Client, health *transport.HealthTracker, replay *idempotency.ReplayCache, operations store.OperationStore, filterChain *filter.Chain, metrics *telemetry.Metrics, cfg func() *config.Config) *Handler {
	return &Handler{
		router:      rt,
		factory:     factory,
		client:      client,
		health:      health,
		replay:      replay,
		operations:  operations,
		filterChain: filterChain,
		metrics:     metrics,
		cfg:         cfg,
	}
}

// Operations handles POST /v1/operations
func (h *Handler) Operations(w http.ResponseWriter, r *http.Request) {
	reqID := w.Header().Get("X-Prism-Request-ID")
	receivedAt := time.Now()

	body, err := io.ReadAll(r.Body)
	if err != nil {
		httputil.WriteBadRequestError(w, reqID, "Failed to read request body")
		return
	}
	defer r.Body.Close()

	var req types.UniformRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httputil.WriteBadRequestError(w, reqID, "Invalid JSON: "+err.Error())
		return
	}

	// Route to endpoint
	ep, err := h.router.DetermineEndpoint(req)
	if err != nil {
		var conflict *router.ConflictError
		if errors.As(err, &conflict) {
			httputil.WriteBadRequestError(w, reqID, "Ambiguous request: "+conflict.Error())
			return
		}
		httputil.WriteBadRequestError(w, reqID, "Routing failed: "+err.Error())
		return
	}

	// Run filter chain (policy)
	if h.filterChain != nil {
		_, blocked := h.filterChain.Run(r.Context(), ep, req)
		if blocked != nil {
			slog.Warn("request blocked by filter",
				"request_id", reqID,
				"filter", blocked.FilterName,
				"endpoint", string(ep),
			)
			if h.metrics != nil {
				h.metrics.RecordPolicyAction(string(blocked.Action))
			}
			httputil.WritePolicyBlockedError(w, reqID, blocked.Message)
			return
		}
	}

	adapter, err := h.factory.Make(ep)
	if err != nil {
		httputil.WriteInternalError(w, reqID, "No adapter for endpoint: "+err.Error())
		return
	}

	wireReq, err := adapter.TransformRequest(req)
	if err != nil {
		var verr *adapters.ValidationError
		if errors.As(err, &verr) {
			httputil.WriteValidationError(w, reqID, verr.Param, verr.Error())
			return
		}
		slog.Error("failed to transform request", "error", err, "endpoint", string(ep))
		httputil.WriteInternalError(w, reqID, "Failed to prepare backend request")
		return
	}

	// Duplicate detection is advisory: the request is forwarded either way
	// and the duplicate flag surfaces in response metadata.
	duplicate := h.checkDuplicate(r.Context(), req)

	opts := transport.CallOptions{Idempotent: true}
	var wireResp *transport.WireResponse
	if len(wireReq.Parts) > 0 {
		wireResp, err = h.client.PostMultipart(r.Context(), ep.Path(), wireReq.Parts, opts)
	} else {
		wireResp, err = h.client.PostJSON(r.Context(), ep.Path(), wireReq.Body, opts)
	}

	attempts := 1
	if err != nil {
		h.health.RecordFailure(string(ep))
		h.writeTransportError(w, reqID, ep, err, &attempts)
		h.recordOperation(req, ep, "failed", reqID, duplicate, attempts, receivedAt)
		return
	}
	h.health.RecordSuccess(string(ep))

	resp, err := adapter.TransformResponse(wireResp)
	if err != nil {
		slog.Error("failed to transform response", "error", err, "endpoint", string(ep))
		httputil.WriteInternalError(w, reqID, "Failed to process backend response")
		h.recordOperation(req, ep, "failed", reqID, duplicate, attempts, receivedAt)
		return
	}

	if duplicate {
		if resp.Metadata == nil {
			resp.Metadata = make(map[string]any)
		}
		resp.Metadata["duplicate"] = true
	}

	totalDuration := time.Since(receivedAt)

	slog.Info("operation completed",
		"request_id", reqID,
		"endpoint", string(ep),
		"operation_id", resp.ID,
		"status", resp.Status,
		"duplicate", duplicate,
		"duration_ms", totalDuration.Milliseconds(),
	)

	if h.metrics != nil {
		h.metrics.RecordOperation(telemetry.OperationLabels{
			Endpoint:    string(ep),
			Status:      resp.Status,
			DurationMs:  float64(totalDuration.Milliseconds()),
			UploadBytes: uploadBytes(wireReq),
			Duplicate:   duplicate,
		})
	}

	h.persistOperation(resp, req, ep, reqID, duplicate, attempts, totalDuration)

	// Speech responses stream raw bytes with the upstream content type;
	// everything else is the canonical JSON shape.
	if resp.IsAudio() && len(resp.AudioContent) > 0 && wantsBinary(r) {
		ct := wireResp.ContentType
		if ct == "" {
			ct = "application/octet-stream"
		}
		w.Header().Set("Content-Type", ct)
		w.Header().Set("X-Operation-ID", resp.ID)
		w.Write(resp.AudioContent)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp.ToMap())
}

// OperationByID handles GET /v1/operations/{id}
func (h *Handler) OperationByID(w http.ResponseWriter, r *http.Request) {
	reqID := w.Header().Get("X-Prism-Request-ID")
	id := chi.URLParam(r, "id")

	rec, err := h.operations.Lookup(r.Context(), id)
	if err != nil {
		slog.Error("operation lookup failed", "error", err, "id", id)
		httputil.WriteInternalError(w, reqID, "Operation lookup failed")
		return
	}
	if rec == nil {
		httputil.WriteError(w, reqID, http.StatusNotFound, "invalid_request_error", "not_found", "No operation with id "+id)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"id":          rec.ID,
		"endpoint":    rec.Endpoint,
		"status":      rec.Status,
		"model":       rec.Model,
		"duplicate":   rec.Duplicate,
		"duration_ms": rec.DurationMs,
		"attempts":    rec.Attempts,
		"created_at":  rec.CreatedAt,
	})
}

// OperationsByEndpoint handles GET /v1/operations?endpoint={name}. It lists
// the most recent logged operations for one endpoint, newest first.
func (h *Handler) OperationsByEndpoint(w http.ResponseWriter, r *http.Request) {
	reqID := w.Header().Get("X-Prism-Request-ID")

	name := r.URL.Query().Get("endpoint")
	ep, ok := endpoint.Parse(name)
	if !ok {
		httputil.WriteBadRequestError(w, reqID, "Unknown endpoint "+strconv.Quote(name))
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			httputil.WriteBadRequestError(w, reqID, "limit must be a positive integer")
			return
		}
		limit = n
	}

	recs, err := h.operations.RecentByEndpoint(r.Context(), ep.String(), limit)
	if err != nil {
		slog.Error("operation list failed", "error", err, "endpoint", ep.String())
		httputil.WriteInternalError(w, reqID, "Operation list failed")
		return
	}

	items := make([]map[string]any, 0, len(recs))
	for _, rec := range recs {
		items = append(items, map[string]any{
			"id":          rec.ID,
			"endpoint":    rec.Endpoint,
			"status":      rec.Status,
			"model":       rec.Model,
			"duplicate":   rec.Duplicate,
			"duration_ms": rec.DurationMs,
			"attempts":    rec.Attempts,
			"created_at":  rec.CreatedAt,
		})
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"endpoint": ep.String(),
		"data":     items,
	})
}

// Health handles GET /prism/v1/health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	snapshot := h.health.Snapshot()
	endpoints := make(map[string]any, len(snapshot))
	healthy := true
	for name, eh := range snapshot {
		endpoints[name] = map[string]any{
			"healthy":              eh.Healthy,
			"consecutive_failures": eh.ConsecutiveFailures,
			"total_successes":      eh.TotalSuccesses,
			"total_failures":       eh.TotalFailures,
		}
		if !eh.Healthy {
			healthy = false
		}
	}

	status := "ok"
	code := http.StatusOK
	if !healthy {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]any{
		"status":    status,
		"endpoints": endpoints,
	})
}

func (h *Handler) checkDuplicate(ctx context.Context, req types.UniformRequest) bool {
	if h.replay == nil {
		return false
	}
	bucket := h.cfg().Transport.IdempotencyBucketSeconds
	key, err := idempotency.BuildKey(req, bucket, time.Now())
	if err != nil {
		slog.Warn("idempotency key build failed", "error", err)
		return false
	}
	ttl := time.Duration(bucket) * time.Second
	if ttl <= 0 {
		ttl = time.Minute
	}
	return h.replay.CheckAndRemember(ctx, key, ttl)
}

func (h *Handler) writeTransportError(w http.ResponseWriter, reqID string, ep endpoint.Endpoint, err error, attempts *int) {
	var statusErr *transport.APIStatusError
	if errors.As(err, &statusErr) {
		httputil.WriteUpstreamError(w, reqID, statusErr.StatusCode, statusErr.Error())
		return
	}
	var terr *transport.Error
	if errors.As(err, &terr) {
		*attempts = terr.Attempts
		if h.metrics != nil && terr.Attempts > 1 {
			h.metrics.RecordOperation(telemetry.OperationLabels{
				Endpoint: ep.String(),
				Status:   "failed",
				Retries:  terr.Attempts - 1,
			})
		}
	}
	slog.Error("backend request failed", "error", err, "endpoint", ep.String())
	httputil.WriteServiceUnavailableError(w, reqID, "Backend request failed")
}

func (h *Handler) persistOperation(resp *types.UniformResponse, req types.UniformRequest, ep endpoint.Endpoint, reqID string, duplicate bool, attempts int, duration time.Duration) {
	if h.operations == nil {
		return
	}
	model, _ := types.StringField(req, "model")
	rec := store.OperationRecord{
		ID:         resp.ID,
		Endpoint:   ep.String(),
		Status:     resp.Status,
		Model:      model,
		Duplicate:  duplicate,
		DurationMs: duration.Milliseconds(),
		Attempts:   attempts,
		Metadata:   map[string]string{"request_id": reqID},
	}
	// Fire-and-forget; persistence failures never affect the response.
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := h.operations.Record(ctx, rec); err != nil {
			slog.Warn("operation record failed", "error", err, "id", rec.ID)
		}
	}()
}

func (h *Handler) recordOperation(req types.UniformRequest, ep endpoint.Endpoint, status, reqID string, duplicate bool, attempts int, receivedAt time.Time) {
	h.persistOperation(&types.UniformResponse{
		ID:     reqID,
		Status: status,
	}, req, ep, reqID, duplicate, attempts, time.Since(receivedAt))
}

func uploadBytes(wr *adapters.WireRequest) int64 {
	var n int64
	for _, p := range wr.Parts {
		if p.File != nil {
			n += p.File.Size
		}
	}
	return n
}

// wantsBinary reports whether the client accepts a raw byte stream instead
// of the canonical JSON envelope.
func wantsBinary(r *http.Request) bool {
	accept := r.Header.Get("Accept")
	return accept != "" && accept != "application/json" && accept != "*/*"
}
