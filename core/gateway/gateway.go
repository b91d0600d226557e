// Package gateway is the HTTP surface for artifact submission, listing,
// download, and deletion.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/vikramgaru01/back/core/infra/buildinfo"
	"github.com/vikramgaru01/back/core/infra/logging"
	"github.com/vikramgaru01/back/core/infra/metrics"
	"github.com/vikramgaru01/back/core/infra/schema"
	"github.com/vikramgaru01/back/core/infra/secrets"
	"github.com/vikramgaru01/back/core/pipeline"
	"github.com/vikramgaru01/back/core/registry"
)

const (
	defaultOwner = "guest"
	ownerHeader  = "X-User-ID"
	maxBodyBytes = 1 << 20
	apkMIMEType  = "application/vnd.android.package-archive"
)

// Runner executes the transformation pipeline for one submission.
type Runner interface {
	Run(ctx context.Context, ownerID string, payload json.RawMessage) (registry.Record, error)
}

// Directory is the read side of the metadata registry.
type Directory interface {
	Find(ctx context.Context, artifactID string) (registry.Record, error)
	ListByOwner(ctx context.Context, ownerID string) ([]registry.Record, error)
}

// Artifacts serves and deletes stored artifact bytes.
type Artifacts interface {
	Open(rec registry.Record) (*os.File, error)
	Delete(ctx context.Context, rec registry.Record) error
}

// Pinger reports backend health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Gateway routes HTTP requests to the pipeline, registry, and store.
type Gateway struct {
	runner    Runner
	dir       Directory
	artifacts Artifacts
	validator *schema.Validator
	metrics   metrics.GatewayMetrics
	pinger    Pinger
	origin    string
	inflight  chan struct{}

	sourcePath string
	toolsDir   string
}

// New constructs a gateway. maxParallel bounds concurrent submissions;
// validator and pinger may be nil.
func New(runner Runner, dir Directory, artifacts Artifacts, validator *schema.Validator, gm metrics.GatewayMetrics, pinger Pinger, origin string, maxParallel int) *Gateway {
	if gm == nil {
		gm = metrics.NoopGateway{}
	}
	if maxParallel <= 0 {
		maxParallel = 4
	}
	if origin == "" {
		origin = "*"
	}
	return &Gateway{
		runner:    runner,
		dir:       dir,
		artifacts: artifacts,
		validator: validator,
		metrics:   gm,
		pinger:    pinger,
		origin:    origin,
		inflight:  make(chan struct{}, maxParallel),
	}
}

// WithDiagnostics enables the /api/status report on the source artifact and
// tools directory.
func (g *Gateway) WithDiagnostics(sourcePath, toolsDir string) *Gateway {
	g.sourcePath = sourcePath
	g.toolsDir = toolsDir
	return g
}

// Handler returns the routed HTTP handler.
func (g *Gateway) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/apks", g.instrument("/api/apks", g.handleSubmit))
	mux.HandleFunc("GET /api/apks", g.instrument("/api/apks", g.handleList))
	mux.HandleFunc("GET /api/apks/{id}/download", g.instrument("/api/apks/{id}/download", g.handleDownload))
	mux.HandleFunc("DELETE /api/apks/{id}", g.instrument("/api/apks/{id}", g.handleDelete))
	mux.HandleFunc("GET /api/health", g.instrument("/api/health", g.handleHealth))
	mux.HandleFunc("GET /api/status", g.instrument("/api/status", g.handleStatus))
	mux.HandleFunc("OPTIONS /", g.instrument("preflight", g.handlePreflight))
	return mux
}

// instrument applies CORS headers and request metrics around a handler.
func (g *Gateway) instrument(route string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		g.cors(w)
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		h(rec, r)
		g.metrics.ObserveRequest(r.Method, route, strconv.Itoa(rec.status), time.Since(start).Seconds())
	}
}

func (g *Gateway) cors(w http.ResponseWriter) {
	h := w.Header()
	h.Set("Access-Control-Allow-Origin", g.origin)
	h.Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
	h.Set("Access-Control-Allow-Headers", "Content-Type, "+ownerHeader)
}

func (g *Gateway) handlePreflight(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}

func (g *Gateway) handleSubmit(w http.ResponseWriter, r *http.Request) {
	select {
	case g.inflight <- struct{}{}:
		defer func() { <-g.inflight }()
	default:
		writeError(w, http.StatusServiceUnavailable, "busy", "too many concurrent jobs, retry later")
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "payload_too_large", "configuration payload exceeds limit")
		return
	}
	payload := json.RawMessage(body)
	if !json.Valid(payload) {
		writeError(w, http.StatusBadRequest, pipeline.ErrConfigInvalid.Error(), "body must be a JSON document")
		return
	}
	if emptyPayload(payload) {
		writeError(w, http.StatusBadRequest, pipeline.ErrConfigInvalid.Error(), "no configuration data provided")
		return
	}
	if err := g.validator.Validate(payload); err != nil {
		writeError(w, http.StatusBadRequest, pipeline.ErrConfigInvalid.Error(), err.Error())
		return
	}

	owner := resolveOwner(r, payload)
	logging.Info("gateway", "job submitted", "owner_id", owner, "payload", payloadPreview(payload))
	rec, err := g.runner.Run(r.Context(), owner, payload)
	if err != nil {
		status, kind := statusForError(err)
		writeError(w, status, kind, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

func (g *Gateway) handleList(w http.ResponseWriter, r *http.Request) {
	owner := resolveOwner(r, nil)
	records, err := g.dir.ListByOwner(r.Context(), owner)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "registry_error", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"apks": records})
}

func (g *Gateway) handleDownload(w http.ResponseWriter, r *http.Request) {
	rec, ok := g.lookup(w, r)
	if !ok {
		return
	}
	if rec.MirrorURL != "" {
		http.Redirect(w, r, rec.MirrorURL, http.StatusFound)
		return
	}
	f, err := g.artifacts.Open(rec)
	if err != nil {
		// Record without bytes is unreachable by contract.
		writeError(w, http.StatusNotFound, "record_not_found", "artifact bytes unavailable")
		return
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "storage_failed", err.Error())
		return
	}
	w.Header().Set("Content-Type", apkMIMEType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+rec.FileName+`"`)
	http.ServeContent(w, r, rec.FileName, info.ModTime(), f)
}

func (g *Gateway) handleDelete(w http.ResponseWriter, r *http.Request) {
	rec, ok := g.lookup(w, r)
	if !ok {
		return
	}
	if err := g.artifacts.Delete(r.Context(), rec); err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			writeError(w, http.StatusNotFound, "record_not_found", "artifact already removed")
			return
		}
		writeError(w, http.StatusInternalServerError, "storage_failed", err.Error())
		return
	}
	logging.Info("gateway", "artifact deleted", "artifact_id", rec.ArtifactID, "owner_id", rec.OwnerID)
	writeJSON(w, http.StatusOK, map[string]string{"deleted": rec.ArtifactID})
}

func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"status":  "ok",
		"version": buildinfo.Version,
	}
	if g.pinger != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := g.pinger.Ping(ctx); err != nil {
			resp["status"] = "degraded"
			resp["registry"] = err.Error()
			writeJSON(w, http.StatusServiceUnavailable, resp)
			return
		}
		resp["registry"] = "ok"
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleStatus reports whether the transformation inputs (source artifact,
// tool jars) are in place, so operators can tell a broken deployment from a
// broken submission.
func (g *Gateway) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{"version": buildinfo.Version}

	src := map[string]any{"path": g.sourcePath, "present": false}
	if g.sourcePath != "" {
		if info, err := os.Stat(g.sourcePath); err == nil {
			src["present"] = true
			src["size_bytes"] = info.Size()
			src["modified_at"] = info.ModTime().UTC().Format(time.RFC3339)
		}
	}
	resp["source_artifact"] = src

	tools := map[string]any{"dir": g.toolsDir, "present": false}
	if g.toolsDir != "" {
		if entries, err := os.ReadDir(g.toolsDir); err == nil {
			names := make([]string, 0, len(entries))
			for _, entry := range entries {
				names = append(names, entry.Name())
			}
			tools["present"] = true
			tools["entries"] = names
		}
	}
	resp["tools"] = tools

	writeJSON(w, http.StatusOK, resp)
}

// lookup resolves the {id} path value to a record or writes a 404.
func (g *Gateway) lookup(w http.ResponseWriter, r *http.Request) (registry.Record, bool) {
	id := strings.TrimSpace(r.PathValue("id"))
	if id == "" {
		writeError(w, http.StatusBadRequest, "record_not_found", "artifact id required")
		return registry.Record{}, false
	}
	rec, err := g.dir.Find(r.Context(), id)
	if err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			writeError(w, http.StatusNotFound, "record_not_found", "no such artifact")
		} else {
			writeError(w, http.StatusInternalServerError, "registry_error", err.Error())
		}
		return registry.Record{}, false
	}
	return rec, true
}

// resolveOwner picks the owner id: the payload's userId field first, then
// the request header, then the shared default.
func resolveOwner(r *http.Request, payload json.RawMessage) string {
	if len(payload) > 0 {
		var doc struct {
			UserID string `json:"userId"`
		}
		if err := json.Unmarshal(payload, &doc); err == nil {
			if v := strings.TrimSpace(doc.UserID); v != "" {
				return v
			}
		}
	}
	if v := strings.TrimSpace(r.Header.Get(ownerHeader)); v != "" {
		return v
	}
	return defaultOwner
}

// emptyPayload reports whether the submitted document carries no
// configuration at all (empty object, null, or blank body).
func emptyPayload(payload json.RawMessage) bool {
	trimmed := strings.TrimSpace(string(payload))
	if trimmed == "" || trimmed == "null" {
		return true
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(payload, &obj); err == nil && len(obj) == 0 {
		return true
	}
	return false
}

// payloadPreview renders a log-safe view of the submitted configuration:
// credentials redacted, output bounded.
func payloadPreview(payload json.RawMessage) string {
	preview, _, err := secrets.RedactJSON(payload)
	if err != nil {
		return "<unparseable>"
	}
	const maxPreview = 512
	if len(preview) > maxPreview {
		return string(preview[:maxPreview]) + "..."
	}
	return string(preview)
}

// statusForError maps a pipeline failure to an HTTP status and error kind.
func statusForError(err error) (int, string) {
	var se *pipeline.StageError
	if errors.As(err, &se) {
		switch se.Kind {
		case pipeline.ErrConfigInvalid:
			return http.StatusBadRequest, se.KindToken()
		case pipeline.ErrConfigNotFound, pipeline.ErrSourceMissing:
			return http.StatusNotFound, se.KindToken()
		default:
			return http.StatusInternalServerError, se.KindToken()
		}
	}
	if errors.Is(err, registry.ErrNotFound) {
		return http.StatusNotFound, "record_not_found"
	}
	return http.StatusInternalServerError, "internal_error"
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logging.Warn("gateway", "encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, kind, detail string) {
	writeJSON(w, status, map[string]string{"error": kind, "detail": detail})
}
