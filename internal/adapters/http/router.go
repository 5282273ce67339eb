package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/IC-FOODS/pafh-ontology/internal/application"
	"github.com/IC-FOODS/pafh-ontology/internal/domain"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type contextKey string

const identityKey contextKey = "identity"

type Handler struct {
	service *application.GatewayService
	logger  *zap.Logger
}

func NewRouter(service *application.GatewayService, logger *zap.Logger) http.Handler {
	h := &Handler{service: service, logger: logger}
	r := chi.NewRouter()

	r.Get("/health", h.handleHealth)

	r.Route("/api", func(api chi.Router) {
		// Most endpoints accept anonymous callers; the resolver decides
		// what they may see.
		api.Use(h.withIdentity)

		api.Post("/auth/login", h.handleLogin)
		api.With(h.requireAuth).Get("/auth/whoami", h.handleWhoami)

		api.Get("/capabilities", h.handleCapabilities)
		api.Get("/search", h.handleSearch)
		api.Get("/map-nodes/{id}", h.handleMapNodes)
		api.Get("/data-sources", h.handleListSources)
		api.With(h.requireAuth).Post("/data-sources/virtual-rdf", h.handleCreateVirtualRDF)
		api.With(h.requireAuth).Post("/data-sources/{name}/config", h.handleUpdateSourceConfig)
		api.Post("/query", h.handleQuery)

		api.With(h.requireAuth).Post("/write-back", h.handleCreateWriteBack)
		api.With(h.requireAuth).Get("/write-back", h.handleListWriteBacks)
		api.With(h.requireAuth).Get("/write-back/{id}", h.handleGetWriteBack)
		api.With(h.requireAuth).Post("/write-back/{id}/approve", h.handleReviewWriteBack)

		api.With(h.requireAuth).Get("/audit/logs", h.handleListAuditLogs)
	})

	return r
}

// withIdentity attaches the caller identity when a valid bearer token is
// presented; anonymous requests pass through untouched.
func (h *Handler) withIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			next.ServeHTTP(w, r)
			return
		}
		identity, err := h.service.Validate(r.Context(), token)
		if err != nil {
			writeError(w, domain.ErrUnauthenticated("invalid_token", "token not recognized"))
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), identityKey, identity)))
	})
}

func (h *Handler) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := identityFromContext(r.Context()); !ok {
			writeError(w, domain.ErrUnauthenticated("authentication_required", "authentication required"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func bearerToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if strings.HasPrefix(strings.ToLower(authHeader), "bearer ") {
		return strings.TrimSpace(authHeader[7:])
	}
	return ""
}

func identityFromContext(ctx context.Context) (domain.Identity, bool) {
	value := ctx.Value(identityKey)
	if value == nil {
		return domain.Identity{}, false
	}
	identity, ok := value.(domain.Identity)
	return identity, ok
}

// caller returns the identity pointer the service layer expects, nil when
// anonymous.
func caller(ctx context.Context) *domain.Identity {
	identity, ok := identityFromContext(ctx)
	if !ok {
		return nil
	}
	return &identity
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username  string `json:"username"`
		Password  string `json:"password"`
		TokenName string `json:"token_name"`
		TTLHours  int    `json:"ttl_hours"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, domain.ErrInvalidInput("bad_json", "request body is not valid JSON"))
		return
	}

	var ttl *time.Duration
	if req.TTLHours > 0 {
		d := time.Duration(req.TTLHours) * time.Hour
		ttl = &d
	}

	u, token, err := h.service.Login(r.Context(), req.Username, req.Password, req.TokenName, ttl)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"token":     token,
		"user_id":   u.ID,
		"username":  u.Username,
		"superuser": u.Superuser,
	})
}

func (h *Handler) handleWhoami(w http.ResponseWriter, r *http.Request) {
	identity, _ := identityFromContext(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{
		"user_id":   identity.UserID,
		"username":  identity.Username,
		"superuser": identity.Superuser,
	})
}

func (h *Handler) handleCapabilities(w http.ResponseWriter, r *http.Request) {
	snapshot, err := h.service.Capabilities(r.Context(), caller(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snapshot)
}

func parseSources(r *http.Request) []string {
	raw := strings.TrimSpace(r.URL.Query().Get("sources"))
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	sources := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			sources = append(sources, trimmed)
		}
	}
	return sources
}

func (h *Handler) handleSearch(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("query"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	results, err := h.service.Search(r.Context(), caller(r.Context()), query, parseSources(r), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"results": results,
		"total":   len(results),
	})
}

func (h *Handler) handleMapNodes(w http.ResponseWriter, r *http.Request) {
	nodeID := chi.URLParam(r, "id")
	response, err := h.service.MapNodes(r.Context(), caller(r.Context()), nodeID, parseSources(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, response)
}

func (h *Handler) handleListSources(w http.ResponseWriter, r *http.Request) {
	sources, err := h.service.ListSources(r.Context(), caller(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sources": sources})
}

func (h *Handler) handleCreateVirtualRDF(w http.ResponseWriter, r *http.Request) {
	var req application.VirtualRDFSourceInput
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, domain.ErrInvalidInput("bad_json", "request body is not valid JSON"))
		return
	}

	summary, outcome, err := h.service.CreateVirtualRDFSource(r.Context(), caller(r.Context()), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"source":  summary,
		"runtime": outcome,
	})
}

func (h *Handler) handleUpdateSourceConfig(w http.ResponseWriter, r *http.Request) {
	var req application.SourceConfigUpdate
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, domain.ErrInvalidInput("bad_json", "request body is not valid JSON"))
		return
	}

	summary, outcome, err := h.service.UpdateSourceConfig(r.Context(), caller(r.Context()), chi.URLParam(r, "name"), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"source":  summary,
		"runtime": outcome,
	})
}

func (h *Handler) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SourceID  uint   `json:"source_id"`
		Query     string `json:"query"`
		QueryType string `json:"query_type"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, domain.ErrInvalidInput("bad_json", "request body is not valid JSON"))
		return
	}

	result, err := h.service.DispatchQuery(r.Context(), caller(r.Context()), req.SourceID, req.Query, req.QueryType)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func writeBackPayload(r domain.WriteBackRequest) map[string]any {
	payload := map[string]any{
		"id":           r.ID,
		"source":       r.SourceName,
		"requested_by": r.RequestedBy,
		"operation":    r.Operation,
		"table_name":   r.TableName,
		"primary_key":  r.PrimaryKey,
		"old_values":   r.OldValues,
		"new_values":   r.NewValues,
		"status":       r.Status,
		"created_at":   r.CreatedAt,
	}
	if r.ApprovedBy != "" {
		payload["approved_by"] = r.ApprovedBy
	}
	if r.ApprovedAt != nil {
		payload["approved_at"] = r.ApprovedAt
	}
	if r.RejectionReason != "" {
		payload["rejection_reason"] = r.RejectionReason
	}
	return payload
}

func (h *Handler) handleCreateWriteBack(w http.ResponseWriter, r *http.Request) {
	var req application.WriteBackInput
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, domain.ErrInvalidInput("bad_json", "request body is not valid JSON"))
		return
	}

	created, err := h.service.CreateWriteBack(r.Context(), caller(r.Context()), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, writeBackPayload(created))
}

func (h *Handler) handleListWriteBacks(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	requests, err := h.service.ListWriteBacks(r.Context(), caller(r.Context()), limit)
	if err != nil {
		writeError(w, err)
		return
	}

	payload := make([]map[string]any, 0, len(requests))
	for _, request := range requests {
		payload = append(payload, writeBackPayload(request))
	}
	writeJSON(w, http.StatusOK, map[string]any{"requests": payload, "total": len(payload)})
}

func (h *Handler) handleGetWriteBack(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 32)
	if err != nil {
		writeError(w, domain.ErrInvalidInput("bad_id", "write-back id must be numeric"))
		return
	}

	request, err := h.service.GetWriteBack(r.Context(), caller(r.Context()), uint(id))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, writeBackPayload(request))
}

func (h *Handler) handleReviewWriteBack(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 32)
	if err != nil {
		writeError(w, domain.ErrInvalidInput("bad_id", "write-back id must be numeric"))
		return
	}

	var req struct {
		Action string `json:"action"`
		Reason string `json:"reason"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, domain.ErrInvalidInput("bad_json", "request body is not valid JSON"))
		return
	}

	updated, err := h.service.ReviewWriteBack(r.Context(), caller(r.Context()), uint(id), req.Action, req.Reason)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, writeBackPayload(updated))
}

func (h *Handler) handleListAuditLogs(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	logs, err := h.service.ListAuditLogs(r.Context(), caller(r.Context()), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"logs": logs})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, err error) {
	status := domain.HTTPStatus(err)
	detail := "internal error"
	var de *domain.Error
	if errors.As(err, &de) {
		detail = de.Detail
	}
	writeJSON(w, status, map[string]any{
		"error":  domain.CodeOf(err),
		"detail": detail,
	})
}
