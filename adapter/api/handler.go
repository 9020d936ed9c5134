package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"

	billingApp "github.com/omarbuciofgr-sudo/birvanoio/internal/billing/application"
	billingDomain "github.com/omarbuciofgr-sudo/birvanoio/internal/billing/domain"
	enrichmentApp "github.com/omarbuciofgr-sudo/birvanoio/internal/enrichment/application"
	enrichmentDomain "github.com/omarbuciofgr-sudo/birvanoio/internal/enrichment/domain"
	"github.com/omarbuciofgr-sudo/birvanoio/pkg/observability"
)

// UserIDHeader identifies the caller when the body or query carries no
// user_id.
const UserIDHeader = "X-User-ID"

const maxBodyBytes = 1 << 20

// Entitlements is the billing surface served over HTTP.
type Entitlements interface {
	CanAfford(ctx context.Context, userID uuid.UUID, action billingDomain.Action, count int) (billingDomain.Decision, error)
	Charge(ctx context.Context, req billingDomain.ChargeRequest) (*billingDomain.ChargeResult, error)
	CurrentUsage(ctx context.Context, userID uuid.UUID) (*billingApp.Usage, error)
	ListUsage(ctx context.Context, userID uuid.UUID) ([]billingDomain.UsageEntry, error)
	HasFeature(ctx context.Context, userID uuid.UUID, feature billingDomain.Feature) (billingDomain.FeatureDecision, error)
	CheckFeature(tier billingDomain.Tier, feature billingDomain.Feature) (billingDomain.FeatureDecision, error)
}

// Enricher is the enrichment surface served over HTTP.
type Enricher interface {
	EnrichLead(ctx context.Context, cmd enrichmentApp.EnrichCommand) (*enrichmentApp.EnrichResult, error)
	History(ctx context.Context, leadID uuid.UUID) ([]*enrichmentDomain.Record, error)
}

// Handler handles entitlement and enrichment API requests.
type Handler struct {
	entitlements Entitlements
	enricher     Enricher
	logger       *slog.Logger
}

// HandlerConfig holds dependencies for the handler.
type HandlerConfig struct {
	Entitlements Entitlements
	Enricher     Enricher
	Logger       *slog.Logger
}

// NewHandler creates a new API handler.
func NewHandler(cfg HandlerConfig) *Handler {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Handler{
		entitlements: cfg.Entitlements,
		enricher:     cfg.Enricher,
		logger:       cfg.Logger,
	}
}

type checkRequest struct {
	UserID string `json:"user_id"`
	Action string `json:"action"`
	Count  *int   `json:"count"`
}

type chargeRequest struct {
	checkRequest
	ReferenceID string `json:"reference_id"`
}

type usageResponse struct {
	*billingApp.Usage
	Entries []billingDomain.UsageEntry `json:"entries,omitempty"`
}

type enrichRequest struct {
	UserID       string            `json:"user_id"`
	LeadID       string            `json:"lead_id"`
	Domain       string            `json:"domain"`
	Known        map[string]string `json:"known"`
	TargetTitles []string          `json:"target_titles"`
}

type historyResponse struct {
	LeadID   uuid.UUID                  `json:"lead_id"`
	Versions []*enrichmentDomain.Record `json:"versions"`
}

// CheckCredits handles POST /api/v1/entitlements/check. A denial is a
// normal 200 response with allowed=false.
func (h *Handler) CheckCredits(w http.ResponseWriter, r *http.Request) {
	var req checkRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, err, nil)
		return
	}
	ctx, userID, err := resolveUser(r, req.UserID)
	if err != nil {
		writeError(w, err, nil)
		return
	}

	decision, err := h.entitlements.CanAfford(ctx, userID, parseAction(req.Action), countOf(req.Count))
	if err != nil {
		h.logError(ctx, "credit check failed", err)
		writeError(w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, decision)
}

// ChargeCredits handles POST /api/v1/entitlements/charge. Insufficient
// credits answer 402 with the charge result.
func (h *Handler) ChargeCredits(w http.ResponseWriter, r *http.Request) {
	var req chargeRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, err, nil)
		return
	}
	ctx, userID, err := resolveUser(r, req.UserID)
	if err != nil {
		writeError(w, err, nil)
		return
	}

	result, err := h.entitlements.Charge(ctx, billingDomain.ChargeRequest{
		UserID:      userID,
		Action:      parseAction(req.Action),
		Count:       countOf(req.Count),
		ReferenceID: req.ReferenceID,
	})
	if err != nil {
		h.logError(ctx, "charge failed", err)
		writeError(w, err, nil)
		return
	}
	if !result.Success {
		writeJSON(w, http.StatusPaymentRequired, result)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// GetUsage handles GET /api/v1/entitlements/usage.
func (h *Handler) GetUsage(w http.ResponseWriter, r *http.Request) {
	ctx, userID, err := resolveUser(r, r.URL.Query().Get("user_id"))
	if err != nil {
		writeError(w, err, nil)
		return
	}

	usage, err := h.entitlements.CurrentUsage(ctx, userID)
	if err != nil {
		h.logError(ctx, "usage lookup failed", err)
		writeError(w, err, nil)
		return
	}
	resp := usageResponse{Usage: usage}
	if parseBoolParam(r, "entries", false) {
		if resp.Entries, err = h.entitlements.ListUsage(ctx, userID); err != nil {
			h.logError(ctx, "usage entries lookup failed", err)
			writeError(w, err, nil)
			return
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// CheckFeature handles GET /api/v1/features/check. The gate is evaluated
// for ?tier= when given, otherwise for the user's current tier.
func (h *Handler) CheckFeature(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	feature := billingDomain.Feature(strings.ToLower(strings.TrimSpace(query.Get("feature"))))
	if feature == "" {
		writeError(w, badRequest("Query parameter 'feature' is required"), nil)
		return
	}

	if tierParam := query.Get("tier"); tierParam != "" {
		tier, err := billingDomain.ParseTier(tierParam)
		if err != nil {
			writeError(w, err, nil)
			return
		}
		decision, err := h.entitlements.CheckFeature(tier, feature)
		if err != nil {
			writeError(w, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, decision)
		return
	}

	ctx, userID, err := resolveUser(r, query.Get("user_id"))
	if err != nil {
		writeError(w, err, nil)
		return
	}
	decision, err := h.entitlements.HasFeature(ctx, userID, feature)
	if err != nil {
		h.logError(ctx, "feature check failed", err)
		writeError(w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, decision)
}

// RunEnrichment handles POST /api/v1/enrichment/run. A denied run answers
// 402; a run whose charge could not be recorded answers 502 with the
// saved record in the body.
func (h *Handler) RunEnrichment(w http.ResponseWriter, r *http.Request) {
	var req enrichRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, err, nil)
		return
	}
	ctx, userID, err := resolveUser(r, req.UserID)
	if err != nil {
		writeError(w, err, nil)
		return
	}
	leadID, err := uuid.Parse(req.LeadID)
	if err != nil {
		writeError(w, badRequest("lead_id must be a UUID"), nil)
		return
	}

	known := make(enrichmentDomain.Fields, len(req.Known))
	for name, value := range req.Known {
		field := enrichmentDomain.FieldName(strings.ToLower(strings.TrimSpace(name)))
		if !field.IsKnown() {
			writeError(w, badRequest("unknown field: "+name), nil)
			return
		}
		known[field] = value
	}

	result, err := h.enricher.EnrichLead(ctx, enrichmentApp.EnrichCommand{
		UserID:       userID,
		LeadID:       leadID,
		Domain:       req.Domain,
		Known:        known,
		TargetTitles: req.TargetTitles,
	})
	if err != nil {
		h.logError(ctx, "enrichment failed", err)
		if result != nil {
			writeError(w, err, result)
			return
		}
		writeError(w, err, nil)
		return
	}
	if result.Denied {
		writeJSON(w, http.StatusPaymentRequired, result)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// GetHistory handles GET /api/v1/enrichment/{leadID}/history.
func (h *Handler) GetHistory(w http.ResponseWriter, r *http.Request) {
	leadID, err := uuid.Parse(r.PathValue("leadID"))
	if err != nil {
		writeError(w, badRequest("lead id must be a UUID"), nil)
		return
	}

	records, err := h.enricher.History(r.Context(), leadID)
	if err != nil {
		h.logError(r.Context(), "history lookup failed", err)
		writeError(w, err, nil)
		return
	}
	if records == nil {
		records = []*enrichmentDomain.Record{}
	}
	writeJSON(w, http.StatusOK, historyResponse{LeadID: leadID, Versions: records})
}

func (h *Handler) logError(ctx context.Context, msg string, err error) {
	level := slog.LevelWarn
	if classify(err).Status >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	h.logger.Log(ctx, level, msg, observability.ErrorKey, err)
}

// decodeBody reads a JSON request body. An empty body decodes to the zero
// value.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return badRequest("invalid JSON body: " + err.Error())
	}
	return nil
}

// resolveUser picks the user from the body or query value, falling back to
// the X-User-ID header, and tags the request context with it.
func resolveUser(r *http.Request, value string) (context.Context, uuid.UUID, error) {
	if value == "" {
		value = r.Header.Get(UserIDHeader)
	}
	userID, err := uuid.Parse(strings.TrimSpace(value))
	if err != nil || userID == uuid.Nil {
		return nil, uuid.Nil, badRequest("a valid user_id is required")
	}
	return observability.WithUserID(r.Context(), userID.String()), userID, nil
}

func parseAction(s string) billingDomain.Action {
	return billingDomain.Action(strings.ToLower(strings.TrimSpace(s)))
}

func countOf(count *int) int {
	if count == nil {
		return 1
	}
	return *count
}

// parseBoolParam parses a boolean query parameter with a default value.
func parseBoolParam(r *http.Request, name string, defaultVal bool) bool {
	str := r.URL.Query().Get(name)
	if str == "" {
		return defaultVal
	}
	val, err := strconv.ParseBool(str)
	if err != nil {
		return defaultVal
	}
	return val
}
