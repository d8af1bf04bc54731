package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/quantumVector/app-mtla-me/governance"
	"github.com/quantumVector/app-mtla-me/logger"
	"github.com/quantumVector/app-mtla-me/models"
)

// Handler contains the HTTP handlers for the resolution API endpoints
type Handler struct {
	Service *governance.Service
}

// NewHandler creates and returns a new Handler instance
func NewHandler(s *governance.Service) *Handler {
	return &Handler{Service: s}
}

// GetMembers returns the registry including synthetic delegation targets
func (h *Handler) GetMembers(w http.ResponseWriter, r *http.Request) {
	members, err := h.Service.Members(r.Context())
	if err != nil {
		writeError(w, "Failed to load members", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"members": members,
	})
}

// GetTree returns the delegation forest for the field given in the query
func (h *Handler) GetTree(w http.ResponseWriter, r *http.Request) {
	field, err := models.ParseField(r.URL.Query().Get("field"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	tree, err := h.Service.Tree(r.Context(), field)
	if err != nil {
		writeError(w, "Failed to build delegation tree", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"field": field,
		"tree":  tree,
	})
}

// GetCouncil returns the new council candidates
func (h *Handler) GetCouncil(w http.ResponseWriter, r *http.Request) {
	council, err := h.Service.Council(r.Context())
	if err != nil {
		writeError(w, "Failed to resolve council", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"council": council,
	})
}

// GetAssembly returns the assembly view
func (h *Handler) GetAssembly(w http.ResponseWriter, r *http.Request) {
	assembly, err := h.Service.Assembly(r.Context())
	if err != nil {
		writeError(w, "Failed to resolve assembly", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"assembly": assembly,
	})
}

// GetSigners returns the signers currently recorded on the governance account
func (h *Handler) GetSigners(w http.ResponseWriter, r *http.Request) {
	signers, err := h.Service.CurrentSigners(r.Context())
	if err != nil {
		writeError(w, "Failed to load current signers", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"signers": signers,
	})
}

// GetChanges returns the signer weight changes and the quorum threshold
func (h *Handler) GetChanges(w http.ResponseWriter, r *http.Request) {
	res, err := h.Service.Changes(r.Context())
	if err != nil {
		writeError(w, "Failed to compute changes", err)
		return
	}
	logger.Logger.Info("Computed signer changes",
		zap.Int("changes", len(res.Changes)), zap.Int("threshold", res.Threshold))
	writeJSON(w, http.StatusOK, res)
}

// GetTransaction returns the operations applying the pending changes
func (h *Handler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	plan, err := h.Service.Transaction(r.Context())
	if err != nil {
		writeError(w, "Failed to build transaction plan", err)
		return
	}
	writeJSON(w, http.StatusOK, plan)
}

// GetCorporate returns the corporate members
func (h *Handler) GetCorporate(w http.ResponseWriter, r *http.Request) {
	members, err := h.Service.CorporateMembers(r.Context())
	if err != nil {
		writeError(w, "Failed to load corporate members", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"members": members,
	})
}

// GetLatestResolution returns the last stored resolution checkpoint
func (h *Handler) GetLatestResolution(w http.ResponseWriter, r *http.Request) {
	res, err := h.Service.LatestResolution()
	if err != nil {
		writeError(w, "Failed to load latest resolution", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Refresh drops cached source data
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	if err := h.Service.Refresh(); err != nil {
		writeError(w, "Failed to refresh cache", err)
		return
	}
	logger.Logger.Info("Source cache invalidated")
	writeJSON(w, http.StatusOK, map[string]string{
		"message": "cache invalidated",
	})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Logger.Debug("Failed to write response", zap.Int("status", status), zap.Error(err))
	}
}

// writeError maps pipeline errors to status codes. Cycle and dangling
// reference errors carry the offending id for the operator.
func writeError(w http.ResponseWriter, msg string, err error) {
	if id, ok := models.OffendingID(err); ok {
		logger.Logger.Warn(msg, zap.String("offending_id", id), zap.Error(err))
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{
			"error": err.Error(),
			"id":    id,
		})
		return
	}

	var notReady *models.NotReadyError
	if errors.As(err, &notReady) {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error":  "not ready",
			"reason": notReady.Reason,
		})
		return
	}

	var unavailable *models.SourceUnavailableError
	if errors.As(err, &unavailable) {
		logger.Logger.Error(msg, zap.Error(err))
		writeJSON(w, http.StatusBadGateway, map[string]string{
			"error": err.Error(),
		})
		return
	}

	logger.Logger.Error(msg, zap.Error(err))
	writeJSON(w, http.StatusInternalServerError, map[string]string{
		"error": err.Error(),
	})
}
