package handlers

import (
	"net/http"

	"github.com/kozaktomas/rollcall/internal/config"
	"github.com/kozaktomas/rollcall/internal/matching"
)

// ConfigHandler handles configuration endpoints
type ConfigHandler struct {
	config *config.Config
	engine *matching.Engine
}

// NewConfigHandler creates a new config handler
func NewConfigHandler(cfg *config.Config, engine *matching.Engine) *ConfigHandler {
	return &ConfigHandler{
		config: cfg,
		engine: engine,
	}
}

// ConfigResponse represents the configuration response
type ConfigResponse struct {
	StorageBackend         string          `json:"storage_backend"`
	Matching               matching.Config `json:"matching"`
	MaxPerIdentity         int             `json:"max_per_identity"`
	DuplicateCheck         bool            `json:"duplicate_check"`
	CrossValidationEnabled bool            `json:"cross_validation_enabled"`
	AcceptCooldown         string          `json:"accept_cooldown"`
	UnknownCooldown        string          `json:"unknown_cooldown"`
	SweepInterval          string          `json:"sweep_interval"`
}

// Get returns the effective configuration
func (h *ConfigHandler) Get(w http.ResponseWriter, r *http.Request) {
	response := ConfigResponse{
		StorageBackend:         h.config.Storage.Backend,
		Matching:               h.engine.Config(),
		MaxPerIdentity:         h.config.Matching.MaxPerIdentity,
		DuplicateCheck:         h.config.Matching.DuplicateCheck,
		CrossValidationEnabled: h.engine.CrossValidationEnabled(),
		AcceptCooldown:         h.config.Debounce.AcceptCooldown.String(),
		UnknownCooldown:        h.config.Debounce.UnknownCooldown.String(),
		SweepInterval:          h.config.Scheduler.SweepInterval.String(),
	}

	respondJSON(w, http.StatusOK, response)
}
