package handlers

import (
	"net/http"

	"github.com/jsvoboda/facebench/internal/config"
	"github.com/jsvoboda/facebench/internal/experiment"
	"github.com/jsvoboda/facebench/internal/metric"
)

// ConfigHandler exposes the active experiment configuration.
type ConfigHandler struct {
	config    *config.Config
	gallery   *experiment.Gallery
	threshold *float64
}

// NewConfigHandler creates the config handler.
func NewConfigHandler(cfg *config.Config, gallery *experiment.Gallery, threshold *float64) *ConfigHandler {
	return &ConfigHandler{config: cfg, gallery: gallery, threshold: threshold}
}

// configResponse describes the running setup for the UI.
type configResponse struct {
	Model            string   `json:"model"`
	EmbeddingDim     int      `json:"embedding_dim"`
	Metric           string   `json:"metric"`
	Threshold        *float64 `json:"threshold"`
	EnrolledSubjects []string `json:"enrolled_subjects"`
	TemplateCount    int      `json:"template_count"`
	SupportedModels  []string `json:"supported_models"`
	SupportedMetrics []string `json:"supported_metrics"`
}

// Get handles GET /api/v1/config.
func (h *ConfigHandler) Get(w http.ResponseWriter, _ *http.Request) {
	metrics := make([]string, 0, len(metric.All))
	for _, m := range metric.All {
		metrics = append(metrics, m.String())
	}

	writeJSON(w, http.StatusOK, configResponse{
		Model:            h.config.Embedding.Model,
		EmbeddingDim:     h.config.ModelDim(h.config.Embedding.Model),
		Metric:           h.gallery.Metric().String(),
		Threshold:        h.threshold,
		EnrolledSubjects: h.gallery.Subjects(),
		TemplateCount:    h.gallery.Size(),
		SupportedModels:  h.config.ModelNames(),
		SupportedMetrics: metrics,
	})
}
