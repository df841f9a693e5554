package handlers

import (
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/jsvoboda/facebench/internal/experiment"
	"github.com/jsvoboda/facebench/internal/metric"
	"github.com/jsvoboda/facebench/internal/subjects"
)

// maxUploadBytes caps identify uploads at 32 MiB.
const maxUploadBytes = 32 << 20

// IdentifyHandler matches an uploaded photo against the gallery.
type IdentifyHandler struct {
	gallery   *experiment.Gallery
	names     *subjects.Names
	threshold *float64
}

// NewIdentifyHandler creates the identify handler.
func NewIdentifyHandler(gallery *experiment.Gallery, names *subjects.Names, threshold *float64) *IdentifyHandler {
	return &IdentifyHandler{gallery: gallery, names: names, threshold: threshold}
}

// identifyResponse is the JSON reply for an identification request.
type identifyResponse struct {
	Accepted     bool     `json:"accepted"`
	SubjectID    string   `json:"subject_id,omitempty"`
	Name         string   `json:"name,omitempty"`
	TemplatePath string   `json:"template_path,omitempty"`
	Distance     float64  `json:"distance"`
	Confidence   *float64 `json:"confidence,omitempty"`
}

// Identify handles POST /api/v1/identify. The request is a multipart
// form with the photo in the "file" field.
func (h *IdentifyHandler) Identify(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

	file, _, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing file upload: "+err.Error())
		return
	}
	defer file.Close()

	// The gallery identifies by path, so stage the upload in a temp file.
	tmp, err := os.CreateTemp("", "facebench-query-*.jpg")
	if err != nil {
		writeError(w, http.StatusInternalServerError, "cannot stage upload: "+err.Error())
		return
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, file); err != nil {
		tmp.Close()
		writeError(w, http.StatusInternalServerError, "cannot stage upload: "+err.Error())
		return
	}
	if err := tmp.Close(); err != nil {
		writeError(w, http.StatusInternalServerError, "cannot stage upload: "+err.Error())
		return
	}

	match, err := h.gallery.Identify(r.Context(), tmp.Name(), h.threshold)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, fmt.Sprintf("identification failed: %v", err))
		return
	}

	resp := identifyResponse{
		Accepted: match.Accepted,
		Distance: match.Distance,
	}
	if match.Accepted {
		resp.SubjectID = match.SubjectID
		resp.Name = h.names.DisplayName(match.SubjectID)
		resp.TemplatePath = match.TemplatePath
	}
	// Confidence is only meaningful for cosine distances, which live in [0, 2].
	if h.gallery.Metric() == metric.Cosine {
		confidence := 1 - match.Distance
		resp.Confidence = &confidence
	}

	writeJSON(w, http.StatusOK, resp)
}
