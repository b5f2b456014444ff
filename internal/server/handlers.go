package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/aisight/mitsuke/internal/models"
	"github.com/aisight/mitsuke/internal/promptstore"
	"github.com/aisight/mitsuke/internal/terms"
	"github.com/aisight/mitsuke/internal/vocab"
	"github.com/aisight/mitsuke/pkg/utils"
)

type addTermsRequest struct {
	Terms  []string          `json:"terms,omitempty"`
	Places []string          `json:"places,omitempty"`
	Text   string            `json:"text,omitempty"`
	Source models.TermSource `json:"source"`
}

func (s *Server) handleAddTerms(w http.ResponseWriter, r *http.Request) {
	var req addTermsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	candidates := req.Terms
	source := req.Source
	if len(req.Places) > 0 {
		candidates = append(candidates, terms.ForPlaces(req.Places)...)
		if source == "" {
			source = models.SourceLocation
		}
	}
	if req.Text != "" {
		if s.extractor == nil {
			s.respondError(w, http.StatusNotImplemented, "no scene-description extractor configured")
			return
		}
		extracted, err := s.extractor.ExtractTerms(r.Context(), req.Text)
		if err != nil {
			s.logger.Error("term extraction failed", zap.Error(err))
			s.respondError(w, http.StatusInternalServerError, err.Error())
			return
		}
		candidates = append(candidates, extracted...)
		if source == "" {
			source = models.SourceSceneDescription
		}
	}
	if len(candidates) == 0 {
		s.respondError(w, http.StatusBadRequest, "terms or places required")
		return
	}
	if !source.Valid() {
		s.respondError(w, http.StatusBadRequest, "invalid source")
		return
	}
	s.logger.Debug("add terms request", zap.Int("candidates", len(candidates)), zap.String("source", string(source)))
	inserted, err := s.vocab.AddTerms(r.Context(), candidates, source)
	if err != nil {
		var capErr *vocab.CapacityError
		if errors.As(err, &capErr) {
			s.respondJSON(w, http.StatusConflict, map[string]interface{}{
				"inserted": inserted,
				"rejected": capErr.Rejected,
				"capacity": capErr.Capacity,
				"error":    capErr.Error(),
			})
			return
		}
		s.logger.Error("add terms failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusCreated, map[string]interface{}{"inserted": inserted})
}

func (s *Server) handleListTerms(w http.ResponseWriter, r *http.Request) {
	base, dynamic := s.vocab.Counts()
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"terms":    s.vocab.CurrentTerms(),
		"base":     base,
		"dynamic":  dynamic,
		"capacity": s.vocab.Capacity(),
	})
}

type switchModeRequest struct {
	Mode     models.DetectorMode `json:"mode"`
	MemoryID string              `json:"memory_id,omitempty"`
}

func (s *Server) handleSwitchMode(w http.ResponseWriter, r *http.Request) {
	var req switchModeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !req.Mode.Valid() {
		s.respondError(w, http.StatusBadRequest, "invalid mode")
		return
	}
	elapsed, err := s.controller.SwitchTo(r.Context(), req.Mode, req.MemoryID)
	if err != nil {
		if errors.Is(err, promptstore.ErrMemoryNotFound) {
			s.respondError(w, http.StatusNotFound, "memory not found")
			return
		}
		s.logger.Error("mode switch failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"mode":       s.controller.Current().Mode,
		"elapsed_ms": elapsed.Milliseconds(),
	})
}

func (s *Server) handleGetMode(w http.ResponseWriter, r *http.Request) {
	ec := s.controller.Current()
	resp := map[string]interface{}{
		"mode":  ec.Mode,
		"terms": len(ec.Terms),
	}
	if ec.MemoryID != "" {
		resp["memory_id"] = ec.MemoryID
	}
	s.respondJSON(w, http.StatusOK, resp)
}

type rememberRequest struct {
	ObjectName  string                     `json:"object_name"`
	ClassID     int                        `json:"class_id"`
	BoundingBox models.BoundingBox         `json:"bounding_box"`
	Coordinates *models.SpatialCoordinates `json:"spatial_coordinates,omitempty"`
	Frame       rememberFrame              `json:"frame"`
}

type rememberFrame struct {
	Seq    uint64 `json:"seq"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Data   []byte `json:"data"`
}

func (s *Server) handleRemember(w http.ResponseWriter, r *http.Request) {
	var req rememberRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ObjectName == "" {
		s.respondError(w, http.StatusBadRequest, "object_name is required")
		return
	}
	if req.Frame.Width <= 0 || req.Frame.Height <= 0 || len(req.Frame.Data) == 0 {
		s.respondError(w, http.StatusBadRequest, "frame with width, height and data is required")
		return
	}
	frame := &models.Frame{
		Seq:    req.Frame.Seq,
		Width:  req.Frame.Width,
		Height: req.Frame.Height,
		Data:   req.Frame.Data,
	}
	s.logger.Debug("remember request", zap.String("object_name", utils.Truncate(req.ObjectName, 64)))
	id, err := s.store.Save(r.Context(), req.ObjectName, frame, req.BoundingBox, req.ClassID, req.Coordinates)
	if err != nil {
		s.logger.Error("remember failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusCreated, map[string]string{"memory_id": id, "status": "saved"})
}

func (s *Server) handleGetMemory(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	// Metadata comes from the index mirror; the embedding artifact is only
	// decoded on a recall switch.
	record, err := s.store.GetRecord(r.Context(), id)
	if err != nil {
		if errors.Is(err, promptstore.ErrMemoryNotFound) {
			s.respondError(w, http.StatusNotFound, "memory not found")
			return
		}
		s.logger.Error("get memory failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, record)
}

func (s *Server) handleSearchMemories(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("name")
	if name == "" {
		s.respondError(w, http.StatusBadRequest, "name query parameter is required")
		return
	}
	ids, err := s.store.SearchByName(r.Context(), name)
	if err != nil {
		s.logger.Error("memory search failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"memory_ids": ids})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	base, dynamic := s.vocab.Counts()
	memories, err := s.store.Count(r.Context())
	if err != nil {
		s.logger.Error("status: count memories failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	resp := map[string]interface{}{
		"mode":          s.controller.Current().Mode,
		"base_terms":    base,
		"dynamic_terms": dynamic,
		"capacity":      s.vocab.Capacity(),
		"memories":      memories,
	}
	diskBytes, err := promptstore.DiskUsageBytes(
		s.store.Root(),
		s.config.Storage.VocabularyPath,
		s.config.Storage.MemoryIndexPath,
		s.config.Storage.NameIndexPath,
	)
	if err == nil {
		resp["disk_usage_bytes"] = diskBytes
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
