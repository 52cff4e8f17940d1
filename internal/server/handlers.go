package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/uptix/hub/internal/ingest"
	"github.com/uptix/hub/internal/models"
	"github.com/uptix/hub/internal/registry"
)

const maxBodyBytes = 1 << 20

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	return json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v)
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	var report models.Report
	if err := decodeJSON(w, r, &report); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	err := s.ingest.Ingest(r.Context(), report)
	switch {
	case err == nil:
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
	case errors.Is(err, ingest.ErrMalformedReport):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, ingest.ErrStorageUnavailable):
		writeError(w, http.StatusServiceUnavailable, "storage unavailable")
	default:
		s.logger.Error("failed to ingest report", "err", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func (s *Server) handleListServers(w http.ResponseWriter, r *http.Request) {
	hosts, err := s.store.ListHosts(r.Context())
	if err != nil {
		s.logger.Error("failed to list hosts", "err", err)
		writeError(w, http.StatusServiceUnavailable, "storage unavailable")
		return
	}
	if hosts == nil {
		hosts = []models.HostWithSample{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"servers": hosts})
}

func (s *Server) handleGetServer(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	host, err := s.store.GetHost(r.Context(), id)
	if err != nil {
		s.logger.Error("failed to get host", "id", id, "err", err)
		writeError(w, http.StatusServiceUnavailable, "storage unavailable")
		return
	}
	if host == nil {
		writeError(w, http.StatusNotFound, "server not found")
		return
	}

	sample, err := s.store.GetLatestSample(r.Context(), id)
	if err != nil {
		s.logger.Error("failed to get latest sample", "id", id, "err", err)
		writeError(w, http.StatusServiceUnavailable, "storage unavailable")
		return
	}
	sites, err := s.store.ListSites(r.Context(), id)
	if err != nil {
		s.logger.Error("failed to list sites", "id", id, "err", err)
		writeError(w, http.StatusServiceUnavailable, "storage unavailable")
		return
	}
	if sites == nil {
		sites = []models.Site{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"server":        host,
		"latest_sample": sample,
		"sites":         sites,
	})
}

func (s *Server) handleSetMaintenance(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req models.MaintenanceRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.IsMaintenance == nil {
		writeError(w, http.StatusBadRequest, "is_maintenance is required")
		return
	}

	host, err := s.ingest.SetMaintenance(r.Context(), id, *req.IsMaintenance)
	switch {
	case errors.Is(err, registry.ErrHostNotFound):
		writeError(w, http.StatusNotFound, "server not found")
		return
	case err != nil:
		s.logger.Error("failed to set maintenance", "id", id, "err", err)
		writeError(w, http.StatusServiceUnavailable, "storage unavailable")
		return
	}
	writeJSON(w, http.StatusOK, models.MaintenanceResponse{ID: host.ID, IsMaintenance: host.IsMaintenance})
}

func (s *Server) handleTestAlert(w http.ResponseWriter, r *http.Request) {
	if err := s.alerts.SendTest(r.Context()); err != nil {
		s.logger.Error("test alert failed", "err", err)
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "test alert sent"})
}
