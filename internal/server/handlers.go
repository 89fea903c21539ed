// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package server

import (
	"bytes"
	"encoding/base64"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/pdiddy/paper-harvester/internal/doi"
	"github.com/pdiddy/paper-harvester/internal/jobs"
)

func (s *Server) submitJob(w http.ResponseWriter, r *http.Request) {
	var req jobs.Request
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	job, err := s.runner.Submit(r.Context(), req)
	if errors.Is(err, jobs.ErrInvalidRequest) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		s.logger.Error().Err(err).Msg("submitting job")
		writeError(w, http.StatusInternalServerError, "failed to start job")
		return
	}
	writeJSON(w, http.StatusAccepted, job)
}

func (s *Server) listJobs(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}
	list, err := s.store.List(r.Context(), limit)
	if err != nil {
		s.logger.Error().Err(err).Msg("listing jobs")
		writeError(w, http.StatusInternalServerError, "failed to list jobs")
		return
	}
	if list == nil {
		list = []jobs.Job{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"jobs": list, "count": len(list)})
}

func (s *Server) getJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "jobID")
	job, err := s.store.Get(r.Context(), id)
	if errors.Is(err, jobs.ErrNotFound) {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	if err != nil {
		s.logger.Error().Err(err).Str("job_id", id).Msg("loading job")
		writeError(w, http.StatusInternalServerError, "failed to load job")
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// parseRequest carries an export file's contents.
type parseRequest struct {
	Payload string `json:"payload"`
	// Encoding is "base64" for raw file bytes or "latin-1" (default) for text.
	Encoding string `json:"encoding,omitempty"`
}

type parseResponse struct {
	DOICount int      `json:"doi_count"`
	DOIs     []string `json:"dois"`
}

func (s *Server) parseExport(w http.ResponseWriter, r *http.Request) {
	var req parseRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var dois []string
	switch strings.ToLower(req.Encoding) {
	case "base64":
		data, err := base64.StdEncoding.DecodeString(req.Payload)
		if err != nil {
			writeError(w, http.StatusBadRequest, "payload is not valid base64")
			return
		}
		dois, err = doi.ExtractReader(bytes.NewReader(data))
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	case "", "latin-1", "latin1", "text":
		dois = doi.Extract(req.Payload)
	default:
		writeError(w, http.StatusBadRequest, "encoding must be base64 or latin-1")
		return
	}
	if dois == nil {
		dois = []string{}
	}
	writeJSON(w, http.StatusOK, parseResponse{DOICount: len(dois), DOIs: dois})
}

func (s *Server) getCredentials(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.creds.Summary())
}

func (s *Server) updateCredentials(w http.ResponseWriter, r *http.Request) {
	var u jobs.CredentialUpdate
	if err := decodeBody(w, r, &u); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	sum := s.creds.Update(u)
	s.logger.Info().Strs("stored_keys", sum.StoredKeys).Msg("credentials updated")
	writeJSON(w, http.StatusOK, sum)
}
