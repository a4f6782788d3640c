package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/fitundfun/ffbackup/internal/app"
	"github.com/fitundfun/ffbackup/internal/archive"
	"github.com/fitundfun/ffbackup/internal/restore"
	"github.com/fitundfun/ffbackup/internal/version"
)

const multipartMemory = 32 << 20

type restoreResponse struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Results *restore.Report `json:"results"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Ping(r.Context()); err != nil {
		s.log.Warn().Err(err).Msg("health check failed")
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "version": version.Version})
}

func (s *Server) handleBackup(w http.ResponseWriter, r *http.Request) {
	u, _ := UserFrom(r.Context())
	data, name, err := s.svc.Export(r.Context(), u.Email)
	if err != nil {
		if errors.Is(err, app.ErrBusy) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		s.log.Error().Err(err).Str("user", u.ID).Msg("backup failed")
		writeError(w, http.StatusInternalServerError, "could not create backup")
		return
	}

	h := w.Header()
	h.Set("Content-Type", "application/zip")
	h.Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	h.Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (s *Server) handleRestore(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "backup file too large")
			return
		}
		writeError(w, http.StatusBadRequest, "no form data received")
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, _, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "no backup file provided")
		return
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "could not read backup file")
		return
	}
	opts := restore.ParseOptions([]byte(r.FormValue("options")))

	u, _ := UserFrom(r.Context())
	rep, err := s.svc.Import(r.Context(), data, opts)
	if err != nil {
		switch {
		case errors.Is(err, archive.ErrMissingManifest):
			s.log.Warn().Err(err).Str("user", u.ID).Msg("rejected backup upload")
			writeError(w, http.StatusBadRequest, "invalid backup archive: manifest.json missing")
		case errors.Is(err, archive.ErrInvalidArchive):
			s.log.Warn().Err(err).Str("user", u.ID).Msg("rejected backup upload")
			writeError(w, http.StatusBadRequest, "invalid backup archive")
		case errors.Is(err, app.ErrBusy):
			writeError(w, http.StatusConflict, err.Error())
		default:
			s.log.Error().Err(err).Str("user", u.ID).Msg("restore failed")
			writeError(w, http.StatusInternalServerError, "could not restore backup")
		}
		return
	}
	s.log.Info().Str("user", u.ID).Strs("tables", rep.RestoredTables).Int("files", len(rep.RestoredFiles)).Int("errors", len(rep.Errors)).Msg("restore applied")
	writeJSON(w, http.StatusOK, restoreResponse{Success: true, Message: "backup restored", Results: rep})
}
