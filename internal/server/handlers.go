package server

import (
	"bytes"
	"errors"
	"io"
	"net/http"

	"github.com/goccy/go-json"

	"github.com/verte-zerg/seqrecall/internal/export"
	"github.com/verte-zerg/seqrecall/internal/mirror"
	"github.com/verte-zerg/seqrecall/internal/model"
)

func (s *Server) handleSaveData(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxBodyBytes)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		writeError(w, http.StatusBadRequest, "failed to read body")
		return
	}

	rows, err := decodeRows(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	participant := export.FormatValue(rows[0]["participant_number"])
	identifier := export.FormatValue(rows[0]["netid"])
	filename := export.Filename(participant, identifier)

	kept := export.RecallRows(rows)
	columns, err := export.ColumnsFor(s.cfg.Columns, kept)
	if err != nil {
		s.logger.Error("invalid column mode", "error", err)
		writeError(w, http.StatusInternalServerError, "server misconfigured")
		return
	}
	content, err := export.Encode(columns, kept)
	if err != nil {
		s.logger.Error("failed to encode rows", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to encode rows")
		return
	}

	resp := model.UploadResponse{Status: model.StatusSuccess, Filename: filename, Trials: len(kept)}
	path, werr := export.WriteFile(s.cfg.DataDir, filename, content)
	if werr != nil {
		s.logger.Error("failed to save rows", "file", filename, "error", werr)
	} else {
		resp.Saved = true
		s.logger.Info("saved rows", "path", path, "trials", len(kept))
	}

	delivered := 0
	if len(s.mirrors) > 0 {
		result := mirror.Fanout(r.Context(), s.logger, s.mirrors, filename, content)
		ok := result.OK()
		resp.Mirrored = &ok
		delivered = result.Succeeded
	}

	if !resp.Saved && delivered == 0 {
		resp.Status = model.StatusError
		resp.Error = "failed to save data"
		writeJSON(w, http.StatusInternalServerError, resp)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func decodeRows(body []byte) ([]model.Row, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, errors.New("empty body")
	}
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var rows []model.Row
	if err := dec.Decode(&rows); err != nil {
		return nil, errors.New("body must be a JSON array of rows")
	}
	if len(rows) == 0 {
		return nil, errors.New("no rows")
	}
	return rows, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, model.UploadResponse{Status: model.StatusError, Error: msg})
}
