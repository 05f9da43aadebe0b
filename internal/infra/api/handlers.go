package api

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Gumbees/homebase-intake/internal/domain"
	"github.com/Gumbees/homebase-intake/internal/domain/model"
	"github.com/Gumbees/homebase-intake/internal/usecase"
)

const maxDocumentBytes = 20 << 20 // 20 MiB upload ceiling

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// POST /api/v1/session {"api_key": "..."} -> {"token": "..."}
func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		APIKey string `json:"api_key"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	if !s.auth.Exchange(req.APIKey) {
		s.writeError(w, http.StatusUnauthorized, "invalid api key")
		return
	}
	token, err := s.auth.Mint(w)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "mint session")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

// POST /api/v1/documents
// Accepts multipart/form-data (file + provider fields) or a JSON body with
// base64 data. Either way the document goes through the full intake pipeline.
func (s *Server) handleEnqueueDocument(w http.ResponseWriter, r *http.Request) {
	req, err := s.decodeDocument(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	task, err := s.analysis.EnqueueDocument(r.Context(), req)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, taskToDTO(task))
}

func (s *Server) decodeDocument(r *http.Request) (usecase.EnqueueDocumentRequest, error) {
	var req usecase.EnqueueDocumentRequest

	ct := r.Header.Get("Content-Type")
	if len(ct) >= 19 && ct[:19] == "multipart/form-data" {
		if err := r.ParseMultipartForm(maxDocumentBytes); err != nil {
			return req, errors.New("invalid multipart body")
		}
		file, hdr, err := r.FormFile("file")
		if err != nil {
			return req, errors.New("missing file field")
		}
		defer func() { _ = file.Close() }()
		data, err := io.ReadAll(io.LimitReader(file, maxDocumentBytes))
		if err != nil {
			return req, errors.New("read upload")
		}
		req.Data = data
		req.Filename = hdr.Filename
		req.MIME = hdr.Header.Get("Content-Type")
		req.Provider = r.FormValue("provider")
		return req, nil
	}

	var body struct {
		Data     string `json:"data"`
		Filename string `json:"filename"`
		MIME     string `json:"mime"`
		Provider string `json:"provider"`
	}
	if err := json.NewDecoder(io.LimitReader(r.Body, maxDocumentBytes)).Decode(&body); err != nil {
		return req, errors.New("invalid body")
	}
	data, err := base64.StdEncoding.DecodeString(body.Data)
	if err != nil {
		return req, errors.New("data must be base64")
	}
	req.Data = data
	req.Filename = body.Filename
	req.MIME = body.MIME
	req.Provider = body.Provider
	return req, nil
}

// GET /api/v1/tasks?status=pending_review&limit=50
func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	status := model.TaskStatus(r.URL.Query().Get("status"))
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 500 {
			s.writeError(w, http.StatusBadRequest, "limit must be 1..500")
			return
		}
		limit = n
	}

	tasks, err := s.intake.ListQueue(r.Context(), status, limit)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	out := make([]taskDTO, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, taskToDTO(t))
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"tasks": out})
}

// GET /api/v1/tasks/{id}
func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	task, err := s.intake.GetTask(r.Context(), id)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	records, err := s.intake.Ledger(r.Context(), id)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		s.writeDomainError(w, err)
		return
	}
	ledger := make([]ledgerDTO, 0, len(records))
	for _, rec := range records {
		ledger = append(ledger, ledgerDTO{
			Kind:      rec.Kind,
			LineIndex: rec.LineIndex,
			EntityID:  rec.TargetEntityID,
			CreatedAt: rec.CreatedAt,
		})
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"task":   taskToDTO(task),
		"ledger": ledger,
	})
}

// POST /api/v1/tasks/{id}/approve {"decisions": [...]}
func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var body struct {
		Decisions []usecase.Decision `json:"decisions"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid body")
		return
	}

	outcomes, err := s.intake.Approve(r.Context(), id, body.Decisions)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"outcomes": outcomes})
}

// POST /api/v1/tasks/{id}/reject {"reason": "..."}
func (s *Server) handleReject(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var body struct {
		Reason string `json:"reason"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid body")
		return
	}

	if err := s.intake.Reject(r.Context(), id, body.Reason); err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "rejected"})
}

// GET /api/v1/providers
func (s *Server) handleProviders(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"providers": s.gateway.Snapshot(r.Context()),
	})
}

// POST /api/v1/triggers/schedule
func (s *Server) handleTriggerSchedule(w http.ResponseWriter, r *http.Request) {
	s.sched.RunOnce(r.Context())
	s.writeJSON(w, http.StatusAccepted, map[string]string{"status": "triggered"})
}

// POST /api/v1/triggers/drain {"n": 10}
func (s *Server) handleTriggerDrain(w http.ResponseWriter, r *http.Request) {
	var body struct {
		N int `json:"n"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil && !errors.Is(err, io.EOF) {
		s.writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	if body.N <= 0 {
		body.N = 10
	}
	processed, err := s.drainer.Drain(r.Context(), body.N)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]int{"processed": processed})
}

// ===== DTOs and response helpers =====

type taskDTO struct {
	ID          string           `json:"id"`
	Kind        model.TaskKind   `json:"kind"`
	Status      model.TaskStatus `json:"status"`
	Payload     json.RawMessage  `json:"payload,omitempty"`
	Attempts    int              `json:"attempts"`
	LastError   string           `json:"last_error,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
	CompletedAt *time.Time       `json:"completed_at,omitempty"`
}

type ledgerDTO struct {
	Kind      model.CreationKind `json:"kind"`
	LineIndex *int               `json:"line_index,omitempty"`
	EntityID  string             `json:"entity_id"`
	CreatedAt time.Time          `json:"created_at"`
}

func taskToDTO(t *model.Task) taskDTO {
	return taskDTO{
		ID:          t.ID,
		Kind:        t.Kind,
		Status:      t.Status,
		Payload:     t.Payload,
		Attempts:    t.Attempts,
		LastError:   t.LastError,
		CreatedAt:   t.CreatedAt,
		CompletedAt: t.CompletedAt,
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Error().Err(err).Msg("encode response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		s.writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrInvalidArgument):
		s.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrInvalidTransition):
		s.writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrAlreadyExists), errors.Is(err, domain.ErrAlreadyCreated):
		s.writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrUnknownProvider):
		s.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrProviderRateLimited):
		s.writeError(w, http.StatusTooManyRequests, err.Error())
	default:
		s.writeError(w, http.StatusInternalServerError, "internal error")
	}
}
