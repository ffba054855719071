package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/p-n-ai/pai-lms/internal/attempt"
	"github.com/p-n-ai/pai-lms/internal/learning"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

func (s *Server) handleCourseView(w http.ResponseWriter, r *http.Request) {
	view, err := s.learning.GetCourseView(r.Context(), r.PathValue("student"), r.PathValue("course"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	etag := strconv.Quote(view.Fingerprint)
	w.Header().Set("ETag", etag)
	if !view.Degraded && r.Header.Get("If-None-Match") == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleTopicView(w http.ResponseWriter, r *http.Request) {
	view, err := s.learning.GetTopicView(r.Context(), r.PathValue("student"), r.PathValue("topic"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleMarkComplete(w http.ResponseWriter, r *http.Request) {
	entity, err := learning.MarkableEntity(r.PathValue("entity"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	snap, err := s.learning.MarkComplete(r.Context(), r.PathValue("student"), entity, r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handlePrerequisiteQuiz(w http.ResponseWriter, r *http.Request) {
	view, err := s.learning.GetPrerequisiteQuizView(r.Context(), r.PathValue("student"), r.PathValue("quiz"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleStartAttempt(w http.ResponseWriter, r *http.Request) {
	view, err := s.learning.StartQuizAttempt(r.Context(), r.PathValue("student"), r.PathValue("quiz"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	status := http.StatusCreated
	if view.Resumed {
		status = http.StatusOK
	}
	writeJSON(w, status, view)
}

func (s *Server) handleSubmitAttempt(w http.ResponseWriter, r *http.Request) {
	view, err := s.learning.SubmitQuizAttempt(r.Context(), r.PathValue("student"), r.PathValue("attempt"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

type evaluateRequest struct {
	Status attempt.Status `json:"status"`
}

func (s *Server) handleEvaluateAttempt(w http.ResponseWriter, r *http.Request) {
	var req evaluateRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<10)).Decode(&req); err != nil {
		badRequest(w, "body must be {\"status\": ...}")
		return
	}
	if req.Status == "" {
		badRequest(w, "status is required")
		return
	}

	view, err := s.learning.EvaluateQuizAttempt(r.Context(), r.PathValue("attempt"), req.Status)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	student, course := r.PathValue("student"), r.PathValue("course")

	// Buffer so a failed export still gets a JSON error.
	var buf bytes.Buffer
	if err := s.learning.ExportReport(r.Context(), &buf, student, course); err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", course+"-"+student+".xlsx"))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		http.NotFound(w, r)
		return
	}

	limit := defaultHistoryLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			badRequest(w, "limit must be a positive integer")
			return
		}
		limit = min(n, maxHistoryLimit)
	}

	list, err := s.history.Recent(r.Context(), r.PathValue("student"), r.PathValue("course"), limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if list == nil {
		writeJSON(w, http.StatusOK, []any{})
		return
	}
	writeJSON(w, http.StatusOK, list)
}
