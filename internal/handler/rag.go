package handler

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/biorag/engine/internal/model"
	"github.com/biorag/engine/internal/ragerr"
	"github.com/biorag/engine/internal/service"
)

// SessionCreator is the narrow subset of repository.SessionRepo the
// session-creation handler needs.
type SessionCreator interface {
	CreateSession(ctx context.Context, pdfID string) (*model.ChatSession, error)
}

// QuestionAsker answers a question for a session, either synchronously
// (AskQuestionJSON) or by streaming SSE events (AskQuestionStream).
type QuestionAsker interface {
	AskQuestionJSON(ctx context.Context, sessionID, question string) (service.QuestionResult, error)
	AskQuestionStream(ctx context.Context, sessionID, question string, emit func(service.SSEEvent) error) error
}

// RAGDeps bundles what the session/question handlers need.
type RAGDeps struct {
	Sessions SessionCreator
	Asker    QuestionAsker
}

type createSessionRequest struct {
	PDFID string `json:"pdfId"`
}

// CreateSession handles POST /api/rag/sessions.
func CreateSession(deps RAGDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createSessionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondJSONError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if req.PDFID == "" || !validateUUID(req.PDFID) {
			respondJSONError(w, http.StatusBadRequest, "pdfId must be a valid UUID")
			return
		}

		session, err := deps.Sessions.CreateSession(r.Context(), req.PDFID)
		if err != nil {
			respondRagErr(w, err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]any{
			"id":    session.ID,
			"pdfId": session.PDFID,
		})
	}
}

type askQuestionRequest struct {
	Question string `json:"question"`
}

// AskQuestion handles POST /api/rag/sessions/{id}/question. An
// `Accept: text/event-stream` header selects the SSE path; otherwise the
// response is a single JSON object with the same fields as the "final" SSE
// event.
func AskQuestion(deps RAGDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID := chi.URLParam(r, "id")
		if !validateUUID(sessionID) {
			respondJSONError(w, http.StatusBadRequest, "invalid session id")
			return
		}

		var req askQuestionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondJSONError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if req.Question == "" {
			respondJSONError(w, http.StatusBadRequest, "question is required")
			return
		}

		if r.Header.Get("Accept") == "text/event-stream" {
			streamQuestion(w, r, deps, sessionID, req.Question)
			return
		}

		result, err := deps.Asker.AskQuestionJSON(r.Context(), sessionID, req.Question)
		if err != nil {
			respondRagErr(w, err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]any{
			"answer":             result.Answer,
			"citations":          result.Citations,
			"metadata":           result.Metadata,
			"specialistResults":  result.SpecialistResults,
			"specialistsInvoked": result.SpecialistsInvoked,
		})
	}
}

// streamQuestion implements the §6 SSE grammar: one JSON object per
// `data:` line, flushed as each event is emitted.
func streamQuestion(w http.ResponseWriter, r *http.Request, deps RAGDeps, sessionID, question string) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		respondJSONError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	bw := bufio.NewWriter(w)
	emit := func(evt service.SSEEvent) error {
		payload, err := json.Marshal(evt)
		if err != nil {
			return fmt.Errorf("handler.streamQuestion: marshal event: %w", err)
		}
		if _, err := bw.Write([]byte("data: ")); err != nil {
			return err
		}
		if _, err := bw.Write(payload); err != nil {
			return err
		}
		if _, err := bw.Write([]byte("\n\n")); err != nil {
			return err
		}
		if err := bw.Flush(); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	}

	_ = deps.Asker.AskQuestionStream(r.Context(), sessionID, question, emit)
}

func respondJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{
		"success": false,
		"error":   message,
	})
}

func respondRagErr(w http.ResponseWriter, err error) {
	respondJSONError(w, ragerr.StatusCode(err), err.Error())
}
