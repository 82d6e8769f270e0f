package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/araddon/dateparse"
	"github.com/google/uuid"
	"golang.org/x/text/unicode/norm"

	"github.com/KaijieWen/Feedback-Forensics-Lab/internal/core/domain"
	"github.com/KaijieWen/Feedback-Forensics-Lab/internal/platform/observability"
)

// Ingestion limits, in runes.
const (
	MaxTextLength    = 6000
	MaxSnippetLength = 200

	evidenceKeyPrefix = "evidence/"
	evidenceKeySuffix = ".json"
)

type ingestRequest struct {
	Text      *string        `json:"text"`
	Source    *string        `json:"source"`
	SourceURL string         `json:"source_url"`
	Timestamp string         `json:"timestamp"`
	Author    string         `json:"author"`
	Title     string         `json:"title"`
	Raw       map[string]any `json:"raw"`
}

// EvidenceKey returns the evidence store key for a feedback id.
func EvidenceKey(feedbackID string) string {
	return evidenceKeyPrefix + feedbackID + evidenceKeySuffix
}

func (h *handlers) ingest(w http.ResponseWriter, r *http.Request) {
	if !strings.Contains(r.Header.Get("Content-Type"), "application/json") {
		h.reject(w, http.StatusUnsupportedMediaType, codeUnsupportedMedia, "Expected application/json body")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	defer r.Body.Close()

	var req ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.reject(w, http.StatusBadRequest, codeInvalidJSON, "Invalid JSON payload")
		return
	}

	text := ""
	if req.Text != nil {
		text = NormalizeText(*req.Text)
	}

	if text == "" {
		h.reject(w, http.StatusBadRequest, codeMissingText, "Missing required field: text")
		return
	}

	source := ""
	if req.Source != nil {
		source = strings.TrimSpace(*req.Source)
	}

	if source == "" {
		h.reject(w, http.StatusBadRequest, codeMissingSource, "Missing required field: source")
		return
	}

	ctx := r.Context()
	createdAt := h.now().UTC()
	id := uuid.NewString()

	evidence := domain.Evidence{
		Source:    source,
		SourceURL: strings.TrimSpace(req.SourceURL),
		Timestamp: NormalizeTimestamp(req.Timestamp, createdAt),
		Author:    strings.TrimSpace(req.Author),
		Title:     strings.TrimSpace(req.Title),
		Text:      text,
		Raw:       req.Raw,
	}

	key := EvidenceKey(id)
	if err := h.deps.Evidence.PutEvidence(ctx, key, evidence); err != nil {
		h.deps.Logger.Error().Err(err).Str(logKeyFeedbackID, id).Msg("failed to store evidence")
		writeError(w, http.StatusInternalServerError, codeInternal, "Failed to store evidence")

		return
	}

	fb := &domain.Feedback{
		ID:          id,
		Source:      source,
		Title:       evidence.Title,
		Snippet:     Snippet(text),
		EvidenceRef: key,
		Status:      domain.StatusQueued,
		CreatedAt:   createdAt,
	}

	if err := h.deps.Feedback.InsertFeedback(ctx, fb); err != nil {
		h.deps.Logger.Error().Err(err).Str(logKeyFeedbackID, id).Msg("failed to insert feedback")
		writeError(w, http.StatusInternalServerError, codeInternal, "Failed to store feedback")

		return
	}

	observability.FeedbackIngested.WithLabelValues(source).Inc()

	if !h.trigger(w, r, id) {
		return
	}

	writeJSON(w, http.StatusAccepted, statusBody{ID: id, Status: string(h.storedStatus(ctx, id))})
}

// trigger starts the pipeline for id. On failure it marks the feedback failed,
// writes a 500 response and returns false.
func (h *handlers) trigger(w http.ResponseWriter, r *http.Request, id string) bool {
	err := h.deps.Trigger.Trigger(r.Context(), id)
	if err == nil {
		return true
	}

	h.deps.Logger.Error().Err(err).Str(logKeyFeedbackID, id).Msg("failed to start pipeline")

	// The client may have disconnected during an inline run; the failure must
	// still be recorded or the item stays in processing with no run to recover it.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), statusWriteTimeout)
	defer cancel()

	if serr := h.deps.Feedback.UpdateFeedbackStatus(ctx, id, domain.StatusFailed, domain.ErrorCodeWorkflowStartFailed, err.Error()); serr != nil {
		h.deps.Logger.Error().Err(serr).Str(logKeyFeedbackID, id).Msg("failed to record start failure")
	}

	writeError(w, http.StatusInternalServerError, codeWorkflowStartFailed, "Failed to start analysis workflow")

	return false
}

// storedStatus returns the feedback's current status. An inline run may have
// already finished the item; a read failure reports queued.
func (h *handlers) storedStatus(ctx context.Context, id string) domain.FeedbackStatus {
	fb, err := h.deps.Feedback.GetFeedback(ctx, id)
	if err != nil {
		h.deps.Logger.Warn().Err(err).Str(logKeyFeedbackID, id).Msg("failed to read feedback status")
		return domain.StatusQueued
	}

	return fb.Status
}

func (h *handlers) reject(w http.ResponseWriter, status int, code, msg string) {
	observability.IngestRejected.WithLabelValues(code).Inc()
	h.deps.Logger.Debug().Str(logKeyCode, code).Msg("ingest rejected")
	writeError(w, status, code, msg)
}

// NormalizeText NFC-normalizes and trims text, capped at MaxTextLength runes.
func NormalizeText(s string) string {
	return truncateRunes(strings.TrimSpace(norm.NFC.String(s)), MaxTextLength)
}

// Snippet collapses whitespace runs to single spaces, capped at MaxSnippetLength runes.
func Snippet(text string) string {
	return truncateRunes(strings.Join(strings.Fields(text), " "), MaxSnippetLength)
}

// NormalizeTimestamp renders raw as RFC 3339 in UTC. An empty value becomes
// fallback; a value dateparse cannot read is kept as given. Zone-less values
// are read as UTC.
func NormalizeTimestamp(raw string, fallback time.Time) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback.UTC().Format(time.RFC3339Nano)
	}

	t, err := dateparse.ParseIn(raw, time.UTC)
	if err != nil {
		return raw
	}

	return t.UTC().Format(time.RFC3339Nano)
}

func truncateRunes(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}

	return string([]rune(s)[:limit])
}
