package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/KaijieWen/Feedback-Forensics-Lab/internal/core/domain"
	coreerrors "github.com/KaijieWen/Feedback-Forensics-Lab/internal/core/errors"
)

func (h *handlers) retry(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ctx := r.Context()

	if _, err := h.deps.Feedback.GetFeedback(ctx, id); err != nil {
		if errors.Is(err, coreerrors.ErrFeedbackNotFound) {
			writeError(w, http.StatusNotFound, codeNotFound, "Feedback not found")
			return
		}

		h.deps.Logger.Error().Err(err).Str(logKeyFeedbackID, id).Msg("failed to load feedback")
		writeError(w, http.StatusInternalServerError, codeInternal, "Failed to load feedback")

		return
	}

	if err := h.deps.Feedback.UpdateFeedbackStatus(ctx, id, domain.StatusQueued, "", ""); err != nil {
		h.deps.Logger.Error().Err(err).Str(logKeyFeedbackID, id).Msg("failed to reset feedback")
		writeError(w, http.StatusInternalServerError, codeInternal, "Failed to reset feedback")

		return
	}

	if !h.trigger(w, r, id) {
		return
	}

	h.deps.Logger.Info().Str(logKeyFeedbackID, id).Msg("feedback requeued")

	writeJSON(w, http.StatusOK, statusBody{ID: id, Status: string(h.storedStatus(ctx, id))})
}
