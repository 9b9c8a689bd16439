package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/niota4/ageless-literature-sub006/internal/models"
)

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeDomainError maps the engine's error taxonomy onto HTTP statuses.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, models.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, models.ErrAuctionNotActive):
		writeError(w, http.StatusConflict, "auction is not active")
	case errors.Is(err, models.ErrBidTooLow):
		writeError(w, http.StatusConflict, "bid too low")
	case errors.Is(err, models.ErrAuctionAlreadyEnded):
		writeError(w, http.StatusConflict, "auction already ended")
	case errors.Is(err, models.ErrAlreadyClaimed):
		writeError(w, http.StatusConflict, "win already claimed")
	case errors.Is(err, models.ErrNotClaimed):
		writeError(w, http.StatusConflict, "win has not been claimed")
	case errors.Is(err, models.ErrAlreadyPaid):
		writeError(w, http.StatusConflict, "win already paid")
	case errors.Is(err, models.ErrWindowExpired):
		writeError(w, http.StatusGone, "payment window expired")
	case errors.Is(err, models.ErrNotWinOwner):
		writeError(w, http.StatusForbidden, "win belongs to another user")
	case errors.Is(err, models.ErrItemLockConflict):
		writeError(w, http.StatusConflict, "item is locked by an auction")
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// userID reads the caller identity set by the upstream auth layer.
func userID(r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.Header.Get("X-User-Id"))
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-User-Id")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
