package handlers

import (
	"context"
	"net/http"
	"time"

	httperrors "github.com/YOLOVibeCode/fieldview-live-sub002/internal/transport/http/errors"
)

type pinger interface {
	Ping(ctx context.Context) error
}

type HealthHandler struct {
	db pinger
}

func NewHealthHandler(db pinger) *HealthHandler {
	return &HealthHandler{db: db}
}

func (h *HealthHandler) Healthz(w http.ResponseWriter, r *http.Request) {
	if h.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := h.db.Ping(ctx); err != nil {
			httperrors.Write(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded"})
			return
		}
	}

	httperrors.Write(w, http.StatusOK, map[string]string{"status": "ok"})
}
