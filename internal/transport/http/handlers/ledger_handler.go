package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/YOLOVibeCode/fieldview-live-sub002/internal/domain/model"
	ledgersvc "github.com/YOLOVibeCode/fieldview-live-sub002/internal/services/ledger"
	"github.com/YOLOVibeCode/fieldview-live-sub002/internal/transport/http/dto"
	httperrors "github.com/YOLOVibeCode/fieldview-live-sub002/internal/transport/http/errors"
)

// LedgerHandler exposes the bookkeeping rows for audit tooling. The routes
// sit behind the service token middleware.
type LedgerHandler struct {
	ledger *ledgersvc.Poster
}

func NewLedgerHandler(ledger *ledgersvc.Poster) *LedgerHandler {
	return &LedgerHandler{ledger: ledger}
}

func (h *LedgerHandler) Entries(w http.ResponseWriter, r *http.Request) {
	if h.ledger == nil {
		writeInternal(w, "LEDGER_SERVICE_UNAVAILABLE", "ledger service is unavailable")
		return
	}

	purchaseID := strings.TrimSpace(r.URL.Query().Get("purchase_id"))
	ownerAccountID := strings.TrimSpace(r.URL.Query().Get("owner_account_id"))

	var (
		entries []model.LedgerEntry
		err     error
	)
	switch {
	case purchaseID != "":
		entries, err = h.ledger.EntriesByPurchase(r.Context(), purchaseID)
	case ownerAccountID != "":
		limit := parseLimit(r.URL.Query().Get("limit"))
		entries, err = h.ledger.EntriesByOwner(r.Context(), ownerAccountID, limit)
	default:
		writeBadRequest(w, "VALIDATION_ERROR", "purchase_id or owner_account_id is required")
		return
	}
	if err != nil {
		if errors.Is(err, ledgersvc.ErrValidation) {
			writeBadRequest(w, "VALIDATION_ERROR", "request validation failed")
			return
		}
		writeInternal(w, "INTERNAL_ERROR", "failed to load ledger entries")
		return
	}

	out := dto.LedgerEntriesResponse{Entries: make([]dto.LedgerEntryResponse, 0, len(entries))}
	for _, entry := range entries {
		out.Entries = append(out.Entries, dto.LedgerEntryResponse{
			ID:             entry.ID,
			ReferenceID:    entry.ReferenceID,
			OwnerAccountID: entry.OwnerAccountID,
			EntryType:      string(entry.Type),
			AmountCents:    entry.AmountCents,
			CreatedAt:      entry.CreatedAt,
		})
	}

	httperrors.Write(w, http.StatusOK, out)
}

func parseLimit(raw string) int {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0
	}
	return n
}
