package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	ledgersvc "github.com/YOLOVibeCode/fieldview-live-sub002/internal/services/ledger"
	paysvc "github.com/YOLOVibeCode/fieldview-live-sub002/internal/services/payments"
	"github.com/YOLOVibeCode/fieldview-live-sub002/internal/transport/http/dto"
	httperrors "github.com/YOLOVibeCode/fieldview-live-sub002/internal/transport/http/errors"
)

type PurchaseHandler struct {
	payments *paysvc.Service
	logger   *zap.Logger
}

func NewPurchaseHandler(payments *paysvc.Service, logger *zap.Logger) *PurchaseHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PurchaseHandler{
		payments: payments,
		logger:   logger,
	}
}

func (h *PurchaseHandler) Create(w http.ResponseWriter, r *http.Request) {
	if h.payments == nil {
		writeInternal(w, "PAYMENTS_SERVICE_UNAVAILABLE", "payments service is unavailable")
		return
	}

	var req dto.PurchaseCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "INVALID_REQUEST", "invalid request body")
		return
	}

	result, err := h.payments.CreatePurchase(r.Context(), paysvc.CreateInput{
		GameID:     req.GameID,
		ViewerID:   req.ViewerID,
		GrossCents: req.AmountCents,
		Currency:   req.Currency,
	})
	if err != nil {
		h.handlePaymentError(w, err, "create purchase")
		return
	}

	httperrors.Write(w, http.StatusCreated, dto.PurchaseCreateResponse{
		PurchaseID:        result.PurchaseID,
		GameID:            result.GameID,
		AmountCents:       result.AmountCents,
		Currency:          result.Currency,
		PlatformFeeCents:  result.PlatformFeeCents,
		ProcessorFeeCents: result.ProcessorFeeCents,
		OwnerNetCents:     result.OwnerNetCents,
		Status:            result.Status,
	})
}

func (h *PurchaseHandler) Process(w http.ResponseWriter, r *http.Request) {
	if h.payments == nil {
		writeInternal(w, "PAYMENTS_SERVICE_UNAVAILABLE", "payments service is unavailable")
		return
	}

	purchaseID := strings.TrimSpace(chi.URLParam(r, "id"))
	if purchaseID == "" {
		writeBadRequest(w, "VALIDATION_ERROR", "purchase id is required")
		return
	}

	var req dto.PurchaseProcessRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "INVALID_REQUEST", "invalid request body")
		return
	}

	result, err := h.payments.ProcessPurchase(r.Context(), purchaseID, req.SourceToken)
	if err != nil {
		h.handlePaymentError(w, err, "process purchase")
		return
	}

	httperrors.Write(w, http.StatusOK, dto.PurchaseProcessResponse{
		PurchaseID:       result.PurchaseID,
		Status:           result.Status,
		EntitlementToken: result.EntitlementToken,
	})
}

func (h *PurchaseHandler) Status(w http.ResponseWriter, r *http.Request) {
	if h.payments == nil {
		writeInternal(w, "PAYMENTS_SERVICE_UNAVAILABLE", "payments service is unavailable")
		return
	}

	purchaseID := strings.TrimSpace(chi.URLParam(r, "id"))
	if purchaseID == "" {
		writeBadRequest(w, "VALIDATION_ERROR", "purchase id is required")
		return
	}

	result, err := h.payments.GetStatus(r.Context(), purchaseID)
	if err != nil {
		h.handlePaymentError(w, err, "get purchase status")
		return
	}

	httperrors.Write(w, http.StatusOK, dto.PurchaseStatusResponse{
		PurchaseID:       result.PurchaseID,
		Status:           result.Status,
		EntitlementToken: result.EntitlementToken,
	})
}

func (h *PurchaseHandler) handlePaymentError(w http.ResponseWriter, err error, op string) {
	switch {
	case errors.Is(err, paysvc.ErrValidation):
		writeBadRequest(w, "VALIDATION_ERROR", "request validation failed")
	case errors.Is(err, paysvc.ErrPurchaseNotFound):
		writeNotFound(w, "PURCHASE_NOT_FOUND", "purchase not found")
	case errors.Is(err, paysvc.ErrGameNotFound):
		writeNotFound(w, "GAME_NOT_FOUND", "game not found")
	case errors.Is(err, paysvc.ErrCredentialsMissing):
		httperrors.Write(w, http.StatusConflict, httperrors.APIError{
			Code:    "SELLER_NOT_PAYABLE",
			Message: "seller has no payable destination",
		})
	case errors.Is(err, paysvc.ErrNotPayable):
		writeBadRequest(w, "PURCHASE_NOT_PAYABLE", "purchase is not payable")
	case errors.Is(err, paysvc.ErrProcessorDeclined):
		writeBadRequest(w, "PAYMENT_DECLINED", "payment was declined")
	case errors.Is(err, paysvc.ErrProcessorUnavailable):
		httperrors.Write(w, http.StatusBadGateway, httperrors.APIError{
			Code:    "PROCESSOR_UNAVAILABLE",
			Message: "payment processor is unavailable, retry later",
		})
	case errors.Is(err, ledgersvc.ErrLedgerInconsistency):
		h.logger.Error("ledger inconsistency surfaced to transport", zap.String("op", op), zap.Error(err))
		writeInternal(w, "LEDGER_INCONSISTENCY", "purchase could not be settled")
	default:
		h.logger.Error("unhandled payments error", zap.String("op", op), zap.Error(err))
		writeInternal(w, "INTERNAL_ERROR", "internal server error")
	}
}

func decodeJSON(r *http.Request, target any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(target)
}

func writeBadRequest(w http.ResponseWriter, code, message string) {
	httperrors.Write(w, http.StatusBadRequest, httperrors.APIError{Code: code, Message: message})
}

func writeNotFound(w http.ResponseWriter, code, message string) {
	httperrors.Write(w, http.StatusNotFound, httperrors.APIError{Code: code, Message: message})
}

func writeInternal(w http.ResponseWriter, code, message string) {
	httperrors.Write(w, http.StatusInternalServerError, httperrors.APIError{Code: code, Message: message})
}
