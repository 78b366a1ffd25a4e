package processor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/YOLOVibeCode/fieldview-live-sub002/internal/infra/httpclient"
)

// ErrUnavailable covers timeouts, transport failures and 5xx responses: cases
// where the charge outcome is unknown and a retry with the same idempotency
// key is safe.
var ErrUnavailable = errors.New("payment processor unavailable")

type ChargeRequest struct {
	SourceToken         string
	AmountCents         int64
	Currency            string
	IdempotencyKey      string
	MerchantAccessToken string
	MerchantLocationID  string
}

type ChargeResult struct {
	PaymentID         string
	Approved          bool
	DeclineReason     string
	ProcessorFeeCents int64
}

type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpclient.New(timeout),
	}
}

type paymentPayload struct {
	ID            string `json:"id"`
	Status        string `json:"status"`
	DeclineReason string `json:"decline_reason,omitempty"`
	ProcessingFee struct {
		AmountCents int64 `json:"amount_cents"`
	} `json:"processing_fee"`
}

type chargeResponse struct {
	Payment paymentPayload `json:"payment"`
}

func (c *Client) Charge(ctx context.Context, req ChargeRequest) (ChargeResult, error) {
	if c.baseURL == "" {
		return ChargeResult{}, fmt.Errorf("processor base url is not configured")
	}
	if strings.TrimSpace(req.SourceToken) == "" || strings.TrimSpace(req.IdempotencyKey) == "" || req.AmountCents <= 0 {
		return ChargeResult{}, fmt.Errorf("invalid charge request")
	}

	body, err := json.Marshal(map[string]any{
		"idempotency_key": req.IdempotencyKey,
		"source_id":       req.SourceToken,
		"location_id":     req.MerchantLocationID,
		"amount_money": map[string]any{
			"amount":   req.AmountCents,
			"currency": strings.ToUpper(strings.TrimSpace(req.Currency)),
		},
	})
	if err != nil {
		return ChargeResult{}, fmt.Errorf("marshal charge request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v2/payments", bytes.NewReader(body))
	if err != nil {
		return ChargeResult{}, fmt.Errorf("build charge request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+req.MerchantAccessToken)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return ChargeResult{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode >= http.StatusInternalServerError {
		return ChargeResult{}, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}

	var decoded chargeResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return ChargeResult{}, fmt.Errorf("decode charge response: %w", err)
	}

	return resultFromPayment(decoded.Payment), nil
}

// LookupPayment asks the processor whether a charge with the given idempotency
// key has already gone through. Used before re-charging a reclaimed purchase.
func (c *Client) LookupPayment(ctx context.Context, merchantAccessToken, idempotencyKey string) (ChargeResult, bool, error) {
	if c.baseURL == "" {
		return ChargeResult{}, false, fmt.Errorf("processor base url is not configured")
	}
	if strings.TrimSpace(idempotencyKey) == "" {
		return ChargeResult{}, false, fmt.Errorf("invalid idempotency key")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/v2/payments?idempotency_key="+idempotencyKey, nil)
	if err != nil {
		return ChargeResult{}, false, fmt.Errorf("build lookup request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+merchantAccessToken)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return ChargeResult{}, false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode == http.StatusNotFound {
		return ChargeResult{}, false, nil
	}
	if resp.StatusCode >= http.StatusInternalServerError {
		return ChargeResult{}, false, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}

	var decoded struct {
		Payments []paymentPayload `json:"payments"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return ChargeResult{}, false, fmt.Errorf("decode lookup response: %w", err)
	}
	if len(decoded.Payments) == 0 {
		return ChargeResult{}, false, nil
	}

	return resultFromPayment(decoded.Payments[0]), true, nil
}

func resultFromPayment(p paymentPayload) ChargeResult {
	approved := strings.EqualFold(p.Status, "COMPLETED") || strings.EqualFold(p.Status, "APPROVED")
	return ChargeResult{
		PaymentID:         p.ID,
		Approved:          approved,
		DeclineReason:     p.DeclineReason,
		ProcessorFeeCents: p.ProcessingFee.AmountCents,
	}
}
