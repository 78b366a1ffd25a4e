package processor

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestChargeApproved(t *testing.T) {
	var gotIdempotencyKey string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v2/payments" {
			t.Fatalf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer sq-token" {
			t.Fatalf("unexpected authorization header: %q", r.Header.Get("Authorization"))
		}

		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode request body: %v", err)
		}
		gotIdempotencyKey, _ = body["idempotency_key"].(string)

		_ = json.NewEncoder(w).Encode(map[string]any{
			"payment": map[string]any{
				"id":     "pay-1",
				"status": "COMPLETED",
				"processing_fee": map[string]any{
					"amount_cents": 62,
				},
			},
		})
	}))
	defer server.Close()

	client := NewClient(server.URL, 5*time.Second)
	result, err := client.Charge(context.Background(), ChargeRequest{
		SourceToken:         "src-1",
		AmountCents:         1000,
		Currency:            "usd",
		IdempotencyKey:      "purchase-1",
		MerchantAccessToken: "sq-token",
		MerchantLocationID:  "loc-1",
	})
	if err != nil {
		t.Fatalf("charge: %v", err)
	}
	if !result.Approved {
		t.Fatalf("expected approved result")
	}
	if result.PaymentID != "pay-1" {
		t.Fatalf("unexpected payment id: %s", result.PaymentID)
	}
	if result.ProcessorFeeCents != 62 {
		t.Fatalf("unexpected processor fee: %d", result.ProcessorFeeCents)
	}
	if gotIdempotencyKey != "purchase-1" {
		t.Fatalf("idempotency key not forwarded: %q", gotIdempotencyKey)
	}
}

func TestChargeDeclinedIsNotAnError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusPaymentRequired)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"payment": map[string]any{
				"id":             "pay-2",
				"status":         "FAILED",
				"decline_reason": "card_declined",
			},
		})
	}))
	defer server.Close()

	client := NewClient(server.URL, 5*time.Second)
	result, err := client.Charge(context.Background(), ChargeRequest{
		SourceToken:         "src-1",
		AmountCents:         500,
		Currency:            "USD",
		IdempotencyKey:      "purchase-2",
		MerchantAccessToken: "sq-token",
	})
	if err != nil {
		t.Fatalf("declined charge must not error: %v", err)
	}
	if result.Approved {
		t.Fatalf("expected declined result")
	}
	if result.DeclineReason != "card_declined" {
		t.Fatalf("unexpected decline reason: %q", result.DeclineReason)
	}
}

func TestChargeServerErrorMapsToUnavailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client := NewClient(server.URL, 5*time.Second)
	_, err := client.Charge(context.Background(), ChargeRequest{
		SourceToken:         "src-1",
		AmountCents:         500,
		Currency:            "USD",
		IdempotencyKey:      "purchase-3",
		MerchantAccessToken: "sq-token",
	})
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

func TestLookupPaymentNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client := NewClient(server.URL, 5*time.Second)
	_, found, err := client.LookupPayment(context.Background(), "sq-token", "purchase-9")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if found {
		t.Fatalf("expected not found")
	}
}

func TestLookupPaymentFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("idempotency_key") != "purchase-4" {
			t.Fatalf("unexpected idempotency key: %q", r.URL.Query().Get("idempotency_key"))
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"payments": []map[string]any{
				{
					"id":     "pay-4",
					"status": "COMPLETED",
					"processing_fee": map[string]any{
						"amount_cents": 44,
					},
				},
			},
		})
	}))
	defer server.Close()

	client := NewClient(server.URL, 5*time.Second)
	result, found, err := client.LookupPayment(context.Background(), "sq-token", "purchase-4")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if !found {
		t.Fatalf("expected payment to be found")
	}
	if result.PaymentID != "pay-4" || !result.Approved {
		t.Fatalf("unexpected lookup result: %+v", result)
	}
}
