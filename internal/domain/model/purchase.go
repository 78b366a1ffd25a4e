package model

import (
	"time"

	"github.com/YOLOVibeCode/fieldview-live-sub002/internal/domain/enums"
)

type Purchase struct {
	ID                  string               `json:"id"`
	GameID              string               `json:"game_id"`
	ViewerID            string               `json:"viewer_id"`
	AmountCents         int64                `json:"amount_cents"`
	Currency            string               `json:"currency"`
	PlatformFeeCents    int64                `json:"platform_fee_cents"`
	ProcessorFeeCents   int64                `json:"processor_fee_cents"`
	OwnerNetCents       int64                `json:"owner_net_cents"`
	Status              enums.PurchaseStatus `json:"status"`
	ProviderPaymentID   *string              `json:"provider_payment_id,omitempty"`
	NeedsReconciliation bool                 `json:"needs_reconciliation"`
	CreatedAt           time.Time            `json:"created_at"`
	PaidAt              *time.Time           `json:"paid_at,omitempty"`
	FailedAt            *time.Time           `json:"failed_at,omitempty"`
}
