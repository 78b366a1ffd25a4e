package model

import (
	"time"

	"github.com/YOLOVibeCode/fieldview-live-sub002/internal/domain/enums"
)

type Entitlement struct {
	TokenID    string                  `json:"token_id"`
	PurchaseID string                  `json:"purchase_id"`
	GameID     string                  `json:"game_id"`
	Status     enums.EntitlementStatus `json:"status"`
	CreatedAt  time.Time               `json:"created_at"`
	RevokedAt  *time.Time              `json:"revoked_at,omitempty"`
}
