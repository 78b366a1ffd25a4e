package dto

type PurchaseCreateRequest struct {
	GameID      string `json:"game_id"`
	ViewerID    string `json:"viewer_id"`
	AmountCents int64  `json:"amount_cents"`
	Currency    string `json:"currency,omitempty"`
}

type PurchaseCreateResponse struct {
	PurchaseID        string `json:"purchase_id"`
	GameID            string `json:"game_id"`
	AmountCents       int64  `json:"amount_cents"`
	Currency          string `json:"currency"`
	PlatformFeeCents  int64  `json:"platform_fee_cents"`
	ProcessorFeeCents int64  `json:"processor_fee_cents"`
	OwnerNetCents     int64  `json:"owner_net_cents"`
	Status            string `json:"status"`
}

type PurchaseProcessRequest struct {
	SourceToken string `json:"source_token"`
}

type PurchaseProcessResponse struct {
	PurchaseID       string `json:"purchase_id"`
	Status           string `json:"status"`
	EntitlementToken string `json:"entitlement_token,omitempty"`
}

type PurchaseStatusResponse struct {
	PurchaseID       string `json:"purchase_id"`
	Status           string `json:"status"`
	EntitlementToken string `json:"entitlement_token,omitempty"`
}
