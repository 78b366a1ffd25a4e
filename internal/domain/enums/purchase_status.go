package enums

type PurchaseStatus string

const (
	PurchaseStatusCreated           PurchaseStatus = "created"
	PurchaseStatusProcessing        PurchaseStatus = "processing"
	PurchaseStatusPaid              PurchaseStatus = "paid"
	PurchaseStatusFailed            PurchaseStatus = "failed"
	PurchaseStatusRefunded          PurchaseStatus = "refunded"
	PurchaseStatusPartiallyRefunded PurchaseStatus = "partially_refunded"
)
