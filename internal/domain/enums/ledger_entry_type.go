package enums

type LedgerEntryType string

const (
	LedgerEntryTypeCharge                    LedgerEntryType = "charge"
	LedgerEntryTypePlatformFee               LedgerEntryType = "platform_fee"
	LedgerEntryTypeProcessorFee              LedgerEntryType = "processor_fee"
	LedgerEntryTypeRefund                    LedgerEntryType = "refund"
	LedgerEntryTypeRefundPlatformFeeReversal LedgerEntryType = "refund_platform_fee_reversal"
)
