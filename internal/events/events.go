package events

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	TransactionCreated        = "transaction.created"
	TransactionConfirmed      = "transaction.confirmed"
	TransactionRejected       = "transaction.rejected"
	GiftCodeRedeemed          = "giftcode.redeemed"
	ReferralAccrued           = "referral.accrued"
	ReferralSettled           = "referral.settled"
	PlatformAccountRegistered = "platform.account.registered"
	PlatformTransferFailed    = "platform.transfer.failed"
)

type TransactionEvent struct {
	TenantID  string          `json:"tenant_id"`
	ID        uint            `json:"id"`
	Reference string          `json:"reference"`
	AccountID uint            `json:"account_id"`
	Direction string          `json:"direction"`
	Method    string          `json:"method"`
	Amount    decimal.Decimal `json:"amount"`
	Status    string          `json:"status"`
	At        time.Time       `json:"at"`
}

type GiftCodeEvent struct {
	TenantID  string          `json:"tenant_id"`
	Code      string          `json:"code"`
	AccountID uint            `json:"account_id"`
	Amount    decimal.Decimal `json:"amount"`
	At        time.Time       `json:"at"`
}

type ReferralEvent struct {
	TenantID string          `json:"tenant_id"`
	Records  int             `json:"records"`
	Earners  int             `json:"earners"`
	Amount   decimal.Decimal `json:"amount"`
	At       time.Time       `json:"at"`
}

type PlatformAccountEvent struct {
	TenantID   string    `json:"tenant_id"`
	AccountID  uint      `json:"account_id"`
	Login      string    `json:"login"`
	PlatformID string    `json:"platform_id"`
	At         time.Time `json:"at"`
}
