package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Account struct {
	ID         uint   `gorm:"primaryKey" json:"id"`
	TenantID   string `gorm:"size:64;not null;uniqueIndex:idx_accounts_tenant_telegram" json:"tenant_id"`
	TelegramID int64  `gorm:"not null;uniqueIndex:idx_accounts_tenant_telegram" json:"telegram_id"`
	Username   string `gorm:"size:64" json:"username"`

	Balance         decimal.Decimal `gorm:"type:numeric(20,2);not null;default:0" json:"balance"`
	BonusBalance    decimal.Decimal `gorm:"type:numeric(20,2);not null;default:0" json:"bonus_balance"`
	ReferralBalance decimal.Decimal `gorm:"type:numeric(20,2);not null;default:0" json:"referral_balance"`

	// ReferrerID устанавливается один раз, при первом переходе по реферальной ссылке.
	ReferrerID *uint `gorm:"index" json:"referrer_id"`

	PlatformLogin     *string `gorm:"type:text" json:"platform_login"`
	PlatformAccountID *string `gorm:"size:64" json:"platform_account_id"`

	IsAdmin   bool      `gorm:"-" json:"is_admin"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (a *Account) HasPlatformAccount() bool {
	return a.PlatformAccountID != nil && *a.PlatformAccountID != ""
}

type GiftCode struct {
	ID              uint            `gorm:"primaryKey" json:"id"`
	TenantID        string          `gorm:"size:64;not null;uniqueIndex:idx_gift_codes_tenant_code" json:"tenant_id"`
	Code            string          `gorm:"size:64;not null;uniqueIndex:idx_gift_codes_tenant_code" json:"code"` // хранится в верхнем регистре
	Amount          decimal.Decimal `gorm:"type:numeric(20,2);not null" json:"amount"`
	ExpiresAt       *time.Time      `json:"expires_at"`
	MaxRedemptions  *int            `json:"max_redemptions"`
	RedemptionCount int             `gorm:"not null;default:0" json:"redemption_count"`
	CreatedAt       time.Time       `json:"created_at"`

	Redemptions []GiftCodeRedemption `gorm:"foreignKey:GiftCodeID;constraint:OnDelete:CASCADE" json:"-"`
}

type GiftCodeRedemption struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	GiftCodeID uint      `gorm:"not null;uniqueIndex:idx_redemptions_code_account" json:"gift_code_id"`
	AccountID  uint      `gorm:"not null;uniqueIndex:idx_redemptions_code_account" json:"account_id"`
	CreatedAt  time.Time `json:"created_at"`
}

type ReferralEarning struct {
	ID              uint            `gorm:"primaryKey" json:"id"`
	TenantID        string          `gorm:"size:64;not null;index" json:"tenant_id"`
	EarnerID        uint            `gorm:"not null;index" json:"earner_id"`
	SourceAccountID uint            `gorm:"not null;index" json:"source_account_id"`
	Level           int             `gorm:"not null" json:"level"`
	SourceAmount    decimal.Decimal `gorm:"type:numeric(20,2);not null" json:"source_amount"`
	Percent         decimal.Decimal `gorm:"type:numeric(5,2);not null" json:"percent"`
	Commission      decimal.Decimal `gorm:"type:numeric(20,2);not null" json:"commission"`
	CreatedAt       time.Time       `gorm:"index" json:"created_at"`
	DistributedAt   *time.Time      `gorm:"index" json:"distributed_at"`
}

type TransactionDirection string

// Направление считается относительно кошелька бота.
const (
	DirectionDeposit    TransactionDirection = "deposit"
	DirectionWithdrawal TransactionDirection = "withdrawal"
)

type TransactionStatus string

const (
	StatusPending   TransactionStatus = "pending"
	StatusConfirmed TransactionStatus = "confirmed"
	StatusRejected  TransactionStatus = "rejected"
)

// MethodPlatform marks automated moves between the bot wallet and the betting platform.
const MethodPlatform = "platform"

type Transaction struct {
	ID          uint                 `gorm:"primaryKey" json:"id"`
	TenantID    string               `gorm:"size:64;not null;index" json:"tenant_id"`
	AccountID   uint                 `gorm:"not null;index" json:"account_id"`
	Direction   TransactionDirection `gorm:"size:16;not null" json:"direction"`
	Amount      decimal.Decimal      `gorm:"type:numeric(20,2);not null" json:"amount"`
	Method      string               `gorm:"size:32;not null" json:"method"`
	Reference   string               `gorm:"size:36;not null;uniqueIndex" json:"reference"`
	ExternalRef *string              `gorm:"size:128" json:"external_ref"`
	Destination string               `gorm:"size:128" json:"destination"`
	Status      TransactionStatus    `gorm:"size:16;not null;default:pending;index" json:"status"`
	CreatedAt   time.Time            `json:"created_at"`
	UpdatedAt   time.Time            `json:"updated_at"`

	Account *Account `gorm:"foreignKey:AccountID" json:"account,omitempty"`
}
