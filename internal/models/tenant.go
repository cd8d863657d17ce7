package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PaymentMethod описывает способ пополнения/вывода кошелька бота.
type PaymentMethod struct {
	Code            string          `json:"code"`
	Title           string          `json:"title"`
	Crypto          bool            `json:"crypto"`
	DepositEnabled  bool            `json:"deposit_enabled"`
	WithdrawEnabled bool            `json:"withdraw_enabled"`
	MinDeposit      decimal.Decimal `json:"min_deposit"`
	MaxDeposit      decimal.Decimal `json:"max_deposit"`
	MinWithdraw     decimal.Decimal `json:"min_withdraw"`
	MaxWithdraw     decimal.Decimal `json:"max_withdraw"`
	Details         string          `json:"details"` // реквизиты, которые видит пользователь
}

// TenantConfig is the persisted per-tenant configuration row.
type TenantConfig struct {
	TenantID string `gorm:"primaryKey;size:64" json:"tenant_id"`
	Paused   bool   `gorm:"not null;default:false" json:"paused"`

	ExchangeRate     decimal.Decimal `gorm:"type:numeric(20,8);not null" json:"exchange_rate"`
	ReferralPercent1 decimal.Decimal `gorm:"type:numeric(5,2);not null" json:"referral_percent_1"`
	ReferralPercent2 decimal.Decimal `gorm:"type:numeric(5,2);not null" json:"referral_percent_2"`
	ReferralPercent3 decimal.Decimal `gorm:"type:numeric(5,2);not null" json:"referral_percent_3"`
	MinWithdrawal    decimal.Decimal `gorm:"type:numeric(20,2);not null" json:"min_withdrawal"`

	Methods []PaymentMethod `gorm:"serializer:json;type:text" json:"methods"`

	AgentLogin        string `gorm:"size:128" json:"agent_login"`
	AgentPassword     string `gorm:"size:128" json:"-"`
	ParentID          string `gorm:"size:64" json:"parent_id"`
	CurrencyCode      int    `gorm:"not null;default:0" json:"currency_code"`
	MoneyStatus       int    `gorm:"not null;default:0" json:"money_status"`
	SessionTTLSeconds int    `gorm:"not null;default:0" json:"session_ttl_seconds"`
	EmailDomain       string `gorm:"size:128" json:"email_domain"`

	UpdatedAt time.Time `json:"updated_at"`
}
