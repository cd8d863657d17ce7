package repository

import (
	"errors"
	"strings"

	"github.com/Fi44er/cashier_bot/utils"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrAccountNotFound       = errors.New("account not found")
	ErrInsufficientFunds     = errors.New("insufficient wallet balance")
	ErrReferrerAlreadySet    = errors.New("referrer already set")
	ErrSelfReferral          = errors.New("account cannot refer itself")
	ErrGiftCodeInvalid       = errors.New("gift code is invalid")
	ErrGiftCodeExhausted     = errors.New("gift code is exhausted")
	ErrGiftCodeAlreadyUsed   = errors.New("gift code already used by this account")
	ErrGiftCodeExists        = errors.New("gift code already exists")
	ErrTransactionNotFound   = errors.New("transaction not found")
	ErrTransactionNotPending = errors.New("transaction is not pending")
)

type Repository struct {
	db     *gorm.DB
	logger *utils.Logger
}

func NewRepository(db *gorm.DB, logger *utils.Logger) *Repository {
	return &Repository{db: db, logger: logger}
}

// forUpdate locks selected rows until the surrounding transaction ends.
func forUpdate(tx *gorm.DB) *gorm.DB {
	return tx.Clauses(clause.Locking{Strength: "UPDATE"})
}

// isUniqueViolation recognizes duplicate-key failures from postgres and sqlite.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
