package core

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	Cash         PaymentMethod = "cash"
	Card         PaymentMethod = "card"
	UPI          PaymentMethod = "upi"
	BankTransfer PaymentMethod = "bank_transfer"
)

type (
	PaymentMethod string

	// Expense is a single spending transaction owned by exactly one user.
	// Records are immutable once the store has assigned ID and timestamps.
	Expense struct {
		ID            string
		UserID        string
		Amount        decimal.Decimal
		Category      string
		Description   string
		Date          time.Time // when the spending happened, not when it was recorded
		PaymentMethod PaymentMethod
		Tags          []string
		CreatedAt     time.Time
		UpdatedAt     time.Time
	}

	// NewExpense is the user-supplied part of an expense, before the store
	// assigns identity and timestamps.
	NewExpense struct {
		Amount        decimal.Decimal
		Category      string
		Description   string
		Date          time.Time
		PaymentMethod PaymentMethod
		Tags          []string
	}

	User struct {
		ID           string
		Email        string
		DisplayName  string
		PasswordHash string
		CreatedAt    time.Time
		UpdatedAt    time.Time
	}
)

const MaxDescriptionLen = 200

var (
	ErrInvalidAmount        = errors.New("invalid amount")
	ErrEmptyDescription     = errors.New("empty description")
	ErrDescriptionTooLong   = errors.New("description too long (max 200 characters)")
	ErrEmptyCategory        = errors.New("empty category")
	ErrUnknownCategory      = errors.New("unknown category")
	ErrInvalidPaymentMethod = errors.New("invalid payment method")
	ErrZeroDate             = errors.New("date cannot be zero")
	ErrMissingUser          = errors.New("expense must belong to a user")
)

// IsValidationError reports whether err is one of the expense validation errors.
func IsValidationError(err error) bool {
	for _, target := range []error{
		ErrInvalidAmount, ErrEmptyDescription, ErrDescriptionTooLong, ErrEmptyCategory,
		ErrUnknownCategory, ErrInvalidPaymentMethod, ErrZeroDate, ErrMissingUser,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// PaymentMethods lists the accepted payment methods in display order.
func PaymentMethods() []PaymentMethod {
	return []PaymentMethod{Card, UPI, Cash, BankTransfer}
}

func (p PaymentMethod) Valid() bool {
	switch p {
	case Cash, Card, UPI, BankTransfer:
		return true
	}
	return false
}

// Label returns the human readable name used by the expense form.
func (p PaymentMethod) Label() string {
	switch p {
	case Card:
		return "Credit/Debit Card"
	case UPI:
		return "UPI"
	case Cash:
		return "Cash"
	case BankTransfer:
		return "Bank Transfer"
	}
	return string(p)
}

func ParsePaymentMethod(s string) (PaymentMethod, error) {
	p := PaymentMethod(strings.ToLower(strings.TrimSpace(s)))
	if p == "" {
		return Card, nil
	}
	if !p.Valid() {
		return "", ErrInvalidPaymentMethod
	}
	return p, nil
}

func (n NewExpense) Validate() error {
	if n.Date.IsZero() {
		return ErrZeroDate
	}
	if n.Amount.IsNegative() {
		return ErrInvalidAmount
	}
	if strings.TrimSpace(n.Category) == "" {
		return ErrEmptyCategory
	}
	if strings.TrimSpace(n.Description) == "" {
		return ErrEmptyDescription
	}
	if len(n.Description) > MaxDescriptionLen {
		return ErrDescriptionTooLong
	}
	if !n.PaymentMethod.Valid() {
		return ErrInvalidPaymentMethod
	}
	return nil
}

func (e Expense) Validate() error {
	if strings.TrimSpace(e.UserID) == "" {
		return ErrMissingUser
	}
	return NewExpense{
		Amount:        e.Amount,
		Category:      e.Category,
		Description:   e.Description,
		Date:          e.Date,
		PaymentMethod: e.PaymentMethod,
		Tags:          e.Tags,
	}.Validate()
}

// ParseTags splits a comma separated list, trimming blanks and dropping empties.
func ParseTags(s string) []string {
	var out []string
	for _, t := range strings.Split(s, ",") {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		out = append(out, t)
	}
	return out
}
