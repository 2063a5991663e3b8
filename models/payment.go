package models

import (
	"strings"
	"time"
)

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentHeld      PaymentStatus = "held"
	PaymentSucceeded PaymentStatus = "succeeded"
	PaymentReleased  PaymentStatus = "released"
	PaymentRefunded  PaymentStatus = "refunded"
	PaymentFailed    PaymentStatus = "failed"
)

// IsSettled reports whether funds are captured or held for the booking.
func (s PaymentStatus) IsSettled() bool {
	return s == PaymentSucceeded || s == PaymentHeld
}

type PaymentMethod string

const (
	MethodCard         PaymentMethod = "card"
	MethodCash         PaymentMethod = "cash"
	MethodMTNMomo      PaymentMethod = "mtnMomo"
	MethodOrangeMomo   PaymentMethod = "orangeMomo"
	MethodBankTransfer PaymentMethod = "bankTransfer"
)

func (m PaymentMethod) IsValid() bool {
	switch m {
	case MethodCard, MethodCash, MethodMTNMomo, MethodOrangeMomo, MethodBankTransfer:
		return true
	}
	return false
}

type Currency string

const (
	CurrencyXAF Currency = "XAF"
	CurrencyUSD Currency = "USD"
	CurrencyEUR Currency = "EUR"
)

func (c Currency) IsValid() bool {
	switch c {
	case CurrencyXAF, CurrencyUSD, CurrencyEUR:
		return true
	}
	return false
}

// ParseCurrency accepts any casing ("usd", "USD").
func ParseCurrency(s string) Currency {
	return Currency(strings.ToUpper(strings.TrimSpace(s)))
}

// ZeroDecimal reports currencies whose gateway amount is expressed in whole units.
func (c Currency) ZeroDecimal() bool {
	return c == CurrencyXAF
}

// Payment is the escrow bookkeeping embedded in a booking.
type Payment struct {
	SessionID string        `bson:"session_id,omitempty" json:"sessionId,omitempty"`
	Method    PaymentMethod `bson:"method" json:"method"`
	Amount    float64       `bson:"amount" json:"amount"`
	Currency  Currency      `bson:"currency" json:"currency"`
	Status    PaymentStatus `bson:"status" json:"status"`
	UpdatedAt time.Time     `bson:"updated_at" json:"updatedAt"`
}

// PaymentSession is the handle returned to the caller for the gateway's embedded checkout.
type PaymentSession struct {
	SessionID    string `json:"sessionId"`
	ClientSecret string `json:"clientSecret,omitempty"`
}
