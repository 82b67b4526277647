package provider

import (
	"strings"

	"github.com/mstgnz/oxipay/checkout"
	"github.com/shopspring/decimal"
)

// RejectReason identifies why a session may not use this payment method
type RejectReason string

const (
	RejectNone                RejectReason = ""
	RejectAmountBelowMinimum  RejectReason = "amount_below_minimum"
	RejectCountryCurrency     RejectReason = "country_currency_not_supported"
	RejectShippingDestination RejectReason = "shipping_destination_not_supported"
)

var rejectMessages = map[RejectReason]string{
	RejectAmountBelowMinimum:  "Oxipay doesn't support purchases less than $20.",
	RejectCountryCurrency:     "Orders from this country are not supported by Oxipay. Please select a different payment option.",
	RejectShippingDestination: "Orders shipped to this country are not supported by Oxipay. Please select a different payment option.",
}

// MinimumAmount is the smallest total the gateway accepts
var MinimumAmount = decimal.NewFromInt(20)

var countryCurrencies = map[string]string{
	"AU": "AUD",
	"NZ": "NZD",
}

// CurrencyForCountry returns the only currency accepted for a configured country
func CurrencyForCountry(country string) (string, bool) {
	c, ok := countryCurrencies[strings.ToUpper(country)]
	return c, ok
}

// Eligibility is the outcome of the pre-flight check
type Eligibility struct {
	Reason RejectReason
}

// OK reports whether the session passed every rule
func (e Eligibility) OK() bool {
	return e.Reason == RejectNone
}

// Message returns the shopper-facing text for a rejection
func (e Eligibility) Message() string {
	return rejectMessages[e.Reason]
}

// EligibilityGate decides whether a session qualifies for the gateway
type EligibilityGate struct {
	configuredCountry string
}

// NewEligibilityGate creates a gate for the store's configured country
func NewEligibilityGate(configuredCountry string) *EligibilityGate {
	return &EligibilityGate{configuredCountry: strings.ToUpper(strings.TrimSpace(configuredCountry))}
}

// Check evaluates the rules in order. The first failing rule wins.
func (g *EligibilityGate) Check(session *checkout.PendingSession) Eligibility {
	if session.TotalDue.LessThan(MinimumAmount) {
		return Eligibility{Reason: RejectAmountBelowMinimum}
	}

	currency, ok := CurrencyForCountry(g.configuredCountry)
	if !ok || g.configuredCountry == "" ||
		!strings.EqualFold(session.Billing.Country, g.configuredCountry) ||
		!strings.EqualFold(session.Currency, currency) {
		return Eligibility{Reason: RejectCountryCurrency}
	}

	if !session.IsVirtual {
		if session.Shipping == nil || !strings.EqualFold(session.Shipping.Country, g.configuredCountry) {
			return Eligibility{Reason: RejectShippingDestination}
		}
	}

	return Eligibility{}
}
