package provider

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/mstgnz/oxipay/checkout"
)

// URLs are the merchant endpoints the gateway sends the shopper and callbacks to
type URLs struct {
	Callback string `validate:"required,url"`
	Complete string `validate:"required,url"`
	Cancel   string `validate:"required,url"`
}

// MerchantSettings is the explicit merchant configuration used to build payloads
type MerchantSettings struct {
	APIKey         string
	MerchantNumber string
	ShopName       string
	TestMode       bool
}

// PayloadBuilder builds the signed form posted to the gateway checkout page
type PayloadBuilder struct {
	codec    Codec
	validate *validator.Validate
	shopName string
	testMode bool
}

// NewPayloadBuilder creates a builder. Outbound payloads are always signed in insertion order.
func NewPayloadBuilder(validate *validator.Validate, shopName string, testMode bool) *PayloadBuilder {
	if validate == nil {
		validate = validator.New()
	}
	return &PayloadBuilder{
		codec:    NewCodec(BaseInsertion),
		validate: validate,
		shopName: shopName,
		testMode: testMode,
	}
}

// Build returns the full outbound payload for session with x_signature as the final field
func (b *PayloadBuilder) Build(session *checkout.PendingSession, urls URLs, accountID, secret string) (*Fields, error) {
	if session == nil {
		return nil, errors.New("provider: session is required")
	}
	if secret == "" {
		return nil, errors.New("provider: api key is required")
	}
	if err := b.validate.Struct(session); err != nil {
		return nil, fmt.Errorf("provider: invalid session: %w", err)
	}
	if err := b.validate.Struct(urls); err != nil {
		return nil, fmt.Errorf("provider: invalid urls: %w", err)
	}

	cancelURL := b.CancelURL(session, urls.Cancel, secret)

	billing1, billing2 := SplitStreet(session.Billing.Street)
	var shipping1, shipping2, shippingCity, shippingRegion, shippingPostcode string
	if session.Shipping != nil {
		shipping1, shipping2 = SplitStreet(session.Shipping.Street)
		shippingCity = session.Shipping.City
		shippingRegion = session.Shipping.Region
		shippingPostcode = session.Shipping.Postcode
	}

	phone := session.Billing.Telephone
	if phone == "" {
		phone = session.Customer.Phone
	}

	fields := NewFields()
	set := func(key, value string) {
		fields.Set(key, NormalizeValue(value))
	}
	set(FieldCurrency, session.Currency)
	set(FieldURLCallback, urls.Callback)
	set(FieldURLComplete, urls.Complete)
	set(FieldURLCancel, cancelURL)
	set(FieldShopName, b.shopName)
	set(FieldAccountID, accountID)
	set(FieldReference, session.ID)
	set(FieldInvoice, session.ID)
	set(FieldAmount, session.TotalDue.StringFixed(2))
	set(FieldFirstName, session.Customer.FirstName)
	set(FieldLastName, session.Customer.LastName)
	set(FieldEmail, session.Customer.Email)
	set(FieldPhone, phone)
	set(FieldBillingAddress1, billing1)
	set(FieldBillingAddress2, billing2)
	set(FieldBillingCity, session.Billing.City)
	set(FieldBillingState, session.Billing.Region)
	set(FieldBillingZip, session.Billing.Postcode)
	set(FieldShippingAddress1, shipping1)
	set(FieldShippingAddress2, shipping2)
	set(FieldShippingCity, shippingCity)
	set(FieldShippingState, shippingRegion)
	set(FieldShippingZip, shippingPostcode)
	set(FieldTest, strconv.FormatBool(b.testMode))

	fields.Set(FieldSignature, b.codec.Sign(fields, secret))
	return fields, nil
}

// CancelFields returns the reduced field set covered by the cancel signature
func CancelFields(session *checkout.PendingSession) *Fields {
	return FieldsFromPairs(
		CancelFieldOrderID, session.OrderReference(),
		CancelFieldAmount, session.TotalDue.StringFixed(2),
		CancelFieldEmail, session.Customer.Email,
		CancelFieldFirstName, session.Customer.FirstName,
		CancelFieldLastName, session.Customer.LastName,
	)
}

// CancelURL returns base with the signed cancel query appended
func (b *PayloadBuilder) CancelURL(session *checkout.PendingSession, base, secret string) string {
	query := CancelFields(session)
	query.Set(CancelFieldSignature, b.codec.Sign(query, secret))

	sep := "?"
	if strings.Contains(base, "?") {
		sep = "&"
	}
	return base + sep + query.Encode()
}

// VerifyCancel checks the signature on a cancel link. Only the cancel fields are signed.
func VerifyCancel(query *Fields, secret string) bool {
	if query == nil {
		return false
	}
	signed := NewFields()
	for _, k := range []string{CancelFieldOrderID, CancelFieldAmount, CancelFieldEmail, CancelFieldFirstName, CancelFieldLastName} {
		v, ok := query.Lookup(k)
		if !ok {
			return false
		}
		signed.Set(k, v)
	}
	return NewCodec(BaseInsertion).Verify(signed, query.Get(CancelFieldSignature), secret)
}

// SplitStreet splits a multi-line street into at most two display lines
func SplitStreet(street string) (string, string) {
	street = strings.ReplaceAll(street, "\r\n", lineBreak)
	parts := strings.Split(street, lineBreak)
	first := parts[0]
	second := ""
	if len(parts) > 1 {
		second = parts[1]
	}
	return first, second
}
