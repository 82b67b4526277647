package provider

import (
	"net/url"
	"strings"
)

// Wire field names, in the order the gateway expects them
const (
	FieldCurrency         = "x_currency"
	FieldURLCallback      = "x_url_callback"
	FieldURLComplete      = "x_url_complete"
	FieldURLCancel        = "x_url_cancel"
	FieldShopName         = "x_shop_name"
	FieldAccountID        = "x_account_id"
	FieldReference        = "x_reference"
	FieldInvoice          = "x_invoice"
	FieldAmount           = "x_amount"
	FieldFirstName        = "x_customer_first_name"
	FieldLastName         = "x_customer_last_name"
	FieldEmail            = "x_customer_email"
	FieldPhone            = "x_customer_phone"
	FieldBillingAddress1  = "x_customer_billing_address1"
	FieldBillingAddress2  = "x_customer_billing_address2"
	FieldBillingCity      = "x_customer_billing_city"
	FieldBillingState     = "x_customer_billing_state"
	FieldBillingZip       = "x_customer_billing_zip"
	FieldShippingAddress1 = "x_customer_shipping_address1"
	FieldShippingAddress2 = "x_customer_shipping_address2"
	FieldShippingCity     = "x_customer_shipping_city"
	FieldShippingState    = "x_customer_shipping_state"
	FieldShippingZip      = "x_customer_shipping_zip"
	FieldTest             = "x_test"
	FieldSignature        = "x_signature"
	FieldResult           = "x_result"
	FieldGatewayReference = "x_gateway_reference"
	CancelFieldOrderID    = "orderId"
	CancelFieldAmount     = "amount"
	CancelFieldEmail      = "email"
	CancelFieldFirstName  = "firstname"
	CancelFieldLastName   = "lastname"
	CancelFieldSignature  = "signature"
	signedFieldPrefix     = "x_"
	resultCompleted       = "completed"
	resultFailed          = "failed"
	lineBreakReplacement  = " "
	lineBreak             = "\n"
)

// PayloadFieldOrder is the canonical outbound field order. The signature is always last.
var PayloadFieldOrder = []string{
	FieldCurrency, FieldURLCallback, FieldURLComplete, FieldURLCancel, FieldShopName,
	FieldAccountID, FieldReference, FieldInvoice, FieldAmount,
	FieldFirstName, FieldLastName, FieldEmail, FieldPhone,
	FieldBillingAddress1, FieldBillingAddress2, FieldBillingCity, FieldBillingState, FieldBillingZip,
	FieldShippingAddress1, FieldShippingAddress2, FieldShippingCity, FieldShippingState, FieldShippingZip,
	FieldTest, FieldSignature,
}

// Fields is a string map that remembers insertion order
type Fields struct {
	keys   []string
	values map[string]string
}

// NewFields creates an empty field set
func NewFields() *Fields {
	return &Fields{values: make(map[string]string)}
}

// FieldsFromPairs builds a field set from alternating key, value arguments
func FieldsFromPairs(kv ...string) *Fields {
	f := NewFields()
	for i := 0; i+1 < len(kv); i += 2 {
		f.Set(kv[i], kv[i+1])
	}
	return f
}

// Set stores a value. Overwriting keeps the key's original position.
func (f *Fields) Set(key, value string) {
	if _, ok := f.values[key]; !ok {
		f.keys = append(f.keys, key)
	}
	f.values[key] = value
}

// Get returns the value for key, or "" when absent
func (f *Fields) Get(key string) string {
	return f.values[key]
}

// Lookup returns the value for key and whether it was present
func (f *Fields) Lookup(key string) (string, bool) {
	v, ok := f.values[key]
	return v, ok
}

// Keys returns the keys in insertion order
func (f *Fields) Keys() []string {
	out := make([]string, len(f.keys))
	copy(out, f.keys)
	return out
}

// Len returns the number of fields
func (f *Fields) Len() int {
	return len(f.keys)
}

// Without returns a copy of the field set minus the given keys
func (f *Fields) Without(keys ...string) *Fields {
	skip := make(map[string]bool, len(keys))
	for _, k := range keys {
		skip[k] = true
	}
	out := NewFields()
	for _, k := range f.keys {
		if !skip[k] {
			out.Set(k, f.values[k])
		}
	}
	return out
}

// Map returns the fields as a plain map
func (f *Fields) Map() map[string]string {
	out := make(map[string]string, len(f.keys))
	for k, v := range f.values {
		out[k] = v
	}
	return out
}

// Encode renders the fields as a query string, keeping field order
func (f *Fields) Encode() string {
	var sb strings.Builder
	for i, k := range f.keys {
		if i > 0 {
			sb.WriteByte('&')
		}
		sb.WriteString(url.QueryEscape(k))
		sb.WriteByte('=')
		sb.WriteString(url.QueryEscape(f.values[k]))
	}
	return sb.String()
}

// ParseQuery parses a raw query or form body, keeping wire order. The first value of a repeated key wins.
func ParseQuery(raw string) (*Fields, error) {
	f := NewFields()
	for raw != "" {
		var pair string
		pair, raw, _ = strings.Cut(raw, "&")
		if pair == "" {
			continue
		}
		k, v, _ := strings.Cut(pair, "=")
		key, err := url.QueryUnescape(k)
		if err != nil {
			return nil, err
		}
		value, err := url.QueryUnescape(v)
		if err != nil {
			return nil, err
		}
		if _, exists := f.values[key]; exists {
			continue
		}
		f.Set(key, value)
	}
	return f, nil
}

// NormalizeValue replaces embedded line breaks with a single space
func NormalizeValue(v string) string {
	v = strings.ReplaceAll(v, "\r\n", lineBreakReplacement)
	v = strings.ReplaceAll(v, "\r", lineBreakReplacement)
	return strings.ReplaceAll(v, lineBreak, lineBreakReplacement)
}
