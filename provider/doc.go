// Package provider speaks the Oxipay wire protocol: ordered fields, HMAC-SHA256
// signatures, callback classification, the eligibility gate and the outbound
// checkout payload.
//
// # Fields and Signatures
//
// Fields is an ordered string map. The signature is computed over the
// concatenation of key+value for every x_ field except x_signature:
//
//	fields := provider.FieldsFromPairs("x_reference", "Q1", "x_amount", "50.00")
//	sig := provider.Sign(fields, apiKey)
//
// BaseInsertion keeps the fields in the order they arrived and is always used
// for outbound payloads. BaseSorted sorts the keys first, for gateways that
// sign callbacks that way.
//
// # Callbacks
//
// Classifier turns raw callback parameters into a Verdict:
//
//	c := provider.NewClassifier(provider.BaseInsertion, sessions, apiKey)
//	cls, err := c.Classify(ctx, params)
//	if cls.Verdict.Trusted() { ... }
//
// Missing references, unknown sessions and bad signatures are never trusted.
//
// # Eligibility and Payloads
//
// EligibilityGate checks the minimum amount, the country/currency pairing and
// the shipping destination before a session is sent to the gateway.
// PayloadBuilder produces the signed form in PayloadFieldOrder, and CancelURL
// produces the signed cancel link verified by VerifyCancel.
package provider
