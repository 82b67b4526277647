package provider

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
)

// SignatureBase selects how the signed text is assembled from a field set
type SignatureBase string

const (
	// BaseInsertion concatenates key+value for every field in insertion order
	BaseInsertion SignatureBase = "insertion"
	// BaseSorted concatenates key+value for x_ fields in alphabetical key order
	BaseSorted SignatureBase = "sorted"
)

// ParseSignatureBase maps a config value to a SignatureBase
func ParseSignatureBase(v string) (SignatureBase, error) {
	switch SignatureBase(strings.ToLower(strings.TrimSpace(v))) {
	case "", BaseInsertion:
		return BaseInsertion, nil
	case BaseSorted:
		return BaseSorted, nil
	default:
		return "", fmt.Errorf("provider: unknown signature base %q", v)
	}
}

// Codec signs and verifies field sets with HMAC-SHA256
type Codec struct {
	Base SignatureBase
}

// NewCodec creates a codec for the given base
func NewCodec(base SignatureBase) Codec {
	return Codec{Base: base}
}

// Sign returns the lowercase hex signature of fields under secret
func (c Codec) Sign(fields *Fields, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(c.signatureBase(fields)))
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify recomputes the signature over fields and compares it with signature.
// Missing input fails closed.
func (c Codec) Verify(fields *Fields, signature, secret string) bool {
	if fields == nil || fields.Len() == 0 || signature == "" || secret == "" {
		return false
	}
	expected := c.Sign(fields, secret)
	return hmac.Equal([]byte(expected), []byte(strings.ToLower(signature)))
}

// signatureBase builds the exact text that gets signed
func (c Codec) signatureBase(fields *Fields) string {
	keys := fields.Keys()
	if c.Base == BaseSorted {
		filtered := keys[:0]
		for _, k := range keys {
			if strings.HasPrefix(k, signedFieldPrefix) {
				filtered = append(filtered, k)
			}
		}
		keys = filtered
		sort.Strings(keys)
	}

	var sb strings.Builder
	for _, k := range keys {
		if k == FieldSignature || k == CancelFieldSignature {
			continue
		}
		sb.WriteString(k)
		sb.WriteString(fields.Get(k))
	}
	return sb.String()
}

// Sign signs fields in insertion order
func Sign(fields *Fields, secret string) string {
	return NewCodec(BaseInsertion).Sign(fields, secret)
}

// Verify verifies fields signed in insertion order
func Verify(fields *Fields, signature, secret string) bool {
	return NewCodec(BaseInsertion).Verify(fields, signature, secret)
}
