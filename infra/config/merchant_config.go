package config

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"
	"sync"
)

// Merchant setting keys. The same names are used as environment variables.
const (
	KeyAPIKey           = "OXIPAY_API_KEY"
	KeyMerchantNumber   = "OXIPAY_MERCHANT_NUMBER"
	KeySpecificCountry  = "OXIPAY_SPECIFIC_COUNTRY"
	KeyCheckoutURL      = "OXIPAY_CHECKOUT_URL"
	KeyTestMode         = "OXIPAY_TEST_MODE"
	KeyEmailCustomer    = "OXIPAY_EMAIL_CUSTOMER"
	KeyAutomaticInvoice = "OXIPAY_AUTOMATIC_INVOICE"
	KeySignatureBase    = "OXIPAY_CALLBACK_SIGNATURE_BASE"
	KeyShopName         = "SHOP_NAME"
	KeySuccessURL       = "SUCCESS_URL"
	KeyFailureURL       = "FAILURE_URL"
	KeyErrorURL         = "ERROR_URL"
	KeyCartURL          = "CART_URL"
)

var merchantDefaults = map[string]string{
	KeySpecificCountry:  "AU",
	KeyCheckoutURL:      "https://securesandbox.oxipay.com.au/Checkout?platform=Default",
	KeyTestMode:         "true",
	KeyEmailCustomer:    "true",
	KeyAutomaticInvoice: "false",
	KeySignatureBase:    "insertion",
	KeyShopName:         "Oxipay Store",
	KeySuccessURL:       "/checkout/onepage/success",
	KeyFailureURL:       "/checkout/onepage/failure",
	KeyErrorURL:         "/checkout/onepage/error",
	KeyCartURL:          "/checkout/cart",
}

// SettingsStore persists merchant setting overrides
type SettingsStore interface {
	LoadAllSettings(ctx context.Context) (map[string]string, error)
	SaveSetting(ctx context.Context, key, value string) error
	DeleteSetting(ctx context.Context, key string) error
}

// MerchantConfig resolves merchant settings: stored overrides first, then the environment, then defaults
type MerchantConfig struct {
	overrides map[string]string
	storage   SettingsStore
	mu        sync.RWMutex
}

// NewMerchantConfig creates a merchant config. storage may be nil for env-only mode.
func NewMerchantConfig(ctx context.Context, storage SettingsStore) *MerchantConfig {
	c := &MerchantConfig{
		overrides: make(map[string]string),
		storage:   storage,
	}

	if storage != nil {
		settings, err := storage.LoadAllSettings(ctx)
		if err != nil {
			log.Printf("Warning: Failed to load merchant settings (%v), using environment only", err)
		} else {
			for k, v := range settings {
				c.overrides[k] = v
			}
		}
	}

	return c
}

// Get returns the value for key
func (c *MerchantConfig) Get(key string) string {
	c.mu.RLock()
	v, ok := c.overrides[key]
	c.mu.RUnlock()
	if ok {
		return v
	}
	return GetEnv(key, merchantDefaults[key])
}

// Set stores an override for key
func (c *MerchantConfig) Set(ctx context.Context, key, value string) error {
	if key == "" {
		return fmt.Errorf("setting key cannot be empty")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.storage != nil {
		if err := c.storage.SaveSetting(ctx, key, value); err != nil {
			return fmt.Errorf("failed to save setting %s: %w", key, err)
		}
	}
	c.overrides[key] = value
	return nil
}

// Delete removes the override for key so the environment value applies again
func (c *MerchantConfig) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.storage != nil {
		if err := c.storage.DeleteSetting(ctx, key); err != nil {
			return fmt.Errorf("failed to delete setting %s: %w", key, err)
		}
	}
	delete(c.overrides, key)
	return nil
}

func (c *MerchantConfig) bool(key string) bool {
	v, err := strconv.ParseBool(strings.TrimSpace(c.Get(key)))
	if err != nil {
		d, _ := strconv.ParseBool(merchantDefaults[key])
		return d
	}
	return v
}

// Merchant is a snapshot of the merchant settings injected into the checkout components
type Merchant struct {
	APIKey           string `validate:"required"`
	MerchantNumber   string `validate:"required"`
	Country          string `validate:"required,gateway_country"`
	CheckoutURL      string `validate:"required,url"`
	TestMode         bool
	EmailCustomer    bool
	AutomaticInvoice bool
	SignatureBase    string `validate:"oneof=insertion sorted"`
	ShopName         string
	SuccessURL       string `validate:"required,redirect_target"`
	FailureURL       string `validate:"required,redirect_target"`
	ErrorURL         string `validate:"required,redirect_target"`
	CartURL          string `validate:"required,redirect_target"`
}

// Snapshot resolves every merchant setting once
func (c *MerchantConfig) Snapshot() Merchant {
	return Merchant{
		APIKey:           c.Get(KeyAPIKey),
		MerchantNumber:   c.Get(KeyMerchantNumber),
		Country:          strings.ToUpper(c.Get(KeySpecificCountry)),
		CheckoutURL:      c.Get(KeyCheckoutURL),
		TestMode:         c.bool(KeyTestMode),
		EmailCustomer:    c.bool(KeyEmailCustomer),
		AutomaticInvoice: c.bool(KeyAutomaticInvoice),
		SignatureBase:    strings.ToLower(c.Get(KeySignatureBase)),
		ShopName:         c.Get(KeyShopName),
		SuccessURL:       c.Get(KeySuccessURL),
		FailureURL:       c.Get(KeyFailureURL),
		ErrorURL:         c.Get(KeyErrorURL),
		CartURL:          c.Get(KeyCartURL),
	}
}

// Validate checks the snapshot with the shared validator
func (m Merchant) Validate() error {
	return App().Validator.Struct(m)
}
