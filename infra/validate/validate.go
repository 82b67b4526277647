// Package validate registers the custom validation tags used by configuration structs.
package validate

import (
	"net/url"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/mstgnz/oxipay/provider"
)

const (
	// TagGatewayCountry accepts a country code the gateway trades in
	TagGatewayCountry = "gateway_country"
	// TagRedirectTarget accepts an absolute http(s) URL or a site-relative path
	TagRedirectTarget = "redirect_target"
)

// CustomValidate registers every custom tag on v
func CustomValidate(v *validator.Validate) error {
	if err := v.RegisterValidation(TagGatewayCountry, gatewayCountry); err != nil {
		return err
	}
	return v.RegisterValidation(TagRedirectTarget, redirectTarget)
}

func gatewayCountry(fl validator.FieldLevel) bool {
	_, ok := provider.CurrencyForCountry(fl.Field().String())
	return ok
}

func redirectTarget(fl validator.FieldLevel) bool {
	target := fl.Field().String()
	if strings.HasPrefix(target, "/") {
		// protocol-relative URLs leave the site
		return !strings.HasPrefix(target, "//")
	}
	u, err := url.Parse(target)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
