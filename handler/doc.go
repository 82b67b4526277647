// Package handler provides the HTTP handlers of the Oxipay checkout service.
//
// CheckoutHandler serves the shopper-facing gateway endpoints:
//
//	h := handler.NewCheckoutHandler(engine, merchant)
//
//	r.HandleFunc("/oxipay/payment/start", h.Start)       // ?ref= session reference
//	r.HandleFunc("/oxipay/payment/complete", h.Complete) // callback and browser return
//	r.Get("/oxipay/payment/cancel", h.Cancel)            // signed cancel link
//
// Start renders a self-posting form to the gateway checkout page, or redirects
// to the cart with an error message when the session is not eligible.
// Complete and Cancel hand the request parameters, in wire order, to the
// reconciliation engine and redirect the shopper to the merchant URL matching
// the outcome. Raw errors are never shown to the shopper.
//
// HealthHandler reports storage, session lock and event sink health as a JSON
// envelope from the response package.
package handler
