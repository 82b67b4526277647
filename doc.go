// Package oxipay is a checkout service for the Oxipay deferred-payment gateway.
//
// A shopper's pending session is dispatched to the gateway's hosted checkout
// as a signed, self-posting form. The gateway reports the result back on a
// single URL, both asynchronously and through the shopper's browser. The
// service authenticates every notification and turns it into exactly one
// state transition for the session.
//
// # Flow
//
//	┌─────────────────┐    ┌─────────────────┐    ┌─────────────────┐
//	│                 │    │                 │    │                 │
//	│    Shop Cart    │───►│     Oxipay      │───►│     Oxipay      │
//	│  (session ref)  │    │    (service)    │◄───│    Gateway      │
//	│                 │◄───│                 │    │                 │
//	└─────────────────┘    └─────────────────┘    └─────────────────┘
//
// A session moves through three states:
//
//   - Active: the shopper is still building the cart
//   - Dispatched: the payload was built and the shopper sent to the gateway
//   - Finalized: a Completed callback turned the session into an order
//
// A Failed callback or a signed cancel link returns a Dispatched session to
// Active and puts the stock taken for its reservation back exactly once. Duplicate and concurrent
// callbacks for one session are serialized by a per-session lock, in process
// or through Redis.
//
// # Layout
//
//   - checkout: session, order and invoice model plus the collaborator ports
//   - provider: fields, signatures, callback classification, eligibility, payloads
//   - reconcile: the engine driving dispatch, callbacks, cancels and stock
//   - handler, router: the HTTP surface
//   - infra: configuration, SQLite storage, locks, logging, OpenSearch events, metrics
//
// # Configuration
//
// Process settings come from the environment (optionally a .env file).
// Merchant settings (OXIPAY_API_KEY, OXIPAY_MERCHANT_NUMBER, OXIPAY_SPECIFIC_COUNTRY
// and the rest) come from the settings table, falling back to the environment.
package oxipay
