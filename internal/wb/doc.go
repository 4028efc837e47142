// Package wb talks to the supplier portal: acceptance coefficient search,
// slot booking, and session checks. Authentication is cookie based; each
// request carries the serialized session cookies of one supplier account.
//
// The package owns all result filtering. Callers hand it a criteria struct
// and receive only slots that match warehouse, date range, packaging, and
// minimum coefficient.
package wb
