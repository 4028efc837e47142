// Package notify delivers task lifecycle notifications to users.
//
// Two channels are supported: a Telegram chat (via bot API) and email over
// SMTP. Delivery is best-effort: failures are logged and never propagate to
// the search pipeline. A token bucket caps outbound rate across channels.
package notify
