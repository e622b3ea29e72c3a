// Package notifications sends ntfy push notifications for import summaries
// and scan failures. A noop implementation stands in when no topic is
// configured so callers never branch on notification availability.
package notifications
