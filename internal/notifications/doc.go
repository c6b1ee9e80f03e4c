// Package notifications pushes job lifecycle events to an ntfy topic.
// Without a configured topic every notification is a no-op, so callers
// never need to check whether notifications are enabled.
package notifications
