// Package notifications delivers push notifications through ntfy topics.
// An unset topic degrades to a noop service so callers never branch.
package notifications
