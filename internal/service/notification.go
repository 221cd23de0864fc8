package service

import "context"

// NotificationSink delivers out-of-band messages to a principal. Callers
// bound every call with a timeout and treat failures as non-fatal.
type NotificationSink interface {
	SendResetLink(ctx context.Context, to, link string) error
	SendResetSecretNotice(ctx context.Context, to, secret string) error
}
