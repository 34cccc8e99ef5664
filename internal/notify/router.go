package notify

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// Sender matches services.NotificationSender.
type Sender interface {
	Send(ctx context.Context, identity, message string) error
}

// Router picks the delivery channel from the identity's shape: numeric
// identities are Telegram chat ids, anything with an @ is an email address.
// The verification core stays channel-agnostic; this is the caller's wiring.
type Router struct {
	email    Sender
	telegram Sender
}

func NewRouter(email, telegram Sender) *Router {
	return &Router{email: email, telegram: telegram}
}

func (r *Router) Send(ctx context.Context, identity, message string) error {
	if _, err := strconv.ParseInt(identity, 10, 64); err == nil {
		if r.telegram == nil {
			return fmt.Errorf("no telegram sender configured for %s", identity)
		}
		return r.telegram.Send(ctx, identity, message)
	}
	if strings.Contains(identity, "@") {
		if r.email == nil {
			return fmt.Errorf("no email sender configured for %s", identity)
		}
		return r.email.Send(ctx, identity, message)
	}
	return fmt.Errorf("unrecognized identity format: %s", identity)
}
