// Package notify delivers operator notifications (Slack and friends) through
// shoutrrr service URLs.
package notify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"time"

	shoutrrr "github.com/nicholas-fedor/shoutrrr"
	router "github.com/nicholas-fedor/shoutrrr/pkg/router"
	stypes "github.com/nicholas-fedor/shoutrrr/pkg/types"

	"github.com/ahrav/mongoremodel/internal/domain/migration"
)

var (
	_ migration.Notifier = (*ShoutrrrNotifier)(nil)
	_ migration.Notifier = Nop{}
)

// sender is the part of the shoutrrr router used here.
type sender interface {
	Send(message string, params *stypes.Params) []error
}

// ShoutrrrNotifier fans a message out to every configured service URL.
type ShoutrrrNotifier struct {
	sender sender
}

// NewShoutrrr builds a notifier for urls, e.g. slack://token@channel.
func NewShoutrrr(urls []string, timeout time.Duration) (*ShoutrrrNotifier, error) {
	if len(urls) == 0 {
		return nil, errors.New("at least one notification URL is required")
	}
	r, err := shoutrrr.CreateSender(urls...)
	if err != nil {
		return nil, fmt.Errorf("creating notification sender: %w", err)
	}
	if timeout > 0 {
		r.Timeout = timeout
	}
	r.SetLogger(log.New(io.Discard, "", 0))
	return newWithSender(r), nil
}

func newWithSender(s sender) *ShoutrrrNotifier { return &ShoutrrrNotifier{sender: s} }

var _ sender = (*router.ServiceRouter)(nil)

// Notify sends body with an optional title. All per-service failures are
// joined into the returned error.
func (n *ShoutrrrNotifier) Notify(ctx context.Context, title, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	params := stypes.Params{}
	if title != "" {
		params.SetTitle(title)
	}

	var errs []error
	for _, e := range n.sender.Send(body, &params) {
		if e != nil {
			errs = append(errs, e)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("sending notification: %w", errors.Join(errs...))
	}
	return nil
}

// Nop discards notifications.
type Nop struct{}

func (Nop) Notify(context.Context, string, string) error { return nil }

// New returns a shoutrrr notifier when urls are configured and Nop otherwise.
func New(urls []string, timeout time.Duration) (migration.Notifier, error) {
	if len(urls) == 0 {
		return Nop{}, nil
	}
	return NewShoutrrr(urls, timeout)
}
