// Package notify fans a successful acquisition out over whichever
// channels the operator configured: PushPlus, Bark, DingTalk, WeChat work
// webhook, ftqq (server酱), SMTP email, and a desktop notification.
// Grounded on original_source/util/push/push.py (the remote webhook
// channels) and util/Notice/__init__.py (desktop + sound).
package notify

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/hobr/ticketbot/internal/ticket"
)

// Channel is a single delivery mechanism. Each channel implementation is
// a thin wrapper over one outbound call; failures are independent and
// never block the others.
type Channel interface {
	Name() string
	Send(ctx context.Context, message string) error
}

// Config selects which channels are active; zero-value fields disable the
// corresponding channel. Mirrors spec.md §6's notification config fields.
type Config struct {
	System bool
	Sound  bool

	PushPlusToken string
	BarkToken     string
	DingTalkToken string
	WeChatToken   string
	FtqqToken     string

	SMTP *SMTPConfig
}

// SMTPConfig carries the nested mail-delivery settings from spec.md §6.
type SMTPConfig struct {
	Host      string
	Port      int
	User      string
	Pass      string
	Sender    string
	Receivers []string
}

// FanOut builds the enabled channel set from cfg and dispatches message to
// all of them concurrently via errgroup, matching the original's "push to
// everything configured" semantics without failing the whole batch when
// one channel errors.
type FanOut struct {
	channels []Channel
}

// NewFanOut constructs a FanOut over every channel enabled in cfg.
func NewFanOut(cfg Config) *FanOut {
	var channels []Channel
	if cfg.System {
		channels = append(channels, NewSystemChannel(cfg.Sound))
	}
	if cfg.PushPlusToken != "" {
		channels = append(channels, NewPushPlusChannel(cfg.PushPlusToken))
	}
	if cfg.BarkToken != "" {
		channels = append(channels, NewBarkChannel(cfg.BarkToken))
	}
	if cfg.DingTalkToken != "" {
		channels = append(channels, NewDingTalkChannel(cfg.DingTalkToken))
	}
	if cfg.WeChatToken != "" {
		channels = append(channels, NewWeChatChannel(cfg.WeChatToken))
	}
	if cfg.FtqqToken != "" {
		channels = append(channels, NewFtqqChannel(cfg.FtqqToken))
	}
	if cfg.SMTP != nil {
		channels = append(channels, NewEmailChannel(*cfg.SMTP))
	}
	return &FanOut{channels: channels}
}

// Notify implements ticket.Notifier. It formats the success record into a
// human-readable message and dispatches it to every enabled channel
// concurrently, logging (never returning) individual channel failures so
// one bad webhook can't mask the others.
func (f *FanOut) Notify(ctx context.Context, rec ticket.SuccessRecord) error {
	message := fmt.Sprintf("Order locked: project %d, order %d, pay %.2f CNY",
		rec.ProjectID, rec.OrderID, float64(rec.PayMoney)/100)

	g, gctx := errgroup.WithContext(ctx)
	for _, ch := range f.channels {
		ch := ch
		g.Go(func() error {
			if err := ch.Send(gctx, message); err != nil {
				logrus.WithField("channel", ch.Name()).WithError(err).Error("notification channel failed")
			}
			return nil
		})
	}
	return g.Wait()
}
