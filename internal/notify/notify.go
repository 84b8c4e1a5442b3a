// Package notify delivers templated messages to users. Delivery is
// fire-and-forget: failures are logged and never reach the caller.
package notify

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"
	"sync"
	"time"

	"gyst/internal/logger"
)

// Template names understood by Render.
const (
	TemplateMilestone   = "milestone"
	TemplateDailyDigest = "daily_digest"
)

// ErrNoRecipient means the user has no address for this channel.
var ErrNoRecipient = errors.New("no recipient")

// Message is one notification to one user.
type Message struct {
	Template string
	UserID   uint
	ChatID   int64
	Email    string
	Data     map[string]any
}

// Notifier sends a single message.
type Notifier interface {
	Send(ctx context.Context, msg Message) error
}

// Dispatcher sends messages in the background with a per-send timeout.
type Dispatcher struct {
	notifier Notifier
	timeout  time.Duration
	wg       sync.WaitGroup
}

func NewDispatcher(n Notifier, timeout time.Duration) *Dispatcher {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Dispatcher{notifier: n, timeout: timeout}
}

// Dispatch queues msg for delivery and returns immediately.
func (d *Dispatcher) Dispatch(msg Message) {
	if d == nil || d.notifier == nil {
		return
	}
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		defer cancel()
		if err := d.notifier.Send(ctx, msg); err != nil {
			logger.Notify.Warn("send notification", "template", msg.Template, "user", msg.UserID, "error", err)
		}
	}()
}

// Wait blocks until every dispatched message has been attempted.
func (d *Dispatcher) Wait() {
	if d == nil {
		return
	}
	d.wg.Wait()
}

// LogNotifier writes messages to the log instead of delivering them.
type LogNotifier struct{}

func (LogNotifier) Send(_ context.Context, msg Message) error {
	text, err := Render(msg)
	if err != nil {
		return err
	}
	logger.Notify.Info("notification", "template", msg.Template, "user", msg.UserID, "text", text)
	return nil
}

// Render turns a message into HTML-safe text for chat delivery.
func Render(msg Message) (string, error) {
	switch msg.Template {
	case TemplateMilestone:
		var sb strings.Builder
		fmt.Fprintf(&sb, "🔥 <b>%d-day streak!</b>\n", intValue(msg.Data["milestone"]))
		fmt.Fprintf(&sb, "%s is on a roll.", html.EscapeString(stringValue(msg.Data["task"])))
		if n := intValue(msg.Data["breaks_earned"]); n > 0 {
			fmt.Fprintf(&sb, "\n🎟 You earned %d break credit(s).", n)
		}
		return sb.String(), nil
	case TemplateDailyDigest:
		return stringValue(msg.Data["text"]), nil
	}
	return "", fmt.Errorf("unknown template %q", msg.Template)
}

func stringValue(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	if v == nil {
		return ""
	}
	return fmt.Sprint(v)
}

func intValue(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	}
	return 0
}
