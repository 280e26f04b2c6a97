package forumwatch

import (
	"context"
	"fmt"

	"github.com/coregx/forumwatch/model"
)

// CreatedLayout is the layout of the creation time in notification messages.
const CreatedLayout = "2006-01-02 15:04:05"

// Notifier delivers a formatted message to an external channel.
// Only success or failure is consumed; a returned error leaves the topic
// unposted so it is retried on the next scan.
type Notifier interface {
	Send(ctx context.Context, text string) error
}

// FormatMessage renders the fixed-layout notification for a resolved topic:
//
//	<title>
//	replies: <n>, views: <n>, created: <YYYY-MM-DD HH:MM:SS>
//	<url>
//
// The creation time is always rendered in UTC.
func FormatMessage(topic model.Topic) string {
	created := "unknown"
	if topic.HasCreated() {
		created = topic.Created.Time.UTC().Format(CreatedLayout)
	}
	return fmt.Sprintf("%s\nreplies: %d, views: %d, created: %s\n%s",
		topic.Title, topic.Replies, topic.Views, created, topic.URL)
}

// NoOpNotifier accepts every message and sends nothing.
type NoOpNotifier struct{}

// Send does nothing.
func (n *NoOpNotifier) Send(_ context.Context, _ string) error {
	return nil
}

// LoggingNotifier writes messages to the logger instead of an external
// channel. Used for dry runs.
type LoggingNotifier struct {
	logger Logger
}

// NewLoggingNotifier creates a new LoggingNotifier.
func NewLoggingNotifier(logger Logger) *LoggingNotifier {
	return &LoggingNotifier{logger: logger}
}

// Send logs the message.
func (n *LoggingNotifier) Send(_ context.Context, text string) error {
	n.logger.Infof("📣 %s", text)
	return nil
}

// MultiNotifier fans a message out to several notifiers. The send fails if
// any of them fails, so the topic is retried as a whole.
type MultiNotifier []Notifier

// Send delivers text through every notifier in order and stops at the first error.
func (m MultiNotifier) Send(ctx context.Context, text string) error {
	for _, n := range m {
		if err := n.Send(ctx, text); err != nil {
			return err
		}
	}
	return nil
}
