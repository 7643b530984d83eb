// Package chat forwards study group changes to a Telegram chat
package chat

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"

	"git.skobk.in/skobkin/study-group-sync/events"
	"git.skobk.in/skobkin/study-group-sync/group"
)

const sendTimeout = 30 * time.Second

// Sender is the part of the Telegram bot API the notifier uses
type Sender interface {
	SendMessage(ctx context.Context, params *telego.SendMessageParams) (*telego.Message, error)
}

// Lookup resolves a group id to the group as currently listed
type Lookup func(groupID string) (group.Group, bool)

type Notifier struct {
	sender Sender
	chatID int64
	lookup Lookup
	sleep  func(ctx context.Context, d time.Duration) error
}

func NewNotifier(sender Sender, chatID int64, lookup Lookup) *Notifier {
	if lookup == nil {
		lookup = func(string) (group.Group, bool) { return group.Group{}, false }
	}

	return &Notifier{
		sender: sender,
		chatID: chatID,
		lookup: lookup,
		sleep:  sleep,
	}
}

// Attach subscribes the notifier to group change events
func (n *Notifier) Attach(b *events.Broadcaster) *events.Subscription {
	return b.Subscribe("telegram", n.Handle)
}

// Handle posts one event to the chat
func (n *Notifier) Handle(e events.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()

	if err := n.send(ctx, n.format(e)); err != nil {
		slog.Error("chat: Failed to post group change", "error", err, "action", string(e.Action), "group_id", e.GroupID)
	}
}

// Announce posts the groups that became available since the last check
func (n *Notifier) Announce(ctx context.Context, groups []group.Group) error {
	if len(groups) == 0 {
		return nil
	}

	lines := make([]string, 0, len(groups)+1)
	lines = append(lines, escapeMarkdownV2("New study groups you can join:"))
	for _, g := range groups {
		lines = append(lines, fmt.Sprintf("• *%s* %s", escapeMarkdownV2(g.Name), escapeMarkdownV2(describe(g))))
	}

	return n.send(ctx, strings.Join(lines, "\n"))
}

func (n *Notifier) format(e events.Event) string {
	name := e.GroupName
	if name == "" {
		name = e.GroupID
		if g, ok := n.lookup(e.GroupID); ok && g.Name != "" {
			name = g.Name
		}
	}

	var verb string
	switch e.Action {
	case events.ActionCreated:
		verb = "created"
	case events.ActionJoined:
		verb = "joined"
	case events.ActionLeft:
		verb = "left"
	case events.ActionDeleted:
		verb = "deleted"
	default:
		verb = string(e.Action)
	}

	return fmt.Sprintf("%s %s *%s*", escapeMarkdownV2(e.UserID), escapeMarkdownV2(verb), escapeMarkdownV2(name))
}

func describe(g group.Group) string {
	course := g.CourseCode
	if g.CourseName != "" {
		course = strings.TrimSpace(course + " " + g.CourseName)
	}
	return fmt.Sprintf("(%s, %d members)", course, g.MemberCount)
}

// send posts a MarkdownV2 message, waiting out one rate limit answer
func (n *Notifier) send(ctx context.Context, text string) error {
	message := tu.Message(tu.ID(n.chatID), text)
	message.ParseMode = "MarkdownV2"

	_, err := n.sender.SendMessage(ctx, message)
	if err == nil {
		slog.Info("chat: Message sent", "chat_id", n.chatID)
		return nil
	}

	wait := retryAfter(err)
	if wait <= 0 {
		return fmt.Errorf("failed to send message: %w", err)
	}

	slog.Debug("chat: API error", "error", err.Error())
	slog.Info("chat: Rate limit hit, waiting", "seconds", wait.Seconds())
	if err := n.sleep(ctx, wait); err != nil {
		return fmt.Errorf("failed to wait for rate limit: %w", err)
	}

	if _, err := n.sender.SendMessage(ctx, message); err != nil {
		return fmt.Errorf("failed to send message after rate limit wait: %w", err)
	}

	slog.Info("chat: Message sent after rate limit wait", "chat_id", n.chatID)
	return nil
}

// retryAfter extracts the wait from a 429 answer.
// Format: "telego: sendMessage: api: 429 \"Too Many Requests: retry after 5\", migrate to chat ID: 0, retry after: 5"
func retryAfter(err error) time.Duration {
	if !strings.Contains(err.Error(), "Too Many Requests") {
		return 0
	}

	parts := strings.Split(err.Error(), "retry after: ")
	if len(parts) != 2 {
		return 0
	}

	var seconds int
	if _, _ = fmt.Sscanf(parts[1], "%d", &seconds); seconds <= 0 {
		return 0
	}
	return time.Duration(seconds) * time.Second
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func escapeMarkdownV2(text string) string {
	specialChars := []string{
		"\\", "_", "*", "[", "]", "(", ")", "~", "`", ">", "#", "+", "-", "=", "|", "{", "}", ".", "!",
	}

	for _, char := range specialChars {
		text = strings.ReplaceAll(text, char, "\\"+char)
	}
	return text
}
