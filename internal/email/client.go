// Package email wraps the Gmail REST API behind the small surface the
// workflow needs: fetch changes since a history cursor, read threads, and
// send threaded replies.
package email

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/codeGROOVE-dev/retry"
	"github.com/emersion/go-message/mail"
	"golang.org/x/oauth2"
	gmailapi "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

// Message is one parsed mail message.
type Message struct {
	ID       string
	ThreadID string
	From     string
	To       []string
	Cc       []string
	Subject  string
	BodyText string
	BodyHTML string
	// RFC Message-ID header, used for In-Reply-To when replying.
	RFCMessageID string
	SentAt       time.Time
}

// ChangedMessage references one inbound message reported by a history fetch.
type ChangedMessage struct {
	MessageID string
	ThreadID  string
}

// Client is a Gmail API client bound to one user's mailbox.
type Client struct {
	svc      *gmailapi.Service
	selfAddr string
	logger   *slog.Logger
}

// NewClient builds a client from a valid access token.
func NewClient(ctx context.Context, accessToken, selfAddr string, logger *slog.Logger) (*Client, error) {
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken})
	svc, err := gmailapi.NewService(ctx, option.WithTokenSource(ts))
	if err != nil {
		return nil, fmt.Errorf("failed to create gmail service: %w", err)
	}
	return &Client{
		svc:      svc,
		selfAddr: strings.ToLower(selfAddr),
		logger:   logger.With("component", "gmail_client"),
	}, nil
}

// FetchChangesSince lists messages added after the given history cursor.
// Self-sent messages (SENT label or our own address) are excluded so the
// system never replies to its own replies. Returns the new cursor alongside
// the changes.
func (c *Client) FetchChangesSince(ctx context.Context, cursor uint64) ([]ChangedMessage, uint64, error) {
	var changes []ChangedMessage
	newCursor := cursor

	call := c.svc.Users.History.List("me").
		StartHistoryId(cursor).
		HistoryTypes("messageAdded").
		Context(ctx)

	err := call.Pages(ctx, func(resp *gmailapi.ListHistoryResponse) error {
		if resp.HistoryId > newCursor {
			newCursor = resp.HistoryId
		}
		for _, h := range resp.History {
			for _, added := range h.MessagesAdded {
				if added.Message == nil {
					continue
				}
				if hasLabel(added.Message.LabelIds, "SENT") || hasLabel(added.Message.LabelIds, "DRAFT") {
					continue
				}
				changes = append(changes, ChangedMessage{
					MessageID: added.Message.Id,
					ThreadID:  added.Message.ThreadId,
				})
			}
		}
		return nil
	})
	if err != nil {
		return nil, cursor, fmt.Errorf("failed to list history: %w", err)
	}
	return changes, newCursor, nil
}

// GetMessage fetches one message in raw form and parses it.
func (c *Client) GetMessage(ctx context.Context, messageID string) (*Message, error) {
	resp, err := c.svc.Users.Messages.Get("me", messageID).Format("raw").Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("failed to get message %s: %w", messageID, err)
	}

	raw, err := base64.URLEncoding.DecodeString(resp.Raw)
	if err != nil {
		return nil, fmt.Errorf("failed to decode raw message: %w", err)
	}

	msg, err := parseRaw(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to parse message %s: %w", messageID, err)
	}
	msg.ID = resp.Id
	msg.ThreadID = resp.ThreadId
	if msg.SentAt.IsZero() && resp.InternalDate > 0 {
		msg.SentAt = time.UnixMilli(resp.InternalDate)
	}
	return msg, nil
}

// IsSelf reports whether an address belongs to the mailbox owner.
func (c *Client) IsSelf(addr string) bool {
	return strings.EqualFold(strings.TrimSpace(addr), c.selfAddr)
}

// GetThread fetches and parses every message of a thread in order.
func (c *Client) GetThread(ctx context.Context, threadID string) ([]*Message, error) {
	resp, err := c.svc.Users.Threads.Get("me", threadID).Format("minimal").Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("failed to get thread %s: %w", threadID, err)
	}

	msgs := make([]*Message, 0, len(resp.Messages))
	for _, m := range resp.Messages {
		parsed, err := c.GetMessage(ctx, m.Id)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, parsed)
	}
	return msgs, nil
}

// SendReply sends a threaded plain-text reply and returns the provider's
// message id. Transient failures are retried with backoff.
func (c *Client) SendReply(ctx context.Context, to []string, subject, body, threadID, inReplyTo string) (string, error) {
	toLine := sanitizeHeader(strings.Join(to, ", "))
	subject = sanitizeHeader(subject)
	inReplyTo = sanitizeHeader(inReplyTo)

	var msg strings.Builder
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString(fmt.Sprintf("To: %s\r\n", toLine))
	msg.WriteString(fmt.Sprintf("Subject: %s\r\n", subject))
	if inReplyTo != "" {
		msg.WriteString(fmt.Sprintf("In-Reply-To: %s\r\n", inReplyTo))
		msg.WriteString(fmt.Sprintf("References: %s\r\n", inReplyTo))
	}
	msg.WriteString("Content-Type: text/plain; charset=utf-8\r\n\r\n")
	msg.WriteString(body)
	encoded := base64.URLEncoding.EncodeToString([]byte(msg.String()))

	var sentID string
	err := retry.Do(
		func() error {
			start := time.Now()
			resp, err := c.svc.Users.Messages.Send("me", &gmailapi.Message{
				Raw:      encoded,
				ThreadId: threadID,
			}).Context(ctx).Do()
			if err != nil {
				c.logger.Warn("gmail send failed, will retry",
					"thread_id", threadID,
					"duration_ms", time.Since(start).Milliseconds(),
					"error", err)
				return err
			}
			sentID = resp.Id
			c.logger.Info("reply sent",
				"thread_id", threadID,
				"message_id", resp.Id,
				"duration_ms", time.Since(start).Milliseconds())
			return nil
		},
		retry.Attempts(3),
		retry.Delay(time.Second),
		retry.MaxDelay(30*time.Second),
		retry.MaxJitter(5*time.Second),
		retry.Context(ctx),
	)
	if err != nil {
		return "", fmt.Errorf("failed to send reply: %w", err)
	}
	return sentID, nil
}

func hasLabel(labels []string, label string) bool {
	for _, l := range labels {
		if l == label {
			return true
		}
	}
	return false
}

// sanitizeHeader removes newlines and control characters to prevent header
// injection: RFC 5322 headers are newline-delimited, so any newline in a
// value lets an attacker inject arbitrary headers.
func sanitizeHeader(s string) string {
	var result strings.Builder
	for _, r := range s {
		if r >= 32 && r != 127 {
			result.WriteRune(r)
		}
	}
	return result.String()
}

// parseRaw decodes an RFC822 message into our Message shape.
func parseRaw(raw []byte) (*Message, error) {
	mr, err := mail.CreateReader(strings.NewReader(string(raw)))
	if err != nil {
		return nil, err
	}

	var msg Message
	header := mr.Header
	if from, err := header.AddressList("From"); err == nil && len(from) > 0 {
		msg.From = from[0].Address
	}
	if to, err := header.AddressList("To"); err == nil {
		for _, a := range to {
			msg.To = append(msg.To, a.Address)
		}
	}
	if cc, err := header.AddressList("Cc"); err == nil {
		for _, a := range cc {
			msg.Cc = append(msg.Cc, a.Address)
		}
	}
	msg.Subject, _ = header.Subject()
	msg.RFCMessageID, _ = header.MessageID()
	if msg.RFCMessageID != "" && !strings.HasPrefix(msg.RFCMessageID, "<") {
		msg.RFCMessageID = "<" + msg.RFCMessageID + ">"
	}
	if date, err := header.Date(); err == nil {
		msg.SentAt = date
	}

	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			// Keep whatever body parts parsed before the error.
			break
		}
		inline, ok := part.Header.(*mail.InlineHeader)
		if !ok {
			continue
		}
		ct, _, _ := inline.ContentType()
		body, err := io.ReadAll(part.Body)
		if err != nil {
			continue
		}
		switch ct {
		case "text/plain":
			if msg.BodyText == "" {
				msg.BodyText = string(body)
			}
		case "text/html":
			if msg.BodyHTML == "" {
				msg.BodyHTML = string(body)
			}
		}
	}

	return &msg, nil
}
