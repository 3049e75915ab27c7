package email

import (
	"strings"
	"testing"
)

const sampleRaw = "From: Alice Example <alice@example.com>\r\n" +
	"To: Me <me@example.com>\r\n" +
	"Cc: Bob <bob@example.com>\r\n" +
	"Subject: Project sync\r\n" +
	"Message-ID: <abc123@mail.example.com>\r\n" +
	"Date: Mon, 02 Jun 2025 07:55:00 +0000\r\n" +
	"MIME-Version: 1.0\r\n" +
	"Content-Type: multipart/alternative; boundary=BOUNDARY\r\n" +
	"\r\n" +
	"--BOUNDARY\r\n" +
	"Content-Type: text/plain; charset=utf-8\r\n" +
	"\r\n" +
	"Can we find a time to meet this week?\r\n" +
	"--BOUNDARY\r\n" +
	"Content-Type: text/html; charset=utf-8\r\n" +
	"\r\n" +
	"<p>Can we find a time to meet this week?</p>\r\n" +
	"--BOUNDARY--\r\n"

func TestParseRawMultipart(t *testing.T) {
	msg, err := parseRaw([]byte(sampleRaw))
	if err != nil {
		t.Fatalf("parseRaw: %v", err)
	}

	if msg.From != "alice@example.com" {
		t.Errorf("from = %q", msg.From)
	}
	if len(msg.To) != 1 || msg.To[0] != "me@example.com" {
		t.Errorf("to = %v", msg.To)
	}
	if len(msg.Cc) != 1 || msg.Cc[0] != "bob@example.com" {
		t.Errorf("cc = %v", msg.Cc)
	}
	if msg.Subject != "Project sync" {
		t.Errorf("subject = %q", msg.Subject)
	}
	if msg.RFCMessageID != "<abc123@mail.example.com>" {
		t.Errorf("message id = %q", msg.RFCMessageID)
	}
	if !strings.Contains(msg.BodyText, "find a time to meet") {
		t.Errorf("body text = %q", msg.BodyText)
	}
	if !strings.Contains(msg.BodyHTML, "<p>") {
		t.Errorf("body html = %q", msg.BodyHTML)
	}
	if msg.SentAt.IsZero() {
		t.Error("date not parsed")
	}
}

func TestParseRawPlainOnly(t *testing.T) {
	raw := "From: alice@example.com\r\n" +
		"To: me@example.com\r\n" +
		"Subject: Quick question\r\n" +
		"Content-Type: text/plain; charset=utf-8\r\n" +
		"\r\n" +
		"Does Tuesday work?\r\n"

	msg, err := parseRaw([]byte(raw))
	if err != nil {
		t.Fatalf("parseRaw: %v", err)
	}
	if !strings.Contains(msg.BodyText, "Does Tuesday work?") {
		t.Errorf("body text = %q", msg.BodyText)
	}
	if msg.BodyHTML != "" {
		t.Errorf("unexpected html body %q", msg.BodyHTML)
	}
}

func TestSanitizeHeaderStripsInjection(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Re: Project sync", "Re: Project sync"},
		{"evil\r\nBcc: victim@example.com", "evilBcc: victim@example.com"},
		{"tabs\tand\x00nulls", "tabsandnulls"},
	}
	for _, tt := range tests {
		if got := sanitizeHeader(tt.in); got != tt.want {
			t.Errorf("sanitizeHeader(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
