package notify

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"
	"time"
)

// EmailNotifier sends a plain-text alert mail through an SMTP relay.
// Plain SMTP with STARTTLS covers the usual relays; there is no
// attachment support.
type EmailNotifier struct {
	addr string
	auth smtp.Auth
	from string
	to   []string

	// send is smtp.SendMail in production.
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func NewEmailNotifier(host string, port int, username, password, from string, to []string) *EmailNotifier {
	var auth smtp.Auth
	if username != "" {
		auth = smtp.PlainAuth("", username, password, host)
	}
	if from == "" {
		from = username
	}
	return &EmailNotifier{
		addr: fmt.Sprintf("%s:%d", host, port),
		auth: auth,
		from: from,
		to:   to,
		send: smtp.SendMail,
	}
}

func (e *EmailNotifier) Name() string { return "email" }

func (e *EmailNotifier) Notify(ctx context.Context, event Event) error {
	// net/smtp has no context support; honor cancellation up front.
	if err := ctx.Err(); err != nil {
		return err
	}

	msg := formatEmailMessage(e.from, e.to, event)
	if err := e.send(e.addr, e.auth, e.from, e.to, msg); err != nil {
		return fmt.Errorf("smtp delivery failed: %w", err)
	}
	return nil
}

func formatEmailMessage(from string, to []string, event Event) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(to, ", "))
	fmt.Fprintf(&b, "Subject: [%s] %s\r\n", event.Kind, event.ASIN)
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	b.WriteString("\r\n")

	fmt.Fprintf(&b, "Product alert\r\n\r\n")
	fmt.Fprintf(&b, "ASIN: %s\r\n", event.ASIN)
	fmt.Fprintf(&b, "Kind: %s\r\n", event.Kind)

	if snap := event.Snapshot; snap != nil {
		if snap.Title != "" {
			fmt.Fprintf(&b, "Title: %s\r\n", snap.Title)
		}
		if snap.Price != nil {
			fmt.Fprintf(&b, "Price: %s\r\n", snap.Price)
		}
		fmt.Fprintf(&b, "Stock: %s\r\n", snap.Stock)
	}
	if attempt := event.Attempt; attempt != nil {
		fmt.Fprintf(&b, "Outcome: %s\r\n", attempt.Outcome)
		fmt.Fprintf(&b, "Reason: %s\r\n", attempt.Reason)
	}

	fmt.Fprintf(&b, "\r\nObserved at: %s\r\n", event.At.Format(time.RFC3339))
	return []byte(b.String())
}
