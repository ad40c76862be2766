package emailpipeline

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"
)

// SMTPForwarder delivers a routed message to its destination workstream
// address over SMTP, BCC'ing an audit mailbox when configured.
//
// Grounded on this package's WebhookNotifier (notify.go): a thin typed
// wrapper around a stdlib network client rather than a pulled-in
// third-party mail library, since none of the reference stack carries one.
type SMTPForwarder struct {
	addr     string
	from     string
	auditBCC string
	auth     smtp.Auth
}

// NewSMTPForwarder builds a forwarder against an SMTP relay at addr
// (host:port). auth may be nil for relays that accept unauthenticated
// submission from a trusted network.
func NewSMTPForwarder(addr, from, auditBCC string, auth smtp.Auth) *SMTPForwarder {
	return &SMTPForwarder{addr: addr, from: from, auditBCC: auditBCC, auth: auth}
}

// Forward sends msg to destination, BCC'ing auditBCC when set. It matches
// the Config.Forward signature so forwardWithRetry can call it directly.
func (f *SMTPForwarder) Forward(ctx context.Context, msg Message, destination string) error {
	if destination == "" {
		return fmt.Errorf("emailpipeline: forward destination empty")
	}

	recipients := []string{destination}
	if f.auditBCC != "" {
		recipients = append(recipients, f.auditBCC)
	}

	body := buildMIME(msg, f.from, destination)

	return smtpSendMail(ctx, f.addr, f.auth, f.from, recipients, body)
}

// smtpSendMail wraps smtp.SendMail behind a var so tests can stub delivery
// without a live relay.
var smtpSendMail = func(ctx context.Context, addr string, auth smtp.Auth, from string, to []string, body []byte) error {
	return smtp.SendMail(addr, auth, from, to, body)
}

func buildMIME(msg Message, from, destination string) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", destination)
	fmt.Fprintf(&b, "Subject: %s\r\n", msg.Subject)
	for k, v := range msg.Headers {
		fmt.Fprintf(&b, "%s: %s\r\n", k, v)
	}
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(msg.BodyText)
	return []byte(b.String())
}
