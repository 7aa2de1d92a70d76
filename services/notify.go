package services

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"html"
	"io"
	"log/slog"
	"net/mail"
	"strings"

	"github.com/pocketbase/pocketbase/core"
	"github.com/pocketbase/pocketbase/tools/mailer"
	pubnub "github.com/pubnub/go/v7"

	"unipass/models"
	"unipass/utils"
)

// Notifier receives ticket lifecycle events after the fact. Implementations
// are best-effort: they log their own failures and never report them back,
// so a dead mail relay or event bus cannot fail an issuance or a scan.
type Notifier interface {
	TicketCreated(ctx context.Context, t *models.Ticket)
	TicketScanned(ctx context.Context, t *models.Ticket)
}

// TicketMailer sends the issuance email with the QR code inlined.
type TicketMailer struct {
	app     core.App
	from    mail.Address
	breaker *utils.Breaker
}

func NewTicketMailer(app core.App, fromAddress, fromName string) *TicketMailer {
	return &TicketMailer{
		app:     app,
		from:    mail.Address{Name: fromName, Address: fromAddress},
		breaker: utils.NewBreaker("ticket-mail"),
	}
}

func (m *TicketMailer) TicketCreated(ctx context.Context, t *models.Ticket) {
	if m.from.Address == "" {
		slog.Warn("mail sender not configured, ticket email skipped", "mail", t.Mail)
		return
	}

	msg := &mailer.Message{
		From:    m.from,
		To:      []mail.Address{{Name: t.Name, Address: t.Mail}},
		Subject: fmt.Sprintf("Your mobile ticket (%s)", t.TicketNumber),
		HTML:    ticketMailBody(t),
	}

	if png, err := qrPNGFromDataURL(t.QRCode); err == nil {
		msg.InlineAttachments = map[string]io.Reader{
			"qr-code.png": bytes.NewReader(png),
		}
	} else {
		slog.Warn("ticket email sent without qr attachment", "ticket_number", t.TicketNumber, "error", err)
	}

	err := m.breaker.Do(func() error {
		return m.app.NewMailClient().Send(msg)
	})
	if err != nil {
		slog.Warn("ticket email failed", "ticket_number", t.TicketNumber, "mail", t.Mail, "error", err)
		return
	}
	slog.Info("ticket email sent", "ticket_number", t.TicketNumber, "mail", t.Mail)
}

func (m *TicketMailer) TicketScanned(ctx context.Context, t *models.Ticket) {
	// No mail on scan.
}

func ticketMailBody(t *models.Ticket) string {
	var b strings.Builder
	b.WriteString(`<div style="max-width:600px;margin:0 auto;font-family:sans-serif;">`)
	b.WriteString(`<h1 style="font-size:24px;">Your ticket is ready</h1>`)
	fmt.Fprintf(&b, `<p>Hi %s, your ticket has been issued successfully.</p>`, html.EscapeString(t.Name))
	fmt.Fprintf(&b, `<p style="font-size:28px;font-family:monospace;letter-spacing:2px;">%s</p>`, html.EscapeString(t.TicketNumber))
	b.WriteString(`<table style="width:100%;">`)
	fmt.Fprintf(&b, `<tr><td>Name:</td><td align="right">%s</td></tr>`, html.EscapeString(t.Name))
	fmt.Fprintf(&b, `<tr><td>Email:</td><td align="right">%s</td></tr>`, html.EscapeString(t.Mail))
	fmt.Fprintf(&b, `<tr><td>Issued:</td><td align="right">%s</td></tr>`, t.CreatedAt.Format("Jan 2, 2006 15:04"))
	b.WriteString(`</table>`)
	b.WriteString(`<p><strong>Scan at entry:</strong></p>`)
	b.WriteString(`<img src="cid:qr-code.png" alt="QR code" style="width:180px;height:180px;" />`)
	b.WriteString(`<p style="font-size:13px;">This ticket is for one-time use only. Once scanned, it cannot be used again.</p>`)
	b.WriteString(`</div>`)
	return b.String()
}

func qrPNGFromDataURL(dataURL string) ([]byte, error) {
	encoded, ok := strings.CutPrefix(dataURL, qrDataURLPrefix)
	if !ok {
		return nil, fmt.Errorf("unexpected qr payload prefix")
	}
	return base64.StdEncoding.DecodeString(encoded)
}

// EventPublisher pushes ticket events to PubNub for the live attendee
// dashboard.
type EventPublisher struct {
	pn      *pubnub.PubNub
	channel string
}

func NewEventPublisher(pn *pubnub.PubNub, channel string) *EventPublisher {
	return &EventPublisher{pn: pn, channel: channel}
}

func (p *EventPublisher) TicketCreated(ctx context.Context, t *models.Ticket) {
	p.publish("ticket_created", t)
}

func (p *EventPublisher) TicketScanned(ctx context.Context, t *models.Ticket) {
	p.publish("ticket_scanned", t)
}

func (p *EventPublisher) publish(event string, t *models.Ticket) {
	message := map[string]any{
		"type":          event,
		"ticket_number": t.TicketNumber,
		"serial_number": t.SerialNumber,
		"name":          t.Name,
	}
	if t.ScannedAt != nil {
		message["scanned_at"] = t.ScannedAt.UTC()
	}

	_, _, err := p.pn.Publish().
		Channel(p.channel).
		Message(message).
		Execute()
	if err != nil {
		slog.Warn("pubnub publish failed", "event", event, "ticket_number", t.TicketNumber, "error", err)
	}
}
