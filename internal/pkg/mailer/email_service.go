package mailer

import (
	"fmt"
	"html"
	"strings"
	"time"

	"gopkg.in/gomail.v2"
)

// HandoffNotice is what the support inbox receives when a conversation is
// handed to a human agent
type HandoffNotice struct {
	SessionID   string
	Reason      string
	Category    string
	Frustration string
	Identifiers []string
	Transcript  []string
	At          time.Time
	ConsoleURL  string
}

type IEmailService interface {
	SendHandoff(toEmail string, notice HandoffNotice) error
}

type emailService struct {
	dialer      *gomail.Dialer
	senderEmail string
	senderName  string
}

func NewEmailService(host string, port int, username, password, senderName string) IEmailService {
	d := gomail.NewDialer(host, port, username, password)

	return &emailService{
		dialer:      d,
		senderEmail: username,
		senderName:  senderName,
	}
}

func (s *emailService) SendHandoff(toEmail string, notice HandoffNotice) error {
	m := gomail.NewMessage()
	m.SetAddressHeader("From", s.senderEmail, s.senderName)
	m.SetHeader("To", toEmail)
	m.SetHeader("Subject", fmt.Sprintf("[Hand-off] %s conversation %s", notice.Category, notice.SessionID))
	m.SetBody("text/html", RenderHandoff(notice))

	if err := s.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("send hand-off for %s: %w", notice.SessionID, err)
	}
	return nil
}

// RenderHandoff builds the HTML body. User text is escaped.
func RenderHandoff(n HandoffNotice) string {
	var lines strings.Builder
	for _, t := range n.Transcript {
		fmt.Fprintf(&lines, "<li>%s</li>", html.EscapeString(t))
	}

	ids := "-"
	if len(n.Identifiers) > 0 {
		ids = html.EscapeString(strings.Join(n.Identifiers, ", "))
	}

	link := ""
	if n.ConsoleURL != "" {
		link = fmt.Sprintf(`<p><a href="%s">Open in console</a></p>`, html.EscapeString(n.ConsoleURL))
	}

	return fmt.Sprintf(`
		<div style="font-family: Arial, sans-serif; padding: 20px; color: #333;">
			<h2>Conversation handed to a human agent</h2>
			<p><b>Session:</b> %s</p>
			<p><b>Reason:</b> %s</p>
			<p><b>Issue:</b> %s</p>
			<p><b>Frustration:</b> %s</p>
			<p><b>Shipments:</b> %s</p>
			<p><b>Escalated at:</b> %s</p>
			<h3>Recent messages</h3>
			<ul>%s</ul>
			%s
		</div>
	`,
		html.EscapeString(n.SessionID),
		html.EscapeString(n.Reason),
		html.EscapeString(n.Category),
		html.EscapeString(n.Frustration),
		ids,
		n.At.UTC().Format(time.RFC1123),
		lines.String(),
		link,
	)
}
