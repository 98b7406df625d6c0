package smtp

import (
	"fmt"
	smtpPkg "net/smtp"
	"os"
	"strings"
)

// Confirmation is what the caller is told once a ticket is recorded.
type Confirmation struct {
	TicketID        string
	UseCase         string
	Priority        string
	ResponseMinutes int
	Articles        []string
}

type ItfSmtp interface {
	SendTicketConfirmation(to string, c Confirmation) error
}

type sendFunc func(addr string, a smtpPkg.Auth, from string, to []string, msg []byte) error

type smtp struct {
	auth smtpPkg.Auth
	mail string
	addr string
	send sendFunc
}

func New() ItfSmtp {
	mail := os.Getenv("SMTP_MAIL")
	password := os.Getenv("SMTP_PASSWORD")
	host := os.Getenv("SMTP_HOST")
	if host == "" {
		host = "smtp.gmail.com"
	}
	port := os.Getenv("SMTP_PORT")
	if port == "" {
		port = "587"
	}
	auth := smtpPkg.PlainAuth("", mail, password, host)

	return &smtp{auth: auth, mail: mail, addr: host + ":" + port, send: smtpPkg.SendMail}
}

func (s *smtp) SendTicketConfirmation(to string, c Confirmation) error {
	msg := ConfirmationMessage(s.mail, to, c)
	if err := s.send(s.addr, s.auth, s.mail, []string{to}, msg); err != nil {
		return err
	}
	return nil
}

func ConfirmationMessage(from, to string, c Confirmation) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", to)
	fmt.Fprintf(&b, "Subject: Ticket %s received\r\n", c.TicketID)
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n\r\n")
	fmt.Fprintf(&b, "Your %s request has been recorded as ticket %s.\r\n", c.UseCase, c.TicketID)
	fmt.Fprintf(&b, "Priority: %s. Estimated response time: %d minutes.\r\n", c.Priority, c.ResponseMinutes)
	if len(c.Articles) > 0 {
		b.WriteString("\r\nWhile you wait:\r\n")
		for _, a := range c.Articles {
			fmt.Fprintf(&b, " - %s\r\n", a)
		}
	}
	return []byte(b.String())
}
