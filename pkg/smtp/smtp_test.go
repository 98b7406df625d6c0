package smtp

import (
	"errors"
	smtpPkg "net/smtp"
	"strings"
	"testing"
)

func TestSendTicketConfirmation(t *testing.T) {
	t.Parallel()

	var gotAddr string
	var gotTo []string
	var gotMsg string

	s := &smtp{
		mail: "support@audiogami.test",
		addr: "mail.test:587",
		send: func(addr string, a smtpPkg.Auth, from string, to []string, msg []byte) error {
			gotAddr, gotTo, gotMsg = addr, to, string(msg)
			return nil
		},
	}

	err := s.SendTicketConfirmation("caller@example.com", Confirmation{
		TicketID:        "01HX",
		UseCase:         "IT Support",
		Priority:        "high",
		ResponseMinutes: 20,
		Articles:        []string{"Restart your computer"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if gotAddr != "mail.test:587" || len(gotTo) != 1 || gotTo[0] != "caller@example.com" {
		t.Fatalf("unexpected envelope %s %v", gotAddr, gotTo)
	}
	for _, want := range []string{"Subject: Ticket 01HX received", "20 minutes", " - Restart your computer"} {
		if !strings.Contains(gotMsg, want) {
			t.Errorf("message lacks %q:\n%s", want, gotMsg)
		}
	}
}

func TestSendTicketConfirmationError(t *testing.T) {
	t.Parallel()

	boom := errors.New("relay refused")
	s := &smtp{send: func(string, smtpPkg.Auth, string, []string, []byte) error { return boom }}
	if err := s.SendTicketConfirmation("a@b.c", Confirmation{TicketID: "x"}); !errors.Is(err, boom) {
		t.Fatalf("expected relay error, got %v", err)
	}
}
