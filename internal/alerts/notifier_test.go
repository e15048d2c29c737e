package alerts

import (
	"context"
	"errors"
	"net/smtp"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/Sakeswap/sakeperp-arbitrageur/internal/config"
)

type captureSender struct {
	subjects []string
	err      error
}

func (c *captureSender) Send(ctx context.Context, subject, body string) error {
	c.subjects = append(c.subjects, subject)
	return c.err
}

func TestNotifierThrottlesRepeatedSubject(t *testing.T) {
	sender := &captureSender{}
	n := NewNotifier(sender, zap.NewNop(), nil)

	ctx := context.Background()
	n.Notify(ctx, "GasNotEnough", "balance 0.1")
	n.Notify(ctx, "GasNotEnough", "balance 0.1")
	n.Notify(ctx, "PositionSizeNotMatch", "diff 6")

	if len(sender.subjects) != 2 {
		t.Fatalf("sent %d notifications, want 2: %v", len(sender.subjects), sender.subjects)
	}
	if sender.subjects[0] != "GasNotEnough" || sender.subjects[1] != "PositionSizeNotMatch" {
		t.Fatalf("subjects = %v", sender.subjects)
	}
}

func TestNotifierSwallowsSendErrors(t *testing.T) {
	sender := &captureSender{err: errors.New("smtp down")}
	n := NewNotifier(sender, zap.NewNop(), nil)
	n.Notify(context.Background(), "subject", "body")
	// Reaching here without a panic or returned error is the contract.
}

func TestNotifierNilSenderLogsOnly(t *testing.T) {
	n := NewNotifier(nil, zap.NewNop(), nil)
	n.Notify(context.Background(), "subject", "body")
}

func TestSMTPSenderDisabledWithoutCreds(t *testing.T) {
	if s := NewSMTPSender(config.EmailConfig{Host: "smtp.example.com"}); s != nil {
		t.Fatal("sender without user/recipient should be nil")
	}
}

func TestSMTPSenderMessage(t *testing.T) {
	s := NewSMTPSender(config.EmailConfig{
		Host: "smtp.example.com",
		Port: 587,
		User: "bot@example.com",
		Pass: "pw",
		To:   "ops@example.com,oncall@example.com",
	})
	if s == nil {
		t.Fatal("sender should be configured")
	}
	var gotAddr, gotMsg string
	var gotTo []string
	s.send = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotTo, gotMsg = addr, to, string(msg)
		return nil
	}
	if err := s.Send(context.Background(), "MarginLow", "ratio 0.05"); err != nil {
		t.Fatal(err)
	}
	if gotAddr != "smtp.example.com:587" {
		t.Fatalf("addr = %s", gotAddr)
	}
	if len(gotTo) != 2 {
		t.Fatalf("to = %v", gotTo)
	}
	if !strings.Contains(gotMsg, "Subject: MarginLow") || !strings.Contains(gotMsg, "ratio 0.05") {
		t.Fatalf("message = %q", gotMsg)
	}
}
