package notify

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/frontdeskhq/callback-platform/internal/business"
	"github.com/frontdeskhq/callback-platform/internal/conversation"
	"github.com/frontdeskhq/callback-platform/pkg/logging"
)

type capturingSender struct {
	sent []EmailMessage
	err  error
}

func (c *capturingSender) Send(ctx context.Context, msg EmailMessage) error {
	c.sent = append(c.sent, msg)
	return c.err
}

func TestNotifyEscalationEmailsOwner(t *testing.T) {
	sender := &capturingSender{}
	svc := NewService(sender, logging.Default())

	biz := &business.Business{
		ID:         "biz-1",
		Name:       "Lakeside Dental",
		OwnerEmail: "owner@lakeside.example",
	}
	conv := &conversation.Conversation{
		ID:               "conv-1",
		CallerName:       "Dana",
		CallerPhone:      "+15550199",
		ServiceRequested: "cleaning",
	}

	if err := svc.NotifyEscalation(context.Background(), biz, conv, "caller asked about insurance"); err != nil {
		t.Fatalf("notify: %v", err)
	}
	if len(sender.sent) != 1 {
		t.Fatalf("expected one email, got %d", len(sender.sent))
	}
	msg := sender.sent[0]
	if msg.To != "owner@lakeside.example" {
		t.Errorf("unexpected recipient %q", msg.To)
	}
	if !strings.Contains(msg.Subject, "Dana") {
		t.Errorf("subject should name the caller, got %q", msg.Subject)
	}
	for _, want := range []string{"+15550199", "caller asked about insurance", "cleaning"} {
		if !strings.Contains(msg.Body, want) {
			t.Errorf("body missing %q:\n%s", want, msg.Body)
		}
	}
}

func TestNotifyEscalationFallsBackToPhone(t *testing.T) {
	sender := &capturingSender{}
	svc := NewService(sender, logging.Default())

	biz := &business.Business{ID: "biz-1", Name: "Lakeside Dental", OwnerEmail: "owner@lakeside.example"}
	conv := &conversation.Conversation{ID: "conv-1", CallerPhone: "+15550199"}

	if err := svc.NotifyEscalation(context.Background(), biz, conv, ""); err != nil {
		t.Fatalf("notify: %v", err)
	}
	if !strings.Contains(sender.sent[0].Subject, "+15550199") {
		t.Errorf("anonymous callers should be identified by phone, got %q", sender.sent[0].Subject)
	}
}

func TestNotifyEscalationWithoutOwnerEmailLogsOnly(t *testing.T) {
	sender := &capturingSender{}
	svc := NewService(sender, logging.Default())

	biz := &business.Business{ID: "biz-1", Name: "Lakeside Dental"}
	conv := &conversation.Conversation{ID: "conv-1", CallerPhone: "+15550199"}

	if err := svc.NotifyEscalation(context.Background(), biz, conv, "reason"); err != nil {
		t.Fatalf("notify: %v", err)
	}
	if len(sender.sent) != 0 {
		t.Fatal("no owner email configured, nothing should be sent")
	}
}

func TestNotifyEscalationWrapsSendErrors(t *testing.T) {
	sender := &capturingSender{err: errors.New("sendgrid down")}
	svc := NewService(sender, logging.Default())

	biz := &business.Business{ID: "biz-1", Name: "Lakeside Dental", OwnerEmail: "owner@lakeside.example"}
	conv := &conversation.Conversation{ID: "conv-1", CallerPhone: "+15550199"}

	err := svc.NotifyEscalation(context.Background(), biz, conv, "reason")
	if err == nil || !strings.Contains(err.Error(), "sendgrid down") {
		t.Fatalf("expected wrapped send error, got %v", err)
	}
}

func TestNotifyEscalationRejectsNilInputs(t *testing.T) {
	svc := NewService(&capturingSender{}, logging.Default())
	if err := svc.NotifyEscalation(context.Background(), nil, nil, "reason"); err == nil {
		t.Fatal("expected error for nil business and conversation")
	}
}
