package email_test

import (
	"net/mail"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sumitkpand3y/log-book-api/core"
	"github.com/sumitkpand3y/log-book-api/services/email"
)

// gateLogger blocks Info until released, to observe delivery in flight.
type gateLogger struct {
	gate  chan struct{}
	calls chan string
}

func newGateLogger() *gateLogger {
	return &gateLogger{gate: make(chan struct{}), calls: make(chan string, 8)}
}

func (l *gateLogger) Debug(msg string, args ...interface{}) {}
func (l *gateLogger) Info(msg string, args ...interface{}) {
	l.calls <- msg
	<-l.gate
}
func (l *gateLogger) Warn(msg string, args ...interface{})  {}
func (l *gateLogger) Error(msg string, args ...interface{}) {}
func (l *gateLogger) Fatal(msg string, args ...interface{}) {}

func TestConsoleServiceDoesNotAwaitDelivery(t *testing.T) {
	lg := newGateLogger()
	svc := email.NewConsoleService(&core.Config{}, lg)

	msg := &core.EmailMessage{
		To:      []mail.Address{{Name: "Amina", Address: "amina@example.test"}},
		Subject: "CASE-2024-001 approved",
		BodyStr: "Your case was approved.",
	}

	returned := make(chan struct{})
	go func() {
		svc.SendMessages(msg)
		close(returned)
	}()

	select {
	case <-returned:
	case <-time.After(time.Second):
		t.Fatal("SendMessages awaited delivery")
	}

	// delivery still happens once the sink unblocks
	close(lg.gate)
	select {
	case logged := <-lg.calls:
		assert.Contains(t, logged, "CASE-2024-001 approved")
	case <-time.After(time.Second):
		t.Fatal("message was never delivered")
	}
}

func TestServiceMockSkipsMessagesWithoutRecipients(t *testing.T) {
	svc := email.NewServiceMock()
	svc.SendMessages(
		&core.EmailMessage{Subject: "dropped"},
		&core.EmailMessage{To: []mail.Address{{Address: "ben@example.test"}}, Subject: "kept"},
	)

	sent := svc.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "kept", sent[0].Subject)
}
