package email

import (
	"fmt"
	"net/mail"
	"strings"
	"sync"

	"github.com/sumitkpand3y/log-book-api/core"
)

// consoleService prints emails to the log instead of delivering them.
type consoleService struct {
	conf   *core.Config
	logger core.Logger
}

var _ core.EmailService = (*consoleService)(nil)

func NewConsoleService(conf *core.Config, logger core.Logger) core.EmailService {
	return &consoleService{conf: conf, logger: logger}
}

// SendMessages prints each message on its own goroutine and returns
// immediately, mirroring the real service's fire-and-forget contract.
func (svc *consoleService) SendMessages(messages ...*core.EmailMessage) {
	for _, msg := range messages {
		if !msg.HasRecipients() {
			continue
		}
		go svc.print(msg)
	}
}

func (svc *consoleService) print(msg *core.EmailMessage) {
	if err := msg.Render(svc.conf); err != nil {
		svc.logger.Error("rendering email", err)
		return
	}
	svc.logger.Info(fmt.Sprintf(
		"email\nTo: %s\nSubject: %s\n%s",
		joinAddresses(msg.To), msg.Subject, msg.TextContent,
	))
}

func joinAddresses(addrs []mail.Address) string {
	parts := make([]string, len(addrs))
	for i, addr := range addrs {
		parts[i] = addr.String()
	}
	return strings.Join(parts, ", ")
}

// ServiceMock records sent messages for assertions.
type ServiceMock struct {
	mu           sync.Mutex
	SentMessages []*core.EmailMessage
}

var _ core.EmailService = (*ServiceMock)(nil)

func NewServiceMock() *ServiceMock {
	return &ServiceMock{}
}

func (svc *ServiceMock) SendMessages(messages ...*core.EmailMessage) {
	svc.mu.Lock()
	defer svc.mu.Unlock()

	for _, msg := range messages {
		if msg.HasRecipients() {
			svc.SentMessages = append(svc.SentMessages, msg)
		}
	}
}

func (svc *ServiceMock) Sent() []*core.EmailMessage {
	svc.mu.Lock()
	defer svc.mu.Unlock()

	sent := make([]*core.EmailMessage, len(svc.SentMessages))
	copy(sent, svc.SentMessages)
	return sent
}
