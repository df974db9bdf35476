package email

import (
	"fmt"
	"log"
	"net/mail"
	"strings"
	"sync"
	"time"
)

// ConsoleService writes messages to the log instead of sending them; it also
// records them so tests can assert on what would have gone out.
type ConsoleService struct {
	defaultFromEmail string
	subjPrefix       string

	mu   sync.Mutex
	sent []Message
}

var _ Service = (*ConsoleService)(nil)

func NewConsoleService(appName, defaultFromEmail string) *ConsoleService {
	return &ConsoleService{
		defaultFromEmail: defaultFromEmail,
		subjPrefix:       "[" + appName + "] ",
	}
}

func (svc *ConsoleService) SendMessages(messages ...*Message) {
	for _, msg := range messages {
		if msg.HasRecipients() && msg.HasContent() {
			svc.mu.Lock()
			svc.sent = append(svc.sent, *msg)
			svc.mu.Unlock()
			svc.print(*msg)
		}
	}
}

// SentMessages returns a copy of everything sent so far.
func (svc *ConsoleService) SentMessages() []Message {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	sent := make([]Message, len(svc.sent))
	copy(sent, svc.sent)
	return sent
}

func (svc *ConsoleService) print(msg Message) {
	body := &strings.Builder{}
	_, _ = fmt.Fprintf(body, "From: %s\r\n", svc.defaultFromEmail)
	_, _ = fmt.Fprintf(body, "Date: %s\r\n", time.Now().Format(time.RFC1123Z))
	_, _ = fmt.Fprintf(body, "Subject: %s\r\n", svc.subjPrefix+msg.Subject)
	_, _ = fmt.Fprintf(body, "To: %s\r\n", joinAddresses(msg.To))
	_, _ = fmt.Fprintf(body, "\r\n%s\r\n", msg.TextContent)
	log.Println(body.String())
}

func joinAddresses(addrs []mail.Address) string {
	toJoin := make([]string, 0, len(addrs))
	for _, a := range addrs {
		toJoin = append(toJoin, a.String())
	}
	return strings.Join(toJoin, ", ")
}
