package email

import "net/mail"

type (
	// Message is a renderable email.
	Message struct {
		To          []mail.Address
		Subject     string
		TextContent string
		HTMLContent string
	}

	// Service is any service that can send emails.
	Service interface {
		// SendMessages sends messages concurrently.
		SendMessages(messages ...*Message)
	}
)

func (m *Message) HasRecipients() bool { return len(m.To) > 0 }
func (m *Message) HasContent() bool    { return (m.TextContent != "") || (m.HTMLContent != "") }
