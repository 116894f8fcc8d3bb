package email

import (
	"context"
	"fmt"
	"strings"
)

// TemplateElement is used by a renderer to identify the different parts of an email template.
type TemplateElement string

const (
	ElementSubject TemplateElement = "subject"
	ElementBody    TemplateElement = "body"
)

// Renderer is responsible for rendering email templates.
type Renderer interface {
	Render(ctx context.Context, name string, element TemplateElement, data any) (string, error)
}

// Sender is responsible for actually sending an email.
// The body is a HTML document.
type Sender interface {
	Send(ctx context.Context, from, recipient Address, subject, body string) error
}

// Service renders named email templates and hands the result to a sender.
type Service struct {
	renderer Renderer
	sender   Sender
	from     Address
}

func NewService(renderer Renderer, sender Sender, from Address) *Service {
	return &Service{
		renderer: renderer,
		sender:   sender,
		from:     from,
	}
}

// Send renders the subject and body elements of the named template with
// the provided data and sends the result to the recipient.
func (s *Service) Send(ctx context.Context, name string, recipient Address, data any) error {
	subject, err := s.renderer.Render(ctx, name, ElementSubject, data)
	if err != nil {
		return fmt.Errorf("failed to render subject of %q: %w", name, err)
	}

	body, err := s.renderer.Render(ctx, name, ElementBody, data)
	if err != nil {
		return fmt.Errorf("failed to render body of %q: %w", name, err)
	}

	// Subjects are rendered from templates that may contain surrounding
	// whitespace or newlines, neither belongs in a subject header.
	subject = strings.Join(strings.Fields(subject), " ")

	err = s.sender.Send(ctx, s.from, recipient, subject, body)
	if err != nil {
		return fmt.Errorf("failed to send %q email: %w", name, err)
	}

	return nil
}
