package services

import (
	"context"
	"errors"
	"fmt"
	"html"
	"net/mail"
	"strings"

	"github.com/resend/resend-go/v2"

	"github.com/HammerMeetNail/livebingo/internal/logging"
	"github.com/HammerMeetNail/livebingo/internal/models"
)

var ErrInvalidEmail error = &models.ValidationError{Field: "email", Message: "enter a valid email address"}

// EmailSender delivers one message.
type EmailSender interface {
	Send(ctx context.Context, to, subject, htmlBody, textBody string) error
}

type resendEmails interface {
	SendWithContext(ctx context.Context, params *resend.SendEmailRequest) (*resend.SendEmailResponse, error)
}

type ResendSender struct {
	emails resendEmails
	from   string
}

func NewResendSender(apiKey, fromAddress, fromName string) (*ResendSender, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("resend api key is required")
	}
	from := fromAddress
	if fromName != "" {
		from = fmt.Sprintf("%s <%s>", fromName, fromAddress)
	}
	client := resend.NewClient(apiKey)
	return &ResendSender{emails: client.Emails, from: from}, nil
}

func (s *ResendSender) Send(ctx context.Context, to, subject, htmlBody, textBody string) error {
	_, err := s.emails.SendWithContext(ctx, &resend.SendEmailRequest{
		From:    s.from,
		To:      []string{to},
		Subject: subject,
		Html:    htmlBody,
		Text:    textBody,
	})
	if err != nil {
		return fmt.Errorf("sending email via resend: %w", err)
	}
	return nil
}

// ConsoleSender logs messages instead of sending them.
type ConsoleSender struct {
	logger *logging.Logger
}

func NewConsoleSender(logger *logging.Logger) *ConsoleSender {
	if logger == nil {
		logger = logging.Default
	}
	return &ConsoleSender{logger: logger}
}

func (s *ConsoleSender) Send(ctx context.Context, to, subject, htmlBody, textBody string) error {
	s.logger.Info("Email (console provider)", map[string]interface{}{
		"to":      to,
		"subject": subject,
		"body":    textBody,
	})
	return nil
}

type InviteService struct {
	sessions *SessionService
	sender   EmailSender
	baseURL  string
}

func NewInviteService(sessions *SessionService, sender EmailSender, baseURL string) *InviteService {
	return &InviteService{
		sessions: sessions,
		sender:   sender,
		baseURL:  strings.TrimRight(baseURL, "/"),
	}
}

// JoinURL is the shareable link for a session.
func JoinURL(baseURL, sessionID string) string {
	return fmt.Sprintf("%s/play/%s", strings.TrimRight(baseURL, "/"), sessionID)
}

// Send e-mails a join link for an existing session.
func (s *InviteService) Send(ctx context.Context, sessionID, inviterName, email string) error {
	addr, err := mail.ParseAddress(strings.TrimSpace(email))
	if err != nil {
		return ErrInvalidEmail
	}
	session, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return err
	}

	subject, htmlBody, textBody := buildInviteEmail(inviteEmailParams{
		Inviter: strings.TrimSpace(inviterName),
		Session: session,
		JoinURL: JoinURL(s.baseURL, session.ID),
	})
	return s.sender.Send(ctx, addr.Address, subject, htmlBody, textBody)
}

type inviteEmailParams struct {
	Inviter string
	Session *models.Session
	JoinURL string
}

func buildInviteEmail(params inviteEmailParams) (string, string, string) {
	inviter := params.Inviter
	if inviter == "" {
		inviter = "Someone"
	}
	subject := fmt.Sprintf("%s invited you to play bingo", inviter)
	preview := params.Session.Layout.Preview()

	htmlBody := fmt.Sprintf(`<!DOCTYPE html>
<html>
<head>
  <meta charset="utf-8">
  <meta name="viewport" content="width=device-width, initial-scale=1.0">
</head>
<body style="font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; max-width: 640px; margin: 0 auto; padding: 24px;">
  <h1 style="color: #333; font-size: 24px;">Live Bingo</h1>
  <p style="font-size: 18px;"><strong>%s</strong> invited you to session <strong>%s</strong>.</p>
  <p style="color: #666;">%s</p>
  <p>
    <a href="%s" style="display: inline-block; background: #0f6f62; color: white; padding: 10px 18px; text-decoration: none; border-radius: 6px; margin: 12px 0;">Join the game</a>
  </p>
  <p style="color: #666; font-size: 14px;">Or enter the code <strong>%s</strong>.</p>
</body>
</html>`,
		html.EscapeString(inviter),
		html.EscapeString(params.Session.ID),
		html.EscapeString(preview),
		html.EscapeString(params.JoinURL),
		html.EscapeString(params.Session.ID),
	)

	textBody := fmt.Sprintf(`%s invited you to play bingo.

%s

Join: %s
Code: %s`,
		inviter,
		preview,
		params.JoinURL,
		params.Session.ID,
	)

	return subject, htmlBody, textBody
}
