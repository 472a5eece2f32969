package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"

	"github.com/meridianinvest/platform/internal/models"
)

// EmailService defines the interface for sending transactional email
type EmailService interface {
	SendVerificationCode(ctx context.Context, email, code string, expiresAt time.Time) error
	SendSecurityAlert(ctx context.Context, recipient string, event *models.SecurityEvent) error
}

// AWSSESEmailService sends emails using AWS SES
type AWSSESEmailService struct {
	sesClient   *ses.Client
	fromAddress string
	logger      *slog.Logger
}

// NewAWSSESEmailService creates a new AWS SES email service
func NewAWSSESEmailService(region, fromAddress string, logger *slog.Logger) (*AWSSESEmailService, error) {
	cfg, err := config.LoadDefaultConfig(context.Background(), config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &AWSSESEmailService{
		sesClient:   ses.NewFromConfig(cfg),
		fromAddress: fromAddress,
		logger:      logger,
	}, nil
}

// SendVerificationCode emails a one-time payment verification code. The code
// is only ever sent here; the server stores a hash.
func (s *AWSSESEmailService) SendVerificationCode(ctx context.Context, email, code string, expiresAt time.Time) error {
	minutes := int(time.Until(expiresAt).Round(time.Minute).Minutes())

	textBody := fmt.Sprintf(`Payment Verification Code

Your verification code for this payment is:

    %s

Enter this code to authorize the payment. The code expires in %d minutes
and can be used once.

Didn't attempt this payment?
Do not share this code with anyone and contact our support team immediately.

This is an automated message. Please do not reply to this email.
`, code, minutes)

	input := &ses.SendEmailInput{
		Source: aws.String(s.fromAddress),
		Destination: &types.Destination{
			ToAddresses: []string{email},
		},
		Message: &types.Message{
			Subject: &types.Content{
				Data: aws.String("Your payment verification code"),
			},
			Body: &types.Body{
				Text: &types.Content{
					Data: aws.String(textBody),
				},
			},
		},
	}

	result, err := s.sesClient.SendEmail(ctx, input)
	if err != nil {
		s.logger.Error("failed to send verification code via SES",
			slog.String("email", email),
			slog.Any("error", err))
		return fmt.Errorf("failed to send email: %w", err)
	}

	s.logger.Info("verification code email sent",
		slog.String("email", email),
		slog.String("message_id", *result.MessageId))

	return nil
}

// SendSecurityAlert notifies the security recipient about a high-severity
// event.
func (s *AWSSESEmailService) SendSecurityAlert(ctx context.Context, recipient string, event *models.SecurityEvent) error {
	userID := "anonymous"
	if event.UserID != nil {
		userID = event.UserID.String()
	}
	ipAddress := "unknown"
	if event.IPAddress != nil {
		ipAddress = *event.IPAddress
	}

	textBody := fmt.Sprintf(`Security Alert

A %s severity security event was recorded.

Event type: %s
User:       %s
IP address: %s
Time:       %s

Review the security event log for details.
`, event.Severity, event.EventType, userID, ipAddress, event.CreatedAt.UTC().Format(time.RFC3339))

	input := &ses.SendEmailInput{
		Source: aws.String(s.fromAddress),
		Destination: &types.Destination{
			ToAddresses: []string{recipient},
		},
		Message: &types.Message{
			Subject: &types.Content{
				Data: aws.String(fmt.Sprintf("[%s] Security alert: %s", event.Severity, event.EventType)),
			},
			Body: &types.Body{
				Text: &types.Content{
					Data: aws.String(textBody),
				},
			},
		},
	}

	result, err := s.sesClient.SendEmail(ctx, input)
	if err != nil {
		s.logger.Error("failed to send security alert via SES",
			slog.String("recipient", recipient),
			slog.Any("error", err))
		return fmt.Errorf("failed to send email: %w", err)
	}

	s.logger.Info("security alert sent",
		slog.String("recipient", recipient),
		slog.String("event_type", event.EventType),
		slog.String("message_id", *result.MessageId))

	return nil
}
