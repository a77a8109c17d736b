// Package external holds clients for services outside the database: the
// SES mail provider and the placeholder-substituting content renderer.
package external

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	sestypes "github.com/aws/aws-sdk-go-v2/service/sesv2/types"

	"coursepulse/internal/types"
)

// SESAPI defines the subset of the SES v2 client used by SESClient.
// Extracted for testability — tests can provide a mock implementation.
type SESAPI interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// SESClientConfig holds the configuration for creating an SESClient.
type SESClientConfig struct {
	// ConfigSetName is the SES configuration set name for tracking.
	// Optional; if empty, no configuration set is used.
	ConfigSetName string
	Logger        types.Logger
}

// SESClient implements types.MailTransport using AWS SES v2.
// Authentication is handled via IAM roles (no API key required).
// The AWS SDK provides built-in retry logic; the dispatch loop's circuit
// breaker sits above this client.
type SESClient struct {
	api           SESAPI
	configSetName string
	logger        types.Logger
}

// NewSESClient creates a new SESClient from an AWS config.
func NewSESClient(awsCfg aws.Config, cfg SESClientConfig) *SESClient {
	return &SESClient{
		api:           sesv2.NewFromConfig(awsCfg),
		configSetName: cfg.ConfigSetName,
		logger:        cfg.Logger,
	}
}

// NewSESClientWithAPI creates an SESClient with a pre-configured SESAPI.
// Useful for testing with a mock SES interface.
func NewSESClientWithAPI(api SESAPI, cfg SESClientConfig) *SESClient {
	return &SESClient{
		api:           api,
		configSetName: cfg.ConfigSetName,
		logger:        cfg.Logger,
	}
}

// Send transmits one message using SES v2 SendEmail with simple content.
// The request carries pre-rendered content — no server-side templates.
//
// Error mapping:
//   - MessageRejected → ErrCodeMailBlocked
//   - TooManyRequestsException → ErrCodeUpstreamRateLimit
//   - SendingPausedException → ErrCodeUpstreamMail
//   - Other → ErrCodeUpstreamMail
func (s *SESClient) Send(ctx context.Context, req types.SendRequest) error {
	fromAddr := fmt.Sprintf("%s <%s>", req.From.Name, req.From.Address)
	if req.From.Name == "" {
		fromAddr = req.From.Address
	}

	emailInput := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(fromAddr),
		Destination: &sestypes.Destination{
			ToAddresses:  []string{req.To.Email},
			CcAddresses:  addresses(req.CC),
			BccAddresses: addresses(req.BCC),
		},
		Content: &sestypes.EmailContent{
			Simple: &sestypes.Message{
				Subject: &sestypes.Content{
					Data:    aws.String(req.Subject),
					Charset: aws.String("UTF-8"),
				},
				Body: &sestypes.Body{},
			},
		},
	}

	if req.BodyHTML != "" {
		emailInput.Content.Simple.Body.Html = &sestypes.Content{
			Data:    aws.String(req.BodyHTML),
			Charset: aws.String("UTF-8"),
		}
	}
	if req.BodyText != "" {
		emailInput.Content.Simple.Body.Text = &sestypes.Content{
			Data:    aws.String(req.BodyText),
			Charset: aws.String("UTF-8"),
		}
	}

	if s.configSetName != "" {
		emailInput.ConfigurationSetName = aws.String(s.configSetName)
	}

	if _, err := s.api.SendEmail(ctx, emailInput); err != nil {
		return mapSESError(err)
	}
	return nil
}

func addresses(recipients []types.Recipient) []string {
	if len(recipients) == 0 {
		return nil
	}
	out := make([]string, 0, len(recipients))
	for _, r := range recipients {
		out = append(out, r.Email)
	}
	return out
}

// mapSESError translates AWS SES errors into domain AppErrors.
func mapSESError(err error) error {
	var msgRejected *sestypes.MessageRejected
	if errors.As(err, &msgRejected) {
		return types.NewAppError(
			types.ErrCodeMailBlocked,
			fmt.Sprintf("SES rejected message: %v", err),
			err,
		)
	}

	var tooManyReqs *sestypes.TooManyRequestsException
	if errors.As(err, &tooManyReqs) {
		return types.NewAppError(
			types.ErrCodeUpstreamRateLimit,
			fmt.Sprintf("SES rate limit exceeded: %v", err),
			err,
		)
	}

	var sendingPaused *sestypes.SendingPausedException
	if errors.As(err, &sendingPaused) {
		return types.NewAppError(
			types.ErrCodeUpstreamMail,
			fmt.Sprintf("SES account sending paused: %v", err),
			err,
		)
	}

	return types.NewAppError(
		types.ErrCodeUpstreamMail,
		fmt.Sprintf("SES error: %v", err),
		err,
	)
}

// Compile-time assertion that SESClient satisfies MailTransport.
var _ types.MailTransport = (*SESClient)(nil)
