package email

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

const (
	ProviderLog    = "log"
	ProviderResend = "resend"

	resendEndpoint = "https://api.resend.com/emails"
	defaultSender  = "Hotel Reservations <onboarding@resend.dev>"
)

// Sender delivers one HTML email.
type Sender interface {
	Send(ctx context.Context, to, subject, htmlBody string) error
}

// LogSender writes emails to the log instead of sending them.
type LogSender struct {
	senderAddress string
	logger        zerolog.Logger
}

func NewLogSender(senderAddress string, logger zerolog.Logger) *LogSender {
	return &LogSender{senderAddress: senderAddress, logger: logger}
}

func (s *LogSender) Send(_ context.Context, to, subject, htmlBody string) error {
	s.logger.Info().
		Str("from", s.senderAddress).
		Str("to", to).
		Str("subject", subject).
		Str("body", htmlBody).
		Msg("email logged, not sent")
	return nil
}

// ResendSender sends emails through the Resend HTTP API.
type ResendSender struct {
	apiKey        string
	senderAddress string
	endpoint      string
	client        *http.Client
	logger        zerolog.Logger
}

func NewResendSender(apiKey, senderAddress string, logger zerolog.Logger) *ResendSender {
	if senderAddress == "" {
		senderAddress = defaultSender
	}
	return &ResendSender{
		apiKey:        apiKey,
		senderAddress: senderAddress,
		endpoint:      resendEndpoint,
		client:        &http.Client{Timeout: 10 * time.Second},
		logger:        logger,
	}
}

type resendPayload struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html"`
}

func (s *ResendSender) Send(ctx context.Context, to, subject, htmlBody string) error {
	body, err := json.Marshal(resendPayload{
		From:    s.senderAddress,
		To:      []string{to},
		Subject: subject,
		HTML:    htmlBody,
	})
	if err != nil {
		return fmt.Errorf("marshal resend payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create resend request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("send request to resend: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("resend returned status %d", resp.StatusCode)
	}

	s.logger.Info().Str("to", to).Str("subject", subject).Msg("email sent via resend")
	return nil
}

// New returns the sender for provider.
func New(provider, apiKey, senderAddress string, logger zerolog.Logger) (Sender, error) {
	switch provider {
	case ProviderLog, "":
		return NewLogSender(senderAddress, logger), nil
	case ProviderResend:
		if apiKey == "" {
			return nil, fmt.Errorf("email provider is %q but EMAIL_API_KEY is not set", provider)
		}
		return NewResendSender(apiKey, senderAddress, logger), nil
	default:
		return nil, fmt.Errorf("unknown email provider: %s", provider)
	}
}
