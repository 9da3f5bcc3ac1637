package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/smtp"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

var ErrProviderFailure = errors.New("provider failure")

type Provider interface {
	Send(ctx context.Context, message Message) error
}

type ProviderConfig struct {
	Kind         string
	WebhookURL   string
	WebhookToken string
	SMTPHost     string
	SMTPPort     int
	SMTPUser     string
	SMTPPassword string
	SMTPFrom     string
}

// NewProvider picks a provider by kind. Anything unknown or incompletely
// configured falls back to logging the message.
func NewProvider(cfg ProviderConfig) Provider {
	switch cfg.Kind {
	case "", "stub", "log":
		return logProvider{}
	case "noop":
		return noopProvider{}
	case "fail":
		return failProvider{}
	case "webhook":
		if cfg.WebhookURL == "" {
			return logProvider{}
		}
		return webhookProvider{url: cfg.WebhookURL, token: cfg.WebhookToken, client: &http.Client{Timeout: 5 * time.Second}}
	case "smtp":
		if cfg.SMTPHost == "" {
			return logProvider{}
		}
		from := cfg.SMTPFrom
		if from == "" {
			from = cfg.SMTPUser
		}
		return smtpProvider{
			addr: fmt.Sprintf("%s:%d", cfg.SMTPHost, cfg.SMTPPort),
			auth: smtp.CRAMMD5Auth(cfg.SMTPUser, cfg.SMTPPassword),
			from: from,
			send: smtp.SendMail,
		}
	default:
		if strings.HasPrefix(cfg.Kind, "http://") || strings.HasPrefix(cfg.Kind, "https://") {
			return webhookProvider{url: cfg.Kind, client: &http.Client{Timeout: 5 * time.Second}}
		}
		return logProvider{}
	}
}

type logProvider struct{}

func (logProvider) Send(ctx context.Context, message Message) error {
	log.Info().
		Str("to", message.To).
		Str("subject", message.Subject).
		Msg("simulated email send")
	return nil
}

type noopProvider struct{}

func (noopProvider) Send(ctx context.Context, message Message) error {
	return nil
}

type failProvider struct{}

func (failProvider) Send(ctx context.Context, message Message) error {
	return ErrProviderFailure
}

type webhookProvider struct {
	url    string
	token  string
	client *http.Client
}

func (p webhookProvider) Send(ctx context.Context, message Message) error {
	payload := map[string]interface{}{
		"channel":   "email",
		"recipient": message.To,
		"subject":   message.Subject,
		"message":   message.Body,
		"params":    message.Params,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if p.token != "" {
		req.Header.Set("Authorization", "Bearer "+p.token)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("%w: webhook returned %d", ErrProviderFailure, resp.StatusCode)
	}
	return nil
}

type smtpProvider struct {
	addr string
	auth smtp.Auth
	from string
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func (p smtpProvider) Send(ctx context.Context, message Message) error {
	body := []byte(fmt.Sprintf(
		"From: %s\r\nTo: %s\r\nSubject: %s\r\nContent-Type: text/plain; charset=UTF-8\r\n\r\n%s",
		p.from,
		message.To,
		message.Subject,
		strings.ReplaceAll(message.Body, "\n", "\r\n"),
	))
	return p.send(p.addr, p.auth, p.from, []string{message.To}, body)
}
