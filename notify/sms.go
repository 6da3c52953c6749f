package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

type smsRequest struct {
	PhoneNumber string `json:"phoneNumber"`
	Message     string `json:"message"`
	Type        Type   `json:"type"`
}

// SMSSender posts messages to the SMS edge function.
type SMSSender struct {
	url    string
	key    string
	client *http.Client
}

func NewSMSSender(url, key string, timeout time.Duration) *SMSSender {
	return &SMSSender{
		url:    url,
		key:    key,
		client: &http.Client{Timeout: timeout},
	}
}

func (s *SMSSender) Send(ctx context.Context, msg Message) error {
	body, err := json.Marshal(smsRequest{
		PhoneNumber: msg.PhoneNumber,
		Message:     msg.Text,
		Type:        msg.Type,
	})
	if err != nil {
		return failed(msg.Type, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return failed(msg.Type, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.key != "" {
		req.Header.Set("Authorization", "Bearer "+s.key)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return failed(msg.Type, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return failed(msg.Type, fmt.Errorf("sms endpoint returned %d: %s", resp.StatusCode, bytes.TrimSpace(detail)))
	}
	return nil
}

// LogSender only logs. It is used when SMS delivery is disabled.
type LogSender struct {
	logger *zap.Logger
}

func NewLogSender(logger *zap.Logger) *LogSender {
	return &LogSender{logger: logger}
}

func (s *LogSender) Send(_ context.Context, msg Message) error {
	s.logger.Info("sms not sent, delivery disabled",
		zap.String("type", string(msg.Type)),
		zap.String("user_id", msg.UserID),
		zap.String("message", msg.Text))
	return nil
}
