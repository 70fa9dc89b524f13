package sms

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// twilioMessage is the subset of the Messages resource we read back.
type twilioMessage struct {
	SID    string `json:"sid"`
	Status string `json:"status"`
}

// twilioError is the error body returned on 4xx/5xx.
type twilioError struct {
	Code     int    `json:"code"`
	Message  string `json:"message"`
	Status   int    `json:"status"`
	MoreInfo string `json:"more_info"`
}

// TwilioSender posts to the Twilio REST Messages endpoint.
type TwilioSender struct {
	httpClient *resty.Client
	accountSID string
	logger     *zap.Logger
}

// NewTwilioSender creates a sender against baseURL (https://api.twilio.com).
// retryCount 0 disables retries.
func NewTwilioSender(baseURL, accountSID, authToken string, timeout time.Duration, retryCount int, logger *zap.Logger) *TwilioSender {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetBasicAuth(accountSID, authToken).
		SetHeader("Accept", "application/json")
	if retryCount > 0 {
		client.SetRetryCount(retryCount).
			SetRetryWaitTime(500 * time.Millisecond).
			SetRetryMaxWaitTime(3 * time.Second)
	}
	return &TwilioSender{httpClient: client, accountSID: accountSID, logger: logger}
}

// Send posts one message to the Messages resource.  Non-2xx answers come back
// as errors carrying the Twilio code and message.
func (s *TwilioSender) Send(ctx context.Context, body, from, to string) error {
	var result twilioMessage
	var apiErr twilioError
	resp, err := s.httpClient.R().
		SetContext(ctx).
		SetPathParam("sid", s.accountSID).
		SetFormData(map[string]string{
			"To":   to,
			"From": from,
			"Body": body,
		}).
		SetResult(&result).
		SetError(&apiErr).
		Post("/2010-04-01/Accounts/{sid}/Messages.json")
	if err != nil {
		return fmt.Errorf("failed to call Twilio: %w", err)
	}
	if resp.IsError() {
		s.logger.Warn("Twilio rejected message",
			zap.String("to", to),
			zap.Int("status_code", resp.StatusCode()),
			zap.Int("code", apiErr.Code),
			zap.String("msg", apiErr.Message),
		)
		if apiErr.Message != "" {
			return fmt.Errorf("twilio error %d: %s (status: %d)", apiErr.Code, apiErr.Message, resp.StatusCode())
		}
		return fmt.Errorf("twilio error: status %d", resp.StatusCode())
	}

	s.logger.Debug("sms sent",
		zap.String("to", to),
		zap.String("sid", result.SID),
		zap.String("status", result.Status),
	)
	return nil
}
