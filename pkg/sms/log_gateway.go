package sms

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// LogGateway writes messages to the log instead of sending them. Used in
// development so SOS escalation can be observed without an SMS account.
type LogGateway struct {
	logger *logrus.Logger
}

// NewLogGateway creates a gateway that only logs
func NewLogGateway(logger *logrus.Logger) *LogGateway {
	return &LogGateway{logger: logger}
}

// Send logs the message and returns a random transaction id
func (g *LogGateway) Send(_ context.Context, phones []string, message string) (string, error) {
	transactionID := uuid.New().String()
	g.logger.WithFields(logrus.Fields{
		"transaction_id": transactionID,
		"recipients":     strings.Join(phones, ","),
		"message":        message,
	}).Info("📱 [DEV] SMS not sent")
	return transactionID, nil
}

// Name returns the name of this SMS gateway
func (g *LogGateway) Name() string {
	return "Log Gateway"
}
