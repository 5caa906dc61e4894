package sms

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"
)

// HTTPGateway sends SMS through a JSON campaign API authenticated with a
// bearer API key
type HTTPGateway struct {
	apiURL   string
	apiKey   string
	senderID string
	client   *http.Client
}

// HTTPConfig holds configuration for the HTTP SMS gateway
type HTTPConfig struct {
	APIURL   string
	APIKey   string
	SenderID string
	Timeout  time.Duration
}

// NewHTTPGateway creates a new HTTP SMS gateway client
func NewHTTPGateway(config HTTPConfig) *HTTPGateway {
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPGateway{
		apiURL:   config.APIURL,
		apiKey:   config.APIKey,
		senderID: config.SenderID,
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

// Recipient represents a single SMS recipient
type Recipient struct {
	Mobile string `json:"mobile"`
}

// SendRequest represents the SMS sending request structure
type SendRequest struct {
	MSISDN        []Recipient `json:"msisdn"`
	Message       string      `json:"message"`
	SourceAddress string      `json:"sourceAddress,omitempty"`
	TransactionID int64       `json:"transaction_id"`
}

// SendResponse represents the SMS sending response structure
type SendResponse struct {
	Status  string `json:"status"`
	Comment string `json:"comment"`
	Data    struct {
		CampaignID     int `json:"campaignId"`
		InvalidNumbers int `json:"invalidNumbers"`
	} `json:"data"`
	ErrCode string `json:"errCode"`
}

// Send posts one campaign addressed to all phones
func (g *HTTPGateway) Send(ctx context.Context, phones []string, message string) (string, error) {
	if len(phones) == 0 {
		return "", fmt.Errorf("no recipients")
	}

	recipients := make([]Recipient, 0, len(phones))
	for _, phone := range phones {
		recipients = append(recipients, Recipient{Mobile: phone})
	}

	transactionID := time.Now().UnixNano()
	sendReq := SendRequest{
		MSISDN:        recipients,
		Message:       message,
		SourceAddress: g.senderID,
		TransactionID: transactionID,
	}

	jsonData, err := json.Marshal(sendReq)
	if err != nil {
		return "", fmt.Errorf("failed to marshal SMS request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.apiURL+"/sms", bytes.NewBuffer(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to create SMS request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+g.apiKey)

	resp, err := g.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to send SMS request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read SMS response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("SMS API returned status %d: %s", resp.StatusCode, string(body))
	}

	var sendResp SendResponse
	if err := json.Unmarshal(body, &sendResp); err != nil {
		return "", fmt.Errorf("failed to parse SMS response: %w", err)
	}

	if sendResp.Status != "success" {
		return "", fmt.Errorf("SMS sending failed: %s (error code: %s)", sendResp.Comment, sendResp.ErrCode)
	}

	return strconv.FormatInt(transactionID, 10), nil
}

// Name returns the name of this SMS gateway
func (g *HTTPGateway) Name() string {
	return "HTTP SMS Gateway"
}
