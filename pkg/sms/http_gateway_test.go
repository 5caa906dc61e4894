package sms

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewHTTPGateway(t *testing.T) {
	gateway := NewHTTPGateway(HTTPConfig{
		APIURL:   "https://sms.example.com/api/v1",
		APIKey:   "key",
		SenderID: "CampusRide",
	})

	assert.NotNil(t, gateway)
	assert.Equal(t, "https://sms.example.com/api/v1", gateway.apiURL)
	assert.NotNil(t, gateway.client)
	assert.Equal(t, "HTTP SMS Gateway", gateway.Name())
}

func TestHTTPGateway_Send(t *testing.T) {
	var received SendRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/sms", r.URL.Path)
		assert.Equal(t, "Bearer key", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&received))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"success","comment":"ok","data":{"campaignId":12}}`))
	}))
	defer server.Close()

	gateway := NewHTTPGateway(HTTPConfig{APIURL: server.URL, APIKey: "key", SenderID: "CampusRide"})

	id, err := gateway.Send(context.Background(), []string{"+14155550100", "+14155550101"}, "SOS on A-101")
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	assert.Len(t, received.MSISDN, 2)
	assert.Equal(t, "SOS on A-101", received.Message)
	assert.Equal(t, "CampusRide", received.SourceAddress)
}

func TestHTTPGateway_SendFailures(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		message string
	}{
		{"Non-200", http.StatusBadGateway, "upstream down", "status 502"},
		{"Rejected", http.StatusOK, `{"status":"failed","comment":"no credit","errCode":"104"}`, "no credit"},
		{"Garbage", http.StatusOK, "<html>", "parse"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			gateway := NewHTTPGateway(HTTPConfig{APIURL: server.URL, APIKey: "key"})
			_, err := gateway.Send(context.Background(), []string{"+14155550100"}, "hi")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.message)
		})
	}

	gateway := NewHTTPGateway(HTTPConfig{APIURL: "http://unused"})
	_, err := gateway.Send(context.Background(), nil, "hi")
	assert.Error(t, err, "no recipients")
}

func TestLogGateway_Send(t *testing.T) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	gateway := NewLogGateway(logger)
	id, err := gateway.Send(context.Background(), []string{"+14155550100"}, "hi")
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	assert.Equal(t, "Log Gateway", gateway.Name())
}
