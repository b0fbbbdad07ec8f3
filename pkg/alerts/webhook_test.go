package alerts_test

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/ogulcanaydogan/Budget-Deviation-Guardian/pkg/alerts"
	"github.com/ogulcanaydogan/Budget-Deviation-Guardian/pkg/apperrors"
	"github.com/ogulcanaydogan/Budget-Deviation-Guardian/pkg/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWebhookNotifier_Name(t *testing.T) {
	n := alerts.NewWebhookNotifier("", 0)
	assert.Equal(t, "webhook", n.Name())
	assert.Equal(t, model.ChannelWebhook, n.Channel())
}

func TestWebhookNotifier_Send(t *testing.T) {
	var received map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "ObrasAI-Alerts/1.0", r.Header.Get("User-Agent"))
		assert.Equal(t, "escalated", r.Header.Get("X-Event-Type"))
		assert.Equal(t, http.MethodPost, r.Method)

		err := json.NewDecoder(r.Body).Decode(&received)
		require.NoError(t, err)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	msg := sampleMessage(model.EventEscalated)
	msg.Address = server.URL

	err := alerts.NewWebhookNotifier("", 0).Send(context.Background(), msg)
	require.NoError(t, err)
	assert.Equal(t, "escalated", received["event"])
	assert.NotEmpty(t, received["timestamp"])

	alert, ok := received["alert"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "a1", alert["id"])
	assert.Equal(t, "p1", alert["project_id"])
	assert.Equal(t, "MEDIUM", alert["severity"])
	assert.Equal(t, 30000.0, alert["deviation_value"])
	assert.Equal(t, 30.0, alert["deviation_pct"])
}

func TestWebhookNotifier_Send_WithHMAC(t *testing.T) {
	var signature string
	var body []byte
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		signature = r.Header.Get("X-Signature-256")
		body, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	msg := sampleMessage(model.EventCreated)
	msg.Address = server.URL
	err := alerts.NewWebhookNotifier("test-secret", 0).Send(context.Background(), msg)
	require.NoError(t, err)

	mac := hmac.New(sha256.New, []byte("test-secret"))
	mac.Write(body)
	assert.Equal(t, "sha256="+hex.EncodeToString(mac.Sum(nil)), signature)
}

func TestWebhookNotifier_Send_NoHMAC(t *testing.T) {
	var hasSignature bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hasSignature = r.Header.Get("X-Signature-256") != ""
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	msg := sampleMessage(model.EventCreated)
	msg.Address = server.URL
	require.NoError(t, alerts.NewWebhookNotifier("", 0).Send(context.Background(), msg))
	assert.False(t, hasSignature)
}

func TestWebhookNotifier_Send_Failures(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		retryable bool
	}{
		{"server error", http.StatusServiceUnavailable, true},
		{"rate limited", http.StatusTooManyRequests, true},
		{"bad request", http.StatusBadRequest, false},
		{"gone", http.StatusGone, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer server.Close()

			msg := sampleMessage(model.EventCreated)
			msg.Address = server.URL
			err := alerts.NewWebhookNotifier("", 0).Send(context.Background(), msg)
			require.Error(t, err)

			var de *apperrors.DeliveryError
			require.ErrorAs(t, err, &de)
			assert.Equal(t, tt.status, de.StatusCode)
			assert.Equal(t, "NOTIFICATION.WEBHOOK_FAILED", apperrors.Code(err))
			assert.Equal(t, tt.retryable, apperrors.IsRetryable(err))
		})
	}
}

func TestWebhookNotifier_Send_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	msg := sampleMessage(model.EventCreated)
	msg.Address = server.URL
	err := alerts.NewWebhookNotifier("", 20*time.Millisecond).Send(context.Background(), msg)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrDelivery)
	assert.True(t, apperrors.IsRetryable(err))
}

func TestWebhookNotifier_Send_MissingURL(t *testing.T) {
	err := alerts.NewWebhookNotifier("", 0).Send(context.Background(), sampleMessage(model.EventCreated))
	assert.ErrorIs(t, err, apperrors.ErrDelivery)
}

func loadPayloadSchema(t *testing.T) *jsonschema.Schema {
	t.Helper()
	compiler := jsonschema.NewCompiler()
	schema, err := compiler.Compile(filepath.Join("testdata", "webhook_payload.schema.json"))
	require.NoError(t, err)
	return schema
}

func TestWebhookPayload_MatchesSchema(t *testing.T) {
	schema := loadPayloadSchema(t)
	at := time.Date(2026, 3, 1, 12, 5, 0, 0, time.UTC)

	tests := []struct {
		name string
		msg  alerts.Message
	}{
		{"created", sampleMessage(model.EventCreated)},
		{"escalated", sampleMessage(model.EventEscalated)},
		{"auto resolved", sampleMessage(model.EventAutoResolved)},
		{"zero budget", unboundedMessage()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body, err := json.Marshal(alerts.NewWebhookPayload(tt.msg, at))
			require.NoError(t, err)

			doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(body))
			require.NoError(t, err)
			assert.NoError(t, schema.Validate(doc))
		})
	}
}

func TestWebhookPayload_RejectsUnknownEvent(t *testing.T) {
	schema := loadPayloadSchema(t)

	msg := sampleMessage("deleted")
	body, err := json.Marshal(alerts.NewWebhookPayload(msg, time.Now()))
	require.NoError(t, err)

	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(body))
	require.NoError(t, err)
	assert.Error(t, schema.Validate(doc))
}
