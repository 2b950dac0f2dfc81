package webhook

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/h2non/gock"
	"github.com/stretchr/testify/assert"

	"github.com/suncoastpay/orchestrator/internal/config"
	"github.com/suncoastpay/orchestrator/internal/webhook"
)

func TestSender_Send(t *testing.T) {
	tests := []struct {
		name         string
		mockResponse func()
		expectStatus int
		expectErr    bool
	}{
		{
			name: "success",
			mockResponse: func() {
				gock.New("http://example.com").
					Post("/webhook").
					Reply(200).
					JSON(map[string]string{"status": "ok"})
			},
			expectStatus: 200,
		},
		{
			name: "server error surfaces as a non-2xx result, not a transport error",
			mockResponse: func() {
				gock.New("http://example.com").
					Post("/webhook").
					Reply(500).
					JSON(map[string]string{"error": "internal server error"})
			},
			expectStatus: 500,
		},
		{
			name: "timeout is a transport error",
			mockResponse: func() {
				gock.New("http://example.com").
					Post("/webhook").
					Reply(200).
					Delay(15 * time.Second)
			},
			expectErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			defer gock.Off()
			tt.mockResponse()

			sender := webhook.NewSender(config.Webhook{TimeoutMs: 50})
			ctx := context.Background()
			sig := webhook.Sign("shhh", []byte(`{"data":"test"}`))

			result, err := sender.Send(ctx, slog.Default(), "http://example.com/webhook", []byte(`{"data":"test"}`), sig)
			if tt.expectErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.expectStatus, result.StatusCode)
			assert.True(t, gock.IsDone())
		})
	}
}
