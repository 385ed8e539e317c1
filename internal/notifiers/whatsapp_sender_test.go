package notifiers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ilindan-dev/clinic-notifier/internal/config"
	"github.com/ilindan-dev/clinic-notifier/internal/domain/model"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestWhatsAppSender(t *testing.T, handler http.HandlerFunc) *WhatsAppSender {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	r, err := NewRenderer()
	require.NoError(t, err)
	logger := zerolog.Nop()
	return NewWhatsAppSender(config.WhatsAppConfig{
		BaseURL:       srv.URL + "/",
		PhoneNumberID: "1055",
		AccessToken:   "secret",
	}, r, srv.Client(), &logger)
}

func TestWhatsAppSender_Send(t *testing.T) {
	var got whatsAppRequest
	s := newTestWhatsAppSender(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/1055/messages", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"messaging_product":"whatsapp","messages":[{"id":"wamid.HBgM"}]}`))
	})

	n := newNotification(model.TypeAppointmentReminder, model.ChannelWhatsApp, map[string]string{"service": "Facial"})
	id, err := s.Send(context.Background(), n, model.Contact{Name: "Amina", Phone: "+22241234567"})
	require.NoError(t, err)

	assert.Equal(t, "wamid.HBgM", id)
	assert.Equal(t, "whatsapp", got.MessagingProduct)
	assert.Equal(t, "22241234567", got.To)
	assert.Equal(t, "text", got.Type)
	assert.Contains(t, got.Text.Body, "Facial")
}

func TestWhatsAppSender_ErrorClassification(t *testing.T) {
	tests := []struct {
		name          string
		status        int
		body          string
		wantPermanent bool
	}{
		{name: "rate limited", status: http.StatusTooManyRequests, body: `{"error":{"message":"rate limit hit","code":130429}}`},
		{name: "provider outage", status: http.StatusBadGateway},
		{name: "invalid recipient", status: http.StatusBadRequest, body: `{"error":{"message":"recipient not on whatsapp","code":131026}}`, wantPermanent: true},
		{name: "bad token", status: http.StatusUnauthorized, wantPermanent: true},
		{name: "accepted without id", status: http.StatusOK, body: `{"messages":[]}`, wantPermanent: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestWhatsAppSender(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})

			n := newNotification(model.TypeFollowUp, model.ChannelWhatsApp, nil)
			id, err := s.Send(context.Background(), n, model.Contact{Phone: "+22241234567"})
			require.Error(t, err)
			assert.Empty(t, id)
			assert.Equal(t, tt.wantPermanent, IsPermanent(err))
		})
	}
}

func TestWhatsAppSender_MissingPhoneIsPermanent(t *testing.T) {
	s := newTestWhatsAppSender(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("provider must not be called")
	})

	n := newNotification(model.TypeFollowUp, model.ChannelWhatsApp, nil)
	_, err := s.Send(context.Background(), n, model.Contact{Name: "Amina"})
	require.Error(t, err)
	assert.True(t, IsPermanent(err))
}

func TestWhatsAppSender_TimeoutIsTransient(t *testing.T) {
	release := make(chan struct{})
	s := newTestWhatsAppSender(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	n := newNotification(model.TypeFollowUp, model.ChannelWhatsApp, nil)
	_, err := s.Send(ctx, n, model.Contact{Phone: "+22241234567"})
	require.Error(t, err)
	assert.False(t, IsPermanent(err))
}
