package notifiers

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/ilindan-dev/clinic-notifier/internal/domain/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newNotification(typ model.Type, channel model.Channel, data map[string]string) *model.Notification {
	booking := uuid.New()
	return model.NewNotification(uuid.New(), &booking, typ, channel, time.Now(), data)
}

func TestRenderer_EveryTypeHasATemplate(t *testing.T) {
	r, err := NewRenderer()
	require.NoError(t, err)

	types := []model.Type{
		model.TypeAppointmentReminder,
		model.TypeAppointmentConfirmation,
		model.TypeAppointmentCancellation,
		model.TypeFollowUp,
		model.TypePromotion,
		model.TypeBirthdayGreeting,
		model.TypeLoyaltyReward,
	}
	for _, typ := range types {
		t.Run(string(typ), func(t *testing.T) {
			msg, err := r.Render(newNotification(typ, model.ChannelEmail, nil), model.Contact{Name: "Amina"})
			require.NoError(t, err)
			assert.NotEmpty(t, msg.Subject)
			assert.NotEmpty(t, msg.Body)
			assert.NotContains(t, msg.Body, "<no value>")
		})
	}
}

func TestRenderer_Reminder(t *testing.T) {
	r, err := NewRenderer()
	require.NoError(t, err)

	n := newNotification(model.TypeAppointmentReminder, model.ChannelWhatsApp, map[string]string{
		"service":      "Hydrafacial",
		"professional": "Dr. Keita",
		"starts_at":    "Sat 14 Mar 2026 10:30 UTC",
	})
	msg, err := r.Render(n, model.Contact{Name: "Amina"})
	require.NoError(t, err)

	assert.Equal(t, "Reminder: Hydrafacial on Sat 14 Mar 2026 10:30 UTC", msg.Subject)
	assert.Contains(t, msg.Body, "Hello Amina,")
	assert.Contains(t, msg.Body, "with Dr. Keita")
	assert.Contains(t, msg.Text(), msg.Subject+"\n\n")
}

func TestRenderer_TemplateDataOverridesContactName(t *testing.T) {
	r, err := NewRenderer()
	require.NoError(t, err)

	n := newNotification(model.TypeBirthdayGreeting, model.ChannelSMS, map[string]string{"client_name": "Mimi"})
	msg, err := r.Render(n, model.Contact{Name: "Amina Diallo"})
	require.NoError(t, err)
	assert.Equal(t, "Happy birthday, Mimi!", msg.Subject)
}

func TestRenderer_UnknownTemplateIsPermanent(t *testing.T) {
	r, err := NewRenderer()
	require.NoError(t, err)

	n := newNotification(model.TypePromotion, model.ChannelEmail, nil)
	n.TemplateName = "spring_sale_v2"

	_, err = r.Render(n, model.Contact{Name: "Amina"})
	require.Error(t, err)
	assert.True(t, IsPermanent(err))
}
