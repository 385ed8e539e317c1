package notifiers

import (
	"context"

	"github.com/ilindan-dev/clinic-notifier/internal/domain/model"
)

// Sender defines the interface for any channel-specific delivery service.
// This allows us to easily swap or add new notification channels.
type Sender interface {
	// Send delivers the notification to the contact and returns the
	// provider's delivery id. Errors are classified with Transient or Permanent.
	Send(ctx context.Context, n *model.Notification, to model.Contact) (externalID string, err error)
}
