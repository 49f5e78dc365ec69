package stageworkers

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/R3E-Network/service_layer/infrastructure/eventbus"
	"github.com/R3E-Network/service_layer/internal/app/domain/bus"
)

// publish wraps eventBus.Publish with a generated message id and the
// supplied clock, shared by every worker in this package.
func publish(ctx context.Context, eventBus *eventbus.Bus, eventType bus.EventType, data map[string]any, priority bus.Priority, correlationID string, now func() time.Time) error {
	return eventBus.Publish(ctx, bus.NewMessage(uuid.NewString(), eventType, data, priority, correlationID, now()))
}
