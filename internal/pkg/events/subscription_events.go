package events

import (
	"context"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/Marketly/internal/pkg/subscription"
)

// SubscriptionNotifier publishes every committed subscription change as
// subscription.<new status>, e.g. subscription.active.
type SubscriptionNotifier struct {
	publisher Publisher
	timeout   time.Duration
}

func NewSubscriptionNotifier(p Publisher) *SubscriptionNotifier {
	return &SubscriptionNotifier{publisher: p, timeout: 3 * time.Second}
}

func RoutingKey(change subscription.Change) string {
	return "subscription." + strings.ToLower(change.To)
}

func (n *SubscriptionNotifier) SubscriptionChanged(ctx context.Context, change subscription.Change) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), n.timeout)
	defer cancel()
	if err := n.publisher.Publish(ctx, RoutingKey(change), change); err != nil {
		log.Warnf("[Events] Publishing subscription change for user %d failed: %v", change.UserID, err)
	}
}
