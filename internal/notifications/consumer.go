package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/kartmitra/kartmitra-backend/pkg/broker"
	"github.com/kartmitra/kartmitra-backend/pkg/db/models"
	"github.com/kartmitra/kartmitra-backend/pkg/enums"
	"github.com/kartmitra/kartmitra-backend/pkg/logger"
	"github.com/kartmitra/kartmitra-backend/pkg/outbox"
	"github.com/kartmitra/kartmitra-backend/pkg/outbox/idempotency"
	"github.com/kartmitra/kartmitra-backend/pkg/outbox/payloads"
	"github.com/kartmitra/kartmitra-backend/pkg/types"
)

const inAppConsumer = "in-app-notifications"

type repository interface {
	Create(ctx context.Context, notification *models.Notification) error
}

// Consumer turns published domain events into in-app inbox rows. Each event
// is processed at most once per consumer group via the Redis idempotency
// guard; events that address nobody are committed and dropped.
type Consumer struct {
	repo        repository
	idempotency *idempotency.Manager
	logg        *logger.Logger
}

func NewConsumer(repo repository, idem *idempotency.Manager, logg *logger.Logger) (*Consumer, error) {
	if repo == nil {
		return nil, errors.New("notifications repository is required")
	}
	if idem == nil {
		return nil, errors.New("idempotency manager is required")
	}
	if logg == nil {
		return nil, errors.New("logger is required")
	}
	return &Consumer{repo: repo, idempotency: idem, logg: logg}, nil
}

// Handle processes one domain event message. Malformed messages are dropped
// after logging; repository failures propagate so the message is retried.
func (c *Consumer) Handle(ctx context.Context, msg broker.Message) error {
	eventType := enums.OutboxEventType(msg.Headers["event_type"])

	var envelope outbox.PayloadEnvelope
	if err := json.Unmarshal(msg.Value, &envelope); err != nil {
		c.logg.Warn(c.logg.WithField(ctx, "event_type", string(eventType)), "dropping undecodable event payload")
		return nil
	}
	eventID, err := uuid.Parse(envelope.EventID)
	if err != nil {
		c.logg.Warn(c.logg.WithField(ctx, "event_type", string(eventType)), "dropping event without a valid id")
		return nil
	}

	rows, err := c.build(eventType, envelope.Data)
	if err != nil {
		c.logg.Warn(c.logg.WithFields(ctx, map[string]any{
			"event_type": string(eventType),
			"event_id":   envelope.EventID,
			"reason":     err.Error(),
		}), "dropping unmappable event")
		return nil
	}
	if len(rows) == 0 {
		return nil
	}

	processed, err := c.idempotency.CheckAndMarkProcessed(ctx, inAppConsumer, eventID)
	if err != nil {
		return fmt.Errorf("idempotency check: %w", err)
	}
	if processed {
		return nil
	}

	for _, n := range rows {
		if err := c.repo.Create(ctx, n); err != nil {
			// Release the marker so redelivery retries the whole event.
			if delErr := c.idempotency.Delete(ctx, inAppConsumer, eventID); delErr != nil {
				c.logg.Error(ctx, "failed to release idempotency marker", delErr)
			}
			return fmt.Errorf("create notification: %w", err)
		}
	}
	c.logg.Info(c.logg.WithFields(ctx, map[string]any{
		"event_type": string(eventType),
		"event_id":   envelope.EventID,
		"recipients": len(rows),
	}), "notifications written")
	return nil
}

// build maps one decoded event to its recipients. Unknown event types are not
// an error: this worker only cares about user-facing events.
func (c *Consumer) build(eventType enums.OutboxEventType, data json.RawMessage) ([]*models.Notification, error) {
	switch eventType {
	case enums.EventOrderPlaced:
		var p payloads.OrderPlacedEvent
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, err
		}
		return []*models.Notification{
			row(p.VendorID, enums.NotificationTypeOrderUpdate,
				"New order received",
				fmt.Sprintf("Order %s for ₹%s is waiting for your confirmation.", p.OrderNumber, p.TotalAmount.StringFixed(2)),
				orderMeta(p.OrderID)),
		}, nil

	case enums.EventOrderConfirmed, enums.EventOrderStateChanged, enums.EventOrderOutForDelivery:
		var p payloads.OrderStateChangedEvent
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, err
		}
		return []*models.Notification{
			row(p.BuyerID, enums.NotificationTypeOrderUpdate,
				"Order update",
				fmt.Sprintf("Order %s is now %s.", p.OrderNumber, p.ToStatus),
				orderMeta(p.OrderID)),
		}, nil

	case enums.EventOrderDelivered:
		var p payloads.OrderDeliveredEvent
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, err
		}
		return []*models.Notification{
			row(p.BuyerID, enums.NotificationTypeOrderUpdate,
				"Order delivered",
				fmt.Sprintf("Order %s was delivered. Eligible items can be returned from your orders page.", p.OrderNumber),
				orderMeta(p.OrderID)),
			row(p.VendorID, enums.NotificationTypeOrderUpdate,
				"Order delivered",
				fmt.Sprintf("Order %s reached the buyer.", p.OrderNumber),
				orderMeta(p.OrderID)),
		}, nil

	case enums.EventOrderCancelled:
		var p payloads.OrderCancelledEvent
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, err
		}
		message := fmt.Sprintf("Order %s was cancelled.", p.OrderNumber)
		if p.Reason != "" {
			message = fmt.Sprintf("Order %s was cancelled: %s.", p.OrderNumber, p.Reason)
		}
		return []*models.Notification{
			row(p.BuyerID, enums.NotificationTypeOrderUpdate, "Order cancelled", message, orderMeta(p.OrderID)),
			row(p.VendorID, enums.NotificationTypeOrderUpdate, "Order cancelled", message, orderMeta(p.OrderID)),
		}, nil

	case enums.EventPaymentCaptured:
		var p payloads.PaymentStatusEvent
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, err
		}
		return []*models.Notification{
			row(p.BuyerID, enums.NotificationTypePaymentUpdate,
				"Payment received",
				fmt.Sprintf("We received your payment of ₹%s.", p.Amount.StringFixed(2)),
				orderMeta(p.OrderID)),
		}, nil

	case enums.EventPaymentFailed:
		var p payloads.PaymentStatusEvent
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, err
		}
		message := "Your payment did not go through."
		if p.FailureReason != "" {
			message = fmt.Sprintf("Your payment did not go through: %s.", p.FailureReason)
		}
		return []*models.Notification{
			row(p.BuyerID, enums.NotificationTypePaymentUpdate, "Payment failed", message, orderMeta(p.OrderID)),
		}, nil

	case enums.EventReturnRequested:
		var p payloads.ReturnStatusEvent
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, err
		}
		return []*models.Notification{
			row(p.VendorID, enums.NotificationTypeReturnUpdate,
				"Return requested",
				fmt.Sprintf("A buyer requested a return worth ₹%s: %s.", p.RefundAmount.StringFixed(2), p.Reason),
				orderMeta(p.OrderID)),
		}, nil

	case enums.EventReturnApproved, enums.EventReturnRejected, enums.EventReturnCompleted:
		var p payloads.ReturnStatusEvent
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, err
		}
		return []*models.Notification{
			row(p.BuyerID, enums.NotificationTypeReturnUpdate,
				"Return update",
				fmt.Sprintf("Your return request is now %s.", p.Status),
				orderMeta(p.OrderID)),
		}, nil

	case enums.EventPayoutBatchGenerated, enums.EventPayoutProcessed:
		var p payloads.PayoutStatusEvent
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, err
		}
		return []*models.Notification{
			row(p.VendorID, enums.NotificationTypePayoutUpdate,
				"Payout update",
				fmt.Sprintf("Your payout of ₹%s for %s to %s is %s.",
					p.NetAmount.StringFixed(2),
					p.PeriodStart.Format("02 Jan"),
					p.PeriodEnd.Format("02 Jan"),
					p.Status),
				types.JSONMap{"payoutId": p.PayoutID.String()}),
		}, nil

	case enums.EventStockLow:
		var p payloads.StockLowEvent
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, err
		}
		return []*models.Notification{
			row(p.VendorID, enums.NotificationTypeLowStock,
				"Stock running low",
				fmt.Sprintf("Sellable stock dropped to %s, below your threshold of %s.",
					p.AvailableQty.String(), p.Threshold.String()),
				types.JSONMap{"productId": p.ProductID.String()}),
		}, nil

	case enums.EventNotificationRequested:
		var p payloads.NotificationRequestedEvent
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, err
		}
		if !p.Type.IsValid() {
			return nil, fmt.Errorf("invalid notification type %q", p.Type)
		}
		n := row(p.UserID, p.Type, p.Title, p.Message, types.JSONMap(p.Metadata))
		if p.ActionURL != "" {
			n.ActionURL = &p.ActionURL
		}
		return []*models.Notification{n}, nil

	default:
		return nil, nil
	}
}

func row(userID uuid.UUID, kind enums.NotificationType, title, message string, metadata types.JSONMap) *models.Notification {
	return &models.Notification{
		ID:       uuid.New(),
		UserID:   userID,
		Type:     kind,
		Title:    title,
		Message:  message,
		Metadata: metadata,
	}
}

func orderMeta(orderID uuid.UUID) types.JSONMap {
	return types.JSONMap{"orderId": orderID.String()}
}
