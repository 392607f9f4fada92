package notifications

import (
	"context"
	"encoding/json"
	"fmt"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"

	"github.com/thanhngodev/medigo-backend/pkg/db/models"
	"github.com/thanhngodev/medigo-backend/pkg/enums"
	"github.com/thanhngodev/medigo-backend/pkg/logger"
	"github.com/thanhngodev/medigo-backend/pkg/outbox"
)

const patientNotificationConsumer = "patient-notifications"

type repository interface {
	Create(ctx context.Context, notification *models.Notification) error
}

type idempotencyGuard interface {
	CheckAndMarkProcessed(ctx context.Context, consumer string, eventID uuid.UUID) (bool, error)
	Delete(ctx context.Context, consumer string, eventID uuid.UUID) error
}

// Sender pushes a freshly created notification through an external delivery
// channel (push, SMS). Delivery is best effort; a failed send never nacks the
// event.
type Sender interface {
	Send(ctx context.Context, notification *models.Notification) error
}

type nopSender struct {
	logg *logger.Logger
}

func (n nopSender) Send(ctx context.Context, notification *models.Notification) error {
	if n.logg != nil {
		logCtx := n.logg.WithFields(ctx, map[string]any{
			"notification_id": notification.ID.String(),
			"type":            string(notification.Type),
		})
		n.logg.Info(logCtx, "notification send skipped")
	}
	return nil
}

// NewNoopSender returns a sender that only logs the notification instead of
// pushing it anywhere.
func NewNoopSender(logg *logger.Logger) Sender {
	return nopSender{logg: logg}
}

// Consumer watches domain events and turns order and payment activity into
// patient notifications.
type Consumer struct {
	repo         repository
	subscription *pubsub.Subscriber
	idempotency  idempotencyGuard
	sender       Sender
	logg         *logger.Logger
}

// NewConsumer builds a patient notification consumer.
func NewConsumer(repo repository, subscription *pubsub.Subscriber, manager idempotencyGuard, sender Sender, logg *logger.Logger) (*Consumer, error) {
	if repo == nil {
		return nil, fmt.Errorf("notifications repository required")
	}
	if subscription == nil {
		return nil, fmt.Errorf("domain subscription required")
	}
	if manager == nil {
		return nil, fmt.Errorf("idempotency manager required")
	}
	if sender == nil {
		return nil, fmt.Errorf("sender required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Consumer{
		repo:         repo,
		subscription: subscription,
		idempotency:  manager,
		sender:       sender,
		logg:         logg,
	}, nil
}

// Run starts the consumer loop until the context is canceled.
func (c *Consumer) Run(ctx context.Context) error {
	return c.subscription.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		result := c.process(ctx, msg)
		if result.nack {
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

type processResult struct {
	ack  bool
	nack bool
}

func (c *Consumer) process(ctx context.Context, msg *pubsub.Message) processResult {
	eventType := enums.OutboxEventType(msg.Attributes["event_type"])
	logCtx := c.logg.WithFields(ctx, map[string]any{
		"message_id": msg.ID,
		"event_type": string(eventType),
	})

	switch eventType {
	case enums.EventOrderStatusChanged, enums.EventOrderCancelled, enums.EventPaymentSettled:
	default:
		c.logg.Info(logCtx, "skipping unhandled event")
		return processResult{ack: true}
	}

	var envelope outbox.PayloadEnvelope
	if err := json.Unmarshal(msg.Data, &envelope); err != nil {
		c.logg.Error(logCtx, "failed to decode envelope", err)
		return processResult{ack: true}
	}

	eventID, err := uuid.Parse(envelope.EventID)
	if err != nil {
		c.logg.Error(logCtx, "invalid event id", err)
		return processResult{ack: true}
	}

	already, err := c.idempotency.CheckAndMarkProcessed(ctx, patientNotificationConsumer, eventID)
	if err != nil {
		c.logg.Error(logCtx, "idempotency check failed", err)
		return processResult{nack: true}
	}
	if already {
		c.logg.Info(logCtx, "event already processed")
		return processResult{ack: true}
	}

	if err := c.handle(ctx, eventType, envelope.Data, logCtx); err != nil {
		c.logg.Error(logCtx, "notification handling failed", err)
		_ = c.idempotency.Delete(ctx, patientNotificationConsumer, eventID)
		return processResult{nack: true}
	}

	return processResult{ack: true}
}

func (c *Consumer) handle(ctx context.Context, eventType enums.OutboxEventType, data json.RawMessage, logCtx context.Context) error {
	switch eventType {
	case enums.EventOrderStatusChanged:
		var payload orderStatusChangedPayload
		if err := json.Unmarshal(data, &payload); err != nil {
			return fmt.Errorf("parse order status payload: %w", err)
		}
		return c.notifyOrderStatus(ctx, payload, logCtx)
	case enums.EventOrderCancelled:
		var payload orderStatusChangedPayload
		if err := json.Unmarshal(data, &payload); err != nil {
			return fmt.Errorf("parse order cancelled payload: %w", err)
		}
		return c.notifyOrderCancelled(ctx, payload, logCtx)
	case enums.EventPaymentSettled:
		var payload paymentSettledPayload
		if err := json.Unmarshal(data, &payload); err != nil {
			return fmt.Errorf("parse payment payload: %w", err)
		}
		return c.notifyPaymentSettled(ctx, payload, logCtx)
	}
	return nil
}

// deliver persists the row and hands it to the sender. The row is the source
// of truth; send failures are logged and dropped.
func (c *Consumer) deliver(ctx context.Context, notification *models.Notification, logCtx context.Context) error {
	if err := c.repo.Create(ctx, notification); err != nil {
		return err
	}
	if err := c.sender.Send(ctx, notification); err != nil {
		c.logg.Warn(c.logg.WithField(logCtx, "error", err.Error()), "notification delivery failed")
	}
	return nil
}

func (c *Consumer) notifyOrderStatus(ctx context.Context, payload orderStatusChangedPayload, logCtx context.Context) error {
	if payload.PatientID == uuid.Nil {
		return fmt.Errorf("patient id missing")
	}

	kind := enums.NotificationTypeOrderUpdate
	title := "Order update"
	body := fmt.Sprintf("Order %s is now %s.", payload.OrderNumber, payload.To)
	switch payload.To {
	case enums.OrderStatusInDelivery:
		kind = enums.NotificationTypeDeliveryUpdate
		title = "Order on the way"
		body = fmt.Sprintf("Order %s is out for delivery.", payload.OrderNumber)
	case enums.OrderStatusDelivered:
		kind = enums.NotificationTypeDeliveryUpdate
		title = "Order delivered"
		body = fmt.Sprintf("Order %s has been delivered.", payload.OrderNumber)
	case enums.OrderStatusReady:
		title = "Order ready"
		body = fmt.Sprintf("Order %s is ready for pickup by the courier.", payload.OrderNumber)
	}

	notification := &models.Notification{
		ID:        uuid.New(),
		PatientID: payload.PatientID,
		Type:      kind,
		Title:     title,
		Body:      body,
	}
	if err := c.deliver(ctx, notification, logCtx); err != nil {
		return err
	}
	c.logg.Info(logCtx, "patient notified of order update")
	return nil
}

func (c *Consumer) notifyOrderCancelled(ctx context.Context, payload orderStatusChangedPayload, logCtx context.Context) error {
	if payload.PatientID == uuid.Nil {
		return fmt.Errorf("patient id missing")
	}

	notification := &models.Notification{
		ID:        uuid.New(),
		PatientID: payload.PatientID,
		Type:      enums.NotificationTypeOrderUpdate,
		Title:     "Order cancelled",
		Body:      fmt.Sprintf("Order %s has been cancelled.", payload.OrderNumber),
	}
	if err := c.deliver(ctx, notification, logCtx); err != nil {
		return err
	}
	c.logg.Info(logCtx, "patient notified of cancellation")
	return nil
}

func (c *Consumer) notifyPaymentSettled(ctx context.Context, payload paymentSettledPayload, logCtx context.Context) error {
	if payload.PatientID == uuid.Nil {
		return fmt.Errorf("patient id missing")
	}

	notification := &models.Notification{
		ID:        uuid.New(),
		PatientID: payload.PatientID,
		Type:      enums.NotificationTypePaymentReceipt,
		Title:     "Payment received",
		Body:      fmt.Sprintf("Payment of %s for order %s was successful. Transaction %s.", payload.Amount, payload.OrderNumber, payload.TransactionID),
	}
	if err := c.deliver(ctx, notification, logCtx); err != nil {
		return err
	}
	c.logg.Info(logCtx, "patient notified of payment")
	return nil
}

type orderStatusChangedPayload struct {
	OrderID     uuid.UUID         `json:"order_id"`
	OrderNumber string            `json:"order_number"`
	PatientID   uuid.UUID         `json:"patient_id"`
	From        enums.OrderStatus `json:"from"`
	To          enums.OrderStatus `json:"to"`
}

type paymentSettledPayload struct {
	PaymentID     uuid.UUID `json:"payment_id"`
	OrderID       uuid.UUID `json:"order_id"`
	OrderNumber   string    `json:"order_number"`
	PatientID     uuid.UUID `json:"patient_id"`
	TransactionID string    `json:"transaction_id"`
	Amount        string    `json:"amount"`
}
