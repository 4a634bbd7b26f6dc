package events

import (
	"context"
	"fmt"
	"time"

	"github.com/rsm/retail-backend/pkg/logger"
	"github.com/rsm/retail-backend/pkg/messaging"
)

// AlertNotification is the alert DTO pushed to subscribers. The alert row is
// the durable record; this push is a low-latency convenience only.
type AlertNotification struct {
	AlertID     int64      `json:"alert_id"`
	ProductID   int64      `json:"product_id"`
	ProductName string     `json:"product_name"`
	BranchID    *int64     `json:"branch_id,omitempty"`
	WarehouseID *int64     `json:"warehouse_id,omitempty"`
	LotID       *int64     `json:"lot_id,omitempty"`
	AccountID   *int64     `json:"account_id,omitempty"`
	AlertType   string     `json:"alert_type"`
	Message     string     `json:"message"`
	Quantity    *int       `json:"quantity,omitempty"`
	ExpiredDate *time.Time `json:"expired_date,omitempty"`
	CreatedDate time.Time  `json:"created_date"`
}

// InventoryEventPublisher publishes inventory events to the topic exchange
type InventoryEventPublisher struct {
	publisher *messaging.Publisher
	logger    *logger.Logger
}

// NewInventoryEventPublisher creates a new inventory event publisher
func NewInventoryEventPublisher(rmq *messaging.RabbitMQ, log *logger.Logger) (*InventoryEventPublisher, error) {
	publisher, err := messaging.NewPublisher(rmq, messaging.ExchangeInventoryEvents, "inventory-service", log)
	if err != nil {
		return nil, err
	}

	return &InventoryEventPublisher{
		publisher: publisher,
		logger:    log,
	}, nil
}

// PublishAlert fans an alert out to the global channel and, when the alert is
// scoped to a branch and/or warehouse, to the matching per-location channels.
// Delivery is fire-and-forget: a publish failure is logged and swallowed so a
// missing or slow subscriber can never block alert creation or the scan loop.
func (p *InventoryEventPublisher) PublishAlert(ctx context.Context, n *AlertNotification) {
	if p == nil {
		return
	}

	p.publishOn(ctx, messaging.EventAlertGenerated, n)

	if n.BranchID != nil {
		p.publishOn(ctx, fmt.Sprintf("inventory.alert.branch.%d", *n.BranchID), n)
	}
	if n.WarehouseID != nil {
		p.publishOn(ctx, fmt.Sprintf("inventory.alert.warehouse.%d", *n.WarehouseID), n)
	}
}

func (p *InventoryEventPublisher) publishOn(ctx context.Context, routingKey string, n *AlertNotification) {
	event, err := messaging.NewEvent(messaging.EventAlertGenerated, "inventory-service", "", n)
	if err != nil {
		p.logger.Error().Err(err).Int64("alert_id", n.AlertID).Msg("failed to build alert event")
		return
	}

	if err := p.publisher.PublishWithRoutingKey(ctx, routingKey, event); err != nil {
		p.logger.Error().Err(err).
			Str("routing_key", routingKey).
			Int64("alert_id", n.AlertID).
			Msg("failed to publish alert notification")
	}
}

// PublishStockReceived publishes a stock received event
func (p *InventoryEventPublisher) PublishStockReceived(ctx context.Context, data *messaging.StockReceivedEvent) {
	if p == nil {
		return
	}
	if err := p.publisher.Publish(ctx, messaging.EventStockReceived, data); err != nil {
		p.logger.Error().Err(err).Int64("lot_id", data.LotID).Msg("failed to publish stock received event")
	}
}

// PublishStockDeducted publishes a stock deducted event
func (p *InventoryEventPublisher) PublishStockDeducted(ctx context.Context, data *messaging.StockDeductedEvent) {
	if p == nil {
		return
	}
	if err := p.publisher.Publish(ctx, messaging.EventStockDeducted, data); err != nil {
		p.logger.Error().Err(err).Int64("product_id", data.ProductID).Msg("failed to publish stock deducted event")
	}
}

// PublishLotDisposed publishes a lot disposed event
func (p *InventoryEventPublisher) PublishLotDisposed(ctx context.Context, data *messaging.LotDisposedEvent) {
	if p == nil {
		return
	}
	if err := p.publisher.Publish(ctx, messaging.EventLotDisposed, data); err != nil {
		p.logger.Error().Err(err).Int64("lot_id", data.LotID).Msg("failed to publish lot disposed event")
	}
}
