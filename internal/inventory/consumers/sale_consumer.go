package consumers

import (
	"context"
	"fmt"

	"github.com/rsm/retail-backend/internal/inventory/repository"
	"github.com/rsm/retail-backend/internal/inventory/service"
	"github.com/rsm/retail-backend/pkg/errors"
	"github.com/rsm/retail-backend/pkg/logger"
	"github.com/rsm/retail-backend/pkg/messaging"
)

// SaleEventConsumer deducts stock for completed sales published by the
// sales service
type SaleEventConsumer struct {
	consumer     *messaging.Consumer
	stockService *service.StockService
	logger       *logger.Logger
}

// NewSaleEventConsumer creates a new sale event consumer
func NewSaleEventConsumer(
	rmq *messaging.RabbitMQ,
	stockService *service.StockService,
	log *logger.Logger,
) (*SaleEventConsumer, error) {
	consumer, err := messaging.NewConsumer(rmq, "inventory-service.sale-events", log)
	if err != nil {
		return nil, err
	}

	if err := consumer.Subscribe(messaging.ExchangeSalesEvents, "sales.order.#"); err != nil {
		return nil, err
	}

	c := &SaleEventConsumer{
		consumer:     consumer,
		stockService: stockService,
		logger:       log,
	}

	consumer.RegisterHandler(messaging.EventSaleCompleted, c.handleSaleCompleted)

	return c, nil
}

// Start starts consuming messages
func (c *SaleEventConsumer) Start(ctx context.Context) error {
	return c.consumer.Start(ctx)
}

func (c *SaleEventConsumer) handleSaleCompleted(ctx context.Context, event *messaging.Event) error {
	var data messaging.SaleCompletedEvent
	if err := event.UnmarshalData(&data); err != nil {
		return err
	}

	c.logger.Info().
		Int64("invoice_id", data.InvoiceID).
		Int64("branch_id", data.BranchID).
		Int("lines", len(data.Lines)).
		Msg("received sale completed event")

	reference := fmt.Sprintf("invoice:%d", data.InvoiceID)

	for _, line := range data.Lines {
		key := repository.LocationKey{
			ProductID: line.ProductID,
			BranchID:  &data.BranchID,
		}

		err := c.stockService.DeductForSale(ctx, key, line.Quantity, reference)
		if err == nil {
			continue
		}

		// A sale the ledger cannot cover will not become coverable by
		// retrying; log the discrepancy and move on so the rest of the
		// invoice still deducts.
		var appErr *errors.AppError
		if errors.As(err, &appErr) && appErr.StatusCode < 500 {
			c.logger.Error().Err(err).
				Int64("invoice_id", data.InvoiceID).
				Int64("product_id", line.ProductID).
				Int("quantity", line.Quantity).
				Msg("sale deduction rejected, stock ledger out of step with sale")
			continue
		}

		return err
	}

	return nil
}
