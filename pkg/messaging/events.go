package messaging

import (
	"encoding/json"
	"fmt"
	"time"
)

// Event types
const (
	// Inventory events
	EventStockReceived  = "inventory.stock.received"
	EventStockDeducted  = "inventory.stock.deducted"
	EventStockRecounted = "inventory.stock.recounted"
	EventLotDisposed    = "inventory.lot.disposed"
	EventAlertGenerated = "inventory.alert.generated"
	EventAlertResolved  = "inventory.alert.resolved"

	// Sales events (consumed from the sales service)
	EventSaleCompleted = "sales.order.completed"
)

// Exchange names
const (
	ExchangeInventoryEvents = "inventory.events"
	ExchangeSalesEvents     = "sales.events"
)

// Event is the base event structure
type Event struct {
	ID            string          `json:"id"`
	Type          string          `json:"type"`
	Source        string          `json:"source"`
	Timestamp     time.Time       `json:"timestamp"`
	CorrelationID string          `json:"correlation_id"`
	Data          json.RawMessage `json:"data"`
}

// NewEvent creates a new event with the given type and data
func NewEvent(eventType, source, correlationID string, data interface{}) (*Event, error) {
	dataBytes, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	return &Event{
		ID:            GenerateEventID(),
		Type:          eventType,
		Source:        source,
		Timestamp:     time.Now().UTC(),
		CorrelationID: correlationID,
		Data:          dataBytes,
	}, nil
}

// UnmarshalData unmarshals the event data into the provided struct
func (e *Event) UnmarshalData(v interface{}) error {
	return json.Unmarshal(e.Data, v)
}

// StockReceivedEvent is published when stock is received into a lot
type StockReceivedEvent struct {
	LotID       int64   `json:"lot_id"`
	ProductID   int64   `json:"product_id"`
	BranchID    *int64  `json:"branch_id,omitempty"`
	WarehouseID *int64  `json:"warehouse_id,omitempty"`
	LotCode     *string `json:"lot_code,omitempty"`
	Quantity    int     `json:"quantity"`
	ExpiredDate *string `json:"expired_date,omitempty"`
}

// StockDeductedEvent is published when stock is deducted for a sale or transfer
type StockDeductedEvent struct {
	ProductID   int64  `json:"product_id"`
	BranchID    *int64 `json:"branch_id,omitempty"`
	WarehouseID *int64 `json:"warehouse_id,omitempty"`
	Quantity    int    `json:"quantity"`
	Reference   string `json:"reference,omitempty"`
}

// LotDisposedEvent is published when an expired lot is written off
type LotDisposedEvent struct {
	LotID     int64 `json:"lot_id"`
	AccountID int64 `json:"account_id"`
	AlertID   int64 `json:"alert_id"`
	Quantity  int   `json:"quantity"`
}

// SaleCompletedLine is one deduction line of a completed sale
type SaleCompletedLine struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
}

// SaleCompletedEvent is consumed from the sales service; each line triggers
// an inventory deduction at the sale's branch.
type SaleCompletedEvent struct {
	InvoiceID int64               `json:"invoice_id"`
	BranchID  int64               `json:"branch_id"`
	Lines     []SaleCompletedLine `json:"lines"`
}

// GenerateEventID generates a unique event ID
func GenerateEventID() string {
	return fmt.Sprintf("%d-%d", time.Now().UnixNano(), time.Now().Nanosecond()%10000)
}
