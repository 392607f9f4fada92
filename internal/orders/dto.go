package orders

import (
	"github.com/google/uuid"

	"github.com/thanhngodev/medigo-backend/pkg/enums"
)

// CreateOrderInput captures everything needed to open an order against one
// pharmacy.
type CreateOrderInput struct {
	PatientID         uuid.UUID              `json:"patient_id" validate:"required"`
	PharmacyID        uuid.UUID              `json:"pharmacy_id" validate:"required"`
	Items             []CreateOrderItemInput `json:"items" validate:"required,min=1,dive"`
	DeliveryAddress   string                 `json:"delivery_address" validate:"required"`
	DeliveryPhone     string                 `json:"delivery_phone" validate:"required"`
	DeliveryLatitude  float64                `json:"delivery_latitude" validate:"gte=-90,lte=90"`
	DeliveryLongitude float64                `json:"delivery_longitude" validate:"gte=-180,lte=180"`
}

// CreateOrderItemInput is one requested line of a new order.
type CreateOrderItemInput struct {
	MedicationID uuid.UUID `json:"medication_id" validate:"required"`
	Quantity     int       `json:"quantity" validate:"required,gt=0"`
}

// OrderCreatedEvent is emitted when an order is opened.
type OrderCreatedEvent struct {
	OrderID     uuid.UUID `json:"order_id"`
	OrderNumber string    `json:"order_number"`
	PatientID   uuid.UUID `json:"patient_id"`
	PharmacyID  uuid.UUID `json:"pharmacy_id"`
	TotalAmount string    `json:"total_amount"`
	DeliveryFee string    `json:"delivery_fee"`
	ItemCount   int       `json:"item_count"`
}

// OrderStatusChangedEvent is emitted whenever the state machine moves an order.
type OrderStatusChangedEvent struct {
	OrderID     uuid.UUID         `json:"order_id"`
	OrderNumber string            `json:"order_number"`
	PatientID   uuid.UUID         `json:"patient_id"`
	PharmacyID  uuid.UUID         `json:"pharmacy_id"`
	From        enums.OrderStatus `json:"from"`
	To          enums.OrderStatus `json:"to"`
}
