package payments

import (
	"bytes"
	"context"
	"fmt"

	"github.com/thanhngodev/medigo-backend/pkg/db/models"
)

type textReceiptGenerator struct{}

// NewTextReceiptGenerator renders receipts as plain text. A richer renderer
// can replace it behind the same interface.
func NewTextReceiptGenerator() ReceiptGenerator {
	return textReceiptGenerator{}
}

func (textReceiptGenerator) GenerateReceipt(ctx context.Context, payment *models.Payment, order *models.Order) ([]byte, error) {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "MediGo Payment Receipt\n")
	fmt.Fprintf(&buf, "Transaction: %s\n", payment.TransactionID)
	fmt.Fprintf(&buf, "Order:       %s\n", order.OrderNumber)
	fmt.Fprintf(&buf, "Amount:      %s\n", payment.Amount.StringFixed(2))
	fmt.Fprintf(&buf, "Method:      %s\n", payment.Method)
	if payment.PaidAt != nil {
		fmt.Fprintf(&buf, "Paid at:     %s\n", payment.PaidAt.UTC().Format("2006-01-02 15:04:05 MST"))
	}
	fmt.Fprintf(&buf, "\nItems:\n")
	for _, item := range order.Items {
		fmt.Fprintf(&buf, "  %dx %s @ %s = %s\n", item.Quantity, item.MedicationID, item.UnitPrice.StringFixed(2), item.Subtotal.StringFixed(2))
	}
	fmt.Fprintf(&buf, "Delivery fee: %s\n", order.DeliveryFee.StringFixed(2))
	return buf.Bytes(), nil
}
