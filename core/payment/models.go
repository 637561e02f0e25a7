package payment

import (
	"context"
	"encoding/json"
	"strings"
	"time"
)

// Transaction statuses
const (
	StatusPending   = "pending"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Gateway side statuses
const (
	GatewaySuccess  = "success"
	GatewayFailure  = "failure"
	GatewayCreated  = "created"
	GatewayScanning = "scanning"
)

type Transaction struct {
	ID              string            `json:"id"`
	BookingID       string            `json:"booking_id"`
	UserID          string            `json:"user_id"`
	ClientTxnID     string            `json:"client_txn_id"`
	GatewayOrderID  string            `json:"gateway_order_id"`
	Amount          int64             `json:"amount"` // paise
	Status          string            `json:"status"`
	PaymentURL      string            `json:"payment_url"`
	UPILinks        map[string]string `json:"upi_links"`
	GatewayResponse json.RawMessage   `json:"-"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
}

func (tx Transaction) IsSettled() bool { return tx.Status != StatusPending }

type (
	OrderRequest struct {
		ClientTxnID    string
		Amount         int64 // paise
		ProductInfo    string
		CustomerName   string
		CustomerEmail  string
		CustomerMobile string
		RedirectURL    string
		UDF            [3]string
	}

	Order struct {
		OrderID    string
		PaymentURL string
		UPILinks   map[string]string // {app: deep link}
		Raw        json.RawMessage
	}

	GatewayStatus struct {
		Status   string // success, failure, created, scanning...
		Amount   int64  // paise
		UPITxnID string
		Raw      json.RawMessage
	}

	// Gateway is a QR/UPI payment gateway.
	Gateway interface {
		CreateOrder(ctx context.Context, req OrderRequest) (Order, error)
		// CheckStatus asks the gateway about the order created for clientTxnID on txnDate.
		CheckStatus(ctx context.Context, clientTxnID string, txnDate time.Time) (GatewayStatus, error)
	}
)

// NewOrder is the body of an order creation request.
type NewOrder struct {
	BookingID   string `json:"booking_id" validate:"required,uuid"`
	ClientTxnID string `json:"client_txn_id" validate:"omitempty,uuid"`
}

// WebhookParams are the query params the gateway redirects the payer with.
type WebhookParams struct {
	ClientTxnID string `query:"client_txn_id" form:"client_txn_id"`
	Status      string `query:"status" form:"status"`
	Amount      string `query:"amount" form:"amount"`
	OrderID     string `query:"order_id" form:"order_id"`
}

type QueryFilter struct {
	UserID     string
	BookingID  string
	BookingIDs []string // nil means any booking
	Statuses   []string
	From       time.Time
	To         time.Time
}

// SettlementFor maps a gateway status to the transaction status it settles to.
// ok is false for statuses that leave the transaction pending.
func SettlementFor(gatewayStatus string) (status string, ok bool) {
	switch strings.ToLower(strings.TrimSpace(gatewayStatus)) {
	case GatewaySuccess, "completed", "paid":
		return StatusCompleted, true
	case GatewayFailure, "failed", "cancelled", "canceled", "close", "closed":
		return StatusFailed, true
	}
	return StatusPending, false
}
