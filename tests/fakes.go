package testutil

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"
	"time"

	"github.com/studyhall/backend/core"
	"github.com/studyhall/backend/core/payment"
)

// Gateway is an in-memory payment gateway. Orders stay `created` until SetStatus is called.
type Gateway struct {
	mu       sync.Mutex
	orders   map[string]payment.OrderRequest
	statuses map[string]payment.GatewayStatus
	checks   int

	CreateErr error
	CheckErr  error
}

var _ payment.Gateway = (*Gateway)(nil)

func NewGateway() *Gateway {
	return &Gateway{
		orders:   make(map[string]payment.OrderRequest),
		statuses: make(map[string]payment.GatewayStatus),
	}
}

func (g *Gateway) CreateOrder(_ context.Context, req payment.OrderRequest) (payment.Order, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.CreateErr != nil {
		return payment.Order{}, g.CreateErr
	}
	g.orders[req.ClientTxnID] = req
	id := strconv.Itoa(len(g.orders))
	return payment.Order{
		OrderID:    id,
		PaymentURL: "https://pay.test/" + req.ClientTxnID,
		UPILinks:   map[string]string{"gpay": "upi://pay?tr=" + req.ClientTxnID},
		Raw:        json.RawMessage(`{"order_id":` + id + `}`),
	}, nil
}

func (g *Gateway) CheckStatus(_ context.Context, clientTxnID string, _ time.Time) (payment.GatewayStatus, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.checks++
	if g.CheckErr != nil {
		return payment.GatewayStatus{}, g.CheckErr
	}
	if gs, ok := g.statuses[clientTxnID]; ok {
		return gs, nil
	}
	return payment.GatewayStatus{Status: payment.GatewayCreated, Raw: json.RawMessage(`{}`)}, nil
}

// SetStatus makes the gateway report status for clientTxnID; a zero amount reports the ordered amount.
func (g *Gateway) SetStatus(clientTxnID, status string, amount int64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if amount == 0 {
		amount = g.orders[clientTxnID].Amount
	}
	g.statuses[clientTxnID] = payment.GatewayStatus{
		Status:   status,
		Amount:   amount,
		UPITxnID: "upi-" + clientTxnID,
		Raw:      json.RawMessage(`{"status":"` + status + `"}`),
	}
}

// Order returns the order request sent for clientTxnID.
func (g *Gateway) Order(clientTxnID string) (payment.OrderRequest, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	req, ok := g.orders[clientTxnID]
	return req, ok
}

// Checks returns how many status checks were made.
func (g *Gateway) Checks() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.checks
}

// PushSender records pushes. Tokens listed in Unregistered are refused with core.ErrPushTokenUnregistered.
type PushSender struct {
	mu           sync.Mutex
	Sent         map[string][]core.PushMessage // by token
	Unregistered map[string]bool
}

var _ core.PushSender = (*PushSender)(nil)

func (s *PushSender) Send(_ context.Context, token string, msg core.PushMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Unregistered[token] {
		return core.ErrPushTokenUnregistered
	}
	if s.Sent == nil {
		s.Sent = make(map[string][]core.PushMessage)
	}
	s.Sent[token] = append(s.Sent[token], msg)
	return nil
}

// Count returns how many pushes token received.
func (s *PushSender) Count(token string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Sent[token])
}

// Broadcaster records the live messages by user.
type Broadcaster struct {
	mu   sync.Mutex
	Msgs map[string][]interface{}
}

var _ core.Broadcaster = (*Broadcaster)(nil)

func (b *Broadcaster) SendToUser(userID string, msg interface{}) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.Msgs == nil {
		b.Msgs = make(map[string][]interface{})
	}
	b.Msgs[userID] = append(b.Msgs[userID], msg)
}

// Count returns how many messages userID received.
func (b *Broadcaster) Count(userID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.Msgs[userID])
}
