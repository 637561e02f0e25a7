package ekqr

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/studyhall/backend/core"
	"github.com/studyhall/backend/core/payment"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	conf := core.NewTestConfig()
	conf.Payment.EKQRBaseURL = srv.URL
	conf.Payment.EKQRApiKey = "test-key"
	return NewClient(conf)
}

func decodeBody(t *testing.T, r *http.Request) map[string]string {
	t.Helper()
	raw, err := io.ReadAll(r.Body)
	require.NoError(t, err)
	body := make(map[string]string)
	require.NoError(t, json.Unmarshal(raw, &body))
	return body
}

func TestCreateOrder(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, createOrderPath, r.URL.Path)

		body := decodeBody(t, r)
		assert.Equal(t, "test-key", body["key"])
		assert.Equal(t, "tx1", body["client_txn_id"])
		assert.Equal(t, "120.50", body["amount"])
		assert.Equal(t, "booking-1", body["udf1"])

		_, _ = io.WriteString(w, `{"status":true,"msg":"Order Created","data":{"order_id":1234,
			"payment_url":"https://pay.test/1234","upi_intent":{"gpay_link":"tez://upi/pay?x"}}}`)
	})

	order, err := client.CreateOrder(ctxBg(), payment.OrderRequest{
		ClientTxnID: "tx1",
		Amount:      12050,
		ProductInfo: "Seat R1-1",
		UDF:         [3]string{"booking-1"},
	})
	require.NoError(t, err)
	assert.Equal(t, "1234", order.OrderID)
	assert.Equal(t, "https://pay.test/1234", order.PaymentURL)
	assert.Equal(t, "tez://upi/pay?x", order.UPILinks["gpay_link"])
	assert.NotEmpty(t, order.Raw)
}

func TestCreateOrderErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{name: "http error", status: http.StatusInternalServerError, body: `oops`},
		{name: "refused", status: http.StatusOK, body: `{"status":false,"msg":"Invalid key"}`},
		{name: "garbage", status: http.StatusOK, body: `<html>`},
		{name: "no payment url", status: http.StatusOK, body: `{"status":true,"data":{"order_id":"1"}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			})
			_, err := client.CreateOrder(ctxBg(), payment.OrderRequest{ClientTxnID: "tx1", Amount: 100})
			require.Error(t, err)
			assert.True(t, errors.Is(err, payment.ErrGateway), err)
		})
	}
}

func TestCheckStatus(t *testing.T) {
	tests := []struct {
		name       string
		amount     string
		wantAmount int64
	}{
		{name: "string amount", amount: `"120.50"`, wantAmount: 12050},
		{name: "numeric amount", amount: `120.5`, wantAmount: 12050},
		{name: "integer amount", amount: `99`, wantAmount: 9900},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, checkStatusPath, r.URL.Path)
				body := decodeBody(t, r)
				assert.Equal(t, "tx1", body["client_txn_id"])
				// 20:00 UTC is already the next day in India
				assert.Equal(t, "02-03-2024", body["txn_date"])

				_, _ = io.WriteString(w, `{"status":true,"msg":"ok","data":{"status":"success","amount":`+tt.amount+`,"upi_txn_id":"U1"}}`)
			})

			status, err := client.CheckStatus(ctxBg(), "tx1", time.Date(2024, 3, 1, 20, 0, 0, 0, time.UTC))
			require.NoError(t, err)
			assert.Equal(t, payment.GatewaySuccess, status.Status)
			assert.Equal(t, tt.wantAmount, status.Amount)
			assert.Equal(t, "U1", status.UPITxnID)
		})
	}
}

func ctxBg() context.Context { return context.Background() }
