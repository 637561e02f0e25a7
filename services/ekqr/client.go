// Package ekqr is the EKQR UPI payment gateway client.
package ekqr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/sendgrid/rest"

	"github.com/studyhall/backend/core"
	"github.com/studyhall/backend/core/payment"
)

const (
	createOrderPath = "/create_order"
	checkStatusPath = "/check_order_status"
	txnDateLayout   = "02-01-2006"
)

type Client struct {
	baseURL string
	key     string
	rest    *rest.Client
}

var _ payment.Gateway = (*Client)(nil)

func NewClient(conf *core.Config) *Client {
	return &Client{
		baseURL: conf.Payment.EKQRBaseURL,
		key:     conf.Payment.EKQRApiKey,
		rest:    &rest.Client{HTTPClient: &http.Client{Timeout: 20 * time.Second}},
	}
}

type (
	createOrderBody struct {
		Key            string `json:"key"`
		ClientTxnID    string `json:"client_txn_id"`
		Amount         string `json:"amount"`
		ProductInfo    string `json:"p_info"`
		CustomerName   string `json:"customer_name"`
		CustomerEmail  string `json:"customer_email"`
		CustomerMobile string `json:"customer_mobile"`
		RedirectURL    string `json:"redirect_url"`
		UDF1           string `json:"udf1"`
		UDF2           string `json:"udf2"`
		UDF3           string `json:"udf3"`
	}

	checkStatusBody struct {
		Key         string `json:"key"`
		ClientTxnID string `json:"client_txn_id"`
		TxnDate     string `json:"txn_date"`
	}

	envelope struct {
		Status bool            `json:"status"`
		Msg    string          `json:"msg"`
		Data   json.RawMessage `json:"data"`
	}

	orderData struct {
		OrderID    json.Number       `json:"order_id"`
		PaymentURL string            `json:"payment_url"`
		UPIIntent  map[string]string `json:"upi_intent"`
	}

	statusData struct {
		Status   string `json:"status"`
		Amount   amount `json:"amount"`
		UPITxnID string `json:"upi_txn_id"`
	}
)

// amount accepts both "120.50" and 120.5.
type amount string

func (a *amount) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*a = amount(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	f, err := n.Float64()
	if err != nil {
		return err
	}
	*a = amount(fmt.Sprintf("%.2f", f))
	return nil
}

func (c *Client) post(ctx context.Context, path string, body interface{}) (json.RawMessage, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, errors.Wrap(err, "encoding request")
	}
	res, err := c.rest.SendWithContext(ctx, rest.Request{
		Method:  rest.Post,
		BaseURL: c.baseURL + path,
		Headers: map[string]string{"Content-Type": "application/json", "Accept": "application/json"},
		Body:    payload,
	})
	if err != nil {
		return nil, errors.Wrapf(payment.ErrGateway, "%s: %v", path, err)
	}
	if res.StatusCode >= http.StatusBadRequest {
		return nil, errors.Wrapf(payment.ErrGateway, "%s: status %d: %s", path, res.StatusCode, res.Body)
	}

	raw := []byte(res.Body)
	var env envelope
	if err = json.NewDecoder(bytes.NewReader(raw)).Decode(&env); err != nil {
		return nil, errors.Wrapf(payment.ErrGateway, "%s: decoding response: %v", path, err)
	}
	if !env.Status {
		return nil, errors.Wrapf(payment.ErrGateway, "%s: %s", path, env.Msg)
	}
	return env.Data, nil
}

func (c *Client) CreateOrder(ctx context.Context, req payment.OrderRequest) (payment.Order, error) {
	data, err := c.post(ctx, createOrderPath, createOrderBody{
		Key:            c.key,
		ClientTxnID:    req.ClientTxnID,
		Amount:         payment.FormatRupees(req.Amount),
		ProductInfo:    req.ProductInfo,
		CustomerName:   req.CustomerName,
		CustomerEmail:  req.CustomerEmail,
		CustomerMobile: req.CustomerMobile,
		RedirectURL:    req.RedirectURL,
		UDF1:           req.UDF[0],
		UDF2:           req.UDF[1],
		UDF3:           req.UDF[2],
	})
	if err != nil {
		return payment.Order{}, err
	}

	var od orderData
	if err = json.Unmarshal(data, &od); err != nil {
		return payment.Order{}, errors.Wrapf(payment.ErrGateway, "decoding order: %v", err)
	}
	if od.PaymentURL == "" {
		return payment.Order{}, errors.Wrap(payment.ErrGateway, "order without payment url")
	}
	return payment.Order{
		OrderID:    od.OrderID.String(),
		PaymentURL: od.PaymentURL,
		UPILinks:   od.UPIIntent,
		Raw:        data,
	}, nil
}

func (c *Client) CheckStatus(ctx context.Context, clientTxnID string, txnDate time.Time) (payment.GatewayStatus, error) {
	data, err := c.post(ctx, checkStatusPath, checkStatusBody{
		Key:         c.key,
		ClientTxnID: clientTxnID,
		TxnDate:     txnDate.In(core.IST).Format(txnDateLayout),
	})
	if err != nil {
		return payment.GatewayStatus{}, err
	}

	var sd statusData
	if err = json.Unmarshal(data, &sd); err != nil {
		return payment.GatewayStatus{}, errors.Wrapf(payment.ErrGateway, "decoding status: %v", err)
	}
	status := payment.GatewayStatus{Status: sd.Status, UPITxnID: sd.UPITxnID, Raw: data}
	if sd.Amount != "" {
		if status.Amount, err = payment.ParseRupees(string(sd.Amount)); err != nil {
			return payment.GatewayStatus{}, errors.Wrap(payment.ErrGateway, err.Error())
		}
	}
	return status, nil
}
