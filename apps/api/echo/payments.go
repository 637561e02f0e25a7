package echoapi

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/studyhall/backend/core"
	"github.com/studyhall/backend/core/audit"
	"github.com/studyhall/backend/core/payment"
	"github.com/studyhall/backend/core/user"
)

type paymentApi struct {
	svc    *payment.Service
	audit  *audit.Service
	logger core.Logger
}

func registerPaymentAPI(g *echo.Group, authed []echo.MiddlewareFunc, deps *Deps) {
	api := paymentApi{svc: deps.PaymentSvc, audit: deps.AuditSvc, logger: deps.Logger}

	pg := g.Group("/payments")

	// the gateway redirects the payer here
	pg.GET("/ekqr/webhook", api.webhook)
	pg.POST("/ekqr/webhook", api.webhook)

	ag := pg.Group("", authed...)
	ag.POST("/orders", api.createOrder, permissionMiddleware(user.PermBookingsCreate))
	ag.GET("", api.query, permissionMiddleware(user.PermPaymentsRead))
	ag.GET("/:client_txn_id/status", api.status)
}

// createOrder opens a gateway order for a pending booking and starts checking its status in the background.
func (api *paymentApi) createOrder(ctx echo.Context) error {
	var data payment.NewOrder
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewOrder")
	}
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}

	tx, err := api.svc.CreateOrder(ctx.Request().Context(), usr, data)
	if err != nil {
		return errors.Wrap(err, "creating payment order")
	}
	api.svc.StartPolling(tx)
	api.audit.Record(ctx.Request().Context(), usr, ctx.RealIP(), "payment.order", audit.EntityPayment, tx.ID, echo.Map{
		"booking_id":    tx.BookingID,
		"client_txn_id": tx.ClientTxnID,
		"amount":        tx.Amount,
	})
	return ctx.JSON(http.StatusCreated, tx)
}

// status reports the transaction status, asking the gateway while it is pending.
func (api *paymentApi) status(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}
	tx, err := api.svc.Get(ctx.Request().Context(), usr, ctx.Param("client_txn_id"))
	if err != nil {
		return errors.Wrap(err, "getting transaction")
	}
	if !tx.IsSettled() {
		if tx, err = api.svc.CheckStatus(ctx.Request().Context(), tx.ClientTxnID); err != nil {
			return errors.Wrap(err, "checking transaction status")
		}
	}
	return ctx.JSON(http.StatusOK, tx)
}

func (api *paymentApi) query(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}
	filter := payment.QueryFilter{
		BookingID: ctx.QueryParam("booking_id"),
		Statuses:  listParam(ctx, "status"),
	}
	if filter.From, filter.To, err = timeRange(ctx, "from", "to"); err != nil {
		return err
	}

	txs, err := api.svc.Query(ctx.Request().Context(), usr, filter)
	if err != nil {
		return errors.Wrap(err, "querying transactions")
	}
	if txs == nil {
		txs = []payment.Transaction{}
	}
	return ctx.JSON(http.StatusOK, txs)
}

// webhook settles the transaction the gateway reports about and sends the payer to the result page.
// The payer is redirected even when the callback cannot be applied.
func (api *paymentApi) webhook(ctx echo.Context) error {
	var params payment.WebhookParams
	if err := ctx.Bind(&params); err != nil {
		params = payment.WebhookParams{
			ClientTxnID: ctx.QueryParam("client_txn_id"),
			Status:      ctx.QueryParam("status"),
			Amount:      ctx.QueryParam("amount"),
			OrderID:     ctx.QueryParam("order_id"),
		}
	}

	redirectURL, err := api.svc.HandleWebhook(ctx.Request().Context(), params)
	if err != nil {
		api.logger.Warn(fmt.Sprintf("payment webhook for %q: %v", params.ClientTxnID, err), err)
	}
	return ctx.Redirect(http.StatusFound, redirectURL)
}
