package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/studyhall/backend/core/audit"
	"github.com/studyhall/backend/core/subscription"
	"github.com/studyhall/backend/core/user"
)

type subscriptionApi struct {
	svc   *subscription.Service
	audit *audit.Service
}

func registerSubscriptionAPI(g *echo.Group, authed []echo.MiddlewareFunc, deps *Deps) {
	api := subscriptionApi{svc: deps.SubscriptionSvc, audit: deps.AuditSvc}
	manage := permissionMiddleware(user.PermSubscriptionsManage)

	sg := g.Group("/subscriptions", authed...)
	sg.GET("", api.query, permissionMiddleware(user.PermSubscriptionsRead))
	sg.POST("", api.create, manage)
	sg.POST("/:id/cancel", api.cancel, manage)
}

func (api *subscriptionApi) query(ctx echo.Context) error {
	var filter subscription.QueryFilter
	if err := ctx.Bind(&filter); err != nil {
		return ctx.JSON(http.StatusOK, []subscription.Subscription{})
	}
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}

	subs, err := api.svc.Query(ctx.Request().Context(), usr, filter)
	if err != nil {
		return errors.Wrap(err, "querying subscriptions")
	}
	if subs == nil {
		subs = []subscription.Subscription{}
	}
	return ctx.JSON(http.StatusOK, subs)
}

func (api *subscriptionApi) create(ctx echo.Context) error {
	var data subscription.NewSubscription
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewSubscription")
	}
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}

	sub, err := api.svc.Create(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating subscription")
	}
	api.audit.Record(ctx.Request().Context(), usr, ctx.RealIP(), "subscription.create", audit.EntitySubscription, sub.ID, echo.Map{
		"merchant_id": sub.MerchantID,
		"plan":        sub.Plan,
		"ends_at":     sub.EndsAt,
	})
	return ctx.JSON(http.StatusCreated, sub)
}

func (api *subscriptionApi) cancel(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}
	sub, err := api.svc.Cancel(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "cancelling subscription")
	}
	api.audit.Record(ctx.Request().Context(), usr, ctx.RealIP(), "subscription.cancel", audit.EntitySubscription, sub.ID, nil)
	return ctx.JSON(http.StatusOK, sub)
}
