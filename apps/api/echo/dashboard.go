package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/studyhall/backend/core/user"
)

func registerDashboardAPI(g *echo.Group, authed []echo.MiddlewareFunc, deps *Deps) {
	svc := deps.DashboardSvc
	mws := append(authed[:len(authed):len(authed)], permissionMiddleware(user.PermDashboardView))

	g.GET("/dashboard/stats", func(ctx echo.Context) error {
		usr, err := getContextUser(ctx)
		if err != nil {
			return err
		}
		stats, err := svc.Stats(ctx.Request().Context(), usr)
		if err != nil {
			return errors.Wrap(err, "computing dashboard stats")
		}
		return ctx.JSON(http.StatusOK, stats)
	}, mws...)
}
