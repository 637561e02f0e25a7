package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/studyhall/backend/core/audit"
	"github.com/studyhall/backend/core/user"
)

type auditApi struct {
	svc *audit.Service
}

func registerAuditAPI(g *echo.Group, authed []echo.MiddlewareFunc, deps *Deps) {
	api := auditApi{svc: deps.AuditSvc}
	mws := append(authed[:len(authed):len(authed)], permissionMiddleware(user.PermAuditRead))
	g.GET("/audit", api.query, mws...)
}

func (api *auditApi) query(ctx echo.Context) error {
	var filter audit.QueryFilter
	if err := ctx.Bind(&filter); err != nil {
		return ctx.JSON(http.StatusOK, []audit.Entry{})
	}
	var err error
	if filter.From, filter.To, err = timeRange(ctx, "from", "to"); err != nil {
		return err
	}

	entries, err := api.svc.Query(ctx.Request().Context(), filter)
	if err != nil {
		return errors.Wrap(err, "querying audit log")
	}
	if entries == nil {
		entries = []audit.Entry{}
	}
	return ctx.JSON(http.StatusOK, entries)
}
