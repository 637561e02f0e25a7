package echoapi

import (
	"fmt"

	"github.com/labstack/echo/v4"
)

// registerRealtimeAPI serves the live dashboard updates. Browsers cannot set headers on websockets,
// so the JWT comes in the `token` query param.
func registerRealtimeAPI(g *echo.Group, authed []echo.MiddlewareFunc, deps *Deps) {
	hub, logger := deps.Hub, deps.Logger

	g.GET("/ws", func(ctx echo.Context) error {
		usr, err := getContextUser(ctx)
		if err != nil {
			return err
		}
		// the upgrader answers failed handshakes itself
		if err = hub.Serve(ctx.Response(), ctx.Request(), usr.ID); err != nil {
			logger.Debug(fmt.Sprintf("ws: %v", err))
		}
		return nil
	}, authed...)
}
