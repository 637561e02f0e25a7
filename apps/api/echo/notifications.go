package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/studyhall/backend/core/notification"
	"github.com/studyhall/backend/core/user"
)

type notificationApi struct {
	svc *notification.Service
}

func registerNotificationAPI(g *echo.Group, authed []echo.MiddlewareFunc, deps *Deps) {
	api := notificationApi{svc: deps.NotificationSvc}

	ng := g.Group("/notifications", authed...)
	ng.GET("/tokens", api.listTokens)
	ng.POST("/tokens", api.registerToken)
	ng.DELETE("/tokens", api.removeToken)
	ng.POST("/send", api.send, permissionMiddleware(user.PermNotificationsSend))
}

func (api *notificationApi) listTokens(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}
	tokens, err := api.svc.ListForUser(ctx.Request().Context(), usr.ID)
	if err != nil {
		return errors.Wrap(err, "listing tokens")
	}
	if tokens == nil {
		tokens = []notification.Token{}
	}
	return ctx.JSON(http.StatusOK, tokens)
}

func (api *notificationApi) registerToken(ctx echo.Context) error {
	var data notification.NewToken
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewToken")
	}
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}

	token, err := api.svc.Register(ctx.Request().Context(), usr.ID, data)
	if err != nil {
		return errors.Wrap(err, "registering token")
	}
	return ctx.JSON(http.StatusCreated, token)
}

func (api *notificationApi) removeToken(ctx echo.Context) error {
	var data RemoveTokenRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to RemoveTokenRequest")
	}
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}
	if data.Token != "" {
		if err = api.svc.Remove(ctx.Request().Context(), usr.ID, data.Token); err != nil {
			return errors.Wrap(err, "removing token")
		}
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *notificationApi) send(ctx echo.Context) error {
	var data notification.Message
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to Message")
	}

	sent, err := api.svc.NotifyUser(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "notifying user")
	}
	return ctx.JSON(http.StatusOK, SendResponse{Sent: sent})
}

type (
	RemoveTokenRequest struct {
		Token string `json:"token" query:"token"`
	}

	SendResponse struct {
		Sent int `json:"sent"` // devices reached
	}
)
