package echoapi

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/studyhall/backend/core/audit"
	"github.com/studyhall/backend/core/booking"
	"github.com/studyhall/backend/core/notification"
	"github.com/studyhall/backend/core/user"
)

type bookingApi struct {
	svc    *booking.Service
	audit  *audit.Service
	notify *notification.Service
}

func registerBookingAPI(g *echo.Group, authed []echo.MiddlewareFunc, deps *Deps) {
	api := bookingApi{svc: deps.BookingSvc, audit: deps.AuditSvc, notify: deps.NotificationSvc}

	bg := g.Group("/bookings", authed...)
	bg.GET("", api.query, permissionMiddleware(user.PermBookingsRead))
	bg.POST("", api.create, permissionMiddleware(user.PermBookingsCreate))
	bg.GET("/:id", api.retrieve, permissionMiddleware(user.PermBookingsRead))
	bg.POST("/:id/cancel", api.cancel, permissionMiddleware(user.PermBookingsRead))
	bg.POST("/:id/confirm", api.confirm, permissionMiddleware(user.PermBookingsManage))
	bg.POST("/:id/checkin", api.checkIn, permissionMiddleware(user.PermBookingsCheckIn))
}

func (api *bookingApi) query(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}
	filter := booking.QueryFilter{
		UserID:      ctx.QueryParam("user_id"),
		StudyHallID: ctx.QueryParam("study_hall_id"),
		Statuses:    listParam(ctx, "status"),
	}
	if filter.From, filter.To, err = timeRange(ctx, "from", "to"); err != nil {
		return err
	}

	bookings, err := api.svc.Query(ctx.Request().Context(), usr, filter)
	if err != nil {
		return errors.Wrap(err, "querying bookings")
	}
	if bookings == nil {
		bookings = []booking.Booking{}
	}
	return ctx.JSON(http.StatusOK, bookings)
}

func (api *bookingApi) create(ctx echo.Context) error {
	var data booking.NewBooking
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewBooking")
	}
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}

	b, err := api.svc.Create(ctx.Request().Context(), usr, data)
	if err != nil {
		return errors.Wrap(err, "creating booking")
	}
	api.audit.Record(ctx.Request().Context(), usr, ctx.RealIP(), "booking.create", audit.EntityBooking, b.ID, echo.Map{
		"study_hall_id": b.StudyHallID,
		"seat":          b.Seat,
		"amount":        b.Amount,
	})
	return ctx.JSON(http.StatusCreated, b)
}

func (api *bookingApi) retrieve(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}
	b, err := api.svc.Get(ctx.Request().Context(), usr, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting booking")
	}
	return ctx.JSON(http.StatusOK, b)
}

func (api *bookingApi) cancel(ctx echo.Context) error {
	return api.transition(ctx, "booking.cancel", api.svc.Cancel)
}

func (api *bookingApi) confirm(ctx echo.Context) error {
	return api.transition(ctx, "booking.confirm", api.svc.Confirm)
}

func (api *bookingApi) checkIn(ctx echo.Context) error {
	return api.transition(ctx, "booking.checkin", api.svc.CheckIn)
}

type bookingAction func(ctx context.Context, actor user.User, id string) (booking.Booking, error)

// transition runs a status change, records it & tells the booking owner.
func (api *bookingApi) transition(ctx echo.Context, action string, do bookingAction) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}
	b, err := do(ctx.Request().Context(), usr, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, action)
	}
	api.audit.Record(ctx.Request().Context(), usr, ctx.RealIP(), action, audit.EntityBooking, b.ID, echo.Map{"status": b.Status})
	if b.UserID != usr.ID {
		api.notify.Broadcast(b.UserID, "booking", b)
	}
	return ctx.JSON(http.StatusOK, b)
}
