package echoapi

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/studyhall/backend/core"
	"github.com/studyhall/backend/core/audit"
	"github.com/studyhall/backend/core/booking"
	"github.com/studyhall/backend/core/studyhall"
	"github.com/studyhall/backend/core/user"
)

const maxImageSize = 5 << 20

type hallApi struct {
	svc   *studyhall.Service
	audit *audit.Service
}

func registerHallAPI(g *echo.Group, authed []echo.MiddlewareFunc, deps *Deps) {
	api := hallApi{svc: deps.HallSvc, audit: deps.AuditSvc}
	manage := permissionMiddleware(user.PermHallsManage)

	hg := g.Group("/halls", authed...)
	hg.GET("", api.query)
	hg.POST("", api.create, manage)
	hg.GET("/:id", api.retrieve)
	hg.PUT("/:id", api.update, manage)
	hg.DELETE("/:id", api.destroy, manage)
	hg.POST("/:id/images", api.addImage, manage)
	hg.GET("/:id/seats", api.seats)
}

func (api *hallApi) query(ctx echo.Context) error {
	var filter studyhall.QueryFilter
	if err := ctx.Bind(&filter); err != nil {
		return ctx.JSON(http.StatusOK, []studyhall.StudyHall{})
	}
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}

	halls, err := api.svc.Query(ctx.Request().Context(), usr, filter)
	if err != nil {
		return errors.Wrap(err, "querying halls")
	}
	if halls == nil {
		halls = []studyhall.StudyHall{}
	}
	return ctx.JSON(http.StatusOK, halls)
}

func (api *hallApi) create(ctx echo.Context) error {
	var data studyhall.NewStudyHall
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewStudyHall")
	}
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}

	hall, err := api.svc.Create(ctx.Request().Context(), usr, data)
	if err != nil {
		return errors.Wrap(err, "creating hall")
	}
	api.audit.Record(ctx.Request().Context(), usr, ctx.RealIP(), "hall.create", audit.EntityStudyHall, hall.ID, echo.Map{
		"name":        hall.Name,
		"merchant_id": hall.MerchantID,
	})
	return ctx.JSON(http.StatusCreated, hall)
}

func (api *hallApi) retrieve(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}
	hall, err := api.svc.Get(ctx.Request().Context(), usr, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting hall")
	}
	return ctx.JSON(http.StatusOK, hall)
}

func (api *hallApi) update(ctx echo.Context) error {
	var data studyhall.UpdateStudyHall
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateStudyHall")
	}
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}

	hall, err := api.svc.Update(ctx.Request().Context(), usr, ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "updating hall")
	}
	api.audit.Record(ctx.Request().Context(), usr, ctx.RealIP(), "hall.update", audit.EntityStudyHall, hall.ID, data)
	return ctx.JSON(http.StatusOK, hall)
}

func (api *hallApi) destroy(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}
	id := ctx.Param("id")
	if err = api.svc.Delete(ctx.Request().Context(), usr, id); err != nil {
		return errors.Wrap(err, "deleting hall")
	}
	api.audit.Record(ctx.Request().Context(), usr, ctx.RealIP(), "hall.delete", audit.EntityStudyHall, id, nil)
	return ctx.NoContent(http.StatusNoContent)
}

func (api *hallApi) addImage(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}
	fh, err := ctx.FormFile("image")
	if err != nil {
		return core.NewValidationError(nil, core.FieldError{Field: "image", Error: "this field is required"})
	}
	if fh.Size > maxImageSize {
		return core.NewValidationError(nil, core.FieldError{Field: "image", Error: "image must not exceed 5MB"})
	}
	file, err := fh.Open()
	if err != nil {
		return errors.Wrap(err, "opening uploaded image")
	}
	//goland:noinspection GoUnhandledErrorResult
	defer file.Close()

	hall, err := api.svc.AddImage(ctx.Request().Context(), usr, ctx.Param("id"), fh.Filename, file)
	if err != nil {
		return errors.Wrap(err, "adding hall image")
	}
	api.audit.Record(ctx.Request().Context(), usr, ctx.RealIP(), "hall.image", audit.EntityStudyHall, hall.ID, echo.Map{
		"url": hall.ImageURLs[len(hall.ImageURLs)-1],
	})
	return ctx.JSON(http.StatusOK, hall)
}

// seats returns the seat map of the hall over [from, to]; both default to today.
func (api *hallApi) seats(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}
	from, to, err := timeRange(ctx, "from", "to")
	if err != nil {
		return err
	}
	today := booking.Today(time.Now())
	if from.IsZero() {
		from = today
	}
	if to.IsZero() {
		to = from
	}

	seats, err := api.svc.SeatMap(ctx.Request().Context(), usr, ctx.Param("id"), booking.Today(from), booking.Today(to))
	if err != nil {
		return errors.Wrap(err, "building seat map")
	}
	return ctx.JSON(http.StatusOK, seats)
}
