package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/studyhall/backend/core"
	"github.com/studyhall/backend/core/booking"
	"github.com/studyhall/backend/core/payment"
	"github.com/studyhall/backend/core/studyhall"
	"github.com/studyhall/backend/core/subscription"
	"github.com/studyhall/backend/core/user"
)

var (
	errUnauthorized         = echo.NewHTTPError(http.StatusUnauthorized, "user not authenticated")
	errAuthenticationFailed = echo.NewHTTPError(http.StatusBadRequest, "authentication failed")
	errAccountDeactivated   = echo.NewHTTPError(http.StatusForbidden, "account deactivated")
	errRefreshExpired       = echo.NewHTTPError(http.StatusForbidden, "refresh has expired")
	errHttpForbidden        = echo.NewHTTPError(http.StatusForbidden, "permission denied")
	errHttpNotFound         = echo.NewHTTPError(http.StatusNotFound, "not found")
	errTooManyRequests      = echo.NewHTTPError(http.StatusTooManyRequests, "too many attempts, try again later")
)

// domainErrors maps the domain sentinel errors to their HTTP status.
var domainErrors = map[error]int{
	core.ErrForbidden: http.StatusForbidden,

	user.ErrNotFound:         http.StatusNotFound,
	studyhall.ErrNotFound:    http.StatusNotFound,
	booking.ErrNotFound:      http.StatusNotFound,
	payment.ErrNotFound:      http.StatusNotFound,
	subscription.ErrNotFound: http.StatusNotFound,

	booking.ErrSeatTaken:                 http.StatusConflict,
	booking.ErrInvalidTransition:         http.StatusConflict,
	payment.ErrBookingNotPending:         http.StatusConflict,
	payment.ErrDuplicateTxnID:            http.StatusConflict,
	subscription.ErrAlreadyClosed:        http.StatusConflict,
	studyhall.ErrHallLimit:               http.StatusConflict,
	studyhall.ErrLayoutShrink:            http.StatusConflict,
	booking.ErrCheckInNotAllowed:         http.StatusConflict,
	booking.ErrHallInactive:              http.StatusConflict,
	subscription.ErrNoActiveSubscription: http.StatusPaymentRequired,

	payment.ErrGateway: http.StatusBadGateway,

	booking.ErrPastDate:          http.StatusBadRequest,
	booking.ErrDateRange:         http.StatusBadRequest,
	booking.ErrTooLong:           http.StatusBadRequest,
	booking.ErrInvalidOwner:      http.StatusBadRequest,
	studyhall.ErrInvalidSeat:     http.StatusBadRequest,
	studyhall.ErrInvalidIncharge: http.StatusBadRequest,
	studyhall.ErrInvalidMerchant: http.StatusBadRequest,
	studyhall.ErrInvalidImage:    http.StatusBadRequest,
	subscription.ErrNotMerchant:  http.StatusBadRequest,
	payment.ErrAmountMismatch:    http.StatusBadRequest,
	user.ErrRoleTooHigh:          http.StatusBadRequest,
}

// newAppHTTPErrorHandler returns a custom echo.HTTPErrorHandler that knows how to handle our errors.
// signalShutdown is called in order to gracefully shutdown the Server whenever a core.shutdown error is caught.
func newAppHTTPErrorHandler(logger core.Logger, signalShutdown func()) echo.HTTPErrorHandler {
	return func(err error, ctx echo.Context) {
		var code int
		var message interface{}

		cause := errors.Cause(err)
		if status, ok := domainErrors[cause]; ok {
			code = status
			message = cause.Error()
		} else {
			switch origErr := cause.(type) {
			case *echo.HTTPError:
				if origErr == middleware.ErrJWTMissing {
					code = http.StatusUnauthorized
					message = origErr.Message
					break
				}
				if origErr.Internal != nil {
					if herr, ok := origErr.Internal.(*echo.HTTPError); ok {
						origErr = herr
					}
				}
				code = origErr.Code
				message = origErr.Message
			case validator.ValidationErrors:
				fldErrs := make(map[string]string, len(origErr))
				for _, vErr := range origErr {
					fldErrs[vErr.Field()] = vErr.Translate(core.Translator)
				}
				code = http.StatusBadRequest
				message = fldErrs
			case *core.ValidationError:
				if origErr.Fields != nil {
					fldErrs := make(map[string]string, len(origErr.Fields))
					for _, fErr := range origErr.Fields {
						fldErrs[fErr.Field] = fErr.Error
					}
					message = fldErrs
				} else {
					message = origErr.Error()
				}
				code = http.StatusBadRequest
			default: // any other error is a server error
				code = http.StatusInternalServerError
				msg := http.StatusText(http.StatusInternalServerError)
				message = msg

				usr, _ := getContextUser(ctx)
				logger.Error(msg, errors.Wrap(err, msg), usr)

				// shutting down...
				if core.IsShutdown(err) {
					signalShutdown()
				}
			}
		}

		if m, ok := message.(string); ok {
			if ctx.Echo().Debug && code == http.StatusInternalServerError {
				m = err.Error()
			}
			message = echo.Map{"error": m}
		}

		// Send response
		if !ctx.Response().Committed {
			if ctx.Request().Method == http.MethodHead { // Issue #608
				err = ctx.NoContent(code)
			} else {
				err = ctx.JSON(code, message)
			}
			if err != nil {
				ctx.Echo().Logger.Error(err)
			}
		}
	}
}
