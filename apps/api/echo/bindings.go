package echoapi

import (
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/studyhall/backend/core"
)

const (
	orderingParam = "ordering"
	dateLayout    = "2006-01-02"
)

type Ordering struct {
	Orderings []core.DBOrdering
}

func (ord *Ordering) Bind(ctx echo.Context) {
	val := ctx.QueryParam(orderingParam)
	if val == "" {
		return
	}

	for _, field := range strings.Split(val, ",") {
		field = strings.TrimSpace(field)
		descending := strings.HasPrefix(field, "-")
		if descending {
			field = field[1:] // drop "-"
		}
		if field == "" {
			continue
		}
		ord.Orderings = append(ord.Orderings, core.DBOrdering{Field: field, Ascending: !descending})
	}
}

// timeParam parses the query param name as RFC 3339 or as a plain date (UTC midnight).
// A missing param gives the zero time.
func timeParam(ctx echo.Context, name string) (time.Time, error) {
	val := strings.TrimSpace(ctx.QueryParam(name))
	if val == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, val); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(dateLayout, val)
	if err != nil {
		return time.Time{}, core.NewValidationError(nil, core.FieldError{Field: name, Error: "invalid date, use YYYY-MM-DD"})
	}
	return t, nil
}

// timeRange parses the from & to query params.
func timeRange(ctx echo.Context, fromParam, toParam string) (from, to time.Time, err error) {
	if from, err = timeParam(ctx, fromParam); err != nil {
		return
	}
	to, err = timeParam(ctx, toParam)
	return
}

// listParam returns the values of a repeatable query param; comma separated values are split.
func listParam(ctx echo.Context, name string) []string {
	var vals []string
	for _, v := range ctx.QueryParams()[name] {
		for _, s := range strings.Split(v, ",") {
			if s = strings.TrimSpace(s); s != "" {
				vals = append(vals, s)
			}
		}
	}
	return vals
}
