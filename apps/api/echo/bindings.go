package echoapi

import (
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/uclouvain/osis-partnership-sub000/core"
	"github.com/uclouvain/osis-partnership-sub000/core/media"
)

const (
	orderingParam = "ordering"
	dateLayout    = "2006-01-02"
	uploadField   = "file"
)

type Ordering struct {
	Orderings []core.DBOrdering
}

func (ord *Ordering) Bind(ctx echo.Context) {
	data := ctx.QueryParams()
	if len(data) == 0 {
		return
	}
	val, ok := data[orderingParam]
	if !ok || len(val) == 0 || val[0] == "" {
		return
	}

	for _, field := range strings.Split(val[0], ",") {
		field = strings.TrimSpace(field)
		descending := strings.HasPrefix(field, "-")
		if descending {
			field = field[1:] // drop "-"
		}
		if field != "" {
			ord.Orderings = append(ord.Orderings, core.DBOrdering{Field: field, Ascending: !descending})
		}
	}
}

// idParam parses a positive integer path parameter; anything else is a 404.
func idParam(ctx echo.Context, name string) (int, error) {
	id, err := strconv.Atoi(ctx.Param(name))
	if err != nil || id <= 0 {
		return 0, errHttpNotFound
	}
	return id, nil
}

// popDate parses a YYYY-MM-DD date from the values and removes it so the binder skips it.
// Dates are the only values the binder cannot handle.
func popDate(values map[string][]string, name string) (*time.Time, error) {
	vals, ok := values[name]
	delete(values, name)
	if !ok || len(vals) == 0 || strings.TrimSpace(vals[0]) == "" {
		return nil, nil
	}
	t, err := time.Parse(dateLayout, strings.TrimSpace(vals[0]))
	if err != nil {
		return nil, core.NewFieldError(name, "enter a valid date (YYYY-MM-DD)")
	}
	return &t, nil
}

// bindQuery binds the query string to dst, parsing the date parameters into dates first.
func bindQuery(ctx echo.Context, dst interface{}, dates map[string]**time.Time) error {
	values := ctx.QueryParams()
	for name, target := range dates {
		t, err := popDate(values, name)
		if err != nil {
			return err
		}
		*target = t
	}
	return ctx.Bind(dst)
}

// formUpload returns the uploaded file of a multipart request, nil when none was sent.
// The returned closer must be called once the upload was consumed.
func formUpload(ctx echo.Context) (*media.Upload, func(), error) {
	fh, err := ctx.FormFile(uploadField)
	if err != nil {
		if err == http.ErrMissingFile || err == http.ErrNotMultipart {
			return nil, func() {}, nil
		}
		return nil, nil, errors.Wrap(err, "reading uploaded file")
	}
	f, err := fh.Open()
	if err != nil {
		return nil, nil, errors.Wrap(err, "opening uploaded file")
	}
	return uploadOf(fh, f), func() { _ = f.Close() }, nil
}

func uploadOf(fh *multipart.FileHeader, f multipart.File) *media.Upload {
	ct := fh.Header.Get(echo.HeaderContentType)
	if ct == "" {
		ct = echo.MIMEOctetStream
	}
	return &media.Upload{
		Name:        fh.Filename,
		ContentType: ct,
		Size:        fh.Size,
		Content:     f,
	}
}
