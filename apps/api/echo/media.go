package echoapi

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/uclouvain/osis-partnership-sub000/core"
	"github.com/uclouvain/osis-partnership-sub000/core/media"
)

type mediaApi struct {
	svc media.Service
}

// registerMediaAPI serves the media files. Public medias are downloadable without a token,
// STAFF_STUDENT ones by any authenticated user and STAFF ones by staff only.
func registerMediaAPI(g *echo.Group, jwtConfig middleware.JWTConfig, svc media.Service) {
	api := mediaApi{svc: svc}

	optional := jwtConfig
	optional.Skipper = func(ctx echo.Context) bool {
		return ctx.Request().Header.Get(echo.HeaderAuthorization) == ""
	}

	mg := g.Group("/medias", middleware.JWTWithConfig(optional))
	mg.GET("/:uuid/download", api.download)
}

func (api *mediaApi) download(ctx echo.Context) error {
	m, err := api.svc.GetByUUID(ctx.Request().Context(), ctx.Param("uuid"))
	if err != nil {
		return err
	}
	if !m.IsPublic() {
		claims, err := getContextClaims(ctx)
		if err != nil {
			return errUnauthorized
		}
		if m.Visibility == media.VisibilityStaff && !claims.IsStaff() {
			return core.ErrPermissionDenied
		}
	}
	if !m.HasFile() {
		if m.URL != "" {
			return ctx.Redirect(http.StatusFound, m.URL)
		}
		return media.ErrNotFound
	}

	rc, err := api.svc.Open(ctx.Request().Context(), m)
	if err != nil {
		return err
	}
	defer rc.Close()

	ct := m.ContentType
	if ct == "" {
		ct = echo.MIMEOctetStream
	}
	ctx.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", m.FileName))
	return ctx.Stream(http.StatusOK, ct, rc)
}
