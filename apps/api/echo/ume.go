package echoapi

import (
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/uclouvain/osis-partnership-sub000/core/perms"
	"github.com/uclouvain/osis-partnership-sub000/core/ume"
)

type umeApi struct {
	svc      ume.Service
	validate *validator.Validate
}

func registerUMEAPI(g *echo.Group, authed []echo.MiddlewareFunc, svc ume.Service, validate *validator.Validate) {
	api := umeApi{svc: svc, validate: validate}

	ug := g.Group("/ucl-management-entities", append(authed, permMiddleware(perms.CanViewUME))...)
	ug.GET("", api.list)
	ug.POST("", api.create)
	ug.GET("/:id", api.retrieve)
	ug.PUT("/:id", api.update)
	ug.DELETE("/:id", api.destroy)
}

func (api *umeApi) object(ctx echo.Context) (ume.UME, error) {
	id, err := idParam(ctx, "id")
	if err != nil {
		return ume.UME{}, err
	}
	return api.svc.Get(ctx.Request().Context(), id)
}

func (api *umeApi) bind(ctx echo.Context) (ume.UMEData, error) {
	var data ume.UMEData
	if err := ctx.Bind(&data); err != nil {
		return data, errors.Wrap(err, "binding to UMEData")
	}
	return data, data.Validate(api.validate)
}

func (api *umeApi) list(ctx echo.Context) error {
	s, err := getContextSubject(ctx)
	if err != nil {
		return err
	}
	filter := new(ume.QueryFilter)
	filter.FacultyID, _ = strconv.Atoi(ctx.QueryParam("faculty"))
	filter.EntityID, _ = strconv.Atoi(ctx.QueryParam("entity"))

	umes, err := api.svc.List(ctx.Request().Context(), s, filter)
	if err != nil {
		return errors.Wrap(err, "listing ucl management entities")
	}
	if umes == nil {
		umes = []ume.UME{}
	}
	return ctx.JSON(http.StatusOK, umes)
}

func (api *umeApi) create(ctx echo.Context) error {
	s, err := getContextSubject(ctx)
	if err != nil {
		return err
	}
	data, err := api.bind(ctx)
	if err != nil {
		return err
	}

	u, err := api.svc.Create(ctx.Request().Context(), s, data)
	if err != nil {
		return errors.Wrap(err, "creating ucl management entity")
	}
	return ctx.JSON(http.StatusCreated, u)
}

func (api *umeApi) retrieve(ctx echo.Context) error {
	s, err := getContextSubject(ctx)
	if err != nil {
		return err
	}
	u, err := api.object(ctx)
	if err != nil {
		return err
	}
	if !s.IsADRI() && !s.Manages(u.ManagedEntityID()) && !s.Manages(u.FacultyID) {
		return errHttpForbidden
	}
	return ctx.JSON(http.StatusOK, u)
}

func (api *umeApi) update(ctx echo.Context) error {
	s, err := getContextSubject(ctx)
	if err != nil {
		return err
	}
	u, err := api.object(ctx)
	if err != nil {
		return err
	}
	data, err := api.bind(ctx)
	if err != nil {
		return err
	}

	u, err = api.svc.Update(ctx.Request().Context(), s, u, data)
	if err != nil {
		return errors.Wrap(err, "updating ucl management entity")
	}
	return ctx.JSON(http.StatusOK, u)
}

func (api *umeApi) destroy(ctx echo.Context) error {
	s, err := getContextSubject(ctx)
	if err != nil {
		return err
	}
	u, err := api.object(ctx)
	if err != nil {
		return err
	}
	if err = api.svc.Delete(ctx.Request().Context(), s, u); err != nil {
		return errors.Wrap(err, "deleting ucl management entity")
	}
	return ctx.NoContent(http.StatusNoContent)
}
