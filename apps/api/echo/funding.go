package echoapi

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/uclouvain/osis-partnership-sub000/core/funding"
	"github.com/uclouvain/osis-partnership-sub000/core/perms"
)

type fundingApi struct {
	svc      funding.Service
	validate *validator.Validate
}

func registerFundingAPI(g *echo.Group, authed []echo.MiddlewareFunc, svc funding.Service, validate *validator.Validate) {
	api := fundingApi{svc: svc, validate: validate}

	fg := g.Group("/fundings", append(authed, accessMiddleware())...)
	fg.GET("", api.tree)

	fg.GET("/sources", api.sources)
	fg.POST("/sources", api.createSource)
	fg.GET("/sources/:id", api.retrieveSource)
	fg.PUT("/sources/:id", api.updateSource)
	fg.DELETE("/sources/:id", api.deleteSource)

	fg.GET("/programs", api.programs)
	fg.POST("/programs", api.createProgram)
	fg.GET("/programs/:id", api.retrieveProgram)
	fg.PUT("/programs/:id", api.updateProgram)
	fg.DELETE("/programs/:id", api.deleteProgram)

	fg.GET("/types", api.types)
	fg.POST("/types", api.createType)
	fg.GET("/types/:id", api.retrieveType)
	fg.PUT("/types/:id", api.updateType)
	fg.DELETE("/types/:id", api.deleteType)

	ig := g.Group("/financings", append(authed, permMiddleware(perms.CanManageFinancing))...)
	ig.GET("/:year", api.financings)
	ig.GET("/:year/export", api.export)
	ig.POST("/:year/import", api.importFinancings)
}

// filter reads the funding filter from the q, source, program & active query params.
func (api *fundingApi) filter(ctx echo.Context) *funding.Filter {
	f := &funding.Filter{Search: ctx.QueryParam("q")}
	f.SourceID, _ = strconv.Atoi(ctx.QueryParam("source"))
	f.ProgramID, _ = strconv.Atoi(ctx.QueryParam("program"))
	f.ActiveOnly, _ = strconv.ParseBool(ctx.QueryParam("active"))
	f.Clean()
	return f
}

func (api *fundingApi) tree(ctx echo.Context) error {
	activeOnly, _ := strconv.ParseBool(ctx.QueryParam("active"))
	tree, err := api.svc.Tree(ctx.Request().Context(), activeOnly)
	if err != nil {
		return errors.Wrap(err, "building funding tree")
	}
	return ctx.JSON(http.StatusOK, tree)
}

// Sources

func (api *fundingApi) source(ctx echo.Context) (funding.Source, error) {
	id, err := idParam(ctx, "id")
	if err != nil {
		return funding.Source{}, err
	}
	return api.svc.GetSource(ctx.Request().Context(), id)
}

func (api *fundingApi) sources(ctx echo.Context) error {
	sources, err := api.svc.Sources(ctx.Request().Context(), api.filter(ctx))
	if err != nil {
		return errors.Wrap(err, "listing funding sources")
	}
	if sources == nil {
		sources = []funding.Source{}
	}
	return ctx.JSON(http.StatusOK, sources)
}

func (api *fundingApi) retrieveSource(ctx echo.Context) error {
	s, err := api.source(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, s)
}

func (api *fundingApi) saveSource(ctx echo.Context, current funding.Source, status int) error {
	actor, err := getContextSubject(ctx)
	if err != nil {
		return err
	}
	var data funding.SourceData
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to SourceData")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	var s funding.Source
	if current.ID == 0 {
		s, err = api.svc.CreateSource(ctx.Request().Context(), actor, data)
	} else {
		s, err = api.svc.UpdateSource(ctx.Request().Context(), actor, current, data)
	}
	if err != nil {
		return errors.Wrap(err, "saving funding source")
	}
	return ctx.JSON(status, s)
}

func (api *fundingApi) createSource(ctx echo.Context) error {
	return api.saveSource(ctx, funding.Source{}, http.StatusCreated)
}

func (api *fundingApi) updateSource(ctx echo.Context) error {
	s, err := api.source(ctx)
	if err != nil {
		return err
	}
	return api.saveSource(ctx, s, http.StatusOK)
}

func (api *fundingApi) deleteSource(ctx echo.Context) error {
	actor, err := getContextSubject(ctx)
	if err != nil {
		return err
	}
	s, err := api.source(ctx)
	if err != nil {
		return err
	}
	if err = api.svc.DeleteSource(ctx.Request().Context(), actor, s); err != nil {
		return errors.Wrap(err, "deleting funding source")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// Programs

func (api *fundingApi) program(ctx echo.Context) (funding.Program, error) {
	id, err := idParam(ctx, "id")
	if err != nil {
		return funding.Program{}, err
	}
	return api.svc.GetProgram(ctx.Request().Context(), id)
}

func (api *fundingApi) programs(ctx echo.Context) error {
	programs, err := api.svc.Programs(ctx.Request().Context(), api.filter(ctx))
	if err != nil {
		return errors.Wrap(err, "listing funding programs")
	}
	if programs == nil {
		programs = []funding.Program{}
	}
	return ctx.JSON(http.StatusOK, programs)
}

func (api *fundingApi) retrieveProgram(ctx echo.Context) error {
	p, err := api.program(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, p)
}

func (api *fundingApi) saveProgram(ctx echo.Context, current funding.Program, status int) error {
	actor, err := getContextSubject(ctx)
	if err != nil {
		return err
	}
	var data funding.ProgramData
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ProgramData")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	var p funding.Program
	if current.ID == 0 {
		p, err = api.svc.CreateProgram(ctx.Request().Context(), actor, data)
	} else {
		p, err = api.svc.UpdateProgram(ctx.Request().Context(), actor, current, data)
	}
	if err != nil {
		return errors.Wrap(err, "saving funding program")
	}
	return ctx.JSON(status, p)
}

func (api *fundingApi) createProgram(ctx echo.Context) error {
	return api.saveProgram(ctx, funding.Program{}, http.StatusCreated)
}

func (api *fundingApi) updateProgram(ctx echo.Context) error {
	p, err := api.program(ctx)
	if err != nil {
		return err
	}
	return api.saveProgram(ctx, p, http.StatusOK)
}

func (api *fundingApi) deleteProgram(ctx echo.Context) error {
	actor, err := getContextSubject(ctx)
	if err != nil {
		return err
	}
	p, err := api.program(ctx)
	if err != nil {
		return err
	}
	if err = api.svc.DeleteProgram(ctx.Request().Context(), actor, p); err != nil {
		return errors.Wrap(err, "deleting funding program")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// Types

func (api *fundingApi) fundingType(ctx echo.Context) (funding.Type, error) {
	id, err := idParam(ctx, "id")
	if err != nil {
		return funding.Type{}, err
	}
	return api.svc.GetType(ctx.Request().Context(), id)
}

func (api *fundingApi) types(ctx echo.Context) error {
	types, err := api.svc.Types(ctx.Request().Context(), api.filter(ctx))
	if err != nil {
		return errors.Wrap(err, "listing funding types")
	}
	if types == nil {
		types = []funding.Type{}
	}
	return ctx.JSON(http.StatusOK, types)
}

func (api *fundingApi) retrieveType(ctx echo.Context) error {
	t, err := api.fundingType(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, t)
}

func (api *fundingApi) saveType(ctx echo.Context, current funding.Type, status int) error {
	actor, err := getContextSubject(ctx)
	if err != nil {
		return err
	}
	var data funding.TypeData
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to TypeData")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	var t funding.Type
	if current.ID == 0 {
		t, err = api.svc.CreateType(ctx.Request().Context(), actor, data)
	} else {
		t, err = api.svc.UpdateType(ctx.Request().Context(), actor, current, data)
	}
	if err != nil {
		return errors.Wrap(err, "saving funding type")
	}
	return ctx.JSON(status, t)
}

func (api *fundingApi) createType(ctx echo.Context) error {
	return api.saveType(ctx, funding.Type{}, http.StatusCreated)
}

func (api *fundingApi) updateType(ctx echo.Context) error {
	t, err := api.fundingType(ctx)
	if err != nil {
		return err
	}
	return api.saveType(ctx, t, http.StatusOK)
}

func (api *fundingApi) deleteType(ctx echo.Context) error {
	actor, err := getContextSubject(ctx)
	if err != nil {
		return err
	}
	t, err := api.fundingType(ctx)
	if err != nil {
		return err
	}
	if err = api.svc.DeleteType(ctx.Request().Context(), actor, t); err != nil {
		return errors.Wrap(err, "deleting funding type")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// Financings

func yearParam(ctx echo.Context) (int, error) {
	year, err := strconv.Atoi(ctx.Param("year"))
	if err != nil || year < 1900 || year > 9999 {
		return 0, errHttpNotFound
	}
	return year, nil
}

func (api *fundingApi) financings(ctx echo.Context) error {
	year, err := yearParam(ctx)
	if err != nil {
		return err
	}
	ordering := new(Ordering)
	ordering.Bind(ctx)

	rows, err := api.svc.Financings(ctx.Request().Context(), year, ordering.Orderings)
	if err != nil {
		return errors.Wrap(err, "listing financings")
	}
	return ctx.JSON(http.StatusOK, rows)
}

func (api *fundingApi) export(ctx echo.Context) error {
	actor, err := getContextSubject(ctx)
	if err != nil {
		return err
	}
	year, err := yearParam(ctx)
	if err != nil {
		return err
	}

	resp := ctx.Response()
	resp.Header().Set(echo.HeaderContentType, "text/csv; charset=utf-8")
	resp.Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=\"financing-%d.csv\"", year))
	resp.WriteHeader(http.StatusOK)
	return api.svc.Export(ctx.Request().Context(), actor, year, resp)
}

func (api *fundingApi) importFinancings(ctx echo.Context) error {
	actor, err := getContextSubject(ctx)
	if err != nil {
		return err
	}
	year, err := yearParam(ctx)
	if err != nil {
		return err
	}
	file, done, err := formUpload(ctx)
	if err != nil {
		return err
	}
	defer done()
	if file == nil {
		return errFileRequired
	}

	res, err := api.svc.Import(ctx.Request().Context(), actor, year, file.Content)
	if err != nil {
		return errors.Wrap(err, "importing financings")
	}
	if res.Warnings == nil {
		res.Warnings = []string{}
	}
	return ctx.JSON(http.StatusOK, res)
}
