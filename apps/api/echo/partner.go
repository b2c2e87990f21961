package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/uclouvain/osis-partnership-sub000/core/media"
	"github.com/uclouvain/osis-partnership-sub000/core/partner"
)

type partnerApi struct {
	svc      partner.Service
	validate *validator.Validate
}

func registerPartnerAPI(g *echo.Group, authed []echo.MiddlewareFunc, svc partner.Service, validate *validator.Validate) {
	api := partnerApi{svc: svc, validate: validate}

	pg := g.Group("/partners", append(authed, accessMiddleware())...)
	pg.GET("", api.query)
	pg.POST("", api.create)
	pg.GET("/similar", api.similar)

	dg := pg.Group("/:id")
	dg.GET("", api.retrieve)
	dg.PUT("", api.update)

	dg.GET("/medias", api.medias)
	dg.POST("/medias", api.addMedia)
	dg.PUT("/medias/:media_id", api.updateMedia)
	dg.DELETE("/medias/:media_id", api.deleteMedia)

	dg.GET("/entities", api.entities)
	dg.POST("/entities", api.createEntity)
	dg.GET("/entities/:entity_id", api.retrieveEntity)
	dg.PUT("/entities/:entity_id", api.updateEntity)
	dg.DELETE("/entities/:entity_id", api.deleteEntity)
}

func (api *partnerApi) object(ctx echo.Context) (partner.Partner, error) {
	id, err := idParam(ctx, "id")
	if err != nil {
		return partner.Partner{}, err
	}
	return api.svc.Get(ctx.Request().Context(), id)
}

func (api *partnerApi) entity(ctx echo.Context) (partner.Entity, error) {
	id, err := idParam(ctx, "id")
	if err != nil {
		return partner.Entity{}, err
	}
	entityID, err := idParam(ctx, "entity_id")
	if err != nil {
		return partner.Entity{}, err
	}
	return api.svc.GetEntity(ctx.Request().Context(), id, entityID)
}

// Partners

func (api *partnerApi) query(ctx echo.Context) error {
	filter := new(partner.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return err
	}
	filter.Clean()
	ordering := new(Ordering)
	ordering.Bind(ctx)

	partners, err := api.svc.Query(ctx.Request().Context(), filter, ordering.Orderings)
	if err != nil {
		return errors.Wrap(err, "querying partners")
	}
	if partners == nil {
		partners = []partner.Partner{}
	}
	return ctx.JSON(http.StatusOK, partners)
}

func (api *partnerApi) similar(ctx echo.Context) error {
	partners, err := api.svc.Similar(ctx.Request().Context(), ctx.QueryParam("search"))
	if err != nil {
		return errors.Wrap(err, "finding similar partners")
	}
	if partners == nil {
		partners = []partner.Partner{}
	}
	return ctx.JSON(http.StatusOK, partners)
}

func (api *partnerApi) create(ctx echo.Context) error {
	s, err := getContextSubject(ctx)
	if err != nil {
		return err
	}
	var data partner.PartnerData
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to PartnerData")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	p, err := api.svc.Create(ctx.Request().Context(), s, data)
	if err != nil {
		return errors.Wrap(err, "creating partner")
	}
	return ctx.JSON(http.StatusCreated, p)
}

func (api *partnerApi) retrieve(ctx echo.Context) error {
	p, err := api.object(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, p)
}

func (api *partnerApi) update(ctx echo.Context) error {
	s, err := getContextSubject(ctx)
	if err != nil {
		return err
	}
	p, err := api.object(ctx)
	if err != nil {
		return err
	}
	var data partner.PartnerData
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to PartnerData")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	p, err = api.svc.Update(ctx.Request().Context(), s, p, data)
	if err != nil {
		return errors.Wrap(err, "updating partner")
	}
	return ctx.JSON(http.StatusOK, p)
}

// Medias

func (api *partnerApi) medias(ctx echo.Context) error {
	p, err := api.object(ctx)
	if err != nil {
		return err
	}
	medias, err := api.svc.Medias(ctx.Request().Context(), p.ID)
	if err != nil {
		return errors.Wrap(err, "listing medias")
	}
	if medias == nil {
		medias = []media.Media{}
	}
	return ctx.JSON(http.StatusOK, medias)
}

func (api *partnerApi) addMedia(ctx echo.Context) error {
	s, err := getContextSubject(ctx)
	if err != nil {
		return err
	}
	p, err := api.object(ctx)
	if err != nil {
		return err
	}
	data, file, done, err := bindMedia(ctx, api.validate)
	if err != nil {
		return err
	}
	defer done()

	m, err := api.svc.AddMedia(ctx.Request().Context(), s, p.ID, data, file)
	if err != nil {
		return errors.Wrap(err, "adding media")
	}
	return ctx.JSON(http.StatusCreated, m)
}

func (api *partnerApi) updateMedia(ctx echo.Context) error {
	s, err := getContextSubject(ctx)
	if err != nil {
		return err
	}
	p, err := api.object(ctx)
	if err != nil {
		return err
	}
	mediaID, err := idParam(ctx, "media_id")
	if err != nil {
		return err
	}
	data, file, done, err := bindMedia(ctx, api.validate)
	if err != nil {
		return err
	}
	defer done()

	m, err := api.svc.UpdateMedia(ctx.Request().Context(), s, p.ID, mediaID, data, file)
	if err != nil {
		return errors.Wrap(err, "updating media")
	}
	return ctx.JSON(http.StatusOK, m)
}

func (api *partnerApi) deleteMedia(ctx echo.Context) error {
	s, err := getContextSubject(ctx)
	if err != nil {
		return err
	}
	p, err := api.object(ctx)
	if err != nil {
		return err
	}
	mediaID, err := idParam(ctx, "media_id")
	if err != nil {
		return err
	}
	if err = api.svc.DeleteMedia(ctx.Request().Context(), s, p.ID, mediaID); err != nil {
		return errors.Wrap(err, "deleting media")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// Entities

func (api *partnerApi) entities(ctx echo.Context) error {
	p, err := api.object(ctx)
	if err != nil {
		return err
	}
	entities, err := api.svc.Entities(ctx.Request().Context(), p.ID)
	if err != nil {
		return errors.Wrap(err, "listing partner entities")
	}
	if entities == nil {
		entities = []partner.Entity{}
	}
	return ctx.JSON(http.StatusOK, entities)
}

func (api *partnerApi) retrieveEntity(ctx echo.Context) error {
	e, err := api.entity(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, e)
}

func (api *partnerApi) createEntity(ctx echo.Context) error {
	s, err := getContextSubject(ctx)
	if err != nil {
		return err
	}
	p, err := api.object(ctx)
	if err != nil {
		return err
	}
	var data partner.EntityData
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to EntityData")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	e, err := api.svc.CreateEntity(ctx.Request().Context(), s, p.ID, data)
	if err != nil {
		return errors.Wrap(err, "creating partner entity")
	}
	return ctx.JSON(http.StatusCreated, e)
}

func (api *partnerApi) updateEntity(ctx echo.Context) error {
	s, err := getContextSubject(ctx)
	if err != nil {
		return err
	}
	e, err := api.entity(ctx)
	if err != nil {
		return err
	}
	var data partner.EntityData
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to EntityData")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	e, err = api.svc.UpdateEntity(ctx.Request().Context(), s, e, data)
	if err != nil {
		return errors.Wrap(err, "updating partner entity")
	}
	return ctx.JSON(http.StatusOK, e)
}

func (api *partnerApi) deleteEntity(ctx echo.Context) error {
	s, err := getContextSubject(ctx)
	if err != nil {
		return err
	}
	e, err := api.entity(ctx)
	if err != nil {
		return err
	}
	if err = api.svc.DeleteEntity(ctx.Request().Context(), s, e); err != nil {
		return errors.Wrap(err, "deleting partner entity")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// bindMedia binds the media fields and the optional uploaded file; done releases the file.
func bindMedia(ctx echo.Context, validate *validator.Validate) (media.MediaData, *media.Upload, func(), error) {
	var data media.MediaData
	if err := ctx.Bind(&data); err != nil {
		return data, nil, nil, errors.Wrap(err, "binding to MediaData")
	}
	if err := data.Validate(validate); err != nil {
		return data, nil, nil, err
	}
	file, done, err := formUpload(ctx)
	if err != nil {
		return data, nil, nil, err
	}
	return data, file, done, nil
}
