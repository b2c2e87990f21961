package echoapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/uclouvain/osis-partnership-sub000/core/contact"
	"github.com/uclouvain/osis-partnership-sub000/core/entity"
	"github.com/uclouvain/osis-partnership-sub000/core/media"
	"github.com/uclouvain/osis-partnership-sub000/core/partnership"
	"github.com/uclouvain/osis-partnership-sub000/core/reference"
)

const (
	specialDatesFromParam = "partnership_special_dates_0"
	specialDatesToParam   = "partnership_special_dates_1"
)

type partnershipApi struct {
	svc       partnership.Service
	entitySvc entity.Service
	refSvc    reference.Service
	validate  *validator.Validate
}

func registerPartnershipAPI(
	g *echo.Group,
	authed []echo.MiddlewareFunc,
	svc partnership.Service,
	entitySvc entity.Service,
	refSvc reference.Service,
	validate *validator.Validate,
) {
	api := partnershipApi{svc: svc, entitySvc: entitySvc, refSvc: refSvc, validate: validate}

	pg := g.Group("/partnerships", append(authed, accessMiddleware())...)
	pg.GET("", api.query)
	pg.POST("", api.create)
	pg.GET("/agreements", api.queryAgreements)
	pg.GET("/missions", api.missions)
	pg.GET("/subtypes", api.subtypes)
	pg.GET("/education-levels", api.educationLevels)

	dg := pg.Group("/:id")
	dg.GET("", api.retrieve)
	dg.PUT("", api.update)
	dg.DELETE("", api.destroy)

	dg.GET("/contacts", api.contacts)
	dg.POST("/contacts", api.createContact)
	dg.PUT("/contacts/:contact_id", api.updateContact)
	dg.DELETE("/contacts/:contact_id", api.deleteContact)

	dg.GET("/medias", api.medias)
	dg.POST("/medias", api.addMedia)
	dg.PUT("/medias/:media_id", api.updateMedia)
	dg.DELETE("/medias/:media_id", api.deleteMedia)

	dg.GET("/agreements", api.agreements)
	dg.POST("/agreements", api.createAgreement)
	dg.GET("/agreements/:agreement_id", api.retrieveAgreement)
	dg.PUT("/agreements/:agreement_id", api.updateAgreement)
	dg.DELETE("/agreements/:agreement_id", api.deleteAgreement)
}

func (api *partnershipApi) object(ctx echo.Context) (partnership.Partnership, error) {
	id, err := idParam(ctx, "id")
	if err != nil {
		return partnership.Partnership{}, err
	}
	return api.svc.Get(ctx.Request().Context(), id)
}

func (api *partnershipApi) agreement(ctx echo.Context, p partnership.Partnership) (partnership.Agreement, error) {
	id, err := idParam(ctx, "agreement_id")
	if err != nil {
		return partnership.Agreement{}, err
	}
	return api.svc.GetAgreement(ctx.Request().Context(), p.ID, id)
}

// Partnerships

// bindFilter binds the partnership filter, special dates included.
func bindFilter(ctx echo.Context, filter *partnership.QueryFilter, dst interface{}) error {
	var from, to *time.Time
	if err := bindQuery(ctx, dst, map[string]**time.Time{
		specialDatesFromParam: &from,
		specialDatesToParam:   &to,
	}); err != nil {
		return err
	}
	filter.SpecialDatesFrom, filter.SpecialDatesTo = from, to
	return nil
}

func (api *partnershipApi) query(ctx echo.Context) error {
	filter := new(partnership.QueryFilter)
	if err := bindFilter(ctx, filter, filter); err != nil {
		return err
	}
	filter.Clean()
	ordering := new(Ordering)
	ordering.Bind(ctx)

	partnerships, err := api.svc.Query(ctx.Request().Context(), filter, ordering.Orderings)
	if err != nil {
		return errors.Wrap(err, "querying partnerships")
	}
	if partnerships == nil {
		partnerships = []partnership.Partnership{}
	}
	return ctx.JSON(http.StatusOK, partnerships)
}

func (api *partnershipApi) queryAgreements(ctx echo.Context) error {
	filter := new(partnership.AgreementFilter)
	if err := bindFilter(ctx, &filter.QueryFilter, filter); err != nil {
		return err
	}
	filter.Clean()
	ordering := new(Ordering)
	ordering.Bind(ctx)

	agreements, err := api.svc.QueryAgreements(ctx.Request().Context(), filter, ordering.Orderings)
	if err != nil {
		return errors.Wrap(err, "querying agreements")
	}
	if agreements == nil {
		agreements = []partnership.AgreementSummary{}
	}
	return ctx.JSON(http.StatusOK, agreements)
}

func (api *partnershipApi) missions(ctx echo.Context) error {
	missions, err := api.svc.Missions(ctx.Request().Context(), strings.ToUpper(ctx.QueryParam("type")))
	if err != nil {
		return errors.Wrap(err, "listing missions")
	}
	if missions == nil {
		missions = []partnership.Mission{}
	}
	return ctx.JSON(http.StatusOK, missions)
}

func (api *partnershipApi) subtypes(ctx echo.Context) error {
	subtypes, err := api.svc.Subtypes(ctx.Request().Context(), strings.ToUpper(ctx.QueryParam("type")))
	if err != nil {
		return errors.Wrap(err, "listing subtypes")
	}
	if subtypes == nil {
		subtypes = []partnership.Subtype{}
	}
	return ctx.JSON(http.StatusOK, subtypes)
}

func (api *partnershipApi) educationLevels(ctx echo.Context) error {
	levels, err := api.refSvc.EducationLevels(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "listing education levels")
	}
	if levels == nil {
		levels = []reference.EducationLevel{}
	}
	return ctx.JSON(http.StatusOK, levels)
}

func (api *partnershipApi) create(ctx echo.Context) error {
	s, err := getContextSubject(ctx)
	if err != nil {
		return err
	}
	var data partnership.PartnershipData
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to PartnershipData")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	p, err := api.svc.Create(ctx.Request().Context(), s, data)
	if err != nil {
		return errors.Wrap(err, "creating partnership")
	}
	return ctx.JSON(http.StatusCreated, p)
}

func (api *partnershipApi) retrieve(ctx echo.Context) error {
	p, err := api.object(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, p)
}

func (api *partnershipApi) update(ctx echo.Context) error {
	s, err := getContextSubject(ctx)
	if err != nil {
		return err
	}
	p, err := api.object(ctx)
	if err != nil {
		return err
	}
	var data partnership.PartnershipData
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to PartnershipData")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	p, err = api.svc.Update(ctx.Request().Context(), s, p, data)
	if err != nil {
		return errors.Wrap(err, "updating partnership")
	}
	return ctx.JSON(http.StatusOK, p)
}

func (api *partnershipApi) destroy(ctx echo.Context) error {
	s, err := getContextSubject(ctx)
	if err != nil {
		return err
	}
	p, err := api.object(ctx)
	if err != nil {
		return err
	}
	if err = api.svc.Delete(ctx.Request().Context(), s, p); err != nil {
		return errors.Wrap(err, "deleting partnership")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// Contacts

func (api *partnershipApi) contacts(ctx echo.Context) error {
	p, err := api.object(ctx)
	if err != nil {
		return err
	}
	contacts, err := api.svc.Contacts(ctx.Request().Context(), p.ID)
	if err != nil {
		return errors.Wrap(err, "listing contacts")
	}
	if contacts == nil {
		contacts = []contact.Contact{}
	}
	return ctx.JSON(http.StatusOK, contacts)
}

func (api *partnershipApi) bindContact(ctx echo.Context) (contact.ContactData, error) {
	var data contact.ContactData
	if err := ctx.Bind(&data); err != nil {
		return data, errors.Wrap(err, "binding to ContactData")
	}
	return data, data.Validate(api.validate)
}

func (api *partnershipApi) createContact(ctx echo.Context) error {
	s, err := getContextSubject(ctx)
	if err != nil {
		return err
	}
	p, err := api.object(ctx)
	if err != nil {
		return err
	}
	data, err := api.bindContact(ctx)
	if err != nil {
		return err
	}

	c, err := api.svc.CreateContact(ctx.Request().Context(), s, p, data)
	if err != nil {
		return errors.Wrap(err, "creating contact")
	}
	return ctx.JSON(http.StatusCreated, c)
}

func (api *partnershipApi) updateContact(ctx echo.Context) error {
	s, err := getContextSubject(ctx)
	if err != nil {
		return err
	}
	p, err := api.object(ctx)
	if err != nil {
		return err
	}
	contactID, err := idParam(ctx, "contact_id")
	if err != nil {
		return err
	}
	c, err := api.svc.GetContact(ctx.Request().Context(), p.ID, contactID)
	if err != nil {
		return err
	}
	data, err := api.bindContact(ctx)
	if err != nil {
		return err
	}

	c, err = api.svc.UpdateContact(ctx.Request().Context(), s, p, c, data)
	if err != nil {
		return errors.Wrap(err, "updating contact")
	}
	return ctx.JSON(http.StatusOK, c)
}

func (api *partnershipApi) deleteContact(ctx echo.Context) error {
	s, err := getContextSubject(ctx)
	if err != nil {
		return err
	}
	p, err := api.object(ctx)
	if err != nil {
		return err
	}
	contactID, err := idParam(ctx, "contact_id")
	if err != nil {
		return err
	}
	c, err := api.svc.GetContact(ctx.Request().Context(), p.ID, contactID)
	if err != nil {
		return err
	}
	if err = api.svc.DeleteContact(ctx.Request().Context(), s, p, c); err != nil {
		return errors.Wrap(err, "deleting contact")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// Medias

func (api *partnershipApi) medias(ctx echo.Context) error {
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

func (api *partnershipApi) addMedia(ctx echo.Context) error {
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

	m, err := api.svc.AddMedia(ctx.Request().Context(), s, p, data, file)
	if err != nil {
		return errors.Wrap(err, "adding media")
	}
	return ctx.JSON(http.StatusCreated, m)
}

func (api *partnershipApi) updateMedia(ctx echo.Context) error {
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

	m, err := api.svc.UpdateMedia(ctx.Request().Context(), s, p, mediaID, data, file)
	if err != nil {
		return errors.Wrap(err, "updating media")
	}
	return ctx.JSON(http.StatusOK, m)
}

func (api *partnershipApi) deleteMedia(ctx echo.Context) error {
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
	if err = api.svc.DeleteMedia(ctx.Request().Context(), s, p, mediaID); err != nil {
		return errors.Wrap(err, "deleting media")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// Agreements

func (api *partnershipApi) agreements(ctx echo.Context) error {
	p, err := api.object(ctx)
	if err != nil {
		return err
	}
	agreements := p.Agreements
	if agreements == nil {
		agreements = []partnership.Agreement{}
	}
	return ctx.JSON(http.StatusOK, agreements)
}

func (api *partnershipApi) retrieveAgreement(ctx echo.Context) error {
	p, err := api.object(ctx)
	if err != nil {
		return err
	}
	a, err := api.agreement(ctx, p)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, a)
}

// bindAgreement binds the agreement, its media fields and its document.
// Dates of multipart forms are sent as YYYY-MM-DD.
func (api *partnershipApi) bindAgreement(ctx echo.Context) (partnership.AgreementData, media.MediaData, *media.Upload, func(), error) {
	var data partnership.AgreementData
	if strings.HasPrefix(ctx.Request().Header.Get(echo.HeaderContentType), echo.MIMEMultipartForm) {
		form, err := ctx.FormParams()
		if err != nil {
			return data, media.MediaData{}, nil, nil, echo.NewHTTPError(http.StatusBadRequest, "invalid form").SetInternal(err)
		}
		if data.StartDate, err = popDate(form, "start_date"); err != nil {
			return data, media.MediaData{}, nil, nil, err
		}
		if data.EndDate, err = popDate(form, "end_date"); err != nil {
			return data, media.MediaData{}, nil, nil, err
		}
	}
	if err := ctx.Bind(&data); err != nil {
		return data, media.MediaData{}, nil, nil, errors.Wrap(err, "binding to AgreementData")
	}
	if err := data.Validate(api.validate); err != nil {
		return data, media.MediaData{}, nil, nil, err
	}
	md, file, done, err := bindMedia(ctx, api.validate)
	return data, md, file, done, err
}

func (api *partnershipApi) createAgreement(ctx echo.Context) error {
	s, err := getContextSubject(ctx)
	if err != nil {
		return err
	}
	p, err := api.object(ctx)
	if err != nil {
		return err
	}
	data, md, file, done, err := api.bindAgreement(ctx)
	if err != nil {
		return err
	}
	defer done()

	a, err := api.svc.CreateAgreement(ctx.Request().Context(), s, p, data, md, file)
	if err != nil {
		return errors.Wrap(err, "creating agreement")
	}
	return ctx.JSON(http.StatusCreated, a)
}

func (api *partnershipApi) updateAgreement(ctx echo.Context) error {
	s, err := getContextSubject(ctx)
	if err != nil {
		return err
	}
	p, err := api.object(ctx)
	if err != nil {
		return err
	}
	a, err := api.agreement(ctx, p)
	if err != nil {
		return err
	}
	data, md, file, done, err := api.bindAgreement(ctx)
	if err != nil {
		return err
	}
	defer done()

	a, err = api.svc.UpdateAgreement(ctx.Request().Context(), s, p, a, data, md, file)
	if err != nil {
		return errors.Wrap(err, "updating agreement")
	}
	return ctx.JSON(http.StatusOK, a)
}

func (api *partnershipApi) deleteAgreement(ctx echo.Context) error {
	s, err := getContextSubject(ctx)
	if err != nil {
		return err
	}
	p, err := api.object(ctx)
	if err != nil {
		return err
	}
	a, err := api.agreement(ctx, p)
	if err != nil {
		return err
	}
	if err = api.svc.DeleteAgreement(ctx.Request().Context(), s, p, a); err != nil {
		return errors.Wrap(err, "deleting agreement")
	}
	return ctx.NoContent(http.StatusNoContent)
}
