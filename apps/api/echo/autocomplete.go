package echoapi

import (
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/uclouvain/osis-partnership-sub000/core"
	"github.com/uclouvain/osis-partnership-sub000/core/entity"
	"github.com/uclouvain/osis-partnership-sub000/core/funding"
	"github.com/uclouvain/osis-partnership-sub000/core/partner"
	"github.com/uclouvain/osis-partnership-sub000/core/reference"
	"github.com/uclouvain/osis-partnership-sub000/core/user"
)

const autocompleteLimit = 20

// AutocompleteItem is a select option.
type AutocompleteItem struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

type autocompleteDeps struct {
	partnerSvc partner.Service
	entitySvc  entity.Service
	userSvc    user.Service
	fundingSvc funding.Service
	refSvc     reference.Service
}

type autocompleteApi struct {
	autocompleteDeps
}

func registerAutocompleteAPI(g *echo.Group, authed []echo.MiddlewareFunc, deps autocompleteDeps) {
	api := autocompleteApi{deps}

	ag := g.Group("/autocomplete", append(authed, accessMiddleware())...)
	ag.GET("/partners", api.partners)
	ag.GET("/partner-entities", api.partnerEntities)
	ag.GET("/ucl-entities", api.uclEntities)
	ag.GET("/persons", api.persons)
	ag.GET("/fundings", api.fundings)
	ag.GET("/offers", api.offers)
	ag.GET("/years-entities", api.yearsEntities)
	ag.GET("/countries", api.countries)
	ag.GET("/cities", api.cities)
}

func search(ctx echo.Context) string {
	return core.CleanString(ctx.QueryParam("q"))
}

func intParams(ctx echo.Context, name string) []int {
	var ids []int
	for _, v := range ctx.QueryParams()[name] {
		if id, err := strconv.Atoi(v); err == nil {
			ids = append(ids, id)
		}
	}
	return ids
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

func respond(ctx echo.Context, items []AutocompleteItem) error {
	if items == nil {
		items = []AutocompleteItem{}
	}
	if len(items) > autocompleteLimit {
		items = items[:autocompleteLimit]
	}
	return ctx.JSON(http.StatusOK, items)
}

func (api *autocompleteApi) partners(ctx echo.Context) error {
	partners, err := api.partnerSvc.Query(ctx.Request().Context(), &partner.QueryFilter{
		Name:       search(ctx),
		Pagination: core.Pagination{Limit: autocompleteLimit},
	}, []core.DBOrdering{{Field: "partner", Ascending: true}})
	if err != nil {
		return errors.Wrap(err, "searching partners")
	}
	items := make([]AutocompleteItem, 0, len(partners))
	for _, p := range partners {
		items = append(items, AutocompleteItem{ID: strconv.Itoa(p.ID), Text: p.Name})
	}
	return respond(ctx, items)
}

func (api *autocompleteApi) partnerEntities(ctx echo.Context) error {
	partnerID, _ := strconv.Atoi(ctx.QueryParam("partner"))
	if partnerID <= 0 {
		return respond(ctx, nil)
	}
	entities, err := api.partnerSvc.Entities(ctx.Request().Context(), partnerID)
	if err != nil {
		return errors.Wrap(err, "listing partner entities")
	}
	q := search(ctx)
	var items []AutocompleteItem
	for _, e := range entities {
		if q == "" || containsFold(e.Name, q) {
			items = append(items, AutocompleteItem{ID: strconv.Itoa(e.ID), Text: e.Name})
		}
	}
	return respond(ctx, items)
}

// entityItems labels the entities with their acronym path.
func (api *autocompleteApi) entityItems(ctx echo.Context, entities []entity.Entity) ([]AutocompleteItem, error) {
	items := make([]AutocompleteItem, 0, len(entities))
	for _, e := range entities {
		path, err := api.entitySvc.AcronymPath(ctx.Request().Context(), e.ID)
		if err != nil {
			return nil, errors.Wrap(err, "building entity label")
		}
		items = append(items, AutocompleteItem{ID: strconv.Itoa(e.ID), Text: entity.Label(path)})
	}
	sort.SliceStable(items, func(i, j int) bool { return items[i].Text < items[j].Text })
	return items, nil
}

func (api *autocompleteApi) uclEntities(ctx echo.Context) error {
	entities, err := api.entitySvc.Query(ctx.Request().Context(), &entity.QueryFilter{
		Search:  search(ctx),
		WithUME: true,
		Limit:   autocompleteLimit,
	})
	if err != nil {
		return errors.Wrap(err, "searching ucl entities")
	}
	items, err := api.entityItems(ctx, entities)
	if err != nil {
		return err
	}
	return respond(ctx, items)
}

// yearsEntities lists the entities of the faculty of ucl_entity.
func (api *autocompleteApi) yearsEntities(ctx echo.Context) error {
	uclEntityID, _ := strconv.Atoi(ctx.QueryParam("ucl_entity"))
	if uclEntityID <= 0 {
		return respond(ctx, nil)
	}
	faculty, err := api.entitySvc.Faculty(ctx.Request().Context(), uclEntityID)
	if err != nil {
		if errors.Cause(err) == entity.ErrNotFound {
			return respond(ctx, nil)
		}
		return errors.Wrap(err, "finding faculty")
	}
	ids, err := api.entitySvc.Descendants(ctx.Request().Context(), faculty.ID)
	if err != nil {
		return errors.Wrap(err, "listing faculty entities")
	}
	entities, err := api.entitySvc.Query(ctx.Request().Context(), &entity.QueryFilter{
		Search: search(ctx),
		IDs:    ids,
		Limit:  autocompleteLimit,
	})
	if err != nil {
		return errors.Wrap(err, "searching faculty entities")
	}
	items, err := api.entityItems(ctx, entities)
	if err != nil {
		return err
	}
	return respond(ctx, items)
}

func (api *autocompleteApi) persons(ctx echo.Context) error {
	active := true
	users, err := api.userSvc.Query(ctx.Request().Context(), &user.QueryFilter{
		Search:   search(ctx),
		IsActive: &active,
		Limit:    autocompleteLimit,
	}, []core.DBOrdering{{Field: "last_name", Ascending: true}})
	if err != nil {
		return errors.Wrap(err, "searching persons")
	}
	items := make([]AutocompleteItem, 0, len(users))
	for _, u := range users {
		items = append(items, AutocompleteItem{ID: strconv.Itoa(u.ID), Text: u.FullName()})
	}
	return respond(ctx, items)
}

// fundings searches the whole funding tree; ids are prefixed with the node kind.
func (api *autocompleteApi) fundings(ctx echo.Context) error {
	filter := &funding.Filter{Search: search(ctx), Limit: autocompleteLimit}
	reqCtx := ctx.Request().Context()

	sources, err := api.fundingSvc.Sources(reqCtx, filter)
	if err != nil {
		return errors.Wrap(err, "searching funding sources")
	}
	programs, err := api.fundingSvc.Programs(reqCtx, filter)
	if err != nil {
		return errors.Wrap(err, "searching funding programs")
	}
	filter.ActiveOnly = true
	types, err := api.fundingSvc.Types(reqCtx, filter)
	if err != nil {
		return errors.Wrap(err, "searching funding types")
	}

	items := make([]AutocompleteItem, 0, len(sources)+len(programs)+len(types))
	for _, s := range sources {
		items = append(items, AutocompleteItem{ID: "source-" + strconv.Itoa(s.ID), Text: s.Name})
	}
	for _, p := range programs {
		items = append(items, AutocompleteItem{ID: "program-" + strconv.Itoa(p.ID), Text: p.Name})
	}
	for _, t := range types {
		items = append(items, AutocompleteItem{ID: "type-" + strconv.Itoa(t.ID), Text: t.Name})
	}
	return respond(ctx, items)
}

func (api *autocompleteApi) offers(ctx echo.Context) error {
	year, _ := strconv.Atoi(ctx.QueryParam("academic_year"))
	offers, err := api.refSvc.Offers(ctx.Request().Context(), &reference.OfferFilter{
		Search:       search(ctx),
		AcademicYear: year,
		EntityIDs:    intParams(ctx, "entity"),
		Limit:        autocompleteLimit,
	})
	if err != nil {
		return errors.Wrap(err, "searching offers")
	}
	items := make([]AutocompleteItem, 0, len(offers))
	for _, o := range offers {
		items = append(items, AutocompleteItem{ID: strconv.Itoa(o.ID), Text: o.Acronym + " - " + o.Title})
	}
	return respond(ctx, items)
}

func (api *autocompleteApi) countries(ctx echo.Context) error {
	havingPartners, _ := strconv.ParseBool(ctx.QueryParam("having_partners"))
	countries, err := api.refSvc.Countries(ctx.Request().Context(), &reference.CountryFilter{
		Search:         search(ctx),
		HavingPartners: havingPartners,
		Limit:          autocompleteLimit,
	})
	if err != nil {
		return errors.Wrap(err, "searching countries")
	}
	items := make([]AutocompleteItem, 0, len(countries))
	for _, c := range countries {
		items = append(items, AutocompleteItem{ID: strconv.Itoa(c.ID), Text: c.Name})
	}
	return respond(ctx, items)
}

// cities lists the distinct partner cities, optionally restricted to a country.
func (api *autocompleteApi) cities(ctx echo.Context) error {
	countryID, _ := strconv.Atoi(ctx.QueryParam("country"))
	partners, err := api.partnerSvc.Query(ctx.Request().Context(), &partner.QueryFilter{CountryID: countryID}, nil)
	if err != nil {
		return errors.Wrap(err, "listing partner cities")
	}
	q := search(ctx)
	seen := make(map[string]bool)
	var cities []string
	for _, p := range partners {
		city := p.Address.City
		if city == "" || seen[city] || (q != "" && !containsFold(city, q)) {
			continue
		}
		seen[city] = true
		cities = append(cities, city)
	}
	sort.Strings(cities)

	items := make([]AutocompleteItem, 0, len(cities))
	for _, c := range cities {
		items = append(items, AutocompleteItem{ID: c, Text: c})
	}
	return respond(ctx, items)
}
