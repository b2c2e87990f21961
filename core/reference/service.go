package reference

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/kat-co/vala"
	"github.com/pkg/errors"

	"github.com/uclouvain/osis-partnership-sub000/core"
)

var ErrNotFound = errors.New("reference not found")

type (
	Repository interface {
		QueryContinents(ctx context.Context, exec ...core.DBExecutor) ([]Continent, error)
		GetContinent(ctx context.Context, code string, exec ...core.DBExecutor) (Continent, error)
		QueryCountries(ctx context.Context, filter *CountryFilter, exec ...core.DBExecutor) ([]Country, error)
		// GetCountry finds a country by ID, or by ISO code when id is 0.
		GetCountry(ctx context.Context, id int, isoCode string, exec ...core.DBExecutor) (Country, error)
		CreateCountry(ctx context.Context, c Country, exec ...core.DBExecutor) (Country, error)
		QueryEducationFields(ctx context.Context, filter *SearchFilter, exec ...core.DBExecutor) ([]EducationField, error)
		CreateEducationField(ctx context.Context, f EducationField, exec ...core.DBExecutor) (EducationField, error)
		QueryEducationLevels(ctx context.Context, exec ...core.DBExecutor) ([]EducationLevel, error)
		QueryOffers(ctx context.Context, filter *OfferFilter, exec ...core.DBExecutor) ([]Offer, error)
		CreateOffer(ctx context.Context, o Offer, exec ...core.DBExecutor) (Offer, error)
		QueryTags(ctx context.Context, kind TagKind, filter *SearchFilter, exec ...core.DBExecutor) ([]Tag, error)
		// GetOrCreateTag returns the tag with this value, creating it when missing.
		GetOrCreateTag(ctx context.Context, kind TagKind, value string, exec ...core.DBExecutor) (Tag, error)
		QueryMediaTypes(ctx context.Context, exec ...core.DBExecutor) ([]MediaType, error)
	}

	Service interface {
		Continents(ctx context.Context) ([]Continent, error)
		Countries(ctx context.Context, filter *CountryFilter) ([]Country, error)
		GetCountry(ctx context.Context, id int) (Country, error)
		GetCountryByISOCode(ctx context.Context, isoCode string) (Country, error)
		CreateCountry(ctx context.Context, nc NewCountry) (Country, error)
		EducationFields(ctx context.Context, filter *SearchFilter) ([]EducationField, error)
		CreateEducationField(ctx context.Context, nf NewEducationField) (EducationField, error)
		EducationLevels(ctx context.Context) ([]EducationLevel, error)
		Offers(ctx context.Context, filter *OfferFilter) ([]Offer, error)
		CreateOffer(ctx context.Context, no NewOffer) (Offer, error)
		Tags(ctx context.Context, kind TagKind, filter *SearchFilter) ([]Tag, error)
		Tag(ctx context.Context, kind TagKind, value string) (Tag, error)
		MediaTypes(ctx context.Context) ([]MediaType, error)
	}

	service struct {
		repo Repository
	}
)

var _ Service = (*service)(nil)

func NewService(repo Repository) Service {
	vala.BeginValidation().Validate(
		vala.IsNotNil(repo, "repo"),
	).CheckAndPanic()

	return &service{repo: repo}
}

func (svc *service) Continents(ctx context.Context) ([]Continent, error) {
	return svc.repo.QueryContinents(ctx)
}

func (svc *service) Countries(ctx context.Context, filter *CountryFilter) ([]Country, error) {
	if filter != nil {
		filter.Search = core.CleanString(filter.Search)
	}
	return svc.repo.QueryCountries(ctx, filter)
}

func (svc *service) GetCountry(ctx context.Context, id int) (Country, error) {
	return svc.repo.GetCountry(ctx, id, "")
}

func (svc *service) GetCountryByISOCode(ctx context.Context, isoCode string) (Country, error) {
	return svc.repo.GetCountry(ctx, 0, strings.ToUpper(core.CleanString(isoCode)))
}

func (svc *service) CreateCountry(ctx context.Context, nc NewCountry) (Country, error) {
	c := Country{ISOCode: nc.ISOCode, Name: nc.Name, NameEn: nc.NameEn}
	if nc.ContinentCode != "" {
		cont, err := svc.repo.GetContinent(ctx, nc.ContinentCode)
		if err != nil {
			if errors.Cause(err) == ErrNotFound {
				return Country{}, core.NewFieldError("continent_code", "unknown continent")
			}
			return Country{}, errors.Wrap(err, "finding continent")
		}
		c.ContinentID = &cont.ID
		c.ContinentCode = cont.Code
	}
	return svc.repo.CreateCountry(ctx, c)
}

func (svc *service) EducationFields(ctx context.Context, filter *SearchFilter) ([]EducationField, error) {
	return svc.repo.QueryEducationFields(ctx, cleanSearch(filter))
}

func (svc *service) CreateEducationField(ctx context.Context, nf NewEducationField) (EducationField, error) {
	return svc.repo.CreateEducationField(ctx, EducationField{
		UUID:  uuid.New().String(),
		Code:  nf.Code,
		Label: nf.Label,
	})
}

func (svc *service) EducationLevels(ctx context.Context) ([]EducationLevel, error) {
	return svc.repo.QueryEducationLevels(ctx)
}

func (svc *service) Offers(ctx context.Context, filter *OfferFilter) ([]Offer, error) {
	if filter != nil {
		filter.Search = core.CleanString(filter.Search)
	}
	return svc.repo.QueryOffers(ctx, filter)
}

func (svc *service) CreateOffer(ctx context.Context, no NewOffer) (Offer, error) {
	return svc.repo.CreateOffer(ctx, Offer{
		UUID:         uuid.New().String(),
		Acronym:      no.Acronym,
		Title:        no.Title,
		TitleEn:      no.TitleEn,
		AcademicYear: no.AcademicYear,
		EntityID:     no.EntityID,
	})
}

func (svc *service) Tags(ctx context.Context, kind TagKind, filter *SearchFilter) ([]Tag, error) {
	return svc.repo.QueryTags(ctx, kind, cleanSearch(filter))
}

func (svc *service) Tag(ctx context.Context, kind TagKind, value string) (Tag, error) {
	value = core.CleanString(value)
	if value == "" {
		return Tag{}, core.NewFieldError("value", "this field is required")
	}
	return svc.repo.GetOrCreateTag(ctx, kind, value)
}

func (svc *service) MediaTypes(ctx context.Context) ([]MediaType, error) {
	return svc.repo.QueryMediaTypes(ctx)
}

func cleanSearch(filter *SearchFilter) *SearchFilter {
	if filter != nil {
		filter.Search = core.CleanString(filter.Search)
	}
	return filter
}
