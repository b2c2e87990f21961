package funding

import (
	"context"
	"io"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/kat-co/vala"
	"github.com/pkg/errors"

	"github.com/uclouvain/osis-partnership-sub000/core"
	"github.com/uclouvain/osis-partnership-sub000/core/perms"
	"github.com/uclouvain/osis-partnership-sub000/core/reference"
)

var (
	// errors
	ErrNotFound          = errors.New("funding not found")
	ErrFinancingNotFound = errors.New("financing not found")
	ErrNameExists        = errors.New("this name is already used")
	ErrInvalidCSV        = errors.New("financings_imported_error")
)

type (
	Repository interface {
		QuerySources(ctx context.Context, filter *Filter, exec ...core.DBExecutor) ([]Source, error)
		GetSource(ctx context.Context, id int, exec ...core.DBExecutor) (Source, error)
		SaveSource(ctx context.Context, s Source, exec ...core.DBExecutor) (Source, error)
		DeleteSource(ctx context.Context, id int, exec ...core.DBExecutor) error

		QueryPrograms(ctx context.Context, filter *Filter, exec ...core.DBExecutor) ([]Program, error)
		GetProgram(ctx context.Context, id int, exec ...core.DBExecutor) (Program, error)
		SaveProgram(ctx context.Context, p Program, exec ...core.DBExecutor) (Program, error)
		DeleteProgram(ctx context.Context, id int, exec ...core.DBExecutor) error

		QueryTypes(ctx context.Context, filter *Filter, exec ...core.DBExecutor) ([]Type, error)
		GetType(ctx context.Context, id int, exec ...core.DBExecutor) (Type, error)
		SaveType(ctx context.Context, t Type, exec ...core.DBExecutor) (Type, error)
		DeleteType(ctx context.Context, id int, exec ...core.DBExecutor) error

		QueryFinancings(ctx context.Context, year int, exec ...core.DBExecutor) ([]Financing, error)
		// ReplaceFinancings atomically replaces all the financings of the year.
		ReplaceFinancings(ctx context.Context, year int, financings []Financing) error
	}

	Service interface {
		Tree(ctx context.Context, activeOnly bool) ([]SourceNode, error)

		Sources(ctx context.Context, filter *Filter) ([]Source, error)
		GetSource(ctx context.Context, id int) (Source, error)
		CreateSource(ctx context.Context, actor perms.Subject, data SourceData) (Source, error)
		UpdateSource(ctx context.Context, actor perms.Subject, s Source, data SourceData) (Source, error)
		DeleteSource(ctx context.Context, actor perms.Subject, s Source) error

		Programs(ctx context.Context, filter *Filter) ([]Program, error)
		GetProgram(ctx context.Context, id int) (Program, error)
		CreateProgram(ctx context.Context, actor perms.Subject, data ProgramData) (Program, error)
		UpdateProgram(ctx context.Context, actor perms.Subject, p Program, data ProgramData) (Program, error)
		DeleteProgram(ctx context.Context, actor perms.Subject, p Program) error

		Types(ctx context.Context, filter *Filter) ([]Type, error)
		GetType(ctx context.Context, id int) (Type, error)
		CreateType(ctx context.Context, actor perms.Subject, data TypeData) (Type, error)
		UpdateType(ctx context.Context, actor perms.Subject, t Type, data TypeData) (Type, error)
		DeleteType(ctx context.Context, actor perms.Subject, t Type) error

		// Financings lists every country with its financing for the year.
		Financings(ctx context.Context, year int, ordering []core.DBOrdering) ([]CountryFinancing, error)
		Export(ctx context.Context, actor perms.Subject, year int, w io.Writer) error
		Import(ctx context.Context, actor perms.Subject, year int, r io.Reader) (ImportResult, error)
		// FinancingFor returns the financing of the country for the year.
		FinancingFor(ctx context.Context, countryID, year int) (Financing, error)
	}

	service struct {
		repo     Repository
		refSvc   reference.Service
		validate *validator.Validate
		logger   core.Logger
	}
)

var _ Service = (*service)(nil)

func NewService(repo Repository, refSvc reference.Service, validate *validator.Validate, logger core.Logger) Service {
	vala.BeginValidation().Validate(
		vala.IsNotNil(repo, "repo"),
		vala.IsNotNil(refSvc, "refSvc"),
		vala.IsNotNil(validate, "validate"),
		vala.IsNotNil(logger, "logger"),
	).CheckAndPanic()

	return &service{repo: repo, refSvc: refSvc, validate: validate, logger: logger}
}

func (svc *service) Tree(ctx context.Context, activeOnly bool) ([]SourceNode, error) {
	filter := &Filter{ActiveOnly: activeOnly}
	sources, err := svc.repo.QuerySources(ctx, nil)
	if err != nil {
		return nil, errors.Wrap(err, "querying sources")
	}
	programs, err := svc.repo.QueryPrograms(ctx, nil)
	if err != nil {
		return nil, errors.Wrap(err, "querying programs")
	}
	types, err := svc.repo.QueryTypes(ctx, filter)
	if err != nil {
		return nil, errors.Wrap(err, "querying types")
	}
	return BuildTree(sources, programs, types), nil
}

func nameError(err error) error {
	if errors.Cause(err) == ErrNameExists {
		return core.NewFieldError("name", ErrNameExists.Error())
	}
	return err
}

// Sources

func (svc *service) Sources(ctx context.Context, filter *Filter) ([]Source, error) {
	filter.Clean()
	return svc.repo.QuerySources(ctx, filter)
}

func (svc *service) GetSource(ctx context.Context, id int) (Source, error) {
	return svc.repo.GetSource(ctx, id)
}

func (svc *service) CreateSource(ctx context.Context, actor perms.Subject, data SourceData) (Source, error) {
	return svc.UpdateSource(ctx, actor, Source{}, data)
}

func (svc *service) UpdateSource(ctx context.Context, actor perms.Subject, s Source, data SourceData) (Source, error) {
	if !perms.CanManageFunding(actor) {
		return Source{}, core.ErrPermissionDenied
	}
	s.Name = data.Name
	s, err := svc.repo.SaveSource(ctx, s)
	return s, nameError(err)
}

func (svc *service) DeleteSource(ctx context.Context, actor perms.Subject, s Source) error {
	if !perms.CanManageFunding(actor) {
		return core.ErrPermissionDenied
	}
	return svc.repo.DeleteSource(ctx, s.ID)
}

// Programs

func (svc *service) Programs(ctx context.Context, filter *Filter) ([]Program, error) {
	filter.Clean()
	return svc.repo.QueryPrograms(ctx, filter)
}

func (svc *service) GetProgram(ctx context.Context, id int) (Program, error) {
	return svc.repo.GetProgram(ctx, id)
}

func (svc *service) CreateProgram(ctx context.Context, actor perms.Subject, data ProgramData) (Program, error) {
	return svc.UpdateProgram(ctx, actor, Program{}, data)
}

func (svc *service) UpdateProgram(ctx context.Context, actor perms.Subject, p Program, data ProgramData) (Program, error) {
	if !perms.CanManageFunding(actor) {
		return Program{}, core.ErrPermissionDenied
	}
	if _, err := svc.repo.GetSource(ctx, data.SourceID); err != nil {
		if errors.Cause(err) == ErrNotFound {
			return Program{}, core.NewFieldError("source_id", ErrNotFound.Error())
		}
		return Program{}, errors.Wrap(err, "finding source")
	}
	p.Name, p.SourceID = data.Name, data.SourceID
	p, err := svc.repo.SaveProgram(ctx, p)
	return p, nameError(err)
}

func (svc *service) DeleteProgram(ctx context.Context, actor perms.Subject, p Program) error {
	if !perms.CanManageFunding(actor) {
		return core.ErrPermissionDenied
	}
	return svc.repo.DeleteProgram(ctx, p.ID)
}

// Types

func (svc *service) Types(ctx context.Context, filter *Filter) ([]Type, error) {
	filter.Clean()
	return svc.repo.QueryTypes(ctx, filter)
}

func (svc *service) GetType(ctx context.Context, id int) (Type, error) {
	return svc.repo.GetType(ctx, id)
}

func (svc *service) CreateType(ctx context.Context, actor perms.Subject, data TypeData) (Type, error) {
	return svc.UpdateType(ctx, actor, Type{}, data)
}

func (svc *service) UpdateType(ctx context.Context, actor perms.Subject, t Type, data TypeData) (Type, error) {
	if !perms.CanManageFunding(actor) {
		return Type{}, core.ErrPermissionDenied
	}
	if _, err := svc.repo.GetProgram(ctx, data.ProgramID); err != nil {
		if errors.Cause(err) == ErrNotFound {
			return Type{}, core.NewFieldError("program_id", ErrNotFound.Error())
		}
		return Type{}, errors.Wrap(err, "finding program")
	}
	t.Name, t.URL, t.ProgramID, t.IsActive = data.Name, data.URL, data.ProgramID, data.IsActive
	t, err := svc.repo.SaveType(ctx, t)
	return t, nameError(err)
}

func (svc *service) DeleteType(ctx context.Context, actor perms.Subject, t Type) error {
	if !perms.CanManageFunding(actor) {
		return core.ErrPermissionDenied
	}
	return svc.repo.DeleteType(ctx, t.ID)
}

// Financings

func (svc *service) Financings(ctx context.Context, year int, ordering []core.DBOrdering) ([]CountryFinancing, error) {
	countries, err := svc.refSvc.Countries(ctx, nil)
	if err != nil {
		return nil, errors.Wrap(err, "querying countries")
	}
	financings, err := svc.repo.QueryFinancings(ctx, year)
	if err != nil {
		return nil, errors.Wrap(err, "querying financings")
	}

	byCountry := make(map[int][]Financing)
	for _, f := range financings {
		for _, cid := range f.CountryIDs {
			byCountry[cid] = append(byCountry[cid], f)
		}
	}

	rows := make([]CountryFinancing, 0, len(countries))
	for _, c := range countries {
		row := CountryFinancing{CountryID: c.ID, CountryName: c.Name, CountryISO: c.ISOCode}
		fins := byCountry[c.ID]
		if len(fins) == 0 {
			rows = append(rows, row)
			continue
		}
		for _, f := range fins {
			row.FinancingID, row.Name, row.URL = f.ID, f.Name, f.URL
			rows = append(rows, row)
		}
	}
	sortFinancings(rows, ordering)
	return rows, nil
}

func sortFinancings(rows []CountryFinancing, ordering []core.DBOrdering) {
	ord := core.DBOrdering{Field: "country_name", Ascending: true}
	for _, o := range ordering {
		if core.ContainsString(FinancingOrderings, o.Field) {
			ord = o
			break
		}
	}
	key := func(r CountryFinancing) string {
		switch ord.Field {
		case "name":
			return strings.ToLower(r.Name)
		case "url":
			return strings.ToLower(r.URL)
		default:
			return strings.ToLower(r.CountryName)
		}
	}
	sort.SliceStable(rows, func(i, j int) bool {
		if ord.Ascending {
			return key(rows[i]) < key(rows[j])
		}
		return key(rows[i]) > key(rows[j])
	})
}

func (svc *service) Export(ctx context.Context, actor perms.Subject, year int, w io.Writer) error {
	if !perms.CanManageFinancing(actor) {
		return core.ErrPermissionDenied
	}
	rows, err := svc.Financings(ctx, year, nil)
	if err != nil {
		return err
	}
	return writeCSV(w, rows)
}

func (svc *service) Import(ctx context.Context, actor perms.Subject, year int, r io.Reader) (ImportResult, error) {
	if !perms.CanManageFinancing(actor) {
		return ImportResult{}, core.ErrPermissionDenied
	}
	records, err := readCSV(r)
	if err != nil {
		return ImportResult{}, core.NewValidationError(ErrInvalidCSV, core.FieldError{Field: "csv_file", Error: ErrInvalidCSV.Error()})
	}

	var (
		res       ImportResult
		names     []string
		urls      = make(map[string]string)
		countries = make(map[string][]int)
		isoCache  = make(map[string]int)
	)
	for _, rec := range records {
		if rec.name == "" {
			continue
		}
		cid, ok := isoCache[rec.country]
		if !ok {
			country, err := svc.refSvc.GetCountryByISOCode(ctx, rec.country)
			if err != nil {
				if errors.Cause(err) != reference.ErrNotFound {
					return ImportResult{}, errors.Wrap(err, "finding country")
				}
				res.Warnings = append(res.Warnings, "financing_country_not_imported: "+rec.country)
				continue
			}
			cid = country.ID
			isoCache[rec.country] = cid
		}

		if _, seen := urls[rec.name]; !seen {
			names = append(names, rec.name)
			url := rec.url
			if url != "" && svc.validate.Var(url, "url") != nil {
				res.Warnings = append(res.Warnings, "financing_url_invalid: "+rec.country+" "+url)
				url = ""
			}
			urls[rec.name] = url
		}
		if !core.ContainsInt(countries[rec.name], cid) {
			countries[rec.name] = append(countries[rec.name], cid)
			res.Countries++
		}
	}

	financings := make([]Financing, 0, len(names))
	for _, name := range names {
		financings = append(financings, Financing{
			Name:         name,
			URL:          urls[name],
			AcademicYear: year,
			CountryIDs:   countries[name],
		})
	}
	if err = svc.repo.ReplaceFinancings(ctx, year, financings); err != nil {
		return ImportResult{}, errors.Wrap(err, "replacing financings")
	}
	for _, w := range res.Warnings {
		svc.logger.Warn("financing import " + w)
	}
	res.Financings = len(financings)
	if res.Warnings == nil {
		res.Warnings = []string{}
	}
	return res, nil
}

func (svc *service) FinancingFor(ctx context.Context, countryID, year int) (Financing, error) {
	financings, err := svc.repo.QueryFinancings(ctx, year)
	if err != nil {
		return Financing{}, errors.Wrap(err, "querying financings")
	}
	for _, f := range financings {
		if core.ContainsInt(f.CountryIDs, countryID) {
			return f, nil
		}
	}
	return Financing{}, ErrFinancingNotFound
}
