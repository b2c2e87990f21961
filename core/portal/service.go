package portal

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/kat-co/vala"
	"github.com/pkg/errors"

	"github.com/uclouvain/osis-partnership-sub000/core"
	"github.com/uclouvain/osis-partnership-sub000/core/academic"
	"github.com/uclouvain/osis-partnership-sub000/core/configuration"
	"github.com/uclouvain/osis-partnership-sub000/core/contact"
	"github.com/uclouvain/osis-partnership-sub000/core/entity"
	"github.com/uclouvain/osis-partnership-sub000/core/funding"
	"github.com/uclouvain/osis-partnership-sub000/core/media"
	"github.com/uclouvain/osis-partnership-sub000/core/partner"
	"github.com/uclouvain/osis-partnership-sub000/core/partnership"
	"github.com/uclouvain/osis-partnership-sub000/core/ptype"
	"github.com/uclouvain/osis-partnership-sub000/core/reference"
	"github.com/uclouvain/osis-partnership-sub000/core/ume"
	"github.com/uclouvain/osis-partnership-sub000/core/user"
)

var ErrNotFound = errors.New("published partnership not found")

type (
	// Repository loads in bulk what the published partnerships are shown with.
	Repository interface {
		// ContactsOf returns the contacts of the partnerships, by partnership ID.
		ContactsOf(ctx context.Context, partnershipIDs []int, exec ...core.DBExecutor) (map[int][]contact.Contact, error)
		// MediasOf returns the medias attached to owners of the given kind, by owner ID.
		MediasOf(ctx context.Context, kind media.OwnerKind, ownerIDs []int, exec ...core.DBExecutor) (map[int][]media.Media, error)
	}

	Service interface {
		Configuration(ctx context.Context) (Configuration, error)
		Partners(ctx context.Context, filter *Filter) ([]PartnerItem, error)
		Partnerships(ctx context.Context, filter *Filter) ([]Partnership, error)
		Partnership(ctx context.Context, uid string) (Partnership, error)
	}

	service struct {
		conf           *core.Config
		repo           Repository
		partnershipSvc partnership.Service
		partnerSvc     partner.Service
		entitySvc      entity.Service
		umeSvc         ume.Service
		userSvc        user.Service
		refSvc         reference.Service
		fundingSvc     funding.Service
		confSvc        configuration.Service
	}
)

var _ Service = (*service)(nil)

func NewService(
	conf *core.Config,
	repo Repository,
	partnershipSvc partnership.Service,
	partnerSvc partner.Service,
	entitySvc entity.Service,
	umeSvc ume.Service,
	userSvc user.Service,
	refSvc reference.Service,
	fundingSvc funding.Service,
	confSvc configuration.Service,
) Service {
	vala.BeginValidation().Validate(
		vala.IsNotNil(conf, "conf"),
		vala.IsNotNil(repo, "repo"),
		vala.IsNotNil(partnershipSvc, "partnershipSvc"),
		vala.IsNotNil(partnerSvc, "partnerSvc"),
		vala.IsNotNil(entitySvc, "entitySvc"),
		vala.IsNotNil(umeSvc, "umeSvc"),
		vala.IsNotNil(userSvc, "userSvc"),
		vala.IsNotNil(refSvc, "refSvc"),
		vala.IsNotNil(fundingSvc, "fundingSvc"),
		vala.IsNotNil(confSvc, "confSvc"),
	).CheckAndPanic()

	return &service{
		conf:           conf,
		repo:           repo,
		partnershipSvc: partnershipSvc,
		partnerSvc:     partnerSvc,
		entitySvc:      entitySvc,
		umeSvc:         umeSvc,
		userSvc:        userSvc,
		refSvc:         refSvc,
		fundingSvc:     fundingSvc,
		confSvc:        confSvc,
	}
}

// row is a published partnership seen through one of its partner entities.
type row struct {
	p       *partnership.Partnership
	rel     partnership.Relation
	partner partner.Partner
	year    partnership.Year
}

// published loads the partnerships shown on the portal for the API year, one row per relation.
func (svc *service) published(ctx context.Context, uid string) (academic.Year, []row, error) {
	conf, err := svc.confSvc.Get(ctx)
	if err != nil {
		return 0, nil, errors.Wrap(err, "getting configuration")
	}
	year := conf.APIYear(core.Today())

	var ps []partnership.Partnership
	if uid != "" {
		p, err := svc.partnershipSvc.GetByUUID(ctx, uid)
		if err != nil {
			if errors.Cause(err) == partnership.ErrNotFound {
				return year, nil, ErrNotFound
			}
			return year, nil, errors.Wrap(err, "getting partnership")
		}
		ps = append(ps, p)
	} else {
		public := true
		ps, err = svc.partnershipSvc.Query(ctx, &partnership.QueryFilter{IsPublic: &public}, nil)
		if err != nil {
			return year, nil, errors.Wrap(err, "querying partnerships")
		}
	}

	var partnerIDs []int
	for i := range ps {
		if !IsPublished(ps[i], year) {
			continue
		}
		for _, rel := range ps[i].Relations {
			if !core.ContainsInt(partnerIDs, rel.PartnerID) {
				partnerIDs = append(partnerIDs, rel.PartnerID)
			}
		}
	}
	if len(partnerIDs) == 0 {
		return year, nil, nil
	}
	partners, err := svc.partnerSvc.Query(ctx, &partner.QueryFilter{IDs: partnerIDs}, nil)
	if err != nil {
		return year, nil, errors.Wrap(err, "querying partners")
	}
	partnerByID := make(map[int]partner.Partner, len(partners))
	for _, prt := range partners {
		partnerByID[prt.ID] = prt
	}

	var rows []row
	for i := range ps {
		p := &ps[i]
		y, ok := p.Year(year)
		if !ok || !IsPublished(*p, year) {
			continue
		}
		for _, rel := range p.Relations {
			prt, ok := partnerByID[rel.PartnerID]
			if !ok {
				continue
			}
			rows = append(rows, row{p: p, rel: rel, partner: prt, year: y})
		}
	}
	return year, rows, nil
}

// matcher is a Filter with its references resolved to IDs.
type matcher struct {
	*Filter
	continentCode string
	entityIDs     []int
	fieldID       int
	offerID       int
	// none is set when a referenced object does not exist: nothing matches.
	none bool
}

func (svc *service) resolve(ctx context.Context, f *Filter, year academic.Year) (*matcher, error) {
	if f == nil {
		f = &Filter{}
	}
	f.Clean()
	m := &matcher{Filter: f}

	if f.Continent != "" {
		continents, err := svc.refSvc.Continents(ctx)
		if err != nil {
			return nil, errors.Wrap(err, "listing continents")
		}
		m.none = true
		for _, c := range continents {
			if strings.EqualFold(c.Name, f.Continent) {
				m.continentCode, m.none = c.Code, false
				break
			}
		}
	}

	if f.UCLEntity != "" {
		e, err := svc.entitySvc.GetByUUID(ctx, f.UCLEntity)
		switch {
		case errors.Cause(err) == entity.ErrNotFound:
			m.none = true
		case err != nil:
			return nil, errors.Wrap(err, "finding UCL entity")
		case f.WithChildren:
			if m.entityIDs, err = svc.entitySvc.Descendants(ctx, e.ID); err != nil {
				return nil, errors.Wrap(err, "finding UCL entity descendants")
			}
		default:
			m.entityIDs = []int{e.ID}
		}
	}

	if f.EducationField != "" {
		fields, err := svc.refSvc.EducationFields(ctx, &reference.SearchFilter{})
		if err != nil {
			return nil, errors.Wrap(err, "listing education fields")
		}
		for _, ef := range fields {
			if ef.UUID == f.EducationField {
				m.fieldID = ef.ID
				break
			}
		}
	}

	if f.Offer != "" {
		offers, err := svc.refSvc.Offers(ctx, &reference.OfferFilter{AcademicYear: int(year)})
		if err != nil {
			return nil, errors.Wrap(err, "listing offers")
		}
		for _, o := range offers {
			if o.UUID == f.Offer {
				m.offerID = o.ID
				break
			}
		}
	}
	return m, nil
}

func (m *matcher) match(r row) bool {
	f := m.Filter
	switch {
	case m.none,
		m.continentCode != "" && r.partner.ContinentCode != m.continentCode,
		f.Country != "" && !strings.EqualFold(r.partner.Address.CountryISO, f.Country),
		f.City != "" && !strings.EqualFold(r.partner.Address.City, f.City),
		f.Partner != "" && !strings.EqualFold(r.partner.UUID, f.Partner),
		m.entityIDs != nil && !core.ContainsInt(m.entityIDs, r.p.UCLEntityID),
		f.Type != "" && r.p.Type != f.Type,
		f.Tag != "" && !core.ContainsString(r.p.Tags, f.Tag),
		f.PartnerTag != "" && !core.ContainsString(r.partner.Tags, f.PartnerTag):
		return false
	}
	if f.Supervisor != 0 {
		if s := r.p.SupervisorOrDefault(); s == nil || *s != f.Supervisor {
			return false
		}
	}
	return f.matchYear(r.year, m.fieldID, m.offerID)
}

func (svc *service) rows(ctx context.Context, filter *Filter) (academic.Year, []row, error) {
	year, rows, err := svc.published(ctx, "")
	if err != nil {
		return year, nil, err
	}
	m, err := svc.resolve(ctx, filter, year)
	if err != nil {
		return year, nil, err
	}
	matching := rows[:0]
	for _, r := range rows {
		if m.match(r) {
			matching = append(matching, r)
		}
	}
	return year, matching, nil
}

func (svc *service) Partnerships(ctx context.Context, filter *Filter) ([]Partnership, error) {
	year, rows, err := svc.rows(ctx, filter)
	if err != nil {
		return nil, err
	}
	b, err := svc.newBuilder(ctx, year, rows)
	if err != nil {
		return nil, err
	}

	items := make([]Partnership, 0, len(rows))
	for _, r := range rows {
		item, err := b.partnership(r)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}

	var ordering string
	if filter != nil {
		ordering = filter.Ordering
	}
	sortPartnerships(items, ordering)
	if filter != nil {
		items = paginate(items, filter.Pagination)
	}
	return items, nil
}

func paginate(items []Partnership, pg core.Pagination) []Partnership {
	if pg.Offset >= uint64(len(items)) {
		if pg.Offset == 0 {
			return items
		}
		return []Partnership{}
	}
	items = items[pg.Offset:]
	if pg.Limit > 0 && pg.Limit < uint64(len(items)) {
		items = items[:pg.Limit]
	}
	return items
}

func (svc *service) Partnership(ctx context.Context, uid string) (Partnership, error) {
	year, rows, err := svc.published(ctx, strings.ToLower(strings.TrimSpace(uid)))
	if err != nil {
		return Partnership{}, err
	}
	if len(rows) == 0 {
		return Partnership{}, ErrNotFound
	}
	b, err := svc.newBuilder(ctx, year, rows)
	if err != nil {
		return Partnership{}, err
	}
	return b.partnership(rows[0])
}

func (svc *service) Partners(ctx context.Context, filter *Filter) ([]PartnerItem, error) {
	_, rows, err := svc.rows(ctx, filter)
	if err != nil {
		return nil, err
	}

	index := make(map[int]int)
	items := []PartnerItem{}
	for _, r := range rows {
		i, ok := index[r.partner.ID]
		if !ok {
			i = len(items)
			index[r.partner.ID] = i
			items = append(items, partnerItem(r.partner))
		}
		items[i].PartnershipsCount++
	}

	var ordering string
	if filter != nil {
		ordering = filter.Ordering
	}
	sortPartners(items, ordering)
	return items, nil
}

func partnerItem(p partner.Partner) PartnerItem {
	item := PartnerItem{
		UUID:       p.UUID,
		Name:       p.Name,
		City:       p.Address.City,
		Country:    p.Address.CountryName,
		CountryISO: p.Address.CountryISO,
	}
	if p.Address.Latitude != nil && p.Address.Longitude != nil {
		item.Location = &Location{Type: "Point", Coordinates: [2]float64{*p.Address.Longitude, *p.Address.Latitude}}
	}
	return item
}

func (svc *service) Configuration(ctx context.Context) (Configuration, error) {
	_, rows, err := svc.published(ctx, "")
	if err != nil {
		return Configuration{}, err
	}
	cfg := Configuration{
		Continents:       []ContinentConfiguration{},
		Partners:         []ValueLabel{},
		UCLUniversities:  []ValueLabel{},
		EducationFields:  []ValueLabel{},
		EducationLevels:  []ValueLabel{},
		PartnershipTypes: make([]ValueLabel, 0, len(ptype.All)),
		Tags:             []string{},
		PartnerTags:      []string{},
		Offers:           []ValueLabel{},
	}
	for _, t := range ptype.All {
		cfg.PartnershipTypes = append(cfg.PartnershipTypes, ValueLabel{Value: t, Label: ptype.Label(t)})
	}

	var (
		seenPartners = make(map[int]bool)
		entityIDs    []int
		fieldIDs     []int
		levels       []string
		offerIDs     []int
	)
	for _, r := range rows {
		if !seenPartners[r.partner.ID] {
			seenPartners[r.partner.ID] = true
			cfg.Partners = append(cfg.Partners, ValueLabel{Value: r.partner.UUID, Label: r.partner.Name})
			cfg.PartnerTags = appendMissing(cfg.PartnerTags, r.partner.Tags...)
		}
		if !core.ContainsInt(entityIDs, r.p.UCLEntityID) {
			entityIDs = append(entityIDs, r.p.UCLEntityID)
		}
		cfg.Tags = appendMissing(cfg.Tags, r.p.Tags...)
		fieldIDs = appendMissingInt(fieldIDs, r.year.EducationFields...)
		levels = appendMissing(levels, r.year.EducationLevels...)
		offerIDs = appendMissingInt(offerIDs, r.year.OfferIDs...)
	}
	sort.Strings(cfg.Tags)
	sort.Strings(cfg.PartnerTags)
	sort.SliceStable(cfg.Partners, func(i, j int) bool {
		return strings.ToLower(cfg.Partners[i].Label) < strings.ToLower(cfg.Partners[j].Label)
	})

	if cfg.Continents, err = svc.continents(ctx); err != nil {
		return Configuration{}, err
	}
	if cfg.UCLUniversities, err = svc.universities(ctx, entityIDs); err != nil {
		return Configuration{}, err
	}

	fields, err := svc.refSvc.EducationFields(ctx, &reference.SearchFilter{})
	if err != nil {
		return Configuration{}, errors.Wrap(err, "listing education fields")
	}
	for _, ef := range fields {
		if core.ContainsInt(fieldIDs, ef.ID) {
			cfg.EducationFields = append(cfg.EducationFields, ValueLabel{Value: ef.UUID, Label: fieldLabel(ef)})
		}
	}

	allLevels, err := svc.refSvc.EducationLevels(ctx)
	if err != nil {
		return Configuration{}, errors.Wrap(err, "listing education levels")
	}
	for _, l := range allLevels {
		if core.ContainsString(levels, l.Code) {
			cfg.EducationLevels = append(cfg.EducationLevels, ValueLabel{Value: l.Code, Label: l.Label})
		}
	}

	if len(offerIDs) > 0 {
		offers, err := svc.refSvc.Offers(ctx, &reference.OfferFilter{IDs: offerIDs})
		if err != nil {
			return Configuration{}, errors.Wrap(err, "listing offers")
		}
		for _, o := range offers {
			cfg.Offers = append(cfg.Offers, ValueLabel{Value: o.UUID, Label: offerLabel(o)})
		}
		sort.SliceStable(cfg.Offers, func(i, j int) bool { return cfg.Offers[i].Label < cfg.Offers[j].Label })
	}

	if cfg.Fundings, err = svc.fundingSvc.Tree(ctx, true); err != nil {
		return Configuration{}, errors.Wrap(err, "listing fundings")
	}
	return cfg, nil
}

// continents lists the continents with their countries having partners, and the cities of these partners.
func (svc *service) continents(ctx context.Context) ([]ContinentConfiguration, error) {
	continents, err := svc.refSvc.Continents(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "listing continents")
	}
	countries, err := svc.refSvc.Countries(ctx, &reference.CountryFilter{HavingPartners: true})
	if err != nil {
		return nil, errors.Wrap(err, "listing countries")
	}
	partners, err := svc.partnerSvc.Query(ctx, &partner.QueryFilter{}, nil)
	if err != nil {
		return nil, errors.Wrap(err, "querying partners")
	}
	cities := make(map[int][]string)
	for _, p := range partners {
		if p.Address.CountryID == nil || p.Address.City == "" {
			continue
		}
		id := *p.Address.CountryID
		cities[id] = appendMissing(cities[id], p.Address.City)
	}

	result := make([]ContinentConfiguration, 0, len(continents))
	for _, c := range continents {
		cc := ContinentConfiguration{Name: c.Name, Countries: []CountryConfiguration{}}
		for _, country := range countries {
			if country.ContinentID == nil || *country.ContinentID != c.ID {
				continue
			}
			cs := cities[country.ID]
			sort.Strings(cs)
			if cs == nil {
				cs = []string{}
			}
			cc.Countries = append(cc.Countries, CountryConfiguration{Name: country.Name, ISOCode: country.ISOCode, Cities: cs})
		}
		result = append(result, cc)
	}
	return result, nil
}

// universities labels the UCL entities, e.g. "SST / EPL - Ecole polytechnique de Louvain".
func (svc *service) universities(ctx context.Context, ids []int) ([]ValueLabel, error) {
	type labelled struct {
		ValueLabel
		path string
	}
	var list []labelled
	for _, id := range ids {
		e, err := svc.entitySvc.Get(ctx, id)
		if err != nil {
			if errors.Cause(err) == entity.ErrNotFound {
				continue
			}
			return nil, errors.Wrap(err, "getting UCL entity")
		}
		path, err := svc.entitySvc.AcronymPath(ctx, id)
		if err != nil {
			return nil, errors.Wrap(err, "getting UCL entity path")
		}
		label := entity.Label(path)
		list = append(list, labelled{
			ValueLabel: ValueLabel{Value: e.UUID, Label: fmt.Sprintf("%s - %s", label, e.Title)},
			path:       label,
		})
	}
	sort.SliceStable(list, func(i, j int) bool { return list[i].path < list[j].path })

	result := make([]ValueLabel, 0, len(list))
	for _, l := range list {
		result = append(result, l.ValueLabel)
	}
	return result, nil
}

func fieldLabel(ef reference.EducationField) string {
	return fmt.Sprintf("%s (%s)", ef.Label, ef.Code)
}

func offerLabel(o reference.Offer) string {
	return fmt.Sprintf("%s - %s", o.Acronym, o.Title)
}

func appendMissing(list []string, values ...string) []string {
	for _, v := range values {
		if v != "" && !core.ContainsString(list, v) {
			list = append(list, v)
		}
	}
	return list
}

func appendMissingInt(list []int, values ...int) []int {
	for _, v := range values {
		if !core.ContainsInt(list, v) {
			list = append(list, v)
		}
	}
	return list
}

// builder serializes rows, loading related objects once per request.
type builder struct {
	svc   *service
	ctx   context.Context
	year  academic.Year
	today time.Time

	contacts          map[int][]contact.Contact
	partnershipMedias map[int][]media.Media
	partnerMedias     map[int][]media.Media
	financings        map[int]funding.CountryFinancing
	sources           map[int]string
	programs          map[int]string
	types             map[int]funding.Type
	fields            map[int]reference.EducationField
	offers            map[int]reference.Offer

	partners        map[int]partner.Partner
	entities        map[int]*entity.Entity
	umes            map[int]*ume.UME
	users           map[int]*user.User
	partnerEntities map[int]*partner.Entity
}

func (svc *service) newBuilder(ctx context.Context, year academic.Year, rows []row) (*builder, error) {
	b := &builder{
		svc:             svc,
		ctx:             ctx,
		year:            year,
		today:           core.Today(),
		financings:      make(map[int]funding.CountryFinancing),
		sources:         make(map[int]string),
		programs:        make(map[int]string),
		types:           make(map[int]funding.Type),
		fields:          make(map[int]reference.EducationField),
		offers:          make(map[int]reference.Offer),
		partners:        make(map[int]partner.Partner),
		entities:        make(map[int]*entity.Entity),
		umes:            make(map[int]*ume.UME),
		users:           make(map[int]*user.User),
		partnerEntities: make(map[int]*partner.Entity),
	}

	var partnershipIDs, partnerIDs, offerIDs []int
	for _, r := range rows {
		partnershipIDs = appendMissingInt(partnershipIDs, r.p.ID)
		partnerIDs = appendMissingInt(partnerIDs, r.partner.ID)
		b.partners[r.partner.ID] = r.partner
		offerIDs = appendMissingInt(offerIDs, r.year.OfferIDs...)
	}

	var err error
	if b.contacts, err = svc.repo.ContactsOf(ctx, partnershipIDs); err != nil {
		return nil, errors.Wrap(err, "loading partnership contacts")
	}
	if b.partnershipMedias, err = svc.repo.MediasOf(ctx, media.OwnerPartnership, partnershipIDs); err != nil {
		return nil, errors.Wrap(err, "loading partnership medias")
	}
	if b.partnerMedias, err = svc.repo.MediasOf(ctx, media.OwnerPartner, partnerIDs); err != nil {
		return nil, errors.Wrap(err, "loading partner medias")
	}

	financings, err := svc.fundingSvc.Financings(ctx, int(year), nil)
	if err != nil {
		return nil, errors.Wrap(err, "listing financings")
	}
	for _, f := range financings {
		if f.Name != "" {
			b.financings[f.CountryID] = f
		}
	}

	tree, err := svc.fundingSvc.Tree(ctx, false)
	if err != nil {
		return nil, errors.Wrap(err, "listing fundings")
	}
	for _, s := range tree {
		b.sources[s.ID] = s.Name
		for _, p := range s.Programs {
			b.programs[p.ID] = p.Name
			for _, t := range p.Types {
				b.types[t.ID] = t
			}
		}
	}

	fields, err := svc.refSvc.EducationFields(ctx, &reference.SearchFilter{})
	if err != nil {
		return nil, errors.Wrap(err, "listing education fields")
	}
	for _, ef := range fields {
		b.fields[ef.ID] = ef
	}

	if len(offerIDs) > 0 {
		offers, err := svc.refSvc.Offers(ctx, &reference.OfferFilter{IDs: offerIDs})
		if err != nil {
			return nil, errors.Wrap(err, "listing offers")
		}
		for _, o := range offers {
			b.offers[o.ID] = o
		}
	}
	return b, nil
}

func (b *builder) entity(id int) (*entity.Entity, error) {
	if e, ok := b.entities[id]; ok {
		return e, nil
	}
	e, err := b.svc.entitySvc.Get(b.ctx, id)
	if err != nil {
		if errors.Cause(err) != entity.ErrNotFound {
			return nil, errors.Wrap(err, "getting UCL entity")
		}
		b.entities[id] = nil
		return nil, nil
	}
	b.entities[id] = &e
	return &e, nil
}

// ancestors returns the entities from the root of the tree down to id.
func (b *builder) ancestors(id int) ([]*entity.Entity, error) {
	var chain []*entity.Entity
	for next := &id; next != nil && len(chain) < 20; {
		e, err := b.entity(*next)
		if err != nil {
			return nil, err
		}
		if e == nil {
			break
		}
		chain = append([]*entity.Entity{e}, chain...)
		next = e.ParentID
	}
	return chain, nil
}

func (b *builder) ume(uclEntityID int) (*ume.UME, error) {
	if u, ok := b.umes[uclEntityID]; ok {
		return u, nil
	}
	u, err := b.svc.umeSvc.For(b.ctx, uclEntityID)
	if err != nil {
		if errors.Cause(err) != ume.ErrNotFound {
			return nil, errors.Wrap(err, "finding UCL management entity")
		}
		b.umes[uclEntityID] = nil
		return nil, nil
	}
	b.umes[uclEntityID] = &u
	return &u, nil
}

func (b *builder) user(id *int) (*user.User, error) {
	if id == nil {
		return nil, nil
	}
	if u, ok := b.users[*id]; ok {
		return u, nil
	}
	u, err := b.svc.userSvc.GetByID(b.ctx, *id)
	if err != nil {
		if errors.Cause(err) != user.ErrNotFound {
			return nil, errors.Wrap(err, "getting user")
		}
		b.users[*id] = nil
		return nil, nil
	}
	b.users[*id] = &u
	return &u, nil
}

func (b *builder) partnerEntity(rel partnership.Relation) (*partner.Entity, error) {
	if e, ok := b.partnerEntities[rel.PartnerEntityID]; ok {
		return e, nil
	}
	e, err := b.svc.partnerSvc.GetEntity(b.ctx, rel.PartnerID, rel.PartnerEntityID)
	if err != nil {
		if errors.Cause(err) != partner.ErrEntityNotFound {
			return nil, errors.Wrap(err, "getting partner entity")
		}
		b.partnerEntities[rel.PartnerEntityID] = nil
		return nil, nil
	}
	b.partnerEntities[rel.PartnerEntityID] = &e
	return &e, nil
}

func (b *builder) mediaURL(m media.Media) string {
	if m.HasFile() {
		return fmt.Sprintf("%s/v1/medias/%s/download", strings.TrimRight(b.svc.conf.APIBaseURL, "/"), m.UUID)
	}
	return m.URL
}

func (b *builder) links(medias []media.Media, typeCode string) []Link {
	links := []Link{}
	for _, m := range medias {
		if !m.IsVisibleInPortal || (typeCode != "" && m.TypeCode != typeCode) {
			continue
		}
		links = append(links, Link{Name: m.Name, URL: b.mediaURL(m)})
	}
	return links
}

func (b *builder) partnership(r row) (Partnership, error) {
	p, y := r.p, r.year
	item := Partnership{
		UUID: p.UUID,
		Partner: PartnerDetail{
			UUID:        r.partner.UUID,
			Name:        r.partner.Name,
			Website:     r.partner.Website,
			ErasmusCode: r.partner.ErasmusCode,
			PartnerType: r.partner.PartnerType,
			City:        r.partner.Address.City,
			Country:     r.partner.Address.CountryName,
			CountryISO:  r.partner.Address.CountryISO,
		},
		Type:            ptype.Label(p.Type),
		PartnershipType: p.Type,
		IsSMS:           y.IsSMS,
		IsSMP:           y.IsSMP,
		IsSMST:          y.IsSMST,
		IsSTA:           y.IsSTA,
		IsSTT:           y.IsSTT,
		Description:     p.Description,
		IDNumber:        y.IDNumber,
		ProjectTitle:    y.ProjectTitle,
		Status:          statusOf(*p, b.year, b.today),

		EducationFields:     []string{},
		PartnerEntities:     []string{},
		BilateralAgreements: []Link{},
		OutEducationLevels:  []string{},
		OutEntities:         []Entity{},
		OutUniversityOffers: []string{},

		partnerName: strings.ToLower(r.partner.Name),
		countryName: r.partner.Address.CountryName,
		city:        strings.ToLower(r.partner.Address.City),
		entityPath:  p.UCLEntityPath,
		typeOrder:   typeOrder(y),
	}
	if p.Subtype != nil {
		item.Subtype = &p.Subtype.Label
	}
	if y.Description != "" {
		item.Description = y.Description
	}

	missions := make([]string, 0, len(p.Missions))
	for _, m := range p.Missions {
		missions = append(missions, m.Label)
	}
	item.Missions = strings.Join(missions, ", ")

	if err := b.setEntities(&item, r); err != nil {
		return Partnership{}, err
	}
	if err := b.setPartnerEntities(&item, r); err != nil {
		return Partnership{}, err
	}
	if err := b.setContacts(&item, r); err != nil {
		return Partnership{}, err
	}
	b.setYear(&item, r)
	b.setFundings(&item, r)
	b.setMedias(&item, r)
	return item, nil
}

func (b *builder) setEntities(item *Partnership, r row) error {
	chain, err := b.ancestors(r.p.UCLEntityID)
	if err != nil {
		return err
	}
	if len(chain) > 0 {
		e := chain[len(chain)-1]
		item.UCLEntity = Entity{Acronym: e.Acronym, Title: e.Title}
	}
	if len(chain) > 1 {
		item.UCLSector = chain[1].Acronym
	}
	if len(chain) > 2 {
		item.UCLFaculty = &Entity{Acronym: chain[2].Acronym, Title: chain[2].Title}
	}

	for _, id := range r.year.EntityIDs {
		e, err := b.entity(id)
		if err != nil {
			return err
		}
		if e != nil {
			item.OutEntities = append(item.OutEntities, Entity{Acronym: e.Acronym, Title: e.Title})
		}
	}
	return nil
}

func (b *builder) setPartnerEntities(item *Partnership, r row) error {
	pe, err := b.partnerEntity(r.rel)
	if err != nil {
		return err
	}
	// the partner itself is its root entity
	if pe != nil && pe.ParentID != nil {
		item.PartnerEntity = strPtr(pe.Name)
	}
	if !r.p.IsMultilateral() {
		return nil
	}
	for _, rel := range r.p.Relations {
		address := b.partners[rel.PartnerID].Address
		item.PartnerEntities = append(item.PartnerEntities,
			fmt.Sprintf("%s - %s, %s", rel.PartnerName, address.City, address.CountryName))
	}
	return nil
}

func (b *builder) setContacts(item *Partnership, r row) error {
	supervisor, err := b.user(r.p.SupervisorOrDefault())
	if err != nil {
		return err
	}
	if supervisor != nil {
		item.Supervisor = strPtr(supervisor.FullName())
	}

	partnerContacts := make([]Contact, 0, len(b.contacts[r.p.ID]))
	for _, c := range b.contacts[r.p.ID] {
		partnerContacts = append(partnerContacts, Contact{
			Title:     strPtr(c.Title),
			FirstName: strPtr(c.FirstName),
			LastName:  strPtr(c.LastName),
			Phone:     strPtr(c.Phone),
			Email:     strPtr(c.Email),
		})
	}
	item.OutPartnerContacts = partnerContacts
	item.StaffPartnerContacts = partnerContacts

	u, err := b.ume(r.p.UCLEntityID)
	if err != nil || u == nil {
		return err
	}
	admin, err := b.user(u.AdministrativeResponsibleID)
	if err != nil {
		return err
	}
	if item.OutContact, err = b.umeContact(u.ContactOutPersonID, u.ContactOutEmail, admin); err != nil {
		return err
	}
	if item.InContact, err = b.umeContact(u.ContactInPersonID, u.ContactInEmail, admin); err != nil {
		return err
	}
	if admin != nil {
		item.StaffContact = personContact(admin, admin.Email)
	}
	item.OutPortal = strPtr(u.ContactOutURL)
	item.InPortal = strPtr(u.ContactInURL)
	item.OutCourseCatalogue = map[string]CatalogueEntry{
		"fr": {Text: u.CourseCatalogueTextFr, URL: u.CourseCatalogueURLFr},
		"en": {Text: u.CourseCatalogueTextEn, URL: u.CourseCatalogueURLEn},
	}
	return nil
}

// umeContact falls back on the administrative responsible for both the person and the e-mail.
func (b *builder) umeContact(personID *int, email string, admin *user.User) (*Contact, error) {
	person, err := b.user(personID)
	if err != nil {
		return nil, err
	}
	if person == nil {
		person = admin
	}
	if email == "" && admin != nil {
		email = admin.Email
	}
	return personContact(person, email), nil
}

func personContact(person *user.User, email string) *Contact {
	c := &Contact{Email: strPtr(email)}
	if person != nil {
		c.FirstName = strPtr(person.FirstName)
		c.LastName = strPtr(person.LastName)
		c.Phone = strPtr(person.Phone)
	}
	return c
}

func (b *builder) setYear(item *Partnership, r row) {
	var labels []string
	for _, id := range r.year.EducationFields {
		if ef, ok := b.fields[id]; ok {
			item.EducationFields = append(item.EducationFields, fieldLabel(ef))
			labels = append(labels, ef.Label)
		}
	}
	if len(labels) > 0 {
		sort.Strings(labels)
		item.subjectArea = labels[0]
	}
	item.OutEducationLevels = append(item.OutEducationLevels, r.year.EducationLevels...)
	for _, id := range r.year.OfferIDs {
		if o, ok := b.offers[id]; ok {
			item.OutUniversityOffers = append(item.OutUniversityOffers, offerLabel(o))
		}
	}
}

func (b *builder) setFundings(item *Partnership, r row) {
	y := r.year

	program := &Funding{}
	var names []string
	if y.ProgramID != nil {
		names = append(names, b.programs[*y.ProgramID])
	}
	if y.FundingTypeID != nil {
		t := b.types[*y.FundingTypeID]
		names = append(names, t.Name)
		program.URL = &t.URL
	}
	program.Name = strings.Join(names, " / ")
	item.FundingProgram = program

	switch {
	case y.FundingSourceID != nil:
		empty := ""
		item.OutFunding = &Funding{Name: b.sources[*y.FundingSourceID], URL: &empty}
	case r.p.Type == ptype.Mobility && y.Eligible && r.partner.Address.CountryID != nil:
		if f, ok := b.financings[*r.partner.Address.CountryID]; ok {
			url := f.URL
			item.OutFunding = &Funding{Name: f.Name, URL: &url}
		}
	}
	if item.OutFunding != nil {
		url := b.svc.conf.StaffFundingURL
		item.StaffFunding = &Funding{Name: item.OutFunding.Name, URL: &url}
	}
}

func (b *builder) setMedias(item *Partnership, r row) {
	partnershipMedias := b.partnershipMedias[r.p.ID]
	partnerMedias := b.partnerMedias[r.partner.ID]

	item.Medias = b.links(partnershipMedias, "")
	item.OutSummaryTables = append(
		b.links(partnershipMedias, reference.SummaryTableMediaType),
		b.links(partnerMedias, reference.SummaryTableMediaType)...,
	)
	item.OutUsefulLinks = append(
		b.links(partnershipMedias, reference.UsefulLinkMediaType),
		b.links(partnerMedias, reference.UsefulLinkMediaType)...,
	)

	for _, a := range r.p.Agreements {
		if !a.IsValid() || !a.Covers(b.year) || a.Media == nil || !a.Media.IsVisibleInPortal {
			continue
		}
		item.BilateralAgreements = append(item.BilateralAgreements, Link{Name: a.Media.Name, URL: b.mediaURL(*a.Media)})
	}
}
