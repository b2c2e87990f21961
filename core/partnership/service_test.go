package partnership

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uclouvain/osis-partnership-sub000/core"
	"github.com/uclouvain/osis-partnership-sub000/core/academic"
	"github.com/uclouvain/osis-partnership-sub000/core/configuration"
	"github.com/uclouvain/osis-partnership-sub000/core/entity"
	"github.com/uclouvain/osis-partnership-sub000/core/funding"
	"github.com/uclouvain/osis-partnership-sub000/core/media"
	"github.com/uclouvain/osis-partnership-sub000/core/partner"
	"github.com/uclouvain/osis-partnership-sub000/core/perms"
	"github.com/uclouvain/osis-partnership-sub000/core/ptype"
	"github.com/uclouvain/osis-partnership-sub000/core/reference"
	"github.com/uclouvain/osis-partnership-sub000/core/user"
)

type repoMock struct {
	Repository
	partnerships  map[int]Partnership
	agreements    map[int]Agreement
	missions      []Mission
	subtypes      []Subtype
	failAgreement bool
}

func (m *repoMock) CreatePartnership(_ context.Context, p Partnership, _ ...core.DBExecutor) (Partnership, error) {
	p.ID = len(m.partnerships) + 1
	m.partnerships[p.ID] = p
	return p, nil
}

func (m *repoMock) UpdatePartnership(_ context.Context, p Partnership, _ ...core.DBExecutor) (Partnership, error) {
	m.partnerships[p.ID] = p
	return p, nil
}

func (m *repoMock) QueryPartnerships(_ context.Context, filter *QueryFilter, ordering []core.DBOrdering, _ ...core.DBExecutor) ([]Partnership, error) {
	var ps []Partnership
	for _, p := range m.partnerships {
		if filter.Match(p) {
			ps = append(ps, p)
		}
	}
	Sort(ps, ordering)
	return ps, nil
}

func (m *repoMock) QueryMissions(context.Context, ...core.DBExecutor) ([]Mission, error) {
	return m.missions, nil
}

func (m *repoMock) QuerySubtypes(context.Context, ...core.DBExecutor) ([]Subtype, error) {
	return m.subtypes, nil
}

func (m *repoMock) CreateAgreement(_ context.Context, a Agreement, md media.Media, _ ...core.DBExecutor) (Agreement, error) {
	if m.failAgreement {
		return Agreement{}, errors.New("insert failed")
	}
	a.ID = len(m.agreements) + 1
	a.MediaID = 100 + a.ID
	md.ID = a.MediaID
	a.Media = &md
	m.agreements[a.ID] = a
	return a, nil
}

func (m *repoMock) UpdateAgreement(_ context.Context, a Agreement, md media.Media, _ ...core.DBExecutor) (Agreement, error) {
	a.Media = &md
	m.agreements[a.ID] = a
	return a, nil
}

func (m *repoMock) DeleteAgreement(_ context.Context, a Agreement, _ ...core.DBExecutor) error {
	delete(m.agreements, a.ID)
	return nil
}

type entitySvcMock struct {
	entity.Service
}

func (entitySvcMock) Get(_ context.Context, id int) (entity.Entity, error) {
	if id == 404 {
		return entity.Entity{}, entity.ErrNotFound
	}
	return entity.Entity{ID: id, Acronym: "ESPO"}, nil
}

func (entitySvcMock) Faculty(_ context.Context, id int) (entity.Entity, error) {
	return entity.Entity{ID: 1, Acronym: "SSH", Type: entity.TypeFaculty}, nil
}

func (entitySvcMock) Descendants(_ context.Context, id int) ([]int, error) {
	return []int{id, id + 1}, nil
}

type partnerSvcMock struct {
	partner.Service
	partners map[int]partner.Partner
}

func (m partnerSvcMock) Get(_ context.Context, id int) (partner.Partner, error) {
	p, ok := m.partners[id]
	if !ok {
		return partner.Partner{}, partner.ErrNotFound
	}
	return p, nil
}

func (m partnerSvcMock) GetEntity(_ context.Context, partnerID, id int) (partner.Entity, error) {
	if _, ok := m.partners[partnerID]; !ok || id != partnerID*10 {
		return partner.Entity{}, partner.ErrEntityNotFound
	}
	return partner.Entity{ID: id}, nil
}

type userSvcMock struct {
	user.Service
}

func (userSvcMock) GetByID(_ context.Context, id int) (user.User, error) {
	if id == 404 {
		return user.User{}, user.ErrNotFound
	}
	return user.User{ID: id}, nil
}

type fundingSvcMock struct {
	funding.Service
}

func (fundingSvcMock) GetSource(_ context.Context, id int) (funding.Source, error) {
	if id != 1 {
		return funding.Source{}, funding.ErrNotFound
	}
	return funding.Source{ID: 1, Name: "EU"}, nil
}

func (fundingSvcMock) GetProgram(_ context.Context, id int) (funding.Program, error) {
	if id != 10 {
		return funding.Program{}, funding.ErrNotFound
	}
	return funding.Program{ID: 10, Name: "Erasmus+", SourceID: 1}, nil
}

func (fundingSvcMock) GetType(_ context.Context, id int) (funding.Type, error) {
	if id != 100 {
		return funding.Type{}, funding.ErrNotFound
	}
	return funding.Type{ID: 100, Name: "KA131", ProgramID: 10}, nil
}

type mediaSvcMock struct {
	media.Service
	discarded []string
	cleaned   []string
}

func (m *mediaSvcMock) Prepare(_ context.Context, authorID int, data media.MediaData, file *media.Upload) (media.Media, error) {
	md := media.Media{Name: data.Name, AuthorID: authorID}
	if file != nil {
		md.FileName = file.Name
		md.FileKey = "key/" + file.Name
	}
	return md, nil
}

func (m *mediaSvcMock) Revise(_ context.Context, md media.Media, data media.MediaData, file *media.Upload) (media.Media, error) {
	md.Name = data.Name
	if file != nil {
		md.FileName = file.Name
		md.FileKey = "new/" + file.Name
	}
	return md, nil
}

func (m *mediaSvcMock) Discard(_ context.Context, md media.Media) {
	m.discarded = append(m.discarded, md.FileKey)
}

func (m *mediaSvcMock) Cleanup(_ context.Context, old, saved media.Media) {
	if old.FileKey != saved.FileKey {
		m.cleaned = append(m.cleaned, old.FileKey)
	}
}

type confSvcMock struct {
	configuration.Service
}

func (confSvcMock) Get(context.Context) (configuration.Configuration, error) {
	return configuration.Default(), nil
}

type mailMock struct {
	messages []*core.EmailMessage
}

func (m *mailMock) SendMessages(messages ...*core.EmailMessage) {
	m.messages = append(m.messages, messages...)
}

type testEnv struct {
	svc   Service
	repo  *repoMock
	media *mediaSvcMock
	mail  *mailMock
}

func newTestEnv(t *testing.T) testEnv {
	today := core.Today
	core.Today = func() time.Time { return core.Date(2025, time.June, 1) }
	t.Cleanup(func() { core.Today = today })

	repo := &repoMock{
		partnerships: make(map[int]Partnership),
		agreements:   make(map[int]Agreement),
		missions: []Mission{
			{ID: 1, Code: "MOB", Types: []string{ptype.Mobility}},
			{ID: 2, Code: "RES", Types: []string{ptype.General, ptype.Project}},
			{ID: 3, Code: "TEA", Types: []string{ptype.General}},
		},
		subtypes: []Subtype{
			{ID: 1, Code: "OLD", Types: []string{ptype.General}},
			{ID: 2, Code: "NEW", Types: []string{ptype.General}, IsActive: true},
		},
	}
	partners := &partnerSvcMock{partners: map[int]partner.Partner{
		3: {ID: 3, Name: "Université de Lyon", StartDate: core.Date(2000, time.January, 1)},
		4: {ID: 4, Name: "Closed", StartDate: core.Date(2000, time.January, 1), EndDate: datePtr(2010, time.January, 1)},
	}}
	env := testEnv{repo: repo, media: &mediaSvcMock{}, mail: &mailMock{}}
	env.svc = NewService(repo, &entitySvcMock{}, partners, &userSvcMock{}, &fundingSvcMock{}, env.media, &confSvcMock{}, env.mail)
	return env
}

var (
	scopes  = []string{ptype.General, ptype.Mobility, ptype.Course, ptype.Doctorate, ptype.Project}
	adri    = perms.NewSubject(user.User{ID: 1, Managers: []user.Manager{{EntityID: 2, EntityAcronym: user.ADRIAcronym, Scopes: scopes}}}, 2)
	manager = perms.NewSubject(user.User{ID: 5, FirstName: "Jane", LastName: "Doe", Managers: []user.Manager{{EntityID: 10, EntityAcronym: "ESPO", Scopes: scopes}}}, 10)
	viewer  = perms.NewSubject(user.User{ID: 6, Roles: []string{user.RoleViewer}})
)

func mobilityData(start, end int) PartnershipData {
	return PartnershipData{
		Type:              ptype.Mobility,
		UCLEntityID:       10,
		PartnerEntities:   []RelationData{{PartnerID: 3, PartnerEntityID: 30}},
		StartAcademicYear: intPtr(start),
		EndAcademicYear:   intPtr(end),
		Year:              YearData{IsSMS: true, EducationLevels: []string{"ISCED-6"}, EntityIDs: []int{11}, Eligible: boolPtr(false)},
	}
}

func TestService_Create(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.svc.Create(ctx, viewer, mobilityData(2026, 2027))
	assert.Equal(t, core.ErrPermissionDenied, err)

	p, err := env.svc.Create(ctx, manager, mobilityData(2026, 2027))
	require.NoError(t, err)
	assert.NotEmpty(t, p.UUID)
	assert.Equal(t, []int{1}, p.MissionIDs)
	assert.True(t, p.IsPublic)
	require.Len(t, p.Years, 2)
	assert.Equal(t, academic.Year(2026), p.Years[0].AcademicYear)
	assert.Equal(t, academic.Year(2027), p.Years[1].AcademicYear)
	assert.True(t, p.Years[0].Eligible, "managers cannot set eligibility")
	assert.Equal(t, []int{11}, p.Years[1].EntityIDs)
	require.Len(t, p.Relations, 1)
	assert.Equal(t, 30, p.Relations[0].PartnerEntityID)

	require.Len(t, env.mail.messages, 1)
	assert.Equal(t, "partnership_created - SSH", env.mail.messages[0].Subject)
	assert.Equal(t, "partnership_creation", env.mail.messages[0].TemplateName)
	assert.Equal(t, configuration.DefaultNotificationEmail, env.mail.messages[0].To[0].Address)

	_, err = env.svc.Create(ctx, adri, mobilityData(2020, 2021))
	require.NoError(t, err)
	assert.Len(t, env.mail.messages, 1, "ADRI creations are not notified")
}

func TestService_CreateErrors(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	tests := []struct {
		name   string
		actor  perms.Subject
		data   func() PartnershipData
		fields []string
	}{
		{
			name:   "manager before the creation min year",
			actor:  manager,
			data:   func() PartnershipData { return mobilityData(2025, 2026) },
			fields: []string{"start_academic_year"},
		},
		{
			name:  "entity not managed",
			actor: manager,
			data: func() PartnershipData {
				d := mobilityData(2026, 2027)
				d.UCLEntityID = 20
				return d
			},
			fields: []string{"ucl_entity_id"},
		},
		{
			name:  "unknown entity and supervisor",
			actor: adri,
			data: func() PartnershipData {
				d := mobilityData(2026, 2027)
				d.UCLEntityID, d.SupervisorID = 404, intPtr(404)
				return d
			},
			fields: []string{"ucl_entity_id", "supervisor_id"},
		},
		{
			name:  "inactive partner",
			actor: adri,
			data: func() PartnershipData {
				d := mobilityData(2026, 2027)
				d.PartnerEntities = []RelationData{{PartnerID: 4, PartnerEntityID: 40}}
				return d
			},
			fields: []string{"partner_entities[0]"},
		},
		{
			name:  "unknown partner entity",
			actor: adri,
			data: func() PartnershipData {
				d := mobilityData(2026, 2027)
				d.PartnerEntities = []RelationData{{PartnerID: 3, PartnerEntityID: 31}}
				return d
			},
			fields: []string{"partner_entities[0]"},
		},
		{
			name:  "general without mission and inactive subtype",
			actor: adri,
			data: func() PartnershipData {
				return PartnershipData{
					Type:            ptype.General,
					UCLEntityID:     10,
					SupervisorID:    intPtr(1),
					PartnerEntities: []RelationData{{PartnerID: 3, PartnerEntityID: 30}},
					SubtypeID:       intPtr(1),
					StartDate:       datePtr(2025, time.January, 1),
					EndDate:         datePtr(2026, time.December, 31),
				}
			},
			fields: []string{"mission_ids", "subtype_id"},
		},
		{
			name:  "unknown funding",
			actor: adri,
			data: func() PartnershipData {
				d := mobilityData(2026, 2027)
				d.Year.FundingTypeID = intPtr(999)
				return d
			},
			fields: []string{"funding_type_id"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.svc.Create(ctx, tt.actor, tt.data())
			var vErr *core.ValidationError
			require.True(t, errors.As(err, &vErr), "got %v", err)
			var fields []string
			for _, f := range vErr.Fields {
				fields = append(fields, f.Field)
			}
			assert.Equal(t, tt.fields, fields)
		})
	}
}

func TestService_CreateCleansYear(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	d := mobilityData(2026, 2026)
	d.Year = YearData{IsSTA: true, EducationLevels: []string{"ISCED-6"}, EntityIDs: []int{11}, FundingTypeID: intPtr(100)}
	p, err := env.svc.Create(ctx, adri, d)
	require.NoError(t, err)
	y := p.Years[0]
	assert.Nil(t, y.EducationLevels)
	assert.Nil(t, y.EntityIDs)
	assert.Equal(t, 10, *y.ProgramID)
	assert.Equal(t, 1, *y.FundingSourceID)
	assert.True(t, y.Eligible)

	doc := PartnershipData{
		Type:              ptype.Doctorate,
		UCLEntityID:       10,
		SupervisorID:      intPtr(1),
		PartnerEntities:   []RelationData{{PartnerID: 3, PartnerEntityID: 30}},
		StartAcademicYear: intPtr(2026),
		EndAcademicYear:   intPtr(2026),
		Year:              YearData{EducationLevels: []string{"ISCED-6"}},
	}
	p, err = env.svc.Create(ctx, adri, doc)
	require.NoError(t, err)
	assert.Equal(t, []string{reference.PhDLevel}, p.Years[0].EducationLevels)

	general := PartnershipData{
		Type:            ptype.General,
		UCLEntityID:     10,
		SupervisorID:    intPtr(1),
		PartnerEntities: []RelationData{{PartnerID: 3, PartnerEntityID: 30}},
		MissionIDs:      []int{2, 3},
		SubtypeID:       intPtr(2),
		StartDate:       datePtr(2025, time.January, 1),
		EndDate:         datePtr(2026, time.December, 31),
	}
	p, err = env.svc.Create(ctx, adri, general)
	require.NoError(t, err)
	require.Len(t, p.Years, 3)
	assert.Equal(t, academic.Year(2024), p.Years[0].AcademicYear)
	assert.Equal(t, academic.Year(2026), p.Years[2].AcademicYear)
}

func TestService_Update(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	p, err := env.svc.Create(ctx, adri, mobilityData(2024, 2026))
	require.NoError(t, err)
	p.Partner = PartnerSummary{ID: 3, Name: "Université de Lyon"}

	_, err = env.svc.Update(ctx, viewer, p, mobilityData(2024, 2027))
	assert.Equal(t, core.ErrPermissionDenied, err)

	d := mobilityData(2022, 2027)
	d.FromAcademicYear = intPtr(2026)
	d.Year.IDNumber = "NEW"
	updated, err := env.svc.Update(ctx, manager, p, d)
	require.NoError(t, err)

	var years []academic.Year
	for _, y := range updated.Years {
		years = append(years, y.AcademicYear)
	}
	assert.Equal(t, []academic.Year{2024, 2025, 2026, 2027}, years, "managers keep the start of mobilities")
	assert.Equal(t, "", updated.Years[1].IDNumber)
	assert.Equal(t, "NEW", updated.Years[2].IDNumber)
	assert.Equal(t, "NEW", updated.Years[3].IDNumber)

	require.Len(t, env.mail.messages, 1)
	assert.Equal(t, "partnership_end_year_updated - SSH", env.mail.messages[0].Subject)
	assert.Equal(t, "partnership_update", env.mail.messages[0].TemplateName)
}

func TestService_UpdateEndBeforeKeptStart(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	p, err := env.svc.Create(ctx, manager, mobilityData(2028, 2030))
	require.NoError(t, err)
	p.Partner = PartnerSummary{ID: 3, Name: "Université de Lyon"}

	_, err = env.svc.Update(ctx, manager, p, mobilityData(2026, 2027))
	var vErr *core.ValidationError
	require.True(t, errors.As(err, &vErr), "got %v", err)
	assert.Equal(t, []core.FieldError{{Field: "end_academic_year", Error: core.StartYearAfterEndText}}, vErr.Fields)

	stored := env.repo.partnerships[p.ID]
	require.Len(t, stored.Years, 3, "years are kept")
	assert.Equal(t, academic.Year(2028), stored.Years[0].AcademicYear)
	assert.Equal(t, academic.Year(2030), stored.Years[2].AcademicYear)
}

func TestMergeYears(t *testing.T) {
	current := []Year{
		{ID: 1, AcademicYear: 2022, IDNumber: "first"},
		{ID: 2, AcademicYear: 2023, IDNumber: "second"},
		{ID: 3, AcademicYear: 2024, IDNumber: "third"},
	}

	tests := []struct {
		name             string
		start, from, end academic.Year
		wantIDs          []int
		wantNumbers      []string
	}{
		{
			name:  "extend both ways",
			start: 2020, from: 2024, end: 2025,
			wantIDs:     []int{0, 0, 1, 2, 3, 0},
			wantNumbers: []string{"first", "first", "first", "second", "new", "new"},
		},
		{
			name:  "shrink",
			start: 2023, from: 2023, end: 2023,
			wantIDs:     []int{2},
			wantNumbers: []string{"new"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			years := mergeYears(current, YearData{IDNumber: "new"}, tt.start, tt.from, tt.end)
			var ids []int
			var numbers []string
			for _, y := range years {
				ids = append(ids, y.ID)
				numbers = append(numbers, y.IDNumber)
			}
			assert.Equal(t, tt.wantIDs, ids)
			assert.Equal(t, tt.wantNumbers, numbers)
		})
	}

	t.Run("gaps before from stay missing", func(t *testing.T) {
		sparse := []Year{
			{ID: 1, AcademicYear: 2022, IDNumber: "first"},
			{ID: 4, AcademicYear: 2025, IDNumber: "fourth"},
		}
		years := mergeYears(sparse, YearData{IDNumber: "new"}, 2021, 2027, 2028)
		var got []academic.Year
		for _, y := range years {
			got = append(got, y.AcademicYear)
		}
		assert.Equal(t, []academic.Year{2021, 2022, 2025, 2027, 2028}, got)
		assert.Equal(t, "first", years[0].IDNumber)
		assert.Equal(t, "fourth", years[2].IDNumber)
		assert.Equal(t, "new", years[3].IDNumber)
	})
}

func TestService_Agreements(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	p, err := env.svc.Create(ctx, adri, mobilityData(2024, 2026))
	require.NoError(t, err)
	p.Partner = PartnerSummary{ID: 3}

	file := &media.Upload{Name: "scan.PDF"}
	md := media.MediaData{Name: "Convention"}

	_, err = env.svc.CreateAgreement(ctx, viewer, p, AgreementData{}, md, file)
	assert.Equal(t, core.ErrPermissionDenied, err)

	_, err = env.svc.CreateAgreement(ctx, manager, p, AgreementData{}, md, file)
	var vErr *core.ValidationError
	require.True(t, errors.As(err, &vErr))

	data := AgreementData{StartAcademicYear: intPtr(2023), EndAcademicYear: intPtr(2027), Status: StatusValidated}
	a, err := env.svc.CreateAgreement(ctx, manager, p, data, md, file)
	require.NoError(t, err)
	assert.Equal(t, StatusWaiting, a.Status, "managers cannot validate")
	assert.Equal(t, academic.Year(2023).Start(), *a.StartDate)
	assert.Equal(t, academic.Year(2027).End(), *a.EndDate)
	assert.Equal(t, "partnership_agreement_1_3.PDF", a.Media.FileName)
	assert.Equal(t, []string{agreementBeforeWarning, agreementAfterWarning}, a.Warnings)

	data.StartAcademicYear = intPtr(2024)
	a, err = env.svc.UpdateAgreement(ctx, adri, p, a, data, md, &media.Upload{Name: "v2.pdf"})
	require.NoError(t, err)
	assert.Equal(t, StatusValidated, a.Status)
	assert.Equal(t, []string{agreementAfterWarning}, a.Warnings)
	assert.Equal(t, []string{"key/partnership_agreement_1_3.PDF"}, env.media.cleaned)

	_, err = env.svc.UpdateAgreement(ctx, manager, p, a, data, md, nil)
	assert.Equal(t, core.ErrPermissionDenied, err)
	assert.Equal(t, core.ErrPermissionDenied, env.svc.DeleteAgreement(ctx, adri, p, a))

	a.Status = StatusRefused
	require.NoError(t, env.svc.DeleteAgreement(ctx, adri, p, a))
	assert.Empty(t, env.repo.agreements)
	assert.Equal(t, []string{"new/partnership_agreement_1_3.pdf"}, env.media.discarded)
}

func TestService_CreateAgreementDiscardsMedia(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	p := Partnership{ID: 9, Type: ptype.Project, UCLEntityID: 10, Partner: PartnerSummary{ID: 3}}
	env.repo.failAgreement = true

	data := AgreementData{StartDate: datePtr(2024, time.January, 1), EndDate: datePtr(2025, time.June, 30)}
	_, err := env.svc.CreateAgreement(ctx, adri, p, data, media.MediaData{Name: "Convention"}, &media.Upload{Name: "a.pdf"})
	require.Error(t, err)
	assert.Equal(t, []string{"key/partnership_agreement_9_3.pdf"}, env.media.discarded)
}

func TestService_Delete(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	p := Partnership{ID: 1, Agreements: []Agreement{{ID: 1}}}
	assert.Equal(t, core.ErrPermissionDenied, env.svc.Delete(ctx, manager, p))
	assert.Equal(t, core.ErrPermissionDenied, env.svc.Delete(ctx, adri, p))
}

func TestService_QueryAndMissions(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.svc.Create(ctx, adri, mobilityData(2024, 2025))
	require.NoError(t, err)
	d := mobilityData(2024, 2025)
	d.UCLEntityID = 12
	_, err = env.svc.Create(ctx, adri, d)
	require.NoError(t, err)

	ps, err := env.svc.Query(ctx, &QueryFilter{UCLEntity: 10}, nil)
	require.NoError(t, err)
	assert.Len(t, ps, 1)

	ps, err = env.svc.Query(ctx, &QueryFilter{UCLEntity: 11, UCLEntityWithChild: true}, nil)
	require.NoError(t, err)
	assert.Len(t, ps, 1)
	assert.Equal(t, 12, ps[0].UCLEntityID)

	ps, err = env.svc.EndingWithoutAgreement(ctx, 2025)
	require.NoError(t, err)
	assert.Len(t, ps, 2)

	missions, err := env.svc.Missions(ctx, ptype.General)
	require.NoError(t, err)
	assert.Len(t, missions, 2)

	subtypes, err := env.svc.Subtypes(ctx, ptype.General)
	require.NoError(t, err)
	require.Len(t, subtypes, 1)
	assert.Equal(t, "NEW", subtypes[0].Code)
}
