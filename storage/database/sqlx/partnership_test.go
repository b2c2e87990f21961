package sqlxrepos

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uclouvain/osis-partnership-sub000/core"
	"github.com/uclouvain/osis-partnership-sub000/core/academic"
	"github.com/uclouvain/osis-partnership-sub000/core/partnership"
	"github.com/uclouvain/osis-partnership-sub000/core/ptype"
)

// expectLoad sets the queries completing two mobility partnerships, the first one with a SMS year.
func expectLoad(mock sqlmock.Sqlmock, now time.Time) {
	mock.ExpectQuery("WITH RECURSIVE entity_tree AS .* FROM partnership p").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "uuid", "partnership_type", "ucl_entity_id", "ucl_entity_path", "default_supervisor_id",
			"subtype_id", "subtype_label", "subtype_code", "subtype_types", "subtype_is_active",
			"mission_ids", "tags", "is_public", "created_at", "updated_at",
		}).
			AddRow(1, "d7c9a8a4-1b1e-4c55-9b1b-0b0f2f8e6a01", ptype.Mobility, 10, "SST / EPL", 42,
				nil, nil, nil, nil, nil, "{1}", "{}", true, now, now).
			AddRow(2, "d7c9a8a4-1b1e-4c55-9b1b-0b0f2f8e6a02", ptype.Mobility, 11, "SSH / ESPO", nil,
				3, "Bilateral", "BILATERAL", "{MOBILITY}", true, "{}", "{erasmus}", true, now, now))
	mock.ExpectQuery("FROM partnership_mission").
		WillReturnRows(sqlmock.NewRows([]string{"id", "label", "code", "types", "is_active"}).
			AddRow(1, "Student mobility", "STUDENT", "{MOBILITY}", true))
	mock.ExpectQuery("FROM partnership_partner_relation r JOIN partner_entity pe").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "partnership_id", "partner_id", "partner_name", "partner_entity_id", "partner_entity_name",
		}).
			AddRow(5, 1, 100, "Universität Wien", 1000, "Universität Wien").
			AddRow(6, 2, 200, "Aarhus Universitet", 2000, "Aarhus Universitet").
			AddRow(7, 2, 100, "Universität Wien", 1000, "Universität Wien"))
	mock.ExpectQuery("FROM partner pa LEFT JOIN country co").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "city", "country_id", "country_name", "continent_id", "tags", "is_actif"}).
			AddRow(100, "Universität Wien", "Wien", 40, "Autriche", 1, "{}", true).
			AddRow(200, "Aarhus Universitet", "Aarhus", 45, "Danemark", 1, "{}", true))
	mock.ExpectQuery("FROM partnership_year").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "partnership_id", "academic_year", "is_sms", "education_fields", "education_levels", "entities", "offers",
		}).
			AddRow(30, 1, 2024, true, "{4}", "{ISCED-6}", "{}", "{}").
			AddRow(31, 2, 2024, false, "{}", "{}", "{}", "{}"))
	mock.ExpectQuery("FROM partnership_agreement a").
		WillReturnRows(sqlmock.NewRows([]string{"id", "partnership_id", "start_academic_year", "end_academic_year", "media_id", "status"}).
			AddRow(50, 1, 2023, 2025, 60, partnership.StatusValidated))
	mock.ExpectQuery("FROM media m LEFT JOIN media_type mt").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "file_key"}).AddRow(60, "Accord", "medias/accord.pdf"))
}

func TestPartnershipRepository_GetPartnership(t *testing.T) {
	ctx := context.Background()
	db, mock := newMock(t)
	now := time.Now().UTC()
	expectLoad(mock, now)

	p, err := NewPartnershipRepository(db).GetPartnership(ctx, partnership.GetFilter{ID: 1})
	require.NoError(t, err)

	assert.Equal(t, "SST / EPL", p.UCLEntityPath)
	require.NotNil(t, p.DefaultSupervisorID)
	assert.Equal(t, 42, *p.SupervisorOrDefault())
	assert.Nil(t, p.Subtype)
	require.Len(t, p.Missions, 1)
	assert.Equal(t, "STUDENT", p.Missions[0].Code)

	assert.Equal(t, "Universität Wien", p.Partner.Name)
	assert.Equal(t, "Autriche", p.Partner.CountryName)
	require.Len(t, p.Relations, 1)
	assert.Equal(t, 1000, p.Relations[0].PartnerEntityID)

	require.Len(t, p.Years, 1)
	assert.Equal(t, academic.Year(2024), p.Years[0].AcademicYear)
	assert.Equal(t, []int{4}, p.Years[0].EducationFields)
	assert.Equal(t, []string{"ISCED-6"}, p.Years[0].EducationLevels)

	require.Len(t, p.Agreements, 1)
	require.NotNil(t, p.Agreements[0].Media)
	assert.Equal(t, "medias/accord.pdf", p.Agreements[0].Media.FileKey)
	assert.True(t, p.IsYearValid(2024))
}

func TestPartnershipRepository_GetPartnership_notFound(t *testing.T) {
	ctx := context.Background()
	db, mock := newMock(t)
	mock.ExpectQuery("FROM partnership p").WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := NewPartnershipRepository(db).GetPartnership(ctx, partnership.GetFilter{UUID: "d7c9a8a4-1b1e-4c55-9b1b-0b0f2f8e6a09"})
	assert.Equal(t, partnership.ErrNotFound, err)
}

func TestPartnershipRepository_QueryPartnerships(t *testing.T) {
	ctx := context.Background()
	yes := true

	tests := []struct {
		name   string
		filter *partnership.QueryFilter
		want   []int
	}{
		{"sorted by country", nil, []int{1, 2}},
		{"year criteria", &partnership.QueryFilter{IsSMS: &yes}, []int{1}},
		{"partner tags", &partnership.QueryFilter{Tags: []string{"erasmus"}}, []int{2}},
		{"paginated", &partnership.QueryFilter{Pagination: core.Pagination{Limit: 1, Offset: 1}}, []int{2}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock := newMock(t)
			expectLoad(mock, time.Now().UTC())

			got, err := NewPartnershipRepository(db).QueryPartnerships(ctx, tt.filter, partnership.ExpandOrdering(nil))
			require.NoError(t, err)
			ids := make([]int, 0, len(got))
			for _, p := range got {
				ids = append(ids, p.ID)
			}
			assert.Equal(t, tt.want, ids)
		})
	}
}

func TestPartnershipRepository_QueryAgreements(t *testing.T) {
	ctx := context.Background()
	db, mock := newMock(t)
	expectLoad(mock, time.Now().UTC())

	summaries, err := NewPartnershipRepository(db).QueryAgreements(ctx, &partnership.AgreementFilter{
		Status: partnership.StatusValidated,
	}, partnership.ExpandOrdering(nil))
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	assert.Equal(t, "d7c9a8a4-1b1e-4c55-9b1b-0b0f2f8e6a01", summaries[0].PartnershipUUID)
	assert.Equal(t, "SST / EPL", summaries[0].UCLEntityPath)
	assert.Equal(t, "Universität Wien", summaries[0].Partner.Name)
	require.NotNil(t, summaries[0].PartnershipStart)
	assert.Equal(t, academic.Year(2024).Start(), *summaries[0].PartnershipStart)
}

func TestPartnershipRepository_DeleteAgreement(t *testing.T) {
	ctx := context.Background()
	db, mock := newMock(t)
	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM partnership_agreement WHERE").WithArgs(50, 1).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("DELETE FROM media WHERE id = \\$1").WithArgs(60).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := NewPartnershipRepository(db).DeleteAgreement(ctx, partnership.Agreement{ID: 50, PartnershipID: 1, MediaID: 60})
	assert.NoError(t, err)
}

func TestPartnershipRepository_DeleteContact(t *testing.T) {
	ctx := context.Background()
	db, mock := newMock(t)
	mock.ExpectExec("DELETE FROM contact WHERE id = \\$1").WithArgs(9).WillReturnResult(sqlmock.NewResult(0, 0))

	err := NewPartnershipRepository(db).DeleteContact(ctx, 9)
	assert.Equal(t, partnership.ErrContactNotFound, err)
}

func TestPrefilter(t *testing.T) {
	yes := true
	year := 2024

	tests := []struct {
		name      string
		filter    *partnership.QueryFilter
		fragments []string
		args      []interface{}
	}{
		{
			name:   "one year row matching all criteria",
			filter: &partnership.QueryFilter{EducationLevel: "ISCED-6", IsSMS: &yes, FundingType: 7},
			fragments: []string{
				"EXISTS (SELECT 1 FROM partnership_year y WHERE y.partnership_id = p.id AND ($1 = ANY(y.education_levels) AND y.is_sms = $2 AND y.funding_type_id = $3))",
			},
			args: []interface{}{"ISCED-6", true, 7},
		},
		{
			name:   "years open to every entity",
			filter: &partnership.QueryFilter{YearsEntity: 12},
			fragments: []string{
				"(cardinality(y.entities) = 0 OR $1 = ANY(y.entities))",
			},
			args: []interface{}{12},
		},
		{
			name:   "valid agreement",
			filter: &partnership.QueryFilter{ValidIn: &year},
			fragments: []string{
				"EXISTS (SELECT 1 FROM partnership_agreement a WHERE a.partnership_id = p.id AND a.start_academic_year <= $1 AND a.end_academic_year >= $2 AND a.status = $3)",
			},
			args: []interface{}{2024, 2024, partnership.StatusValidated},
		},
		{
			name:   "agreement not validated",
			filter: &partnership.QueryFilter{NotValidIn: &year},
			fragments: []string{
				"EXISTS (SELECT 1 FROM partnership_agreement a WHERE a.partnership_id = p.id AND a.start_academic_year <= $1",
				"NOT EXISTS (SELECT 1 FROM partnership_agreement a WHERE a.partnership_id = p.id AND a.start_academic_year <= $3 AND a.end_academic_year >= $4 AND a.status = $5)",
			},
			args: []interface{}{2024, 2024, 2024, 2024, partnership.StatusValidated},
		},
		{
			name:   "year without agreement",
			filter: &partnership.QueryFilter{WithNoAgreementsIn: &year},
			fragments: []string{
				"EXISTS (SELECT 1 FROM partnership_year y WHERE y.partnership_id = p.id AND y.academic_year = $1)",
				"NOT EXISTS (SELECT 1 FROM partnership_agreement a",
			},
			args: []interface{}{2024, 2024, 2024},
		},
		{
			name:      "last agreement end",
			filter:    &partnership.QueryFilter{EndingIn: &year},
			fragments: []string{"(SELECT MAX(a.end_academic_year) FROM partnership_agreement a WHERE a.partnership_id = p.id) = $1"},
			args:      []interface{}{2024},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			query, args, err := prefilter(psql.Select("p.id").From("partnership p"), tt.filter).ToSql()
			require.NoError(t, err)
			for _, f := range tt.fragments {
				assert.Contains(t, query, f)
			}
			assert.Equal(t, tt.args, args)
		})
	}
}

func TestPartnershipRepository_QueryPartnerships_prefiltered(t *testing.T) {
	ctx := context.Background()
	db, mock := newMock(t)
	no := false
	mock.ExpectQuery("FROM partnership p .*WHERE EXISTS \\(SELECT 1 FROM partnership_year y WHERE y.partnership_id = p.id AND \\(y.is_stt = \\$1\\)\\)").
		WithArgs(false).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	got, err := NewPartnershipRepository(db).QueryPartnerships(ctx, &partnership.QueryFilter{IsSTT: &no}, nil)
	require.NoError(t, err)
	assert.Empty(t, got)
}
