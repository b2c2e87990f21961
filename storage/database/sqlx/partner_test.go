package sqlxrepos

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uclouvain/osis-partnership-sub000/core"
	"github.com/uclouvain/osis-partnership-sub000/core/partner"
)

var partnerTestColumns = []string{
	"id", "uuid", "name", "is_valid", "partner_type", "pic_code", "erasmus_code", "website", "start_date",
	"end_date", "continent_code", "tags", "is_actif", "address_city", "address_country_id", "country_name",
	"country_iso", "created_at", "updated_at",
}

func TestPartnerRepository_CheckUniqueness(t *testing.T) {
	ctx := context.Background()
	exists := func(b bool) *sqlmock.Rows { return sqlmock.NewRows([]string{"exists"}).AddRow(b) }

	t.Run("pic code taken", func(t *testing.T) {
		db, mock := newMock(t)
		mock.ExpectQuery("FROM partner WHERE .*pic_code = \\$1 AND id <> \\$2").
			WithArgs("123456789", 4).
			WillReturnRows(exists(true))

		err := NewPartnerRepository(db).CheckUniqueness(ctx, "123456789", "B LOUVAIN01", 4)
		assert.Equal(t, partner.ErrPICCodeExists, err)
	})

	t.Run("erasmus code taken", func(t *testing.T) {
		db, mock := newMock(t)
		mock.ExpectQuery("FROM partner WHERE .*pic_code").WillReturnRows(exists(false))
		mock.ExpectQuery("FROM partner WHERE .*erasmus_code = \\$1").
			WithArgs("B LOUVAIN01").
			WillReturnRows(exists(true))

		err := NewPartnerRepository(db).CheckUniqueness(ctx, "123456789", "B LOUVAIN01", 0)
		assert.Equal(t, partner.ErrErasmusCodeExists, err)
	})

	t.Run("empty codes are not checked", func(t *testing.T) {
		db, _ := newMock(t)
		assert.NoError(t, NewPartnerRepository(db).CheckUniqueness(ctx, "", "", 0))
	})
}

func TestPartnerRepository_GetPartner(t *testing.T) {
	ctx := context.Background()
	start := time.Date(2010, time.January, 1, 0, 0, 0, 0, time.UTC)
	now := time.Now().UTC()

	t.Run("found", func(t *testing.T) {
		db, mock := newMock(t)
		mock.ExpectQuery("FROM partner p LEFT JOIN country co .* WHERE p.id = \\$3").
			WillReturnRows(sqlmock.NewRows(partnerTestColumns).AddRow(
				5, "5b3f2a5e-2d4c-4b8e-9f59-4b0c3a6e1d11", "KU Leuven", true, partner.TypeAcademicPartner,
				"999884732", nil, "https://kuleuven.be", start, nil, "EU", "{erasmus,research}", true,
				"Leuven", 21, "Belgique", "BE", now, now,
			))

		p, err := NewPartnerRepository(db).GetPartner(ctx, partner.GetFilter{ID: 5})
		require.NoError(t, err)
		assert.Equal(t, "KU Leuven", p.Name)
		assert.Equal(t, "999884732", p.PICCode)
		assert.Empty(t, p.ErasmusCode)
		assert.Nil(t, p.EndDate)
		assert.Equal(t, "EU", p.ContinentCode)
		assert.Equal(t, []string{"erasmus", "research"}, p.Tags)
		assert.Equal(t, "Leuven", p.Address.City)
		require.NotNil(t, p.Address.CountryID)
		assert.Equal(t, 21, *p.Address.CountryID)
		assert.Equal(t, "BE", p.Address.CountryISO)
	})

	t.Run("not found", func(t *testing.T) {
		db, mock := newMock(t)
		mock.ExpectQuery("FROM partner p").WillReturnRows(sqlmock.NewRows(partnerTestColumns))

		_, err := NewPartnerRepository(db).GetPartner(ctx, partner.GetFilter{UUID: "5b3f2a5e-2d4c-4b8e-9f59-4b0c3a6e1d11"})
		assert.Equal(t, partner.ErrNotFound, err)
	})

	t.Run("empty filter", func(t *testing.T) {
		db, _ := newMock(t)
		_, err := NewPartnerRepository(db).GetPartner(ctx, partner.GetFilter{})
		assert.Equal(t, partner.ErrNotFound, err)
	})
}

func TestPartnerRepository_CreatePartner(t *testing.T) {
	ctx := context.Background()
	db, mock := newMock(t)
	now := time.Now().UTC()
	start := time.Date(2010, time.January, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO partner \\(").WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(7))
	mock.ExpectQuery("INSERT INTO partner_tag \\(value\\) VALUES \\(\\$1\\) ON CONFLICT").
		WithArgs("erasmus").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(3))
	mock.ExpectExec("DELETE FROM partner_tags WHERE partner_id = \\$1").WithArgs(7).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INSERT INTO partner_tags \\(partner_id,tag_id\\)").WithArgs(7, 3).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	mock.ExpectQuery("FROM partner p").WillReturnRows(sqlmock.NewRows(partnerTestColumns).AddRow(
		7, "0f0d514f-7b2a-4b3e-8a5c-6d6f2d9e3c01", "UCLouvain", false, partner.TypeAcademicPartner,
		nil, nil, "https://uclouvain.be", start, nil, nil, "{erasmus}", true, "", nil, nil, nil, now, now,
	))

	p, err := NewPartnerRepository(db).CreatePartner(ctx, partner.Partner{
		UUID:        "0f0d514f-7b2a-4b3e-8a5c-6d6f2d9e3c01",
		Name:        "UCLouvain",
		PartnerType: partner.TypeAcademicPartner,
		Website:     "https://uclouvain.be",
		StartDate:   start,
		Tags:        []string{"erasmus"},
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	require.NoError(t, err)
	assert.Equal(t, 7, p.ID)
	assert.Equal(t, []string{"erasmus"}, p.Tags)
	assert.Nil(t, p.Address.CountryID)
}

func TestPartnerRepository_CreatePartner_uniqueViolation(t *testing.T) {
	ctx := context.Background()
	db, mock := newMock(t)

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO partner \\(").
		WillReturnError(&pq.Error{Code: "23505", Constraint: "partner_erasmus_code_key"})
	mock.ExpectRollback()

	_, err := NewPartnerRepository(db).CreatePartner(ctx, partner.Partner{Name: "Dup", ErasmusCode: "B LOUVAIN01"})
	assert.Equal(t, partner.ErrErasmusCodeExists, errors.Cause(err))
}

func TestPartnerRepository_QueryPartners(t *testing.T) {
	ctx := context.Background()
	db, mock := newMock(t)
	yes := true
	today := time.Date(2025, time.March, 3, 0, 0, 0, 0, time.UTC)
	start := time.Date(2010, time.January, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery("WHERE \\(p.name ILIKE \\$3\\) AND .* = \\$6 ORDER BY country_name DESC, id LIMIT 10").
		WithArgs(today, today, "%leuven%", today, today, true).
		WillReturnRows(sqlmock.NewRows(partnerTestColumns).
			AddRow(5, "5b3f2a5e-2d4c-4b8e-9f59-4b0c3a6e1d11", "KU Leuven", true, partner.TypeAcademicPartner,
				nil, nil, "https://kuleuven.be", start, nil, nil, "{}", true, "Leuven", nil, nil, nil, today, today))

	partners, err := NewPartnerRepository(db).QueryPartners(ctx, &partner.QueryFilter{
		Name:       "leuven",
		IsActif:    &yes,
		Today:      today,
		Pagination: core.Pagination{Limit: 10},
	}, []core.DBOrdering{{Field: "country", Ascending: false}})
	require.NoError(t, err)
	require.Len(t, partners, 1)
	assert.Equal(t, "KU Leuven", partners[0].Name)
	assert.Equal(t, []string{}, partners[0].Tags)
}

func TestPartnerRepository_GetEntityUsage(t *testing.T) {
	ctx := context.Background()
	db, mock := newMock(t)
	mock.ExpectQuery("SELECT EXISTS \\(SELECT 1 FROM partnership_partner_relation").
		WithArgs(12, 12).
		WillReturnRows(sqlmock.NewRows([]string{"has_partnerships", "has_children"}).AddRow(true, false))

	usage, err := NewPartnerRepository(db).GetEntityUsage(ctx, 12)
	require.NoError(t, err)
	assert.Equal(t, partner.EntityUsage{HasPartnerships: true}, usage)
}

func TestPartnerRepository_DeleteEntity(t *testing.T) {
	ctx := context.Background()

	t.Run("deletes the contacts", func(t *testing.T) {
		db, mock := newMock(t)
		mock.ExpectBegin()
		mock.ExpectQuery("DELETE FROM partner_entity WHERE id = \\$1 RETURNING contact_in_id, contact_out_id").
			WithArgs(3).
			WillReturnRows(sqlmock.NewRows([]string{"contact_in_id", "contact_out_id"}).AddRow(8, nil))
		mock.ExpectExec("DELETE FROM contact WHERE id IN \\(\\$1\\)").WithArgs(8).WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		assert.NoError(t, NewPartnerRepository(db).DeleteEntity(ctx, 3))
	})

	t.Run("not found", func(t *testing.T) {
		db, mock := newMock(t)
		mock.ExpectBegin()
		mock.ExpectQuery("DELETE FROM partner_entity").
			WillReturnRows(sqlmock.NewRows([]string{"contact_in_id", "contact_out_id"}))
		mock.ExpectRollback()

		assert.Equal(t, partner.ErrEntityNotFound, NewPartnerRepository(db).DeleteEntity(ctx, 3))
	})
}
