package entity_test

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uclouvain/osis-partnership-sub000/core"
	"github.com/uclouvain/osis-partnership-sub000/core/entity"
	inmemdb "github.com/uclouvain/osis-partnership-sub000/storage/database/inmem"
)

type tree struct {
	ucl, sst, epl, elec entity.Entity
}

func newTestService(t *testing.T) (entity.Service, tree) {
	t.Helper()
	ctx := context.Background()
	svc := entity.NewService(inmemdb.NewEntityRepository(inmemdb.Open()))

	var (
		tr  tree
		err error
	)
	tr.ucl, err = svc.Create(ctx, entity.NewEntity{Acronym: "UCL"})
	require.NoError(t, err)
	tr.sst, err = svc.Create(ctx, entity.NewEntity{Acronym: "SST", Type: entity.TypeSector, ParentID: &tr.ucl.ID})
	require.NoError(t, err)
	tr.epl, err = svc.Create(ctx, entity.NewEntity{Acronym: "EPL", Type: entity.TypeFaculty, ParentID: &tr.sst.ID})
	require.NoError(t, err)
	tr.elec, err = svc.Create(ctx, entity.NewEntity{Acronym: "ELEC", Type: entity.TypeSchool, ParentID: &tr.epl.ID})
	require.NoError(t, err)
	return svc, tr
}

func TestService_Create(t *testing.T) {
	svc, tr := newTestService(t)
	assert.NotEmpty(t, tr.ucl.UUID)
	assert.False(t, tr.ucl.StartDate.IsZero(), "start defaults to today")

	unknown := 404
	_, err := svc.Create(context.Background(), entity.NewEntity{Acronym: "X", ParentID: &unknown})
	var vErr *core.ValidationError
	require.True(t, errors.As(err, &vErr))
	assert.Equal(t, "parent_id", vErr.Fields[0].Field)
}

func TestService_Faculty(t *testing.T) {
	svc, tr := newTestService(t)
	ctx := context.Background()

	tests := []struct {
		name    string
		id      int
		want    string
		wantErr error
	}{
		{name: "below a faculty", id: tr.elec.ID, want: "EPL"},
		{name: "faculty itself", id: tr.epl.ID, want: "EPL"},
		{name: "above any faculty", id: tr.sst.ID, wantErr: entity.ErrNotFound},
		{name: "unknown entity", id: 404, wantErr: entity.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fac, err := svc.Faculty(ctx, tt.id)
			if tt.wantErr != nil {
				assert.Equal(t, tt.wantErr, errors.Cause(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, fac.Acronym)
		})
	}
}

func TestService_AcronymPath(t *testing.T) {
	svc, tr := newTestService(t)
	ctx := context.Background()

	path, err := svc.AcronymPath(ctx, tr.elec.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"UCL", "SST", "EPL", "ELEC"}, path)

	path, err = svc.AcronymPath(ctx, tr.ucl.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"UCL"}, path)

	_, err = svc.AcronymPath(ctx, 404)
	assert.Equal(t, entity.ErrNotFound, errors.Cause(err))
}

func TestService_IsDescendant(t *testing.T) {
	svc, tr := newTestService(t)
	ctx := context.Background()

	ok, err := svc.IsDescendant(ctx, tr.sst.ID, tr.elec.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = svc.IsDescendant(ctx, tr.epl.ID, tr.epl.ID)
	require.NoError(t, err)
	assert.True(t, ok, "an entity is its own descendant")

	ok, err = svc.IsDescendant(ctx, tr.elec.ID, tr.sst.ID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestService_GetByUUID(t *testing.T) {
	svc, tr := newTestService(t)
	ctx := context.Background()

	got, err := svc.GetByUUID(ctx, tr.epl.UUID)
	require.NoError(t, err)
	assert.Equal(t, tr.epl.ID, got.ID)

	_, err = svc.GetByUUID(ctx, "not-a-uuid")
	assert.Equal(t, entity.ErrNotFound, err)
}
