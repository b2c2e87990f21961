package inmemdb

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uclouvain/osis-partnership-sub000/core/entity"
	"github.com/uclouvain/osis-partnership-sub000/core/user"
	"github.com/uclouvain/osis-partnership-sub000/testutil"
)

func TestUserRepository(t *testing.T) {
	ctx := context.Background()
	db := Open()
	entities := NewEntityRepository(db)
	users := NewUserRepository(db)

	adri, err := entities.CreateEntity(ctx, entity.Entity{Acronym: "ADRI"})
	require.NoError(t, err)
	jdoe := testutil.CreateUser(t, users, "jdoe", "jdoe@uclouvain.be", "", nil, true)
	testutil.CreateUser(t, users, "asmith", "asmith@uclouvain.be", "", []string{user.RoleViewer}, false)

	t.Run("uniqueness", func(t *testing.T) {
		assert.Equal(t, user.ErrUserExists, users.CheckUniqueness(ctx, "jdoe", "", nil))
		assert.Equal(t, user.ErrUserExists, users.CheckUniqueness(ctx, "", "jdoe@uclouvain.be", nil))
		assert.NoError(t, users.CheckUniqueness(ctx, "jdoe", "jdoe@uclouvain.be", []user.User{jdoe}))
	})

	t.Run("managers", func(t *testing.T) {
		mgr, err := users.SetManager(ctx, jdoe.ID, user.Manager{EntityID: adri.ID, Scopes: []string{"MOBILITY"}})
		require.NoError(t, err)
		assert.Equal(t, "ADRI", mgr.EntityAcronym)

		usr, err := users.GetUser(ctx, user.GetFilter{UsernameOrEmail: "jdoe@uclouvain.be"})
		require.NoError(t, err)
		assert.True(t, usr.IsADRI())

		require.NoError(t, users.RemoveManager(ctx, jdoe.ID, adri.ID))
		assert.Equal(t, user.ErrNotFound, users.RemoveManager(ctx, jdoe.ID, adri.ID))
	})

	t.Run("query", func(t *testing.T) {
		active := true
		got, err := users.QueryUsers(ctx, &user.QueryFilter{IsActive: &active}, nil)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "jdoe", got[0].Username)
	})

	t.Run("not found", func(t *testing.T) {
		_, err := users.GetUser(ctx, user.GetFilter{ID: 99})
		assert.Equal(t, user.ErrNotFound, err)
	})
}

func TestEntityRepository_Tree(t *testing.T) {
	ctx := context.Background()
	repo := NewEntityRepository(Open())

	sst, _ := repo.CreateEntity(ctx, entity.Entity{Acronym: "SST", Type: entity.TypeSector})
	epl, _ := repo.CreateEntity(ctx, entity.Entity{Acronym: "EPL", Type: entity.TypeFaculty, ParentID: &sst.ID})
	elec, _ := repo.CreateEntity(ctx, entity.Entity{Acronym: "ELEC", Type: entity.TypeSchool, ParentID: &epl.ID})

	chain, err := repo.Ancestors(ctx, elec.ID)
	require.NoError(t, err)
	require.Len(t, chain, 3)
	assert.Equal(t, "SST", chain[0].Acronym)

	ids, err := repo.Descendants(ctx, sst.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []int{sst.ID, epl.ID, elec.ID}, ids)

	_, err = repo.Descendants(ctx, 42)
	assert.Equal(t, entity.ErrNotFound, err)
}
