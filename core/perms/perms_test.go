package perms

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uclouvain/osis-partnership-sub000/core/user"
)

var (
	adriUsr = user.User{ID: 1, Managers: []user.Manager{
		{EntityID: 2, EntityAcronym: user.ADRIAcronym, Scopes: []string{"GENERAL", "MOBILITY", "COURSE", "DOCTORATE", "PROJECT"}},
	}}
	gfUsr = user.User{ID: 2, Managers: []user.Manager{
		{EntityID: 10, EntityAcronym: "SST", WithChild: true, Scopes: []string{"MOBILITY"}},
	}}
	otherGFUsr = user.User{ID: 3, Managers: []user.Manager{
		{EntityID: 20, EntityAcronym: "SSH", Scopes: []string{"GENERAL"}},
	}}
	viewerUsr = user.User{ID: 4, Roles: []string{user.RoleViewer}}
)

// entity tree: 10 (SST) > 11 (EPL) > 12 (ELEC); 20 (SSH)
func descendants(_ context.Context, id int) ([]int, error) {
	switch id {
	case 10:
		return []int{10, 11, 12}, nil
	case 11:
		return []int{11, 12}, nil
	}
	return []int{id}, nil
}

func resolve(t *testing.T, usr user.User) Subject {
	t.Helper()
	s, err := NewResolver(descendants).Resolve(context.Background(), usr)
	require.NoError(t, err)
	return s
}

func TestResolver_Resolve(t *testing.T) {
	gf := resolve(t, gfUsr)
	assert.ElementsMatch(t, []int{10, 11, 12}, gf.EntityIDs())
	assert.True(t, gf.Manages(12))
	assert.False(t, gf.Manages(20))

	other := resolve(t, otherGFUsr)
	assert.ElementsMatch(t, []int{20}, other.EntityIDs())
	assert.False(t, gf.SharesEntityWith(other))
}

func TestPartnershipRules(t *testing.T) {
	adri, gf, viewer := resolve(t, adriUsr), resolve(t, gfUsr), resolve(t, viewerUsr)

	tests := []struct {
		name string
		got  bool
		want bool
	}{
		{name: "adri adds general", got: CanAddPartnership(adri, "GENERAL"), want: true},
		{name: "gf adds mobility", got: CanAddPartnership(gf, "MOBILITY"), want: true},
		{name: "gf adds general out of scope", got: CanAddPartnership(gf, "GENERAL")},
		{name: "viewer adds", got: CanAddPartnership(viewer, "MOBILITY")},
		{name: "gf changes child entity partnership", got: CanChangePartnership(gf, 12, "MOBILITY"), want: true},
		{name: "gf changes other entity partnership", got: CanChangePartnership(gf, 20, "MOBILITY")},
		{name: "gf changes out of scope partnership", got: CanChangePartnership(gf, 12, "COURSE")},
		{name: "adri changes any entity", got: CanChangePartnership(adri, 20, "COURSE"), want: true},
		{name: "adri deletes without agreements", got: CanDeletePartnership(adri, false), want: true},
		{name: "adri deletes with agreements", got: CanDeletePartnership(adri, true)},
		{name: "gf deletes", got: CanDeletePartnership(gf, false)},
		{name: "viewer accesses", got: CanAccess(viewer), want: true},
		{name: "nobody accesses", got: CanAccess(NewSubject(user.User{}))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.got)
		})
	}
}

func TestAgreementRules(t *testing.T) {
	adri, gf := resolve(t, adriUsr), resolve(t, gfUsr)

	tests := []struct {
		name       string
		s          Subject
		status     string
		entityID   int
		wantChange bool
		wantDelete bool
	}{
		{name: "adri validated", s: adri, status: "VALIDATED", entityID: 20, wantChange: true},
		{name: "adri refused", s: adri, status: "REFUSED", entityID: 20, wantChange: true, wantDelete: true},
		{name: "gf waiting managed", s: gf, status: "WAITING", entityID: 11, wantChange: true, wantDelete: true},
		{name: "gf waiting not managed", s: gf, status: "WAITING", entityID: 20},
		{name: "gf validated managed", s: gf, status: "VALIDATED", entityID: 11},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantChange, CanChangeAgreement(tt.s, tt.status, tt.entityID))
			assert.Equal(t, tt.wantDelete, CanDeleteAgreement(tt.s, tt.status, tt.entityID))
		})
	}
}

func TestPartnerEntityRules(t *testing.T) {
	adri, gf, other := resolve(t, adriUsr), resolve(t, gfUsr), resolve(t, otherGFUsr)
	colleague := resolve(t, user.User{ID: 5, Managers: []user.Manager{{EntityID: 12, Scopes: []string{"MOBILITY"}}}})

	assert.True(t, CanChangePartnerEntity(adri, other))
	assert.True(t, CanChangePartnerEntity(gf, colleague))
	assert.False(t, CanChangePartnerEntity(gf, other))
	assert.True(t, CanDeletePartnerEntity(gf, colleague, false, false))
	assert.False(t, CanDeletePartnerEntity(gf, colleague, true, false))
	assert.False(t, CanDeletePartnerEntity(gf, colleague, false, true))
}

func TestUMERules(t *testing.T) {
	adri, gf, viewer := resolve(t, adriUsr), resolve(t, gfUsr), resolve(t, viewerUsr)

	assert.True(t, CanViewUME(gf))
	assert.False(t, CanViewUME(viewer))
	assert.True(t, CanAddUME(adri))
	assert.False(t, CanAddUME(gf))
	assert.True(t, CanChangeUME(gf, 11))
	assert.False(t, CanChangeUME(gf, 20))
	assert.True(t, CanDeleteUME(adri, false))
	assert.False(t, CanDeleteUME(adri, true))
	assert.False(t, CanDeleteUME(gf, false))
}

func TestScopes(t *testing.T) {
	assert.ElementsMatch(t, []string{"MOBILITY"}, Scopes(resolve(t, gfUsr)))
	assert.Empty(t, Scopes(resolve(t, viewerUsr)))
	assert.False(t, CanAddAnyPartnership(resolve(t, viewerUsr)))
}
