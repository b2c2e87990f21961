package user

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUser_Roles(t *testing.T) {
	adri := User{Managers: []Manager{{EntityID: 2, EntityAcronym: ADRIAcronym, Scopes: []string{"MOBILITY"}}}}
	gf := User{Managers: []Manager{{EntityID: 5, EntityAcronym: "EPL", Scopes: []string{"GENERAL", "COURSE"}}}}
	viewer := User{Roles: []string{RoleViewer}}
	nobody := User{}

	tests := []struct {
		name          string
		usr           User
		wantADRI      bool
		wantGF        bool
		wantAccess    bool
		wantMobScope  bool
		wantCrseScope bool
	}{
		{name: "adri", usr: adri, wantADRI: true, wantGF: true, wantAccess: true, wantMobScope: true},
		{name: "faculty manager", usr: gf, wantGF: true, wantAccess: true, wantCrseScope: true},
		{name: "viewer", usr: viewer, wantAccess: true},
		{name: "nobody", usr: nobody},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantADRI, tt.usr.IsADRI())
			assert.Equal(t, tt.wantGF, tt.usr.IsFacultyManager())
			assert.Equal(t, tt.wantAccess, tt.usr.CanAccess())
			assert.Equal(t, tt.wantMobScope, tt.usr.HasScope("MOBILITY"))
			assert.Equal(t, tt.wantCrseScope, tt.usr.HasScope("COURSE"))
		})
	}
}

func TestUser_FullName(t *testing.T) {
	tests := []struct {
		usr  User
		want string
	}{
		{usr: User{FirstName: "Jane", LastName: "Doe", Username: "jdoe"}, want: "DOE, Jane"},
		{usr: User{LastName: "Doe", Username: "jdoe"}, want: "DOE"},
		{usr: User{FirstName: "Jane", Username: "jdoe"}, want: "Jane"},
		{usr: User{Username: "jdoe"}, want: "jdoe"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.usr.FullName())
		})
	}
}

func TestUser_CheckPassword(t *testing.T) {
	var usr User
	assert.NoError(t, usr.SetPassword("Tr0ub4dor&3x"))
	assert.NoError(t, usr.CheckPassword("Tr0ub4dor&3x"))
	assert.Error(t, usr.CheckPassword("tr0ub4dor&3x"))
}

func TestQueryFilter_Match(t *testing.T) {
	active, inactive := true, false
	usr := User{ID: 3, Username: "jdoe", Email: "jane.doe@uclouvain.be", FirstName: "Jane", LastName: "Doe", IsActive: true}

	tests := []struct {
		name   string
		filter *QueryFilter
		want   bool
	}{
		{name: "nil", want: true},
		{name: "search last name", filter: &QueryFilter{Search: "DOE"}, want: true},
		{name: "search miss", filter: &QueryFilter{Search: "smith"}},
		{name: "ids", filter: &QueryFilter{IDs: []int{1, 3}}, want: true},
		{name: "ids miss", filter: &QueryFilter{IDs: []int{1}}},
		{name: "active", filter: &QueryFilter{IsActive: &active}, want: true},
		{name: "inactive", filter: &QueryFilter{IsActive: &inactive}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.filter.Match(usr))
		})
	}
}
