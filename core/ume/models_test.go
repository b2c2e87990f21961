package ume

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUME(t *testing.T) {
	labo := 12
	facultyUME := UME{FacultyID: 11, FacultyAcronym: "EPL"}
	laboUME := UME{FacultyID: 11, FacultyAcronym: "EPL", EntityID: &labo, EntityAcronym: "INMA", ContactOutURL: "https://uclouvain.be"}

	assert.Equal(t, 11, facultyUME.ManagedEntityID())
	assert.Equal(t, 12, laboUME.ManagedEntityID())
	assert.Equal(t, "EPL", facultyUME.String())
	assert.Equal(t, "EPL INMA", laboUME.String())
	assert.False(t, facultyUME.IsContactOutDefined())
	assert.True(t, laboUME.IsContactOutDefined())
	assert.False(t, laboUME.IsContactInDefined())
}

func TestQueryFilter_Match(t *testing.T) {
	labo := 12
	u := UME{FacultyID: 11, EntityID: &labo}

	tests := []struct {
		name   string
		filter *QueryFilter
		want   bool
	}{
		{name: "nil", want: true},
		{name: "faculty", filter: &QueryFilter{FacultyID: 11}, want: true},
		{name: "other faculty", filter: &QueryFilter{FacultyID: 20}},
		{name: "entity", filter: &QueryFilter{EntityID: 12}, want: true},
		{name: "managed faculty", filter: &QueryFilter{EntityIDs: []int{11}}, want: true},
		{name: "managed entity", filter: &QueryFilter{EntityIDs: []int{12}}, want: true},
		{name: "not managed", filter: &QueryFilter{EntityIDs: []int{20}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.filter.Match(u))
		})
	}
}
