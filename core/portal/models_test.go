package portal

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/uclouvain/osis-partnership-sub000/core"
	"github.com/uclouvain/osis-partnership-sub000/core/partnership"
	"github.com/uclouvain/osis-partnership-sub000/core/ptype"
)

func TestStatusOf(t *testing.T) {
	today := core.Date(2025, time.June, 1)
	withEnd := func(typ string, end time.Time) partnership.Partnership {
		return partnership.Partnership{
			Type:      typ,
			StartDate: date(2015, time.January, 1),
			EndDate:   &end,
			Years:     []partnership.Year{{AcademicYear: 2018}, {AcademicYear: 2019}},
			Agreements: []partnership.Agreement{
				{StartAcademicYear: 2018, EndAcademicYear: 2019, EndDate: &end, Status: partnership.StatusValidated},
			},
		}
	}

	tests := []struct {
		name string
		p    partnership.Partnership
		want Status
	}{
		{
			name: "ongoing general",
			p:    withEnd(ptype.General, core.Date(2026, time.January, 1)),
			want: Status{Status: StatusOngoing, StartDate: "01/01/2015", EndDate: "01/01/2026"},
		},
		{
			name: "finished general",
			p:    withEnd(ptype.General, core.Date(2022, time.January, 1)),
			want: Status{Status: StatusFinished, StartDate: "01/01/2015", EndDate: "01/01/2022"},
		},
		{
			name: "archived course",
			p:    withEnd(ptype.Course, core.Date(2019, time.January, 1)),
			want: Status{Status: StatusArchived, StartDate: "2018-19", EndDate: "2019-20"},
		},
		{
			name: "mobility without validated agreement",
			p:    partnership.Partnership{Type: ptype.Mobility},
			want: Status{Status: partnership.StatusValidated},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, statusOf(tt.p, 2024, today))
		})
	}
}

func TestTypeOrder(t *testing.T) {
	assert.Equal(t, "a-student-staff", typeOrder(partnership.Year{IsSMP: true, IsSTT: true}))
	assert.Equal(t, "b-student", typeOrder(partnership.Year{IsSMST: true}))
	assert.Equal(t, "c-staff", typeOrder(partnership.Year{IsSTA: true}))
	assert.Equal(t, "d-none", typeOrder(partnership.Year{}))
}

func TestFilter_Clean(t *testing.T) {
	f := &Filter{Country: " be ", Partner: " ABC-1 ", Type: "mobility", Ordering: " -city "}
	f.Clean()
	assert.Equal(t, "be", f.Country)
	assert.Equal(t, "abc-1", f.Partner)
	assert.Equal(t, ptype.Mobility, f.Type)
	assert.Equal(t, "-city", f.Ordering)

	var nilFilter *Filter
	assert.NotPanics(t, nilFilter.Clean)
}

func TestPaginate(t *testing.T) {
	items := []Partnership{{UUID: "a"}, {UUID: "b"}, {UUID: "c"}}

	assert.Len(t, paginate(items, core.Pagination{}), 3)
	assert.Equal(t, []Partnership{{UUID: "b"}}, paginate(items, core.Pagination{Limit: 1, Offset: 1}))
	assert.Equal(t, []Partnership{{UUID: "c"}}, paginate(items, core.Pagination{Offset: 2}))
	assert.Empty(t, paginate(items, core.Pagination{Offset: 5}))
}

func TestSortPartners(t *testing.T) {
	items := []PartnerItem{{Name: "b", City: "Zurich"}, {Name: "A", City: "lyon"}, {Name: "c", City: "Bruxelles"}}

	sortPartners(items, "")
	assert.Equal(t, []string{"A", "b", "c"}, []string{items[0].Name, items[1].Name, items[2].Name})

	sortPartners(items, "-city")
	assert.Equal(t, []string{"b", "A", "c"}, []string{items[0].Name, items[1].Name, items[2].Name})
}
