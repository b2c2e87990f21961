package academic

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestYear_String(t *testing.T) {
	assert.Equal(t, "2023-24", Year(2023).String())
	assert.Equal(t, "2099-00", Year(2099).String())
}

func TestContaining(t *testing.T) {
	tests := []struct {
		name string
		date time.Time
		want Year
	}{
		{name: "first day", date: time.Date(2023, 9, 15, 0, 0, 0, 0, time.UTC), want: 2023},
		{name: "day before start", date: time.Date(2023, 9, 14, 23, 0, 0, 0, time.UTC), want: 2022},
		{name: "january", date: time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC), want: 2023},
		{name: "december", date: time.Date(2023, 12, 31, 0, 0, 0, 0, time.UTC), want: 2023},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Containing(tt.date))
		})
	}
}

func TestRange(t *testing.T) {
	assert.Equal(t, []Year{2020, 2021, 2022}, Range(2020, 2022))
	assert.Equal(t, []Year{2020}, Range(2020, 2020))
	assert.Nil(t, Range(2022, 2020))
}

func TestMergeSpans(t *testing.T) {
	tests := []struct {
		name  string
		spans []Span
		want  []Span
	}{
		{name: "empty", spans: nil, want: nil},
		{name: "single", spans: []Span{{2010, 2012}}, want: []Span{{2010, 2012}}},
		{
			name:  "several included",
			spans: []Span{{2010, 2012}, {2012, 2015}, {2014, 2016}},
			want:  []Span{{2010, 2016}},
		},
		{
			name:  "separated",
			spans: []Span{{2010, 2012}, {2014, 2015}, {2017, 2018}},
			want:  []Span{{2010, 2012}, {2014, 2015}, {2017, 2018}},
		},
		{
			name:  "mixed",
			spans: []Span{{2010, 2012}, {2014, 2017}, {2016, 2018}},
			want:  []Span{{2010, 2012}, {2014, 2018}},
		},
		{
			name:  "range in range",
			spans: []Span{{2010, 2020}, {2013, 2017}, {2016, 2018}},
			want:  []Span{{2010, 2020}},
		},
		{
			name:  "same ranges",
			spans: []Span{{2010, 2013}, {2010, 2013}, {2015, 2016}, {2015, 2017}},
			want:  []Span{{2010, 2013}, {2015, 2017}},
		},
		{
			name:  "adjacent",
			spans: []Span{{2013, 2014}, {2010, 2012}},
			want:  []Span{{2010, 2014}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MergeSpans(tt.spans))
		})
	}
}
