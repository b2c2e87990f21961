package tests

import (
	"encoding/json"
	"net/http"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	. "github.com/uclouvain/osis-partnership-sub000/apps/api/echo"
)

func Test_autocompleteApi(t *testing.T) {
	e := setup(t)
	token := e.getToken(t, e.viewer)
	eplID := strconv.Itoa(e.epl.ID)
	none := marchallObj(t, []AutocompleteItem{})

	tests := []httpTest{
		{name: "auth required", path: "/v1/autocomplete/partners", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{name: "no role", path: "/v1/autocomplete/partners", token: e.getToken(t, e.nobody), wantCode: http.StatusForbidden},
		{
			name: "partners", path: "/v1/autocomplete/partners?q=univ", token: token, wantCode: http.StatusOK,
			wantData: marchallObj(t, []AutocompleteItem{
				{ID: "2", Text: "Université de Lyon"},
				{ID: "3", Text: "Universiteit Gent"},
				{ID: "4", Text: "Université Lumière Lyon 2"},
			}),
		},
		{
			name: "partner entities", path: "/v1/autocomplete/partner-entities?partner=2&q=FAC", token: token, wantCode: http.StatusOK,
			wantData: marchallObj(t, []AutocompleteItem{{ID: "21", Text: "Faculté de droit"}, {ID: "22", Text: "Faculté des sciences"}}),
		},
		{name: "partner entities: no partner", path: "/v1/autocomplete/partner-entities?q=fac", token: token, wantCode: http.StatusOK, wantData: none},
		{
			name: "ucl entities are labelled with their path", path: "/v1/autocomplete/ucl-entities?q=epl", token: token, wantCode: http.StatusOK,
			wantData: marchallObj(t, []AutocompleteItem{{ID: eplID, Text: "SST / EPL"}}),
		},
		{
			name: "years entities", path: "/v1/autocomplete/years-entities?ucl_entity=" + eplID, token: token, wantCode: http.StatusOK,
			wantData: marchallObj(t, []AutocompleteItem{{ID: eplID, Text: "SST / EPL"}}),
		},
		{name: "years entities: outside any faculty", path: "/v1/autocomplete/years-entities?ucl_entity=1", token: token, wantCode: http.StatusOK, wantData: none},
		{
			name: "persons", path: "/v1/autocomplete/persons?q=man", token: token, wantCode: http.StatusOK,
			wantData: marchallObj(t, []AutocompleteItem{{ID: strconv.Itoa(e.manager.ID), Text: "MANAGER, manager"}}),
		},
		{name: "persons: inactive excluded", path: "/v1/autocomplete/persons?q=inactive", token: token, wantCode: http.StatusOK, wantData: none},
		{
			name: "fundings are prefixed with their kind", path: "/v1/autocomplete/fundings?q=eras", token: token, wantCode: http.StatusOK,
			wantData: marchallObj(t, []AutocompleteItem{
				{ID: "source-1", Text: "Erasmus+"},
				{ID: "program-1", Text: "Erasmus KA1"},
				{ID: "type-1", Text: "Erasmus KA131"},
			}),
		},
		{
			name: "cities", path: "/v1/autocomplete/cities", token: token, wantCode: http.StatusOK,
			wantData: marchallObj(t, []AutocompleteItem{{ID: "Gent", Text: "Gent"}, {ID: "Leuven", Text: "Leuven"}, {ID: "Lyon", Text: "Lyon"}}),
		},
		{
			name: "cities of a country", path: "/v1/autocomplete/cities?country=2", token: token, wantCode: http.StatusOK,
			wantData: marchallObj(t, []AutocompleteItem{{ID: "Lyon", Text: "Lyon"}}),
		},
		{
			name: "cities search", path: "/v1/autocomplete/cities?q=LE", token: token, wantCode: http.StatusOK,
			wantData: marchallObj(t, []AutocompleteItem{{ID: "Leuven", Text: "Leuven"}}),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			checkCodeAndData(t, tt, e.do(tt))
		})
	}
}

func Test_autocompleteApi_limit(t *testing.T) {
	e := setup(t)

	rec := e.do(httpTest{path: "/v1/autocomplete/fundings", token: e.getToken(t, e.manager)})
	require.Equal(t, http.StatusOK, rec.Code)

	var items []AutocompleteItem
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &items))
	require.Len(t, items, 20)
	assert.Equal(t, "source-1", items[0].ID)
	assert.Equal(t, "program-5", items[19].ID)
}
