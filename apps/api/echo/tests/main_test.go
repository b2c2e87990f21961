package tests

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"io/ioutil"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	. "github.com/uclouvain/osis-partnership-sub000/apps/api/echo"
	"github.com/uclouvain/osis-partnership-sub000/apps/shared"
	"github.com/uclouvain/osis-partnership-sub000/core"
	"github.com/uclouvain/osis-partnership-sub000/core/configuration"
	"github.com/uclouvain/osis-partnership-sub000/core/contact"
	"github.com/uclouvain/osis-partnership-sub000/core/entity"
	"github.com/uclouvain/osis-partnership-sub000/core/funding"
	"github.com/uclouvain/osis-partnership-sub000/core/media"
	"github.com/uclouvain/osis-partnership-sub000/core/partner"
	"github.com/uclouvain/osis-partnership-sub000/core/partnership"
	"github.com/uclouvain/osis-partnership-sub000/core/perms"
	"github.com/uclouvain/osis-partnership-sub000/core/portal"
	"github.com/uclouvain/osis-partnership-sub000/core/reference"
	"github.com/uclouvain/osis-partnership-sub000/core/ume"
	"github.com/uclouvain/osis-partnership-sub000/core/user"
	"github.com/uclouvain/osis-partnership-sub000/services/cache"
	"github.com/uclouvain/osis-partnership-sub000/services/email"
	"github.com/uclouvain/osis-partnership-sub000/storage/database/inmem"
	"github.com/uclouvain/osis-partnership-sub000/testutil"
)

const testPassword = "s3cret-Passw0rd"

var errMissingToken = httpErr{Error: "missing or malformed jwt"}

// env is a server over in-memory users and entities; the other services are fakes.
type env struct {
	conf     *core.Config
	server   *Server
	usrRepo  user.Repository
	cache    *cachesvc.MemoryCache
	mailSvc  *emailsvc.ServiceMock
	portal   *portalSvc
	partners *partnerSvc
	medias   *mediaSvc
	fundings *fundingSvc

	adri, manager, viewer, nobody, inactive user.User
	epl                                     entity.Entity
}

func setup(t *testing.T) *env {
	ctx := context.Background()
	conf := core.NewTestConfig()
	logger := new(testutil.Logger)
	translator := shared.NewTranslator()
	core.ParseEmailTemplates(conf, logger)

	db := inmemdb.Open()
	usrRepo := inmemdb.NewUserRepository(db)
	entityRepo := inmemdb.NewEntityRepository(db)

	mailSvc := emailsvc.NewServiceMock(conf, logger)
	entitySvc := entity.NewService(entityRepo)
	e := &env{
		conf:     conf,
		usrRepo:  usrRepo,
		cache:    cachesvc.NewMemoryCache(),
		mailSvc:  mailSvc,
		portal:   new(portalSvc),
		partners: newPartnerSvc(),
		medias:   newMediaSvc(),
		fundings: newFundingSvc(),
	}

	// entities: UCL > ADRI, UCL > SST > EPL
	ucl, err := entityRepo.CreateEntity(ctx, entity.Entity{Acronym: "UCL", Type: entity.TypeSector})
	require.NoError(t, err)
	adri, err := entityRepo.CreateEntity(ctx, entity.Entity{Acronym: user.ADRIAcronym, ParentID: &ucl.ID})
	require.NoError(t, err)
	sst, err := entityRepo.CreateEntity(ctx, entity.Entity{Acronym: "SST", Type: entity.TypeSector, ParentID: &ucl.ID})
	require.NoError(t, err)
	e.epl, err = entityRepo.CreateEntity(ctx, entity.Entity{Acronym: "EPL", Type: entity.TypeFaculty, ParentID: &sst.ID})
	require.NoError(t, err)

	// users
	e.adri = testutil.CreateUser(t, usrRepo, "adri", "adri@uclouvain.be", testPassword, nil, true)
	e.manager = testutil.CreateUser(t, usrRepo, "manager", "manager@uclouvain.be", testPassword, nil, true)
	e.viewer = testutil.CreateUser(t, usrRepo, "viewer", "viewer@uclouvain.be", testPassword, []string{user.RoleViewer}, true)
	e.nobody = testutil.CreateUser(t, usrRepo, "nobody", "nobody@uclouvain.be", testPassword, nil, true)
	e.inactive = testutil.CreateUser(t, usrRepo, "inactive", "inactive@uclouvain.be", testPassword, []string{user.RoleViewer}, false)

	_, err = usrRepo.SetManager(ctx, e.adri.ID, user.Manager{EntityID: adri.ID, Scopes: []string{"MOBILITY", "COURSE"}})
	require.NoError(t, err)
	_, err = usrRepo.SetManager(ctx, e.manager.ID, user.Manager{EntityID: e.epl.ID, Scopes: []string{"MOBILITY"}})
	require.NoError(t, err)
	e.adri, err = usrRepo.GetUser(ctx, user.GetFilter{ID: e.adri.ID})
	require.NoError(t, err)
	e.manager, err = usrRepo.GetUser(ctx, user.GetFilter{ID: e.manager.ID})
	require.NoError(t, err)

	e.server = NewServer(ServerDeps{
		Conf:       conf,
		Logger:     logger,
		Cache:      e.cache,
		Validate:   shared.NewValidator(translator),
		Translator: translator,
		Resolver:   perms.NewResolver(entitySvc.Descendants),

		UserSvc:        user.NewService(usrRepo, mailSvc, conf),
		ConfSvc:        configuration.NewService(&confRepo{conf: configuration.Default()}),
		EntitySvc:      entitySvc,
		RefSvc:         &referenceSvc{},
		PartnerSvc:     e.partners,
		PartnershipSvc: &partnershipSvc{},
		MediaSvc:       e.medias,
		UMESvc:         &umeSvc{},
		FundingSvc:     e.fundings,
		PortalSvc:      e.portal,
	})
	t.Cleanup(func() { _ = e.server.Close() })
	return e
}

// Fakes; unexpected calls panic on the nil embedded service.

type (
	referenceSvc   struct{ reference.Service }
	partnershipSvc struct{ partnership.Service }
	umeSvc         struct{ ume.Service }
)

type confRepo struct {
	mu   sync.Mutex
	conf configuration.Configuration
}

func (r *confRepo) GetConfiguration(context.Context, ...core.DBExecutor) (configuration.Configuration, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.conf, nil
}

func (r *confRepo) SaveConfiguration(_ context.Context, conf configuration.Configuration, _ ...core.DBExecutor) (configuration.Configuration, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conf = conf
	return conf, nil
}

type partnerSvc struct {
	partner.Service
	partners map[int]partner.Partner
	entities map[int][]partner.Entity
}

func newPartnerSvc() *partnerSvc {
	belgium, france := 1, 2
	return &partnerSvc{
		partners: map[int]partner.Partner{
			1: {ID: 1, Name: "KU Leuven", Address: contact.Address{City: "Leuven", CountryID: &belgium}},
			2: {ID: 2, Name: "Université de Lyon", Address: contact.Address{City: "Lyon", CountryID: &france}},
			3: {ID: 3, Name: "Universiteit Gent", Address: contact.Address{City: "Gent", CountryID: &belgium}},
			4: {ID: 4, Name: "Université Lumière Lyon 2", Address: contact.Address{City: "Lyon", CountryID: &france}},
		},
		entities: map[int][]partner.Entity{
			2: {
				{ID: 20, PartnerID: 2, Name: "Université de Lyon"},
				{ID: 21, PartnerID: 2, Name: "Faculté de droit"},
				{ID: 22, PartnerID: 2, Name: "Faculté des sciences"},
			},
		},
	}
}

func (svc *partnerSvc) Query(_ context.Context, filter *partner.QueryFilter, _ []core.DBOrdering) ([]partner.Partner, error) {
	var partners []partner.Partner
	for id := 1; id <= len(svc.partners); id++ {
		p := svc.partners[id]
		if filter.Name != "" && !strings.Contains(strings.ToLower(p.Name), strings.ToLower(filter.Name)) {
			continue
		}
		if filter.CountryID != 0 && (p.Address.CountryID == nil || *p.Address.CountryID != filter.CountryID) {
			continue
		}
		partners = append(partners, p)
	}
	return partners, nil
}

func (svc *partnerSvc) Entities(_ context.Context, partnerID int) ([]partner.Entity, error) {
	return svc.entities[partnerID], nil
}

func (svc *partnerSvc) Get(_ context.Context, id int) (partner.Partner, error) {
	p, ok := svc.partners[id]
	if !ok {
		return partner.Partner{}, partner.ErrNotFound
	}
	return p, nil
}

// fundingSvc serves 15 sources, 5 programs and 3 types, the last one inactive.
type fundingSvc struct {
	funding.Service
	sources  []funding.Source
	programs []funding.Program
	types    []funding.Type
}

func newFundingSvc() *fundingSvc {
	svc := &fundingSvc{
		sources:  []funding.Source{{ID: 1, Name: "Erasmus+"}},
		programs: []funding.Program{{ID: 1, Name: "Erasmus KA1", SourceID: 1}},
		types: []funding.Type{
			{ID: 1, Name: "Erasmus KA131", ProgramID: 1, IsActive: true},
			{ID: 2, Name: "Mobilité Belgica", ProgramID: 2, IsActive: true},
			{ID: 3, Name: "Erasmus Mundus", ProgramID: 1},
		},
	}
	for id := 2; id <= 15; id++ {
		svc.sources = append(svc.sources, funding.Source{ID: id, Name: fmt.Sprintf("Source %02d", id)})
	}
	for id := 2; id <= 5; id++ {
		svc.programs = append(svc.programs, funding.Program{ID: id, Name: fmt.Sprintf("Program %02d", id), SourceID: id})
	}
	return svc
}

func matchFunding(filter *funding.Filter, name string) bool {
	return filter.Search == "" || strings.Contains(strings.ToLower(name), strings.ToLower(filter.Search))
}

func (svc *fundingSvc) Sources(_ context.Context, filter *funding.Filter) ([]funding.Source, error) {
	var sources []funding.Source
	for _, s := range svc.sources {
		if matchFunding(filter, s.Name) {
			sources = append(sources, s)
		}
	}
	return sources, nil
}

func (svc *fundingSvc) Programs(_ context.Context, filter *funding.Filter) ([]funding.Program, error) {
	var programs []funding.Program
	for _, p := range svc.programs {
		if matchFunding(filter, p.Name) {
			programs = append(programs, p)
		}
	}
	return programs, nil
}

func (svc *fundingSvc) Types(_ context.Context, filter *funding.Filter) ([]funding.Type, error) {
	var types []funding.Type
	for _, t := range svc.types {
		if matchFunding(filter, t.Name) && (t.IsActive || !filter.ActiveOnly) {
			types = append(types, t)
		}
	}
	return types, nil
}

// portalSvc counts the calls reaching it, i.e. the cache misses.
type portalSvc struct {
	portal.Service
	calls int32
}

func (svc *portalSvc) Calls() int {
	return int(atomic.LoadInt32(&svc.calls))
}

func (svc *portalSvc) Configuration(context.Context) (portal.Configuration, error) {
	atomic.AddInt32(&svc.calls, 1)
	return portal.Configuration{Tags: []string{"erasmus"}}, nil
}

func (svc *portalSvc) Partnership(_ context.Context, uid string) (portal.Partnership, error) {
	atomic.AddInt32(&svc.calls, 1)
	return portal.Partnership{}, portal.ErrNotFound
}

type mediaSvc struct {
	media.Service
	medias map[string]media.Media
}

func newMediaSvc() *mediaSvc {
	return &mediaSvc{medias: map[string]media.Media{
		"public": {ID: 1, UUID: "public", FileKey: "medias/public.pdf", FileName: "public.pdf",
			ContentType: "application/pdf", Visibility: media.VisibilityPublic},
		"staff": {ID: 2, UUID: "staff", FileKey: "medias/staff.pdf", FileName: "staff.pdf",
			ContentType: "application/pdf", Visibility: media.VisibilityStaff},
		"link": {ID: 3, UUID: "link", URL: "https://uclouvain.be", Visibility: media.VisibilityPublic},
		"student": {ID: 4, UUID: "student", FileKey: "medias/student.pdf", FileName: "student.pdf",
			ContentType: "application/pdf", Visibility: media.VisibilityStaffStudent},
	}}
}

func (svc *mediaSvc) GetByUUID(_ context.Context, uid string) (media.Media, error) {
	m, ok := svc.medias[uid]
	if !ok {
		return media.Media{}, media.ErrNotFound
	}
	return m, nil
}

func (svc *mediaSvc) Open(_ context.Context, m media.Media) (io.ReadCloser, error) {
	return ioutil.NopCloser(strings.NewReader("content of " + m.FileName)), nil
}

// HTTP helpers

type httpErr struct {
	Error string `json:"error"`
}

type httpTest struct {
	name     string
	method   string
	path     string
	body     []byte
	token    string
	wantCode int
	wantData []byte
}

func newAuthRequest(method, path, token string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	return req, rec
}

func newRequest(method, path string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	return newAuthRequest(method, path, "", data...)
}

func (e *env) do(tt httpTest) *httptest.ResponseRecorder {
	method := tt.method
	if method == "" {
		method = http.MethodGet
	}
	req, rec := newAuthRequest(method, tt.path, tt.token, tt.body)
	e.server.ServeHTTP(rec, req)
	return rec
}

func (e *env) getToken(t *testing.T, usr user.User) string {
	token, err := e.server.GenerateToken(GetUserClaims(e.conf, usr))
	if err != nil {
		t.Fatalf("getToken(): %v", err)
	}
	return token
}

func marchallObj(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marchallObj(): %v", err)
	}
	return data
}

func jsonBytesEqual(b1, b2 []byte) (bool, error) {
	var j1, j2 interface{}
	if err := json.Unmarshal(b1, &j1); err != nil {
		return false, err
	}
	if err := json.Unmarshal(b2, &j2); err != nil {
		return false, err
	}
	return reflect.DeepEqual(j1, j2), nil
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	if rec.Code != tt.wantCode {
		t.Errorf("failed! code = %v; wantCode %v (body %s)", rec.Code, tt.wantCode, rec.Body.String())
	}
	if tt.wantData == nil {
		return
	}
	ok, err := jsonBytesEqual(rec.Body.Bytes(), tt.wantData)
	if err != nil {
		t.Errorf("jsonBytesEqual() failed to compare; err %v", err)
	}
	if !ok {
		t.Errorf("failed! data = %v; wantData %v", rec.Body.String(), string(tt.wantData))
	}
}
