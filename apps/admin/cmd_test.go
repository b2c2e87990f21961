package main

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uclouvain/osis-partnership-sub000/apps"
	"github.com/uclouvain/osis-partnership-sub000/apps/shared"
	"github.com/uclouvain/osis-partnership-sub000/core"
	"github.com/uclouvain/osis-partnership-sub000/core/entity"
	"github.com/uclouvain/osis-partnership-sub000/core/reference"
	"github.com/uclouvain/osis-partnership-sub000/core/user"
	cachesvc "github.com/uclouvain/osis-partnership-sub000/services/cache"
	emailsvc "github.com/uclouvain/osis-partnership-sub000/services/email"
	inmemdb "github.com/uclouvain/osis-partnership-sub000/storage/database/inmem"
	"github.com/uclouvain/osis-partnership-sub000/testutil"
)

const testPassword = "s3cret-Passw0rd"

type env struct {
	cli     *commandLine
	usrRepo user.Repository
	refSvc  *refSvc
	cache   *cachesvc.MemoryCache
	out     *bytes.Buffer
}

// refSvc records the created reference data; other calls panic on the nil embedded service.
type refSvc struct {
	reference.Service
	countries []reference.NewCountry
	fields    []reference.NewEducationField
	offers    []reference.NewOffer
}

func (svc *refSvc) CreateCountry(_ context.Context, nc reference.NewCountry) (reference.Country, error) {
	svc.countries = append(svc.countries, nc)
	return reference.Country{ID: len(svc.countries), ISOCode: nc.ISOCode, Name: nc.Name}, nil
}

func (svc *refSvc) CreateEducationField(_ context.Context, nf reference.NewEducationField) (reference.EducationField, error) {
	svc.fields = append(svc.fields, nf)
	return reference.EducationField{ID: len(svc.fields), Code: nf.Code, Label: nf.Label}, nil
}

func (svc *refSvc) CreateOffer(_ context.Context, no reference.NewOffer) (reference.Offer, error) {
	svc.offers = append(svc.offers, no)
	return reference.Offer{ID: len(svc.offers), Acronym: no.Acronym, AcademicYear: no.AcademicYear, EntityID: no.EntityID}, nil
}

func setup(t *testing.T) *env {
	t.Helper()
	conf := core.NewTestConfig()
	logger := &testutil.Logger{}
	db := inmemdb.Open()
	usrRepo := inmemdb.NewUserRepository(db)
	cache := cachesvc.NewMemoryCache()
	out := &bytes.Buffer{}

	entitySvc := entity.NewService(inmemdb.NewEntityRepository(db))
	ucl, err := entitySvc.Create(context.Background(), entity.NewEntity{Acronym: "UCL"})
	require.NoError(t, err)
	_, err = entitySvc.Create(context.Background(), entity.NewEntity{Acronym: "EPL", Type: "FACULTY", ParentID: &ucl.ID})
	require.NoError(t, err)

	refs := &refSvc{}

	return &env{
		cli: &commandLine{
			usrSvc:    user.NewService(usrRepo, emailsvc.NewServiceMock(conf, logger), conf),
			entitySvc: entitySvc,
			refSvc:    refs,
			cache:     cache,
			validate:  shared.NewValidator(shared.NewTranslator()),
			out:       out,
		},
		usrRepo: usrRepo,
		refSvc:  refs,
		cache:   cache,
		out:     out,
	}
}

type cliTest struct {
	name       string
	args       []string // without program name
	wantErr    error
	wantErrStr string
	wantAnyErr bool
	extra      interface{}
}

func (tt cliTest) check(t *testing.T, err error) {
	t.Helper()
	switch {
	case tt.wantErr != nil:
		assert.Equal(t, tt.wantErr, err)
	case tt.wantErrStr != "":
		if assert.Error(t, err) {
			assert.Equal(t, tt.wantErrStr, err.Error())
		}
	case tt.wantAnyErr:
		assert.Error(t, err)
	default:
		assert.NoError(t, err)
	}
}

func mockPassword(pwd string) {
	readPasswordFunc = func(int) ([]byte, error) {
		return []byte(pwd), nil
	}
}

func Test_commandLine_run(t *testing.T) {
	e := setup(t)

	tests := []cliTest{
		{name: "no command", wantErr: errHelp},
		{name: "unknown command", args: []string{"lol"}, wantErrStr: `unknown command "lol" for "admin"`},
		{name: "help", args: []string{"--help"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, e.cli.run(append([]string{"admin"}, tt.args...)))
		})
	}
}

func Test_commandLine_migrate(t *testing.T) {
	e := setup(t)

	gooseRunFunc = func(command string, db *sql.DB, dir string, args ...string) error {
		switch command {
		case "up", "up-by-one", "down", "fix", "redo", "reset", "status", "version": // pass
		case "up-to", "down-to":
			if len(args) == 0 {
				return fmt.Errorf("%s must be of form: goose [OPTIONS] DRIVER DBSTRING %s VERSION", command, command)
			}
			if _, err := strconv.ParseInt(args[0], 10, 64); err != nil {
				return fmt.Errorf("version must be a number (got '%s')", args[0])
			}
		case "create":
			if len(args) == 0 {
				return fmt.Errorf("create must be of form: goose [OPTIONS] DRIVER DBSTRING create NAME [go|sql]")
			}
		default:
			return fmt.Errorf("%q: no such command", command)
		}
		return nil
	}

	tests := []cliTest{
		{name: "no subcommand", args: []string{"migrate"}, wantErr: errHelp},
		{name: "unknown subcommand", args: []string{"migrate", "lol"}, wantErrStr: "\"lol\": no such command"},
		{name: "up-to: no args", args: []string{"migrate", "up-to"}, wantErrStr: "up-to must be of form: goose [OPTIONS] DRIVER DBSTRING up-to VERSION"},
		{name: "up-to: non-int arg", args: []string{"migrate", "up-to", "lol"}, wantErrStr: "version must be a number (got 'lol')"},
		{name: "create: no args", args: []string{"migrate", "create"}, wantErrStr: "create must be of form: goose [OPTIONS] DRIVER DBSTRING create NAME [go|sql]"},
		{name: "down-to: no args", args: []string{"migrate", "down-to"}, wantErrStr: "down-to must be of form: goose [OPTIONS] DRIVER DBSTRING down-to VERSION"},
		{name: "up", args: []string{"migrate", "up"}},
		{name: "up-to", args: []string{"migrate", "up-to", "2"}},
		{name: "down-to", args: []string{"migrate", "down-to", "1"}},
		{name: "status", args: []string{"migrate", "status"}},
		{name: "create", args: []string{"migrate", "create", "funding", "sql"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, e.cli.run(append([]string{"admin"}, tt.args...)))
		})
	}
}

func Test_commandLine_addUser(t *testing.T) {
	e := setup(t)
	testutil.CreateUser(t, e.usrRepo, "taken", "taken@uclouvain.be", testPassword, nil, true)

	type extra struct {
		pwd string
	}
	tests := []cliTest{
		{name: "no username nor email", args: []string{"adduser", "--last-name", "Dupont"}, wantErr: apps.NewArgumentError("username", "a username or an email is required")},
		{name: "weak password", args: []string{"adduser", "--username", "jdupont", "--last-name", "Dupont"}, extra: extra{pwd: "lol"}, wantAnyErr: true},
		{name: "username taken", args: []string{"adduser", "--username", "taken", "--last-name", "Dupont"}, extra: extra{pwd: testPassword}, wantAnyErr: true},
		{name: "viewer", args: []string{"adduser", "--username", "jdupont", "--email", "Jean.Dupont@uclouvain.be", "--first-name", "Jean", "--last-name", "Dupont", "--viewer"}, extra: extra{pwd: testPassword}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pwd := ""
			if x, ok := tt.extra.(extra); ok {
				pwd = x.pwd
			}
			mockPassword(pwd)

			tt.check(t, e.cli.run(append([]string{"admin"}, tt.args...)))
		})
	}

	usr, err := e.usrRepo.GetUser(context.Background(), user.GetFilter{Username: "jdupont"})
	require.NoError(t, err)
	assert.Equal(t, "jean.dupont@uclouvain.be", usr.Email)
	assert.True(t, usr.IsViewer())
	assert.True(t, usr.IsActive)
	assert.NoError(t, usr.CheckPassword(testPassword))
	assert.Contains(t, e.out.String(), `user "jdupont" created`)
}

func Test_commandLine_resetPassword(t *testing.T) {
	e := setup(t)
	usr := testutil.CreateUser(t, e.usrRepo, "awe", "awe@uclouvain.be", testPassword, nil, true)

	type extra struct {
		pwd string
	}
	tests := []cliTest{
		{name: "no args", args: []string{"resetpassword"}, wantErr: apps.NewArgumentError("username", "this argument is required")},
		{name: "username but no password", args: []string{"resetpassword", "--username", "awe"}, wantErr: apps.NewArgumentError("", "the password cannot be empty")},
		{name: "user not found", args: []string{"resetpassword", "--username", "lol"}, extra: extra{pwd: "N3w-Passw0rd!"}, wantErr: user.ErrNotFound},
		{name: "reset with username", args: []string{"resetpassword", "--username", usr.Username}, extra: extra{pwd: "N3w-Passw0rd!"}},
		{name: "reset with email", args: []string{"resetpassword", "--username", usr.Email}, extra: extra{pwd: "Anoth3r-Passw0rd!"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pwd := ""
			if x, ok := tt.extra.(extra); ok {
				pwd = x.pwd
			}
			mockPassword(pwd)

			err := e.cli.run(append([]string{"admin"}, tt.args...))
			tt.check(t, err)
			if err == nil {
				refreshed, gErr := e.usrRepo.GetUser(context.Background(), user.GetFilter{ID: usr.ID})
				require.NoError(t, gErr)
				assert.NoError(t, refreshed.CheckPassword(pwd))
			}
		})
	}
}

func Test_commandLine_grantManager(t *testing.T) {
	e := setup(t)
	usr := testutil.CreateUser(t, e.usrRepo, "manager", "manager@uclouvain.be", testPassword, nil, true)

	tests := []cliTest{
		{name: "no username", args: []string{"grantmanager", "--entity", "EPL"}, wantErr: apps.NewArgumentError("username", "this argument is required")},
		{name: "no entity", args: []string{"grantmanager", "--username", "manager"}, wantErr: apps.NewArgumentError("entity", "this argument is required")},
		{name: "unknown entity", args: []string{"grantmanager", "--username", "manager", "--entity", "LOL"}, wantErr: entity.ErrNotFound},
		{name: "unknown user", args: []string{"grantmanager", "--username", "lol", "--entity", "EPL"}, wantErr: user.ErrNotFound},
		{name: "granted", args: []string{"grantmanager", "--username", "manager", "--entity", "EPL", "--scopes", "mobility,course"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, e.cli.run(append([]string{"admin"}, tt.args...)))
		})
	}

	t.Run("invalid scope", func(t *testing.T) {
		err := e.cli.run([]string{"admin", "grantmanager", "--username", "manager", "--entity", "EPL", "--scopes", "lol"})
		assert.IsType(t, validator.ValidationErrors{}, err)
	})

	refreshed, err := e.usrRepo.GetUser(context.Background(), user.GetFilter{ID: usr.ID})
	require.NoError(t, err)
	require.Len(t, refreshed.Managers, 1)
	assert.Equal(t, "EPL", refreshed.Managers[0].EntityAcronym)
	assert.Equal(t, []string{"MOBILITY", "COURSE"}, refreshed.Managers[0].Scopes)
	assert.True(t, refreshed.IsFacultyManager())
}

func Test_commandLine_addEntity(t *testing.T) {
	e := setup(t)

	tests := []cliTest{
		{name: "no acronym", args: []string{"addentity"}, wantErr: apps.NewArgumentError("acronym", "this argument is required")},
		{name: "unknown parent", args: []string{"addentity", "--acronym", "INGI", "--parent", "LOL"}, wantErr: entity.ErrNotFound},
		{name: "created", args: []string{"addentity", "--acronym", "INGI", "--title", "Ecole d'ingénierie informatique", "--type", "SCHOOL", "--parent", "EPL"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, e.cli.run(append([]string{"admin"}, tt.args...)))
		})
	}

	ingi, err := e.cli.entitySvc.GetByAcronym(context.Background(), "INGI")
	require.NoError(t, err)
	path, err := e.cli.entitySvc.AcronymPath(context.Background(), ingi.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"UCL", "EPL", "INGI"}, path)
}

func Test_commandLine_purgeCache(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	require.NoError(t, e.cache.Set(ctx, core.PortalCachePrefix+"/portal/v1/partners", []byte("[]"), 0))
	require.NoError(t, e.cache.Set(ctx, "other", []byte("kept"), 0))

	require.NoError(t, e.cli.run([]string{"admin", "purgecache"}))

	_, err := e.cache.Get(ctx, core.PortalCachePrefix+"/portal/v1/partners")
	assert.Equal(t, core.ErrCacheMiss, err)
	data, err := e.cache.Get(ctx, "other")
	require.NoError(t, err)
	assert.Equal(t, []byte("kept"), data)
}

func Test_commandLine_addReference(t *testing.T) {
	e := setup(t)

	tests := []cliTest{
		{name: "no kind", args: []string{"addreference"}, wantErr: errHelp},
		{name: "country: invalid iso", args: []string{"addreference", "country", "--iso", "BEL", "--name", "Belgique"}, wantAnyErr: true},
		{name: "country", args: []string{"addreference", "country", "--iso", "be", "--name", "Belgique", "--name-en", "Belgium", "--continent", "EU"}},
		{name: "field: no label", args: []string{"addreference", "field", "--code", "0613"}, wantAnyErr: true},
		{name: "field", args: []string{"addreference", "field", "--code", "0613", "--label", "Software and applications development"}},
		{name: "offer: unknown entity", args: []string{"addreference", "offer", "--acronym", "INFO2M", "--year", "2024", "--entity", "LOL"}, wantErr: entity.ErrNotFound},
		{name: "offer: no year", args: []string{"addreference", "offer", "--acronym", "INFO2M"}, wantAnyErr: true},
		{name: "offer", args: []string{"addreference", "offer", "--acronym", "info2m", "--title", "Master en sciences informatiques", "--year", "2024", "--entity", "EPL"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, e.cli.run(append([]string{"admin"}, tt.args...)))
		})
	}

	require.Len(t, e.refSvc.countries, 1)
	assert.Equal(t, "BE", e.refSvc.countries[0].ISOCode)
	require.Len(t, e.refSvc.fields, 1)
	require.Len(t, e.refSvc.offers, 1)
	assert.Equal(t, "INFO2M", e.refSvc.offers[0].Acronym)
	assert.NotNil(t, e.refSvc.offers[0].EntityID)
}
