package dig_container

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"go.uber.org/dig"

	echoapi "github.com/uclouvain/osis-partnership-sub000/apps/api/echo"
	"github.com/uclouvain/osis-partnership-sub000/apps/shared"
	"github.com/uclouvain/osis-partnership-sub000/core"
	"github.com/uclouvain/osis-partnership-sub000/core/configuration"
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
	cachesvc "github.com/uclouvain/osis-partnership-sub000/services/cache"
	emailsvc "github.com/uclouvain/osis-partnership-sub000/services/email"
	"github.com/uclouvain/osis-partnership-sub000/services/filestore"
	logsvc "github.com/uclouvain/osis-partnership-sub000/services/logger"
	"github.com/uclouvain/osis-partnership-sub000/services/scheduler"
	"github.com/uclouvain/osis-partnership-sub000/storage/database"
	sqlxrepos "github.com/uclouvain/osis-partnership-sub000/storage/database/sqlx"
)

type DBLoggerParam struct {
	dig.In
	Logger core.Logger `name:"dbLogger"`
}

func newLogger(conf *core.Config) core.Logger {
	stdLogger := log.New(os.Stdout, "API : ", log.LstdFlags)
	logger := logsvc.NewRollbarLogger(stdLogger, conf)
	logger.Enable(!conf.Debug)
	return logger
}

func newDBLogger(conf *core.Config) core.Logger {
	stdLogger := log.New(os.Stdout, "DB : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)
	logger := logsvc.NewRollbarLogger(stdLogger, conf)
	logger.Enable(!conf.Debug)
	return logger
}

func newDB(conf *core.Config, loggerParam DBLoggerParam) (*sqlx.DB, core.DB) {
	setUp := func() (*sqlx.DB, error) {
		ctx := context.Background()
		if err := database.CreateIfNotExist(ctx, conf); err != nil {
			return nil, err
		}

		db, err := database.Open(ctx, conf)
		if err != nil {
			return nil, err
		}

		if err = database.Migrate(db); err != nil {
			return nil, err
		}
		return db, nil
	}

	db, err := setUp()
	if err != nil {
		loggerParam.Logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}
	return db, db
}

func newCache(conf *core.Config, logger core.Logger) core.Cache {
	cache, err := cachesvc.New(context.Background(), conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up cache: %v", err), err)
	}
	return cache
}

func newFileStore(conf *core.Config, logger core.Logger) media.FileStore {
	store, err := filestore.New(conf.Storage)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up file storage: %v", err), err)
	}
	return store
}

func newEmailService(conf *core.Config, logger core.Logger) core.EmailService {
	if conf.Debug {
		return emailsvc.NewConsoleService(conf, logger)
	}
	return emailsvc.NewSendgridService(conf, logger)
}

func newResolver(entitySvc entity.Service) perms.Resolver {
	return perms.NewResolver(entitySvc.Descendants)
}

// New returns a new dependency injection dig.Container
func New() *dig.Container {
	c := dig.New()

	must(c.Provide(core.NewConfig))
	must(c.Provide(newLogger))
	must(c.Provide(newDBLogger, dig.Name("dbLogger")))
	must(c.Provide(newDB))
	must(c.Provide(newCache))
	must(c.Provide(newFileStore))
	must(c.Provide(newEmailService))
	must(c.Provide(shared.NewTranslator))
	must(c.Provide(shared.NewValidator))

	// repositories
	must(c.Provide(sqlxrepos.NewUserRepository))
	must(c.Provide(sqlxrepos.NewConfigurationRepository))
	must(c.Provide(sqlxrepos.NewEntityRepository))
	must(c.Provide(sqlxrepos.NewReferenceRepository))
	must(c.Provide(sqlxrepos.NewMediaRepository))
	must(c.Provide(sqlxrepos.NewPartnerRepository))
	must(c.Provide(sqlxrepos.NewPartnershipRepository))
	must(c.Provide(sqlxrepos.NewUMERepository))
	must(c.Provide(sqlxrepos.NewFundingRepository))
	must(c.Provide(sqlxrepos.NewPortalRepository))

	// services
	must(c.Provide(user.NewService))
	must(c.Provide(configuration.NewService))
	must(c.Provide(entity.NewService))
	must(c.Provide(newResolver))
	must(c.Provide(reference.NewService))
	must(c.Provide(media.NewService))
	must(c.Provide(partner.NewService))
	must(c.Provide(funding.NewService))
	must(c.Provide(partnership.NewService))
	must(c.Provide(ume.NewService))
	must(c.Provide(portal.NewService))

	must(c.Provide(scheduler.New))
	must(c.Provide(echoapi.NewServer))

	return c
}

// must exits program if err happened
func must(err error) {
	if err != nil {
		log.Fatal(errors.Wrap(err, "failed to provide dependency").Error())
	}
}
