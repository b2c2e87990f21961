package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/uclouvain/osis-partnership-sub000/apps/shared"
	"github.com/uclouvain/osis-partnership-sub000/core"
	"github.com/uclouvain/osis-partnership-sub000/core/entity"
	"github.com/uclouvain/osis-partnership-sub000/core/reference"
	"github.com/uclouvain/osis-partnership-sub000/core/user"
	cachesvc "github.com/uclouvain/osis-partnership-sub000/services/cache"
	emailsvc "github.com/uclouvain/osis-partnership-sub000/services/email"
	logsvc "github.com/uclouvain/osis-partnership-sub000/services/logger"
	"github.com/uclouvain/osis-partnership-sub000/storage/database"
	sqlxrepos "github.com/uclouvain/osis-partnership-sub000/storage/database/sqlx"
)

func main() {
	ctx := context.Background()
	conf := core.NewConfig()

	stdLogger := log.New(os.Stdout, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)
	logger := logsvc.NewRollbarLogger(stdLogger, conf)
	logger.Enable(!conf.Debug)

	// set up DB
	db, err := database.Open(ctx, conf)
	errAndDie(logger, err)
	defer db.Close()

	cache, err := cachesvc.New(ctx, conf)
	errAndDie(logger, err)
	defer cache.Close()

	core.ParseEmailTemplates(conf, logger)
	user.LoadCommonPasswords(logger)

	// start CLI
	cli := commandLine{
		db:        db.DB,
		usrSvc:    user.NewService(sqlxrepos.NewUserRepository(db), emailsvc.NewConsoleService(conf, logger), conf),
		entitySvc: entity.NewService(sqlxrepos.NewEntityRepository(db)),
		refSvc:    reference.NewService(sqlxrepos.NewReferenceRepository(db)),
		cache:     cache,
		validate:  shared.NewValidator(shared.NewTranslator()),
		out:       os.Stdout,
	}
	if err := cli.run(os.Args); err != nil {
		if err != errHelp {
			fmt.Fprintf(os.Stderr, "\nerror: %s\n", err)
		}
		os.Exit(1)
	}
}

func errAndDie(logger core.Logger, err error) {
	if err != nil {
		logger.Fatal(err.Error(), err)
	}
}
