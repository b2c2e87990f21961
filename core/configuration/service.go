package configuration

import (
	"context"

	"github.com/pkg/errors"

	"github.com/uclouvain/osis-partnership-sub000/core"
)

type (
	Repository interface {
		// GetConfiguration returns the singleton, creating it with default values when missing.
		GetConfiguration(ctx context.Context, exec ...core.DBExecutor) (Configuration, error)
		SaveConfiguration(ctx context.Context, conf Configuration, exec ...core.DBExecutor) (Configuration, error)
	}

	Service interface {
		Get(ctx context.Context) (Configuration, error)
		Update(ctx context.Context, data UpdateConfiguration) (Configuration, error)
	}

	service struct {
		repo Repository
	}
)

var _ Service = (*service)(nil)

func NewService(repo Repository) Service {
	return &service{repo: repo}
}

func (svc *service) Get(ctx context.Context) (Configuration, error) {
	conf, err := svc.repo.GetConfiguration(ctx)
	return conf, errors.Wrap(err, "getting configuration")
}

func (svc *service) Update(ctx context.Context, data UpdateConfiguration) (Configuration, error) {
	conf := Configuration{
		CreationUpdateMaxDate: data.CreationUpdateMaxDate,
		APIMaxDate:            data.APIMaxDate,
		EmailNotificationTo:   data.EmailNotificationTo,
	}
	conf, err := svc.repo.SaveConfiguration(ctx, conf)
	return conf, errors.Wrap(err, "saving configuration")
}
