package sqlxrepos

import (
	"context"

	"github.com/pkg/errors"

	"github.com/uclouvain/osis-partnership-sub000/core"
	"github.com/uclouvain/osis-partnership-sub000/core/configuration"
)

type configurationRow struct {
	CreationDay   int    `db:"partnership_creation_update_max_date_day"`
	CreationMonth int    `db:"partnership_creation_update_max_date_month"`
	APIDay        int    `db:"partnership_api_max_date_day"`
	APIMonth      int    `db:"partnership_api_max_date_month"`
	EmailTo       string `db:"email_notification_to"`
}

type configurationRepository struct {
	repository
}

var _ configuration.Repository = (*configurationRepository)(nil)

func NewConfigurationRepository(db core.DB) configuration.Repository {
	return &configurationRepository{repository{db: db}}
}

const upsertConfiguration = `
INSERT INTO partnership_configuration (
    id, partnership_creation_update_max_date_day, partnership_creation_update_max_date_month,
    partnership_api_max_date_day, partnership_api_max_date_month, email_notification_to
) VALUES (1, $1, $2, $3, $4, $5)
ON CONFLICT (id) DO `

func (repo configurationRepository) GetConfiguration(ctx context.Context, exec ...core.DBExecutor) (configuration.Configuration, error) {
	exe := repo.getExec(exec)
	def := configuration.Default()
	_, err := exe.ExecContext(ctx, upsertConfiguration+"NOTHING",
		def.CreationUpdateMaxDate.Day, def.CreationUpdateMaxDate.Month,
		def.APIMaxDate.Day, def.APIMaxDate.Month, def.EmailNotificationTo,
	)
	if err != nil {
		return configuration.Configuration{}, errors.Wrap(err, "creating default configuration")
	}

	var r configurationRow
	q := psql.Select(
		"partnership_creation_update_max_date_day", "partnership_creation_update_max_date_month",
		"partnership_api_max_date_day", "partnership_api_max_date_month", "email_notification_to",
	).From("partnership_configuration").Where("id = 1")
	if err := get(ctx, exe, &r, q); err != nil {
		return configuration.Configuration{}, errors.Wrap(err, "getting configuration")
	}
	return configuration.Configuration{
		CreationUpdateMaxDate: configuration.DayMonth{Day: r.CreationDay, Month: r.CreationMonth},
		APIMaxDate:            configuration.DayMonth{Day: r.APIDay, Month: r.APIMonth},
		EmailNotificationTo:   r.EmailTo,
	}, nil
}

func (repo configurationRepository) SaveConfiguration(ctx context.Context, conf configuration.Configuration, exec ...core.DBExecutor) (configuration.Configuration, error) {
	_, err := repo.getExec(exec).ExecContext(ctx, upsertConfiguration+`UPDATE SET
    partnership_creation_update_max_date_day = EXCLUDED.partnership_creation_update_max_date_day,
    partnership_creation_update_max_date_month = EXCLUDED.partnership_creation_update_max_date_month,
    partnership_api_max_date_day = EXCLUDED.partnership_api_max_date_day,
    partnership_api_max_date_month = EXCLUDED.partnership_api_max_date_month,
    email_notification_to = EXCLUDED.email_notification_to`,
		conf.CreationUpdateMaxDate.Day, conf.CreationUpdateMaxDate.Month,
		conf.APIMaxDate.Day, conf.APIMaxDate.Month, conf.EmailNotificationTo,
	)
	if err != nil {
		return configuration.Configuration{}, errors.Wrap(err, "saving configuration")
	}
	return conf, nil
}
