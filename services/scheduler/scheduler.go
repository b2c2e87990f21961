package scheduler

import (
	"context"
	"fmt"
	"net/mail"
	"time"

	"github.com/kat-co/vala"
	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"

	"github.com/uclouvain/osis-partnership-sub000/core"
	"github.com/uclouvain/osis-partnership-sub000/core/academic"
	"github.com/uclouvain/osis-partnership-sub000/core/configuration"
	"github.com/uclouvain/osis-partnership-sub000/core/partnership"
)

const jobTimeout = 5 * time.Minute

// Scheduler runs the periodic maintenance jobs.
type Scheduler struct {
	cron           *cron.Cron
	conf           *core.Config
	cache          core.Cache
	partnershipSvc partnership.Service
	confSvc        configuration.Service
	mailSvc        core.EmailService
	logger         core.Logger
}

func New(
	conf *core.Config,
	cache core.Cache,
	partnershipSvc partnership.Service,
	confSvc configuration.Service,
	mailSvc core.EmailService,
	logger core.Logger,
) *Scheduler {
	vala.BeginValidation().Validate(
		vala.IsNotNil(conf, "conf"),
		vala.IsNotNil(cache, "cache"),
		vala.IsNotNil(partnershipSvc, "partnershipSvc"),
		vala.IsNotNil(confSvc, "confSvc"),
		vala.IsNotNil(mailSvc, "mailSvc"),
		vala.IsNotNil(logger, "logger"),
	).CheckAndPanic()

	return &Scheduler{
		cron:           cron.New(cron.WithSeconds(), cron.WithChain(cron.Recover(cronLogger{logger}))),
		conf:           conf,
		cache:          cache,
		partnershipSvc: partnershipSvc,
		confSvc:        confSvc,
		mailSvc:        mailSvc,
		logger:         logger,
	}
}

// Start registers the jobs and starts running them in the background.
func (s *Scheduler) Start() error {
	jobs := []struct {
		name string
		spec string
		run  func(ctx context.Context) error
	}{
		{name: "purge-portal-cache", spec: s.conf.Scheduler.PortalCacheSpec, run: s.PurgePortalCache},
		{name: "end-year-digest", spec: s.conf.Scheduler.DigestSpec, run: s.SendEndYearDigest},
	}
	for _, job := range jobs {
		job := job
		if job.spec == "" {
			continue
		}
		if _, err := s.cron.AddFunc(job.spec, func() { s.run(job.name, job.run) }); err != nil {
			return errors.Wrapf(err, "scheduling %s", job.name)
		}
	}
	s.cron.Start()
	s.logger.Info(fmt.Sprintf("scheduler started with %d jobs", len(s.cron.Entries())))
	return nil
}

// Stop waits for the running jobs to complete.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

func (s *Scheduler) run(name string, job func(ctx context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	start := time.Now()
	if err := job(ctx); err != nil {
		s.logger.Error("job "+name+" failed", errors.Wrap(err, "scheduler.run"))
		return
	}
	s.logger.Info(fmt.Sprintf("job %s done in %s", name, time.Since(start)))
}

// PurgePortalCache drops the cached portal responses, since the API year depends on the date.
func (s *Scheduler) PurgePortalCache(ctx context.Context) error {
	return errors.Wrap(s.cache.DeletePrefix(ctx, core.PortalCachePrefix), "purging portal cache")
}

// SendEndYearDigest mails the partnerships ending this academic year without agreement for the next one.
func (s *Scheduler) SendEndYearDigest(ctx context.Context) error {
	conf, err := s.confSvc.Get(ctx)
	if err != nil {
		return errors.Wrap(err, "getting configuration")
	}
	if conf.EmailNotificationTo == "" {
		return nil
	}

	year := academic.Containing(core.Today())
	ending, err := s.partnershipSvc.EndingWithoutAgreement(ctx, year)
	if err != nil {
		return errors.Wrap(err, "listing ending partnerships")
	}
	if len(ending) == 0 {
		return nil
	}

	s.mailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Address: conf.EmailNotificationTo}},
		Subject:      fmt.Sprintf("%d partenariat(s) se terminant en %s", len(ending), year),
		TemplateName: "end_year_digest",
		TemplateData: map[string]interface{}{
			"Year":         year.String(),
			"Partnerships": ending,
		},
	})
	return nil
}

// cronLogger adapts core.Logger to cron.Logger.
type cronLogger struct {
	logger core.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error("cron: "+msg, append([]interface{}{err}, keysAndValues...)...)
}
