// Package scheduler runs the periodic maintenance jobs of the cashier.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/Fi44er/cashier_bot/internal/repository"
	"github.com/Fi44er/cashier_bot/utils"
	"github.com/go-co-op/gocron/v2"
	"github.com/shopspring/decimal"
)

// Jobs is the service side of the maintenance jobs.
type Jobs interface {
	SettleReferrals(ctx context.Context, readyOnly bool) (repository.SettlementResult, error)
	PurgeExpiredGiftCodes(ctx context.Context) (int, error)
	ReloadSettings(ctx context.Context) error
	SetExchangeRate(ctx context.Context, rate decimal.Decimal) error
}

// RateSource quotes the BTC price in rubles.
type RateSource interface {
	BTCRUB(ctx context.Context) (decimal.Decimal, error)
}

// Evicter drops abandoned chat dialogues.
type Evicter interface {
	Evict() int
}

// Options holds job intervals; a zero interval disables the job.
type Options struct {
	SettleInterval time.Duration
	PurgeInterval  time.Duration
	ReloadInterval time.Duration
	EvictInterval  time.Duration
	RateInterval   time.Duration
}

type job struct {
	name     string
	interval time.Duration
	run      func(context.Context)
}

type Scheduler struct {
	sched  gocron.Scheduler
	jobs   Jobs
	states Evicter
	rates  RateSource
	opts   Options
	logger *utils.Logger
}

// New builds a scheduler. states may be nil when dialogues live in redis,
// which expires them on its own.
func New(jobs Jobs, states Evicter, opts Options, logger *utils.Logger) (*Scheduler, error) {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}
	return &Scheduler{sched: sched, jobs: jobs, states: states, opts: opts, logger: logger}, nil
}

// WithRateFeed makes the scheduler keep the tenant exchange rate in line
// with src every RateInterval.
func (s *Scheduler) WithRateFeed(src RateSource) *Scheduler {
	s.rates = src
	return s
}

// Start registers the enabled jobs and starts running them. Jobs use ctx
// for their calls and stop being scheduled after Shutdown.
func (s *Scheduler) Start(ctx context.Context) error {
	jobs := []job{
		{"settle-referrals", s.opts.SettleInterval, s.SettleReady},
		{"purge-gift-codes", s.opts.PurgeInterval, s.PurgeGiftCodes},
		{"reload-settings", s.opts.ReloadInterval, s.ReloadSettings},
	}
	if s.states != nil {
		jobs = append(jobs, job{"evict-states", s.opts.EvictInterval, func(context.Context) { s.EvictStates() }})
	}
	if s.rates != nil {
		jobs = append(jobs, job{"refresh-rate", s.opts.RateInterval, s.RefreshRate})
	}

	for _, j := range jobs {
		if j.interval <= 0 {
			s.logger.Infof("Scheduler job %s disabled", j.name)
			continue
		}
		run := j.run
		_, err := s.sched.NewJob(
			gocron.DurationJob(j.interval),
			gocron.NewTask(func() { run(ctx) }),
			gocron.WithName(j.name),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
		)
		if err != nil {
			return fmt.Errorf("failed to schedule %s: %w", j.name, err)
		}
		s.logger.Infof("Scheduler job %s every %s", j.name, j.interval)
	}

	s.sched.Start()
	return nil
}

func (s *Scheduler) Shutdown() error {
	return s.sched.Shutdown()
}

// SettleReady pays out referral earnings that have matured.
func (s *Scheduler) SettleReady(ctx context.Context) {
	res, err := s.jobs.SettleReferrals(ctx, true)
	if err != nil {
		s.logger.Errorf("[Scheduler] referral settlement failed: %v", err)
		return
	}
	if res.Records > 0 {
		s.logger.Infof("[Scheduler] settled %d referral earnings for %d earners, total %s",
			res.Records, res.Earners, res.TotalAmount.StringFixed(2))
	}
}

func (s *Scheduler) PurgeGiftCodes(ctx context.Context) {
	n, err := s.jobs.PurgeExpiredGiftCodes(ctx)
	if err != nil {
		s.logger.Errorf("[Scheduler] gift code purge failed: %v", err)
		return
	}
	if n > 0 {
		s.logger.Infof("[Scheduler] purged %d expired gift codes", n)
	}
}

// ReloadSettings picks up tenant configuration edited outside the bot.
func (s *Scheduler) ReloadSettings(ctx context.Context) {
	if err := s.jobs.ReloadSettings(ctx); err != nil {
		s.logger.Errorf("[Scheduler] settings reload failed: %v", err)
	}
}

// RefreshRate stores the market BTC/RUB rate as the tenant exchange rate.
func (s *Scheduler) RefreshRate(ctx context.Context) {
	if s.rates == nil {
		return
	}
	rate, err := s.rates.BTCRUB(ctx)
	if err != nil {
		s.logger.Warnf("[Scheduler] rate feed unavailable, keeping current rate: %v", err)
		return
	}
	if err := s.jobs.SetExchangeRate(ctx, rate); err != nil {
		s.logger.Errorf("[Scheduler] failed to store exchange rate %s: %v", rate, err)
		return
	}
	s.logger.Debugf("[Scheduler] exchange rate set to %s", rate)
}

func (s *Scheduler) EvictStates() {
	if s.states == nil {
		return
	}
	if n := s.states.Evict(); n > 0 {
		s.logger.Debugf("[Scheduler] evicted %d abandoned dialogues", n)
	}
}
