package scheduler

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/ilindan-dev/clinic-notifier/internal/alerting"
	"github.com/ilindan-dev/clinic-notifier/internal/config"
	"github.com/ilindan-dev/clinic-notifier/internal/domain/model"
	repo "github.com/ilindan-dev/clinic-notifier/internal/domain/repository"
	"github.com/ilindan-dev/clinic-notifier/internal/notifiers"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Report summarizes one sweep.
type Report struct {
	Due     int // Rows returned by FindDue.
	Sent    int
	Retried int
	Failed  int
	Skipped int // Claimed by another worker, cancelled meanwhile, or not started because of shutdown.
	Errors  int // Storage failures; the row is picked up again once its claim expires.
}

type result int

const (
	resultSkipped result = iota
	resultSent
	resultRetried
	resultFailed
	resultError
)

func (r *Report) add(res result) {
	switch res {
	case resultSent:
		r.Sent++
	case resultRetried:
		r.Retried++
	case resultFailed:
		r.Failed++
	case resultError:
		r.Errors++
	default:
		r.Skipped++
	}
}

// Scheduler periodically delivers due notifications.
// Several schedulers may share one store: the store's claim keeps them from
// sending the same notification twice.
type Scheduler struct {
	store    repo.NotificationStore
	contacts repo.ClientDirectory
	sender   notifiers.Sender
	alerter  alerting.FailureAlerter
	policy   RetryPolicy
	cfg      config.SchedulerConfig
	logger   zerolog.Logger

	now     func() time.Time
	sweepMu sync.Mutex
}

// NewScheduler creates a new instance of the Scheduler.
func NewScheduler(
	cfg *config.Config,
	store repo.NotificationStore,
	contacts repo.ClientDirectory,
	sender notifiers.Sender,
	alerter alerting.FailureAlerter,
	logger *zerolog.Logger,
) *Scheduler {
	sc := cfg.Scheduler
	if sc.WorkerID == "" {
		sc.WorkerID, _ = os.Hostname()
	}
	if alerter == nil {
		alerter = alerting.NopAlerter{}
	}
	return &Scheduler{
		store:    store,
		contacts: contacts,
		sender:   sender,
		alerter:  alerter,
		policy:   NewRetryPolicy(cfg.Retry),
		cfg:      sc,
		logger:   logger.With().Str("component", "scheduler").Str("worker_id", sc.WorkerID).Logger(),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Run sweeps immediately and then on every tick until ctx is cancelled.
// A sweep in progress when ctx is cancelled finishes the notifications it already claimed.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info().
		Dur("interval", s.cfg.SweepInterval).
		Int("batch_size", s.cfg.BatchSize).
		Int("concurrency", s.cfg.Concurrency).
		Msg("scheduler started")

	ticker := time.NewTicker(s.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		// Sweep errors are already logged; the next tick retries.
		_, _ = s.Sweep(ctx)

		select {
		case <-ctx.Done():
			s.logger.Info().Msg("scheduler stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// DispatchNow performs one ad-hoc sweep.
func (s *Scheduler) DispatchNow(ctx context.Context) (Report, error) {
	s.logger.Info().Msg("ad-hoc dispatch requested")
	return s.Sweep(ctx)
}

// Sweep delivers the due notifications of one batch.
// Only a FindDue failure is returned; per-notification failures are counted in the report.
func (s *Scheduler) Sweep(ctx context.Context) (Report, error) {
	s.sweepMu.Lock()
	defer s.sweepMu.Unlock()

	started := time.Now()
	due, err := s.store.FindDue(ctx, s.now(), s.cfg.BatchSize)
	if err != nil {
		sweepsTotal.WithLabelValues("error").Inc()
		s.logger.Error().Err(err).Msg("failed to find due notifications")
		return Report{}, fmt.Errorf("scheduler: find due: %w", err)
	}

	report := Report{Due: len(due)}
	var mu sync.Mutex

	g := new(errgroup.Group)
	g.SetLimit(max(s.cfg.Concurrency, 1))
	for _, n := range due {
		g.Go(func() error {
			res := s.process(ctx, n)
			mu.Lock()
			report.add(res)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	sweepsTotal.WithLabelValues("ok").Inc()
	event := s.logger.Debug()
	if report.Due > 0 {
		event = s.logger.Info()
	}
	event.
		Int("due", report.Due).
		Int("sent", report.Sent).
		Int("retried", report.Retried).
		Int("failed", report.Failed).
		Int("skipped", report.Skipped).
		Int("errors", report.Errors).
		Dur("took", time.Since(started)).
		Msg("sweep finished")

	return report, nil
}

// process claims, sends and records one notification.
func (s *Scheduler) process(ctx context.Context, due *model.Notification) result {
	if ctx.Err() != nil {
		return resultSkipped
	}

	log := s.logger.With().Stringer("notification_id", due.ID).Str("channel", string(due.Channel)).Logger()
	token := fmt.Sprintf("%s/%s", s.cfg.WorkerID, uuid.NewString())

	n, err := s.store.Claim(ctx, due.ID, token, s.now().Add(s.cfg.ClaimTTL))
	if err != nil {
		if errors.Is(err, repo.ErrConflict) || errors.Is(err, repo.ErrNotFound) {
			log.Debug().Err(err).Msg("notification not claimable, skipping")
			return resultSkipped
		}
		log.Error().Err(err).Msg("failed to claim notification")
		return resultError
	}

	// A claimed notification is finished even if shutdown begins.
	work := context.WithoutCancel(ctx)

	var outcome model.Outcome
	contact, err := s.contacts.GetContact(work, n.ClientID)
	switch {
	case errors.Is(err, repo.ErrNotFound):
		outcome = model.FailedOutcome(fmt.Sprintf("client %s not found", n.ClientID), s.now())
	case err != nil:
		log.Error().Err(err).Msg("failed to resolve client contact, leaving claim to expire")
		return resultError
	default:
		outcome = s.send(work, n, *contact)
	}

	if err := s.store.RecordOutcome(work, n.ID, token, outcome); err != nil {
		log.Error().Err(err).Str("outcome", string(outcome.Kind)).Msg("failed to record outcome")
		return resultError
	}
	outcomesTotal.WithLabelValues(string(n.Channel), string(outcome.Kind)).Inc()

	switch outcome.Kind {
	case model.OutcomeSent:
		log.Info().Str("external_id", outcome.ExternalID).Msg("notification sent")
		return resultSent
	case model.OutcomeRetry:
		log.Warn().
			Str("error", outcome.ErrorMessage).
			Int("retry_count", n.RetryCount+1).
			Time("next_attempt_at", outcome.NextAttemptAt).
			Msg("notification send failed, retry scheduled")
		return resultRetried
	default:
		log.Error().Str("error", outcome.ErrorMessage).Int("retry_count", n.RetryCount).Msg("notification failed permanently")
		if err := s.alerter.NotifyFailure(work, n, outcome.ErrorMessage); err != nil {
			log.Warn().Err(err).Msg("failed to raise failure alert")
		}
		return resultFailed
	}
}

// send performs the provider call under the send timeout and turns its result into an outcome.
func (s *Scheduler) send(ctx context.Context, n *model.Notification, to model.Contact) model.Outcome {
	sendCtx, cancel := context.WithTimeout(ctx, s.cfg.SendTimeout)
	defer cancel()

	started := time.Now()
	externalID, err := s.sender.Send(sendCtx, n, to)
	sendDuration.WithLabelValues(string(n.Channel)).Observe(time.Since(started).Seconds())

	if err == nil && externalID == "" {
		err = notifiers.Permanentf("%s provider returned no delivery id", n.Channel)
	}
	if err != nil {
		return s.policy.Decide(n.RetryCount, err, s.now())
	}
	return model.SentOutcome(externalID, s.now())
}
