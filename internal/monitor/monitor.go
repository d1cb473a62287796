// Package monitor keeps a cost summary up to date by refreshing it on an interval.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/nais/gcp-cost/internal/bigquery"
	"github.com/nais/gcp-cost/internal/billing"
	"github.com/nais/gcp-cost/internal/config"
)

// ErrNotStarted is returned by Refresh before the monitor has a client.
var ErrNotStarted = errors.New("monitor not started")

// Fetcher is the part of *bigquery.Client the monitor drives.
type Fetcher interface {
	FetchCostSummary(ctx context.Context) (billing.CostSummary, error)
	CachedSummary() (billing.CostSummary, bool)
	SetProjectID(projectID string)
	Target() bigquery.Target
}

// Factory builds a client for the given settings.
type Factory func(ctx context.Context, cfg config.BigQuery) (Fetcher, error)

// Recorder stores fetched summaries, see bigquery.History.
type Recorder interface {
	Record(ctx context.Context, row bigquery.HistoryRow) error
}

// Update is the state after a refresh.
type Update struct {
	Summary    billing.CostSummary
	HasSummary bool
	// Err is the error of the last refresh, nil if it succeeded.
	Err error
	At  time.Time
}

type Option func(*Monitor)

func WithRecorder(r Recorder) Option {
	return func(m *Monitor) {
		m.recorder = r
	}
}

type Monitor struct {
	factory  Factory
	log      logrus.FieldLogger
	metrics  *metrics
	recorder Recorder
	group    singleflight.Group

	mu          sync.RWMutex
	bq          config.BigQuery
	refresh     config.Refresh
	client      Fetcher
	generation  int
	lastErr     error
	lastAt      time.Time
	cancel      context.CancelFunc
	done        chan struct{}
	subscribers map[int]func(Update)
	nextSub     int
}

func New(cfg *config.Config, factory Factory, log logrus.FieldLogger, opts ...Option) (*Monitor, error) {
	met, err := newMetrics()
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics: %w", err)
	}

	m := &Monitor{
		factory:     factory,
		log:         log,
		metrics:     met,
		bq:          cfg.BigQuery,
		refresh:     cfg.Refresh,
		subscribers: map[int]func(Update){},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Start creates the client and refreshes right away, then on every interval
// until Stop is called or ctx is done.
func (m *Monitor) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.done != nil {
		return errors.New("monitor already started")
	}

	client, err := m.newClient(ctx, m.bq)
	if err != nil {
		return err
	}
	m.client = client
	m.generation++
	m.startLocked(ctx)
	return nil
}

func (m *Monitor) startLocked(ctx context.Context) {
	loopCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	m.cancel, m.done = cancel, done

	go m.loop(loopCtx, m.refresh.Interval, done)
}

func (m *Monitor) loop(ctx context.Context, interval time.Duration, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		// failures are logged and published by Refresh
		_, _ = m.Refresh(ctx)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Stop ends the refresh loop and waits for a running refresh to return.
// The client and its summary are kept.
func (m *Monitor) Stop() {
	m.mu.Lock()
	cancel, done := m.cancel, m.done
	m.cancel, m.done = nil, nil
	m.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Refresh fetches a new summary now. Calls overlapping a running refresh
// share its result.
func (m *Monitor) Refresh(ctx context.Context) (billing.CostSummary, error) {
	m.mu.RLock()
	client, gen, timeout := m.client, m.generation, m.refresh.Timeout
	m.mu.RUnlock()

	if client == nil {
		return billing.CostSummary{}, ErrNotStarted
	}

	v, err, _ := m.group.Do(strconv.Itoa(gen), func() (any, error) {
		return m.fetch(ctx, client, gen, timeout)
	})
	if err != nil {
		return billing.CostSummary{}, err
	}
	return v.(billing.CostSummary), nil
}

func (m *Monitor) fetch(ctx context.Context, client Fetcher, gen int, timeout time.Duration) (billing.CostSummary, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	log := m.log.WithField("refresh_id", uuid.NewString())

	start := time.Now()
	summary, err := client.FetchCostSummary(ctx)
	m.metrics.observe(ctx, time.Since(start), err)

	m.mu.Lock()
	if m.generation != gen {
		m.mu.Unlock()
		log.Debug("client replaced during refresh, discarding result")
		return summary, err
	}
	m.lastErr = err
	m.lastAt = time.Now()
	update := m.updateLocked()
	subscribers := make([]func(Update), 0, len(m.subscribers))
	for _, fn := range m.subscribers {
		subscribers = append(subscribers, fn)
	}
	m.mu.Unlock()

	if err != nil {
		log.WithError(err).WithField("error_class", bigquery.ErrorClass(err)).Warn("failed to refresh cost summary")
	} else {
		log.WithFields(logrus.Fields{
			"currency":      summary.Currency,
			"current_month": summary.CurrentMonth,
			"duration":      time.Since(start),
		}).Info("refreshed cost summary")
		m.record(ctx, client, summary, log)
	}

	for _, fn := range subscribers {
		fn(update)
	}
	return summary, err
}

func (m *Monitor) record(ctx context.Context, client Fetcher, summary billing.CostSummary, log logrus.FieldLogger) {
	if m.recorder == nil {
		return
	}
	if err := m.recorder.Record(ctx, bigquery.NewHistoryRow(client.Target(), summary)); err != nil {
		log.WithError(err).Warn("failed to record cost history")
	}
}

// Summary returns the last summary and the outcome of the last refresh.
func (m *Monitor) Summary() Update {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.updateLocked()
}

func (m *Monitor) updateLocked() Update {
	u := Update{Err: m.lastErr, At: m.lastAt}
	if m.client != nil {
		u.Summary, u.HasSummary = m.client.CachedSummary()
	}
	return u
}

// Target returns where the current client reads from.
func (m *Monitor) Target() (bigquery.Target, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.client == nil {
		return bigquery.Target{}, false
	}
	return m.client.Target(), true
}

// Reconfigure replaces the client with one built from cfg and restarts the
// refresh loop. On failure the old client keeps running.
func (m *Monitor) Reconfigure(ctx context.Context, cfg *config.Config) error {
	m.Stop()

	m.mu.Lock()
	defer m.mu.Unlock()

	client, err := m.newClient(ctx, cfg.BigQuery)
	if err != nil {
		if m.client != nil {
			m.startLocked(ctx)
		}
		return err
	}

	m.bq, m.refresh = cfg.BigQuery, cfg.Refresh
	m.client = client
	m.generation++
	m.lastErr, m.lastAt = nil, time.Time{}
	m.startLocked(ctx)

	m.log.WithField("dataset", cfg.BigQuery.ProjectID+"."+cfg.BigQuery.Dataset).Info("reconfigured cost monitor")
	return nil
}

// SetProjectID points the current client at another project.
func (m *Monitor) SetProjectID(projectID string) {
	m.mu.Lock()
	m.bq.ProjectID = projectID
	client := m.client
	m.mu.Unlock()

	if client != nil {
		client.SetProjectID(projectID)
	}
}

// Subscribe calls fn after every published refresh. fn runs on the refreshing
// goroutine and must not block. The returned func removes the subscription.
func (m *Monitor) Subscribe(fn func(Update)) func() {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.nextSub
	m.nextSub++
	m.subscribers[id] = fn

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.subscribers, id)
	}
}

func (m *Monitor) newClient(ctx context.Context, cfg config.BigQuery) (Fetcher, error) {
	client, err := m.factory(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create bigquery client: %w", err)
	}
	return client, nil
}
