package tasks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lysyi3m/manga-notifier/app/cfg"
	"github.com/lysyi3m/manga-notifier/app/database"
	"github.com/lysyi3m/manga-notifier/app/notify"
	"github.com/lysyi3m/manga-notifier/app/tracker"
)

var ErrJobRunning = errors.New("job already running")

type State int32

const (
	StateStopped State = iota
	StateStarting
	StateRunning
	StateStopping
)

func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	default:
		return "stopped"
	}
}

type Options struct {
	SweepInterval    time.Duration
	PollInterval     time.Duration
	BootstrapDelay   time.Duration
	JoinTimeout      time.Duration
	Notifications    []cfg.WeeklyTime
	Maintenance      cfg.WeeklyTime
	HistoryRetention time.Duration
	BootstrapReset   bool
	Location         *time.Location
	Now              func() time.Time
}

func DefaultOptions() Options {
	schedule := cfg.DefaultSchedule()

	return Options{
		SweepInterval:    schedule.SweepInterval,
		PollInterval:     time.Minute,
		BootstrapDelay:   2 * time.Minute,
		JoinTimeout:      5 * time.Second,
		Notifications:    schedule.Notifications,
		Maintenance:      schedule.Maintenance,
		HistoryRetention: 30 * 24 * time.Hour,
		Location:         time.UTC,
		Now:              time.Now,
	}
}

// OptionsFromConfig maps the loaded configuration onto scheduler options.
func OptionsFromConfig(c *cfg.Cfg) Options {
	opts := DefaultOptions()
	opts.SweepInterval = c.Schedule.SweepInterval
	opts.Notifications = c.Schedule.Notifications
	opts.Maintenance = c.Schedule.Maintenance
	opts.PollInterval = c.PollInterval
	opts.BootstrapDelay = c.BootstrapDelay
	opts.HistoryRetention = c.HistoryRetention
	if opts.HistoryRetention <= 0 {
		// zero retention days turns pruning off
		opts.HistoryRetention = -1
	}
	opts.BootstrapReset = c.BootstrapReset
	opts.Location = time.Local
	return opts
}

func (o Options) withDefaults() Options {
	defaults := DefaultOptions()
	if o.SweepInterval <= 0 {
		o.SweepInterval = defaults.SweepInterval
	}
	if o.PollInterval <= 0 {
		o.PollInterval = defaults.PollInterval
	}
	if o.BootstrapDelay < 0 {
		o.BootstrapDelay = 0
	}
	if o.JoinTimeout <= 0 {
		o.JoinTimeout = defaults.JoinTimeout
	}
	if o.Notifications == nil {
		o.Notifications = defaults.Notifications
	}
	if o.Maintenance == (cfg.WeeklyTime{}) {
		o.Maintenance = defaults.Maintenance
	}
	if o.HistoryRetention == 0 {
		o.HistoryRetention = defaults.HistoryRetention
	}
	if o.Location == nil {
		o.Location = defaults.Location
	}
	if o.Now == nil {
		o.Now = defaults.Now
	}
	return o
}

type entry struct {
	name     string
	taskType TaskType
	day      string
	trigger  trigger
	next     time.Time

	// exhausted entries stay queued until a run gets through the guard
	exhausted bool
}

// ScheduledRun is the next fire time of a registered trigger.
type ScheduledRun struct {
	Name string    `json:"name"`
	Next time.Time `json:"next"`
}

type Scheduler struct {
	jobs         Jobs
	opts         Options
	state        atomic.Int32
	bootstrapped atomic.Bool
	mu           sync.Mutex
	queue        []*entry
	guards       map[TaskType]*sync.Mutex
	cancel       context.CancelFunc
	done         chan struct{}
}

func NewScheduler(jobs Jobs, opts Options) *Scheduler {
	return &Scheduler{
		jobs: jobs,
		opts: opts.withDefaults(),
		guards: map[TaskType]*sync.Mutex{
			TaskTypeChapterCheck:  {},
			TaskTypeNotifications: {},
			TaskTypeMaintenance:   {},
		},
	}
}

func (s *Scheduler) State() State {
	return State(s.state.Load())
}

// Start registers the triggers and spawns the loop. The starting phase runs
// under the scheduler lock, so a concurrent Stop waits for it to finish.
func (s *Scheduler) Start() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.state.CompareAndSwap(int32(StateStopped), int32(StateStarting)) {
		slog.Warn("Scheduler already running", "state", s.State().String())
		return false
	}

	ctx, cancel := context.WithCancel(context.Background())

	s.queue = s.register(s.opts.Now())
	s.cancel = cancel
	s.done = make(chan struct{})
	s.state.Store(int32(StateRunning))

	go s.loop(ctx, s.done)

	slog.Info("Scheduler started",
		"sweep_interval", s.opts.SweepInterval,
		"poll_interval", s.opts.PollInterval,
		"bootstrap_delay", s.opts.BootstrapDelay,
		"notifications", len(s.opts.Notifications),
		"maintenance", s.opts.Maintenance.String())

	return true
}

func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.state.CompareAndSwap(int32(StateRunning), int32(StateStopping)) {
		s.mu.Unlock()
		return
	}
	cancel, done := s.cancel, s.done
	s.mu.Unlock()

	cancel()

	select {
	case <-done:
		slog.Info("Scheduler stopped")
	case <-time.After(s.opts.JoinTimeout):
		slog.Warn("Scheduler did not stop within join timeout, in-flight job left to finish", "timeout", s.opts.JoinTimeout)
	}

	s.state.Store(int32(StateStopped))
}

// NextRuns lists the registered triggers in registration order.
func (s *Scheduler) NextRuns() []ScheduledRun {
	s.mu.Lock()
	defer s.mu.Unlock()

	runs := make([]ScheduledRun, 0, len(s.queue))
	for _, e := range s.queue {
		runs = append(runs, ScheduledRun{Name: e.name, Next: e.next})
	}
	return runs
}

// TriggerSweep runs a full chapter check on the caller's goroutine.
func (s *Scheduler) TriggerSweep(ctx context.Context) (*tracker.SweepResult, error) {
	task := NewCheckChaptersTask(s.jobs.Tracker)
	if err := s.run(ctx, task); err != nil {
		return task.Result, err
	}
	return task.Result, nil
}

// TriggerNotifications sends the pending batches for day on the caller's
// goroutine. An empty day is resolved by the dispatcher.
func (s *Scheduler) TriggerNotifications(ctx context.Context, day string) (*notify.BatchResult, error) {
	task := NewSendNotificationsTask(s.jobs.Dispatcher, day, true)
	if err := s.run(ctx, task); err != nil {
		return nil, err
	}
	return task.Result, nil
}

// register builds the trigger queue. The bootstrap entry is left out once
// a bootstrap run has gone through, so a restart never repeats it.
func (s *Scheduler) register(now time.Time) []*entry {
	var queue []*entry

	if !s.bootstrapped.Load() {
		queue = append(queue, &entry{
			name:     string(TaskTypeBootstrap),
			taskType: TaskTypeBootstrap,
			trigger:  &oneShotTrigger{delay: s.opts.BootstrapDelay},
		})
	}

	queue = append(queue, &entry{
		name:     string(TaskTypeChapterCheck),
		taskType: TaskTypeChapterCheck,
		trigger:  intervalTrigger{interval: s.opts.SweepInterval},
	})

	for _, at := range s.opts.Notifications {
		day := strings.ToLower(at.Day.String())
		queue = append(queue, &entry{
			name:     string(TaskTypeNotifications) + ":" + day,
			taskType: TaskTypeNotifications,
			day:      day,
			trigger:  weeklyTrigger{at: at, loc: s.opts.Location},
		})
	}

	queue = append(queue, &entry{
		name:     string(TaskTypeMaintenance),
		taskType: TaskTypeMaintenance,
		trigger:  weeklyTrigger{at: s.opts.Maintenance, loc: s.opts.Location},
	})

	for _, e := range queue {
		e.next = e.trigger.Next(now)
	}

	return queue
}

func (s *Scheduler) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// tick fires every due trigger in registration order. Each job runs in its
// own goroutine and is joined before the next one starts.
func (s *Scheduler) tick(ctx context.Context) {
	for _, e := range s.due(s.opts.Now()) {
		if ctx.Err() != nil {
			return
		}

		bootstrap := e.taskType == TaskTypeBootstrap
		if bootstrap && !s.bootstrapped.CompareAndSwap(false, true) {
			s.retire(e)
			continue
		}

		task := s.newTask(e)

		var err error
		finished := make(chan struct{})
		go func() {
			defer close(finished)
			err = s.run(ctx, task)
		}()
		<-finished

		if errors.Is(err, ErrJobRunning) {
			if bootstrap {
				s.bootstrapped.Store(false)
				slog.Warn("Deferring bootstrap, chapter check still in progress", "job", e.name)
				continue
			}
			slog.Warn("Skipping scheduled job, previous run still in progress", "job", e.name)
			continue
		}

		if e.exhausted {
			s.retire(e)
		}
	}
}

func (s *Scheduler) due(now time.Time) []*entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	var fired []*entry
	for _, e := range s.queue {
		if now.Before(e.next) {
			continue
		}

		fired = append(fired, e)

		if next := e.trigger.Next(now); !next.IsZero() {
			e.next = next
		} else {
			e.exhausted = true
		}
	}

	return fired
}

func (s *Scheduler) retire(e *entry) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if i := slices.Index(s.queue, e); i >= 0 {
		s.queue = slices.Delete(s.queue, i, i+1)
		slog.Debug("Trigger exhausted, removing", "job", e.name)
	}
}

func (s *Scheduler) newTask(e *entry) TaskInterface {
	switch e.taskType {
	case TaskTypeBootstrap:
		return NewBootstrapTask(s.jobs.Trackings, s.jobs.Tracker, s.opts.BootstrapReset)
	case TaskTypeNotifications:
		return NewSendNotificationsTask(s.jobs.Dispatcher, e.day, false)
	case TaskTypeMaintenance:
		return NewMaintenanceTask(s.jobs.Histories, s.jobs.Detected, s.opts.HistoryRetention, s.opts.Now())
	default:
		return NewCheckChaptersTask(s.jobs.Tracker)
	}
}

// run executes a task under its kind's guard and records its cron status.
// The task context is detached from ctx cancellation so a stop never
// interrupts a run in progress.
func (s *Scheduler) run(ctx context.Context, task TaskInterface) error {
	guard := s.guards[task.GetType().guardKey()]
	if !guard.TryLock() {
		return ErrJobRunning
	}
	defer guard.Unlock()

	taskCtx := context.WithoutCancel(ctx)
	name := string(task.GetType())

	s.recordStatus(taskCtx, name, database.CronStatusRunning, 0, nil)

	task.Start()
	slog.Debug("Task started", "type", name, "id", task.GetID())

	err := execute(taskCtx, task)
	duration := task.GetDuration()

	if err != nil {
		slog.Error("Task execution failed", "type", name, "id", task.GetID(), "duration", duration, "error", err)
		s.recordStatus(taskCtx, name, database.CronStatusFailed, duration, err)
		return err
	}

	s.recordStatus(taskCtx, name, database.CronStatusCompleted, duration, nil)
	return nil
}

func execute(ctx context.Context, task TaskInterface) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task panicked: %v", r)
		}
	}()
	return task.Execute(ctx)
}

func (s *Scheduler) recordStatus(ctx context.Context, name, status string, duration time.Duration, runErr error) {
	if s.jobs.Status == nil {
		return
	}
	if err := s.jobs.Status.UpdateStatus(ctx, name, status, duration, runErr); err != nil {
		slog.Warn("Failed to update cron job status", "job", name, "status", status, "error", err)
	}
}
