package tasks

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/lysyi3m/manga-notifier/app/cfg"
	"github.com/lysyi3m/manga-notifier/app/notify"
	"github.com/lysyi3m/manga-notifier/app/tracker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// eventLog records calls across all mocks in the order they happen
type eventLog struct {
	mu     sync.Mutex
	events []string
}

func (l *eventLog) add(event string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, event)
}

func (l *eventLog) all() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.events...)
}

func (l *eventLog) count(event string) int {
	n := 0
	for _, e := range l.all() {
		if e == event {
			n++
		}
	}
	return n
}

type mockSweeper struct {
	log     *eventLog
	started chan struct{}
	release chan struct{}
	panics  int
	mu      sync.Mutex
}

func (m *mockSweeper) CheckAll(ctx context.Context) (*tracker.SweepResult, error) {
	m.log.add("sweep")

	if m.started != nil {
		select {
		case m.started <- struct{}{}:
		default:
		}
	}
	if m.release != nil {
		<-m.release
	}

	m.mu.Lock()
	shouldPanic := m.panics > 0
	if shouldPanic {
		m.panics--
	}
	m.mu.Unlock()
	if shouldPanic {
		panic("boom")
	}

	return &tracker.SweepResult{TotalMangaChecked: 2, TotalNewChapters: 1}, nil
}

type mockNotifier struct {
	log *eventLog
	err error
}

func (m *mockNotifier) SendScheduled(ctx context.Context, day string) (*notify.BatchResult, error) {
	m.log.add("scheduled:" + day)
	if m.err != nil {
		return nil, m.err
	}
	return &notify.BatchResult{Day: day}, nil
}

func (m *mockNotifier) SendManual(ctx context.Context, day string) (*notify.BatchResult, error) {
	m.log.add("manual:" + day)
	if m.err != nil {
		return nil, m.err
	}
	return &notify.BatchResult{Day: day}, nil
}

type mockStatus struct {
	log *eventLog
}

func (m *mockStatus) UpdateStatus(ctx context.Context, name, status string, duration time.Duration, runErr error) error {
	event := "status:" + name + ":" + status
	if runErr != nil {
		event += ":" + runErr.Error()
	}
	m.log.add(event)
	return nil
}

type mockPruner struct {
	histories time.Time
	detected  time.Time
	calls     int
}

func (m *mockPruner) PruneHistories(ctx context.Context, before time.Time) (int64, error) {
	m.histories = before
	m.calls++
	return 1, nil
}

func (m *mockPruner) PruneDetected(ctx context.Context, before time.Time) (int64, error) {
	m.detected = before
	m.calls++
	return 2, nil
}

type mockWiper struct {
	log *eventLog
}

func (m *mockWiper) Wipe(ctx context.Context) error {
	m.log.add("wipe")
	return nil
}

// Wednesday 2024-01-03 17:59:00 UTC
var schedulerStart = time.Date(2024, 1, 3, 17, 59, 0, 0, time.UTC)

func newTestScheduler(t *testing.T, opts Options) (*Scheduler, *eventLog, *mockSweeper, *fakeClock) {
	t.Helper()

	log := &eventLog{}
	clock := &fakeClock{now: schedulerStart}
	sweeper := &mockSweeper{log: log}
	pruner := &mockPruner{}

	jobs := Jobs{
		Tracker:    sweeper,
		Dispatcher: &mockNotifier{log: log},
		Status:     &mockStatus{log: log},
		Histories:  pruner,
		Detected:   pruner,
		Trackings:  &mockWiper{log: log},
	}

	if opts.PollInterval == 0 {
		opts.PollInterval = 5 * time.Millisecond
	}
	if opts.SweepInterval == 0 {
		opts.SweepInterval = time.Hour
	}
	if opts.Notifications == nil {
		opts.Notifications = []cfg.WeeklyTime{}
	}
	opts.Now = clock.Now

	s := NewScheduler(jobs, opts)
	t.Cleanup(s.Stop)

	return s, log, sweeper, clock
}

func TestSchedulerStartTwice(t *testing.T) {
	s, _, _, _ := newTestScheduler(t, Options{BootstrapDelay: time.Hour})

	assert.Equal(t, StateStopped, s.State())
	assert.True(t, s.Start())
	assert.Equal(t, StateRunning, s.State())
	assert.False(t, s.Start(), "second start should be rejected")

	s.Stop()
	assert.Equal(t, StateStopped, s.State())

	assert.True(t, s.Start(), "scheduler should restart after stop")
}

func TestSchedulerBootstrapFiresOnce(t *testing.T) {
	s, log, _, _ := newTestScheduler(t, Options{})

	require.True(t, s.Start())

	require.Eventually(t, func() bool {
		return log.count("status:bootstrap:completed") == 1
	}, time.Second, 5*time.Millisecond)

	time.Sleep(30 * time.Millisecond)

	assert.Equal(t, 1, log.count("sweep"))
	assert.Equal(t, 0, log.count("wipe"), "wipe must be opt-in")

	for _, run := range s.NextRuns() {
		assert.NotEqual(t, "bootstrap", run.Name)
	}
}

func TestSchedulerBootstrapReset(t *testing.T) {
	s, log, _, _ := newTestScheduler(t, Options{BootstrapReset: true})

	require.True(t, s.Start())

	require.Eventually(t, func() bool {
		return log.count("sweep") == 1
	}, time.Second, 5*time.Millisecond)

	events := log.all()
	wipe, sweep := -1, -1
	for i, e := range events {
		switch e {
		case "wipe":
			wipe = i
		case "sweep":
			sweep = i
		}
	}
	require.NotEqual(t, -1, wipe)
	assert.Less(t, wipe, sweep, "wipe should run before the initial sweep")
}

func TestSchedulerRecurringSweep(t *testing.T) {
	s, log, _, clock := newTestScheduler(t, Options{BootstrapDelay: 24 * time.Hour, SweepInterval: time.Hour})

	require.True(t, s.Start())

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 0, log.count("sweep"))

	clock.Advance(time.Hour)
	require.Eventually(t, func() bool {
		return log.count("status:chapter_checker:completed") == 1
	}, time.Second, 5*time.Millisecond)

	clock.Advance(time.Hour)
	require.Eventually(t, func() bool {
		return log.count("status:chapter_checker:completed") == 2
	}, time.Second, 5*time.Millisecond)
}

func TestSchedulerWeeklyNotification(t *testing.T) {
	s, log, _, clock := newTestScheduler(t, Options{
		BootstrapDelay: 24 * time.Hour,
		SweepInterval:  24 * time.Hour,
		Notifications: []cfg.WeeklyTime{
			{Day: time.Wednesday, Hour: 18},
			{Day: time.Saturday, Hour: 18},
		},
	})

	require.True(t, s.Start())

	clock.Advance(time.Minute)
	require.Eventually(t, func() bool {
		return log.count("scheduled:wednesday") == 1
	}, time.Second, 5*time.Millisecond)

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, log.count("scheduled:wednesday"))
	assert.Equal(t, 0, log.count("scheduled:saturday"))

	for _, run := range s.NextRuns() {
		if run.Name == "notification_sender:wednesday" {
			assert.Equal(t, time.Date(2024, 1, 10, 18, 0, 0, 0, time.UTC), run.Next)
		}
	}
}

func TestSchedulerRecoversFromPanic(t *testing.T) {
	s, log, sweeper, clock := newTestScheduler(t, Options{SweepInterval: time.Hour})
	sweeper.panics = 1

	require.True(t, s.Start())

	require.Eventually(t, func() bool {
		return log.count("status:bootstrap:failed:task panicked: boom") == 1
	}, time.Second, 5*time.Millisecond)

	assert.Equal(t, StateRunning, s.State())

	clock.Advance(time.Hour)
	require.Eventually(t, func() bool {
		return log.count("status:chapter_checker:completed") == 1
	}, time.Second, 5*time.Millisecond)
}

func TestTriggerSweepWhileRunning(t *testing.T) {
	s, _, sweeper, _ := newTestScheduler(t, Options{})
	sweeper.started = make(chan struct{}, 1)
	sweeper.release = make(chan struct{})

	errs := make(chan error, 1)
	go func() {
		_, err := s.TriggerSweep(context.Background())
		errs <- err
	}()

	select {
	case <-sweeper.started:
	case <-time.After(time.Second):
		t.Fatal("sweep did not start")
	}

	_, err := s.TriggerSweep(context.Background())
	assert.ErrorIs(t, err, ErrJobRunning)

	// Notifications use their own guard
	_, err = s.TriggerNotifications(context.Background(), "saturday")
	assert.NoError(t, err)

	close(sweeper.release)
	require.NoError(t, <-errs)

	result, err := s.TriggerSweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, result.TotalMangaChecked)
}

func TestSchedulerStopWithHungJob(t *testing.T) {
	s, _, sweeper, _ := newTestScheduler(t, Options{JoinTimeout: 50 * time.Millisecond})
	sweeper.started = make(chan struct{}, 1)
	sweeper.release = make(chan struct{})
	defer close(sweeper.release)

	require.True(t, s.Start())

	select {
	case <-sweeper.started:
	case <-time.After(time.Second):
		t.Fatal("bootstrap sweep did not start")
	}

	begin := time.Now()
	s.Stop()

	assert.Less(t, time.Since(begin), time.Second)
	assert.Equal(t, StateStopped, s.State())
}

func TestTriggerStatusRecording(t *testing.T) {
	s, log, _, _ := newTestScheduler(t, Options{})

	_, err := s.TriggerSweep(context.Background())
	require.NoError(t, err)

	s.jobs.Dispatcher = &mockNotifier{log: log, err: errors.New("store down")}
	_, err = s.TriggerNotifications(context.Background(), "wednesday")
	require.Error(t, err)

	var statuses []string
	for _, e := range log.all() {
		if strings.HasPrefix(e, "status:") {
			statuses = append(statuses, e)
		}
	}

	assert.Equal(t, []string{
		"status:chapter_checker:running",
		"status:chapter_checker:completed",
		"status:notification_sender:running",
		"status:notification_sender:failed:failed to send notifications: store down",
	}, statuses)
	assert.Equal(t, 1, log.count("manual:wednesday"))
}

func TestWeeklyTriggerNext(t *testing.T) {
	wednesday := weeklyTrigger{at: cfg.WeeklyTime{Day: time.Wednesday, Hour: 18}, loc: time.UTC}

	tests := []struct {
		name     string
		after    time.Time
		expected time.Time
	}{
		{"later same day", time.Date(2024, 1, 3, 17, 0, 0, 0, time.UTC), time.Date(2024, 1, 3, 18, 0, 0, 0, time.UTC)},
		{"exactly at trigger", time.Date(2024, 1, 3, 18, 0, 0, 0, time.UTC), time.Date(2024, 1, 10, 18, 0, 0, 0, time.UTC)},
		{"day after", time.Date(2024, 1, 4, 9, 0, 0, 0, time.UTC), time.Date(2024, 1, 10, 18, 0, 0, 0, time.UTC)},
		{"day before", time.Date(2024, 1, 2, 23, 59, 0, 0, time.UTC), time.Date(2024, 1, 3, 18, 0, 0, 0, time.UTC)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next := wednesday.Next(tt.after)
			if !next.Equal(tt.expected) {
				t.Errorf("Expected %v, got %v", tt.expected, next)
			}
		})
	}
}

func TestWeeklyTriggerLocation(t *testing.T) {
	loc := time.FixedZone("UTC+7", 7*3600)
	trigger := weeklyTrigger{at: cfg.WeeklyTime{Day: time.Saturday, Hour: 18}, loc: loc}

	// Saturday 10:30 UTC is 17:30 local
	next := trigger.Next(time.Date(2024, 1, 6, 10, 30, 0, 0, time.UTC))

	expected := time.Date(2024, 1, 6, 11, 0, 0, 0, time.UTC)
	if !next.Equal(expected) {
		t.Errorf("Expected %v, got %v", expected, next)
	}
}

func TestOneShotTrigger(t *testing.T) {
	trigger := &oneShotTrigger{delay: 2 * time.Minute}
	now := schedulerStart

	if next := trigger.Next(now); !next.Equal(now.Add(2 * time.Minute)) {
		t.Errorf("Expected first fire after delay, got %v", next)
	}
	if next := trigger.Next(now); !next.IsZero() {
		t.Errorf("Expected exhausted trigger, got %v", next)
	}
}

func TestBootstrapSharesSweepGuard(t *testing.T) {
	if TaskTypeBootstrap.guardKey() != TaskTypeChapterCheck {
		t.Errorf("Expected bootstrap to share the chapter check guard")
	}
	if TaskTypeMaintenance.guardKey() != TaskTypeMaintenance {
		t.Errorf("Expected maintenance to use its own guard")
	}
}

func TestMaintenanceTask(t *testing.T) {
	pruner := &mockPruner{}
	now := time.Date(2024, 2, 4, 2, 0, 0, 0, time.UTC)

	task := NewMaintenanceTask(pruner, pruner, 30*24*time.Hour, now)
	require.NoError(t, task.Execute(context.Background()))

	expected := time.Date(2024, 1, 5, 2, 0, 0, 0, time.UTC)
	assert.Equal(t, expected, pruner.histories)
	assert.Equal(t, expected, pruner.detected)

	disabled := &mockPruner{}
	task = NewMaintenanceTask(disabled, disabled, 0, now)
	require.NoError(t, task.Execute(context.Background()))
	assert.Equal(t, 0, disabled.calls)
}

func TestDefaultOptions(t *testing.T) {
	opts := DefaultOptions()

	assert.Equal(t, 12*time.Hour, opts.SweepInterval)
	assert.Equal(t, time.Minute, opts.PollInterval)
	assert.Equal(t, 2*time.Minute, opts.BootstrapDelay)
	assert.Equal(t, 5*time.Second, opts.JoinTimeout)
	assert.False(t, opts.BootstrapReset)
	assert.Len(t, opts.Notifications, 2)
}

func TestSchedulerRestartKeepsBootstrapOneShot(t *testing.T) {
	s, log, _, _ := newTestScheduler(t, Options{BootstrapReset: true})

	require.True(t, s.Start())
	require.Eventually(t, func() bool {
		return log.count("status:bootstrap:completed") == 1
	}, time.Second, 5*time.Millisecond)

	s.Stop()
	require.True(t, s.Start())

	time.Sleep(30 * time.Millisecond)

	assert.Equal(t, 1, log.count("status:bootstrap:completed"))
	assert.Equal(t, 1, log.count("wipe"), "reset must not repeat after a restart")
	for _, run := range s.NextRuns() {
		assert.NotEqual(t, "bootstrap", run.Name)
	}
}

func TestSchedulerBootstrapWaitsForManualSweep(t *testing.T) {
	s, log, sweeper, clock := newTestScheduler(t, Options{
		BootstrapDelay: time.Hour,
		BootstrapReset: true,
		SweepInterval:  24 * time.Hour,
	})
	sweeper.started = make(chan struct{}, 1)
	sweeper.release = make(chan struct{})

	errs := make(chan error, 1)
	go func() {
		_, err := s.TriggerSweep(context.Background())
		errs <- err
	}()

	select {
	case <-sweeper.started:
	case <-time.After(time.Second):
		t.Fatal("manual sweep did not start")
	}

	require.True(t, s.Start())
	clock.Advance(time.Hour)
	time.Sleep(30 * time.Millisecond)

	assert.Equal(t, 0, log.count("wipe"))
	assert.Equal(t, 0, log.count("status:bootstrap:running"))

	var queued bool
	for _, run := range s.NextRuns() {
		if run.Name == "bootstrap" {
			queued = true
		}
	}
	assert.True(t, queued, "bootstrap should stay queued while the guard is held")

	close(sweeper.release)
	require.NoError(t, <-errs)

	require.Eventually(t, func() bool {
		return log.count("status:bootstrap:completed") == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, log.count("wipe"))
}

func TestSchedulerStopDuringStart(t *testing.T) {
	s, _, _, clock := newTestScheduler(t, Options{BootstrapDelay: time.Hour})

	var once sync.Once
	stopped := make(chan struct{})
	s.opts.Now = func() time.Time {
		once.Do(func() {
			go func() {
				s.Stop()
				close(stopped)
			}()
			// give Stop time to arrive while Start is mid-setup
			select {
			case <-stopped:
			case <-time.After(20 * time.Millisecond):
			}
		})
		return clock.Now()
	}

	require.True(t, s.Start())

	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("stop did not return")
	}
	assert.Equal(t, StateStopped, s.State())
}

func TestNewSchedulerDefaults(t *testing.T) {
	s := NewScheduler(Jobs{}, Options{})

	assert.Equal(t, cfg.WeeklyTime{Day: time.Sunday, Hour: 2}, s.opts.Maintenance)
	assert.Equal(t, 30*24*time.Hour, s.opts.HistoryRetention)
	assert.Equal(t, 12*time.Hour, s.opts.SweepInterval)

	disabled := OptionsFromConfig(&cfg.Cfg{Schedule: cfg.DefaultSchedule()})
	assert.Less(t, disabled.HistoryRetention, time.Duration(0), "zero configured days keeps pruning off")
	assert.Equal(t, disabled.HistoryRetention, NewScheduler(Jobs{}, disabled).opts.HistoryRetention)
}
