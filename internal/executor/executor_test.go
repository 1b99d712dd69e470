package executor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/t77yq/autocontrol/internal/handler"
	"github.com/t77yq/autocontrol/internal/model"
	"github.com/t77yq/autocontrol/internal/storage"
)

type fakeInvoker struct {
	mu      sync.Mutex
	calls   []model.Action
	err     error
	block   chan struct{}
	panicOn model.Action
}

func (f *fakeInvoker) Invoke(ctx context.Context, action model.Action) (*model.ActionResponse, error) {
	f.mu.Lock()
	f.calls = append(f.calls, action)
	block, err := f.block, f.err
	f.mu.Unlock()

	if action == f.panicOn {
		panic("invoker exploded")
	}
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	return &model.ActionResponse{Success: true}, nil
}

func (f *fakeInvoker) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type recordingNotifier struct {
	mu            sync.Mutex
	notifications []model.Notification
}

func (n *recordingNotifier) Notify(ctx context.Context, notification model.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notifications = append(n.notifications, notification)
	return nil
}

func (n *recordingNotifier) all() []model.Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]model.Notification(nil), n.notifications...)
}

type fixture struct {
	executor *Executor
	invoker  *fakeInvoker
	notifier *recordingNotifier
	kv       *storage.MemoryStore
	tasks    *storage.TaskStore
	log      *storage.ExecutionLog
}

func newFixture(t *testing.T, queueSize int, tasks ...model.ScheduledTask) *fixture {
	t.Helper()
	logger := zaptest.NewLogger(t)
	kv := storage.NewMemoryStore()
	store := storage.NewTaskStore(kv, logger)
	for _, task := range tasks {
		require.NoError(t, store.Add(context.Background(), task))
	}
	log := storage.NewExecutionLog(kv, storage.DefaultLogCapacity, logger)
	invoker := &fakeInvoker{}
	notifier := &recordingNotifier{}
	exec := NewExecutor(ExecutorConfig{QueueSize: queueSize}, invoker, store, log, notifier, logger)
	t.Cleanup(exec.Stop)
	return &fixture{executor: exec, invoker: invoker, notifier: notifier, kv: kv, tasks: store, log: log}
}

func task(id string, scheduleType model.ScheduleType, action model.Action) model.ScheduledTask {
	return model.ScheduledTask{
		ID:           id,
		Action:       action,
		Name:         "task " + id,
		ScheduleType: scheduleType,
		Date:         "2024-06-03",
		Hour:         8,
		Minute:       30,
		Active:       true,
	}
}

var tick = time.Date(2024, 6, 3, 8, 30, 0, 0, time.UTC)

func waitForLog(t *testing.T, log *storage.ExecutionLog, n int) []model.ExecutionLogEntry {
	t.Helper()
	require.Eventually(t, func() bool { return log.Len() >= n }, 2*time.Second, 5*time.Millisecond)
	return log.Entries(0)
}

func TestExecutor_DispatchMarksRunBeforeRemoteCall(t *testing.T) {
	f := newFixture(t, 0, task("a", model.ScheduleDaily, model.ActionStats))
	release := make(chan struct{})
	f.invoker.block = release
	f.executor.Start(context.Background())

	require.NoError(t, f.executor.Dispatch(context.Background(), task("a", model.ScheduleDaily, model.ActionStats), tick))

	stored, err := f.tasks.Get("a")
	require.NoError(t, err)
	require.NotNil(t, stored.LastRun)
	assert.True(t, tick.Equal(*stored.LastRun))
	assert.Equal(t, 1, stored.RunCount)

	reloaded := storage.NewTaskStore(f.kv, zaptest.NewLogger(t))
	require.NoError(t, reloaded.Load(context.Background()))
	persisted, err := reloaded.Get("a")
	require.NoError(t, err)
	assert.Equal(t, 1, persisted.RunCount, "bookkeeping is persisted before the call completes")
	assert.Zero(t, f.log.Len())

	close(release)
	entries := waitForLog(t, f.log, 1)
	assert.True(t, entries[0].Success)
	assert.Equal(t, msgAutoSucceeded, entries[0].Message)
	assert.Equal(t, "task a", entries[0].TaskName)
}

func TestExecutor_BackupQuotaExceeded(t *testing.T) {
	f := newFixture(t, 0, task("backup", model.ScheduleDaily, model.ActionBackup))
	f.invoker.err = &handler.ApplicationError{Action: model.ActionBackup, Message: "quota exceeded"}
	f.executor.Start(context.Background())

	require.NoError(t, f.executor.Dispatch(context.Background(), task("backup", model.ScheduleDaily, model.ActionBackup), tick))

	entries := waitForLog(t, f.log, 1)
	assert.False(t, entries[0].Success)
	assert.Equal(t, "automatic execution failed: quota exceeded", entries[0].Message)

	stored, err := f.tasks.Get("backup")
	require.NoError(t, err)
	assert.True(t, stored.Active, "a failed recurring task stays active")
	assert.Equal(t, 1, stored.RunCount)

	require.Eventually(t, func() bool { return len(f.notifier.all()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, model.NotificationError, f.notifier.all()[0].Level)
}

func TestExecutor_OnceTaskDeactivates(t *testing.T) {
	for _, remoteErr := range []error{nil, errors.New("unreachable")} {
		f := newFixture(t, 0, task("once", model.ScheduleOnce, model.ActionOpenForm))
		f.invoker.err = remoteErr

		entry := f.executor.Execute(context.Background(), mustMark(t, f, "once"))
		assert.Equal(t, remoteErr == nil, entry.Success)

		stored, err := f.tasks.Get("once")
		require.NoError(t, err)
		assert.False(t, stored.Active)
		assert.Equal(t, 1, stored.RunCount)
	}
}

func mustMark(t *testing.T, f *fixture, id string) model.ScheduledTask {
	t.Helper()
	marked, err := f.executor.markRun(context.Background(), id, tick)
	require.NoError(t, err)
	return marked
}

func TestExecutor_QueueFull(t *testing.T) {
	f := newFixture(t, 1,
		task("a", model.ScheduleDaily, model.ActionStats),
		task("b", model.ScheduleDaily, model.ActionStats),
		task("c", model.ScheduleOnce, model.ActionOpenForm),
	)
	ctx := context.Background()

	require.NoError(t, f.executor.Dispatch(ctx, task("a", model.ScheduleDaily, model.ActionStats), tick))
	err := f.executor.Dispatch(ctx, task("b", model.ScheduleDaily, model.ActionStats), tick)
	assert.ErrorIs(t, err, ErrQueueFull)

	entries := f.log.Entries(0)
	require.Len(t, entries, 1)
	assert.False(t, entries[0].Success)
	assert.Equal(t, "task b", entries[0].TaskName)
	assert.Zero(t, f.invoker.callCount(), "nothing runs before Start")

	t.Run("one-time task is consumed", func(t *testing.T) {
		err := f.executor.Dispatch(ctx, task("c", model.ScheduleOnce, model.ActionOpenForm), tick)
		assert.ErrorIs(t, err, ErrQueueFull)

		stored, err := f.tasks.Get("c")
		require.NoError(t, err)
		assert.False(t, stored.Active)
		assert.Equal(t, 1, stored.RunCount)
		assert.Equal(t, "automatic execution failed: execution queue full", f.log.Entries(1)[0].Message)
	})

	f.executor.Start(ctx)
	entries = waitForLog(t, f.log, 3)
	assert.Equal(t, msgAutoSucceeded, entries[0].Message)
	assert.Equal(t, "task a", entries[0].TaskName)
}

func TestExecutor_StopDropsQueuedTasks(t *testing.T) {
	f := newFixture(t, 1,
		task("a", model.ScheduleDaily, model.ActionStats),
		task("c", model.ScheduleOnce, model.ActionOpenForm),
	)
	f.invoker.block = make(chan struct{})
	ctx := context.Background()
	f.executor.Start(ctx)

	require.NoError(t, f.executor.Dispatch(ctx, task("a", model.ScheduleDaily, model.ActionStats), tick))
	require.Eventually(t, func() bool { return f.invoker.callCount() == 1 }, time.Second, 5*time.Millisecond)
	require.NoError(t, f.executor.Dispatch(ctx, task("c", model.ScheduleOnce, model.ActionOpenForm), tick))

	f.executor.Stop()

	assert.Equal(t, 1, f.invoker.callCount(), "queued task never reaches the endpoint")
	stored, err := f.tasks.Get("c")
	require.NoError(t, err)
	assert.False(t, stored.Active)
	assert.Equal(t, 1, stored.RunCount)

	entries := f.log.Entries(0)
	require.Len(t, entries, 2)
	assert.Equal(t, "task c", entries[0].TaskName)
	assert.Equal(t, "automatic execution failed: executor stopped", entries[0].Message)
	assert.Equal(t, "task a", entries[1].TaskName)
	assert.False(t, entries[1].Success)
}

func TestExecutor_DispatchUnknownTask(t *testing.T) {
	f := newFixture(t, 0)
	err := f.executor.Dispatch(context.Background(), task("gone", model.ScheduleDaily, model.ActionStats), tick)
	assert.ErrorIs(t, err, storage.ErrTaskNotFound)
}

func TestExecutor_PersistenceFailureStillExecutes(t *testing.T) {
	f := newFixture(t, 0, task("a", model.ScheduleDaily, model.ActionStats))
	f.kv.FailWrites(errors.New("quota exceeded"))
	f.executor.Start(context.Background())

	require.NoError(t, f.executor.Dispatch(context.Background(), task("a", model.ScheduleDaily, model.ActionStats), tick))
	entries := waitForLog(t, f.log, 1)
	assert.True(t, entries[0].Success)

	stored, err := f.tasks.Get("a")
	require.NoError(t, err)
	assert.Equal(t, 1, stored.RunCount)
}

func TestExecutor_WorkerSurvivesPanic(t *testing.T) {
	f := newFixture(t, 0,
		task("bad", model.ScheduleDaily, model.ActionDelete),
		task("good", model.ScheduleDaily, model.ActionStats),
	)
	f.invoker.panicOn = model.ActionDelete
	f.executor.Start(context.Background())
	ctx := context.Background()

	require.NoError(t, f.executor.Dispatch(ctx, task("bad", model.ScheduleDaily, model.ActionDelete), tick))
	require.NoError(t, f.executor.Dispatch(ctx, task("good", model.ScheduleDaily, model.ActionStats), tick))

	entries := waitForLog(t, f.log, 1)
	assert.Equal(t, "task good", entries[0].TaskName)
	assert.Equal(t, 2, f.invoker.callCount())
}

func TestExecutor_RunNow(t *testing.T) {
	f := newFixture(t, 0, task("a", model.ScheduleOnce, model.ActionResults1))
	ctx := context.Background()

	entry, err := f.executor.RunNow(ctx, task("a", model.ScheduleOnce, model.ActionResults1), tick)
	require.NoError(t, err)
	assert.True(t, entry.Success)
	assert.Equal(t, msgManualSucceeded, entry.Message)

	stored, err := f.tasks.Get("a")
	require.NoError(t, err)
	assert.Equal(t, 1, stored.RunCount)
	assert.True(t, stored.Active, "a manual run does not consume a one-time task")

	f.invoker.err = errors.New("timeout")
	entry, err = f.executor.RunNow(ctx, task("a", model.ScheduleOnce, model.ActionResults1), tick.Add(time.Minute))
	require.NoError(t, err)
	assert.False(t, entry.Success)
	assert.Equal(t, "manual execution failed: timeout", entry.Message)

	_, err = f.executor.RunNow(ctx, task("missing", model.ScheduleDaily, model.ActionStats), tick)
	assert.ErrorIs(t, err, storage.ErrTaskNotFound)
}

func TestExecutor_StartStop(t *testing.T) {
	f := newFixture(t, 0, task("a", model.ScheduleDaily, model.ActionStats))
	ctx := context.Background()

	f.executor.Start(ctx)
	f.executor.Start(ctx)
	f.executor.Stop()
	f.executor.Stop()

	require.NoError(t, f.executor.Dispatch(ctx, task("a", model.ScheduleDaily, model.ActionStats), tick))
	assert.Zero(t, f.log.Len())

	f.executor.Start(ctx)
	waitForLog(t, f.log, 1)
}
