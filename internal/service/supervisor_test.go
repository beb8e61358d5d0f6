package service

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/bnema/hlsd/internal/domain"
	"github.com/bnema/hlsd/internal/infrastructure/logger"
	"github.com/bnema/hlsd/internal/port"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSupervisor_Complete(t *testing.T) {
	env := newTestEnv(t)
	item := env.seed(t, "vid1", 30)
	bus := &recordingBus{}
	sup := NewSupervisor(scriptEncoder{script: completeScript(5)}, env.inspector, env.cache, env.writer, bus,
		logger.Discard(), SupervisorConfig{PersistInterval: time.Hour})

	res := sup.Run(context.Background(), item.Job())

	assert.Equal(t, OutcomeComplete, res.Outcome)
	assert.Equal(t, 0, res.ExitCode)
	assert.NotEmpty(t, res.RunID)
	assert.Equal(t, domain.HLSState{Status: domain.HLSStatusComplete, SegmentsGenerated: 5, SegmentsExpected: 5}, res.State)

	rec, ok := env.cache.Get("vid1")
	require.True(t, ok)
	assert.Equal(t, domain.ProgressRecord{
		Status:            domain.HLSStatusComplete,
		ProgressPct:       100,
		Step:              domain.StepDone,
		SegmentsGenerated: 5,
		SegmentsExpected:  5,
	}, rec)

	stored, err := env.store.Get(context.Background(), "vid1")
	require.NoError(t, err)
	assert.Equal(t, domain.HLSStatusComplete, stored.HLSStatus)
	assert.Equal(t, 100, stored.HLSProgressPct)
	assert.Equal(t, domain.StepDone, stored.HLSStep)
	assert.Empty(t, stored.HLSError)
	assert.Equal(t, 5, stored.SegmentsExpected)

	events := bus.snapshot()
	require.NotEmpty(t, events)
	assert.Equal(t, domain.StepStarting, events[0].Record.Step)
	assert.Equal(t, domain.StepDone, events[len(events)-1].Record.Step)
}

func TestSupervisor_ProgressIsMonotonic(t *testing.T) {
	env := newTestEnv(t)
	item := env.seed(t, "vid1", 30)
	bus := &recordingBus{}
	script := `
echo out_time_us=3000000
echo out_time_us=12000000
echo out_time_us=6000000
echo out_time=00:00:15.000000
echo out_time_us=junk
echo out_time_us=90000000
echo progress=end
echo out_time_us=1000000
`
	sup := NewSupervisor(scriptEncoder{script: script}, env.inspector, env.cache, env.writer, bus,
		logger.Discard(), SupervisorConfig{})

	res := sup.Run(context.Background(), item.Job())

	var running []int
	for _, ev := range bus.snapshot() {
		if ev.Type == EventProgress {
			running = append(running, ev.Record.ProgressPct)
		}
	}
	assert.Equal(t, []int{10, 40, 50, 99}, running)
	for _, pct := range running {
		assert.LessOrEqual(t, pct, 99)
	}

	// Exit 0 without output on disk is not a completion.
	assert.Equal(t, OutcomeFinalizing, res.Outcome)
	assert.Equal(t, 99, res.ProgressPct)
	rec, _ := env.cache.Get("vid1")
	assert.Equal(t, domain.HLSStatusProcessing, rec.Status)
	assert.Equal(t, domain.StepFinalizing, rec.Step)
}

func TestSupervisor_FinalizingReportsAtLeastOnePercent(t *testing.T) {
	env := newTestEnv(t)
	item := env.seed(t, "vid1", 0)
	sup := env.supervisor(scriptEncoder{script: `echo out_time_us=5000000`}, 0)

	res := sup.Run(context.Background(), item.Job())

	assert.Equal(t, OutcomeFinalizing, res.Outcome)
	assert.Equal(t, 1, res.ProgressPct)
	stored, err := env.store.Get(context.Background(), "vid1")
	require.NoError(t, err)
	assert.Equal(t, domain.StepFinalizing, stored.HLSStep)
	assert.Equal(t, 1, stored.HLSProgressPct)
}

func TestSupervisor_ExitCodeFailure(t *testing.T) {
	env := newTestEnv(t)
	item := env.seed(t, "vid1", 30)
	script := `
echo out_time_us=15000000
echo "Conversion failed!"
exit 2
`
	sup := env.supervisor(scriptEncoder{script: script}, 0)

	res := sup.Run(context.Background(), item.Job())

	assert.Equal(t, OutcomeFailed, res.Outcome)
	assert.Equal(t, 2, res.ExitCode)
	assert.Contains(t, res.Error, "2")
	assert.Contains(t, res.Error, "Conversion failed!")

	rec, ok := env.cache.Get("vid1")
	require.True(t, ok)
	assert.Equal(t, domain.HLSStatusFailed, rec.Status)
	assert.Equal(t, domain.StepError, rec.Step)
	assert.Contains(t, rec.Error, "2")
	assert.Equal(t, 50, rec.ProgressPct, "failure keeps the last percentage")

	stored, err := env.store.Get(context.Background(), "vid1")
	require.NoError(t, err)
	assert.Equal(t, domain.HLSStatusFailed, stored.HLSStatus)
	assert.Equal(t, domain.StepError, stored.HLSStep)
	assert.Contains(t, stored.HLSError, "encoder exited with code 2")
}

func TestSupervisor_LaunchFailure(t *testing.T) {
	env := newTestEnv(t)
	item := env.seed(t, "vid1", 30)
	enc := scriptEncoder{binary: filepath.Join(t.TempDir(), "no-such-encoder")}
	sup := env.supervisor(enc, 0)

	res := sup.Run(context.Background(), item.Job())

	assert.Equal(t, OutcomeLaunchFailed, res.Outcome)
	assert.Contains(t, res.Error, "launch encoder")

	rec, _ := env.cache.Get("vid1")
	assert.Equal(t, domain.HLSStatusFailed, rec.Status)
	assert.Equal(t, domain.StepError, rec.Step)
	assert.Contains(t, rec.Error, "no-such-encoder")
}

func TestSupervisor_InvalidID(t *testing.T) {
	env := newTestEnv(t)
	sup := env.supervisor(scriptEncoder{script: "exit 0"}, 0)

	res := sup.Run(context.Background(), domain.EncodeJob{MediaID: "../escape", SourcePath: "/tmp/x.mp4"})

	assert.Equal(t, OutcomeLaunchFailed, res.Outcome)
	_, err := os.Stat(filepath.Join(env.layout.Root(), "..", "escape"))
	assert.True(t, os.IsNotExist(err))
}

func TestSupervisor_Interrupted(t *testing.T) {
	env := newTestEnv(t)
	item := env.seed(t, "vid1", 30)
	sup := env.supervisor(scriptEncoder{script: "echo out_time_us=3000000\nexec sleep 30"}, 0)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan Result, 1)
	go func() { done <- sup.Run(ctx, item.Job()) }()

	require.Eventually(t, func() bool {
		rec, ok := env.cache.Get("vid1")
		return ok && rec.Step == domain.StepEncoding
	}, 5*time.Second, 10*time.Millisecond)
	cancel()

	select {
	case res := <-done:
		assert.Equal(t, OutcomeInterrupted, res.Outcome)
	case <-time.After(10 * time.Second):
		t.Fatal("supervisor did not return after cancellation")
	}

	stored, err := env.store.Get(context.Background(), "vid1")
	require.NoError(t, err)
	assert.Equal(t, domain.HLSStatusFailed, stored.HLSStatus)
	assert.Equal(t, "encode interrupted", stored.HLSError)
}

func TestSupervisor_PersistsRunningProgress(t *testing.T) {
	env := newTestEnv(t)
	item := env.seed(t, "vid1", 100)
	script := `
echo out_time_us=10000000
sleep 0.2
echo out_time_us=20000000
exit 3
`
	sup := env.supervisor(scriptEncoder{script: script}, time.Hour)

	sup.Run(context.Background(), item.Job())

	// Only the first running update fits in the interval; the failure
	// write keeps the last stored percentage.
	stored, err := env.store.Get(context.Background(), "vid1")
	require.NoError(t, err)
	assert.Equal(t, 10, stored.HLSProgressPct)
	assert.Equal(t, domain.HLSStatusFailed, stored.HLSStatus)
}

// encodingWriteStore makes running-progress writes slow or contended and
// passes every other write through.
type encodingWriteStore struct {
	port.MediaStore
	delay time.Duration
	busy  bool

	encodingWrites atomic.Int32
}

func (s *encodingWriteStore) UpdateHLS(ctx context.Context, id string, u domain.HLSUpdate) error {
	if u.Step == nil || *u.Step != domain.StepEncoding {
		return s.MediaStore.UpdateHLS(ctx, id, u)
	}
	s.encodingWrites.Add(1)
	time.Sleep(s.delay)
	if s.busy {
		return domain.ErrStoreBusy
	}
	return s.MediaStore.UpdateHLS(ctx, id, u)
}

type timedEvent struct {
	event Event
	at    time.Time
}

type timedBus struct {
	mu     sync.Mutex
	events []timedEvent
}

func (b *timedBus) Publish(_ string, event Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, timedEvent{event: event, at: time.Now()})
}

func (b *timedBus) progress() []timedEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []timedEvent
	for _, e := range b.events {
		if e.event.Type == EventProgress {
			out = append(out, e)
		}
	}
	return out
}

func TestSupervisor_ContendedProgressWritesDoNotDelayLiveProgress(t *testing.T) {
	env := newTestEnv(t)
	item := env.seed(t, "vid1", 30)
	store := &encodingWriteStore{MediaStore: env.store, busy: true}
	// 100ms + 200ms + 400ms of backoff per contended write.
	writer := NewMetadataWriter(store, logger.Discard(), WithRetryPolicy(4, 100*time.Millisecond))
	bus := &timedBus{}
	sup := NewSupervisor(scriptEncoder{script: completeScript(5)}, env.inspector, env.cache, writer, bus,
		logger.Discard(), SupervisorConfig{PersistInterval: time.Millisecond})

	res := sup.Run(context.Background(), item.Job())

	require.Equal(t, OutcomeComplete, res.Outcome)
	assert.Positive(t, store.encodingWrites.Load(), "running progress was persisted")

	progress := bus.progress()
	require.GreaterOrEqual(t, len(progress), 2)
	gap := progress[1].at.Sub(progress[0].at)
	assert.Less(t, gap, 300*time.Millisecond, "second progress update waited on the store")

	stored, err := env.store.Get(context.Background(), "vid1")
	require.NoError(t, err)
	assert.Equal(t, domain.HLSStatusComplete, stored.HLSStatus)
	assert.Equal(t, domain.StepDone, stored.HLSStep)
}

func TestSupervisor_RunningWriteNeverLandsAfterFinalStatus(t *testing.T) {
	env := newTestEnv(t)
	item := env.seed(t, "vid1", 30)
	store := &encodingWriteStore{MediaStore: env.store, delay: 150 * time.Millisecond}
	writer := NewMetadataWriter(store, logger.Discard(), WithRetryPolicy(2, time.Millisecond))
	sup := NewSupervisor(scriptEncoder{script: completeScript(5)}, env.inspector, env.cache, writer, env.events,
		logger.Discard(), SupervisorConfig{PersistInterval: time.Millisecond})

	res := sup.Run(context.Background(), item.Job())
	require.Equal(t, OutcomeComplete, res.Outcome)
	require.Positive(t, store.encodingWrites.Load())

	// Give a straggling write the chance to land if one were still running.
	time.Sleep(200 * time.Millisecond)

	stored, err := env.store.Get(context.Background(), "vid1")
	require.NoError(t, err)
	assert.Equal(t, domain.HLSStatusComplete, stored.HLSStatus)
	assert.Equal(t, domain.StepDone, stored.HLSStep)
	assert.Equal(t, 100, stored.HLSProgressPct)
}

func TestFailureMessage_TruncatesDetail(t *testing.T) {
	err := runExit(t, 4)
	long := ""
	for len(long) < 500 {
		long += "x"
	}

	msg := failureMessage(err, long)

	assert.Contains(t, msg, "encoder exited with code 4: ")
	assert.LessOrEqual(t, len(msg), len("encoder exited with code 4: ")+maxErrorDetail+3)
}

func TestFailureMessage_KeepsRunesWhole(t *testing.T) {
	err := runExit(t, 1)
	tail := "x" + strings.Repeat("ü", maxErrorDetail)

	msg := failureMessage(err, tail)

	assert.True(t, utf8.ValidString(msg), "message split a multi-byte character")
	assert.NotContains(t, msg, string(utf8.RuneError))
	assert.True(t, strings.HasSuffix(msg, "..."))
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, 0, exitCode(nil))
	assert.Equal(t, 4, exitCode(runExit(t, 4)))
	assert.Equal(t, -1, exitCode(assert.AnError))
}
