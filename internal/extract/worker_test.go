package extract

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/goleak"

	"github.com/leadgate/leadgate/internal/lead"
	"github.com/leadgate/leadgate/internal/testutil"
)

// fakeRunner counts processed jobs, optionally blocking until released.
type fakeRunner struct {
	processed atomic.Int64
	started   chan struct{} // nil = no start signal
	block     chan struct{} // nil = never block
	panicOn   string        // session id that triggers a panic
}

func (r *fakeRunner) Run(_ context.Context, job Job) {
	if r.started != nil {
		r.started <- struct{}{}
	}
	if r.block != nil {
		<-r.block
	}
	if r.panicOn != "" && job.SessionID == r.panicOn {
		panic("boom")
	}
	r.processed.Add(1)
}

func TestWorker_ProcessesJobs(t *testing.T) {
	defer goleak.VerifyNone(t)

	runner := &fakeRunner{}
	w := NewWorker(WorkerConfig{
		Runner: runner,
		Logger: testutil.DiscardLogger(),
	})

	for i := 0; i < 5; i++ {
		assert.True(t, w.Submit(Job{SessionID: "s", RequestType: lead.RequestTypeGeneric}))
	}
	w.Close()

	assert.Equal(t, int64(5), runner.processed.Load())
}

func TestWorker_SubmitNeverBlocks(t *testing.T) {
	defer goleak.VerifyNone(t)

	runner := &fakeRunner{
		started: make(chan struct{}, 16),
		block:   make(chan struct{}),
	}
	w := NewWorker(WorkerConfig{
		Runner:  runner,
		Logger:  testutil.DiscardLogger(),
		Workers: 1,
		Queue:   2,
	})

	// First job occupies the single worker; wait until it is in flight so
	// the queue state below is deterministic.
	assert.True(t, w.Submit(Job{SessionID: "s"}))
	<-runner.started

	// Two more fill the queue; the rest must be rejected immediately
	// instead of blocking the chat path.
	accepted := 0
	for i := 0; i < 10; i++ {
		if w.Submit(Job{SessionID: "s"}) {
			accepted++
		}
	}
	assert.Equal(t, 2, accepted)

	close(runner.block)
	w.Close()
	assert.Equal(t, int64(3), runner.processed.Load())
}

func TestWorker_CloseDrainsQueue(t *testing.T) {
	defer goleak.VerifyNone(t)

	runner := &fakeRunner{}
	w := NewWorker(WorkerConfig{
		Runner:  runner,
		Logger:  testutil.DiscardLogger(),
		Workers: 2,
		Queue:   32,
	})

	const jobs = 20
	for i := 0; i < jobs; i++ {
		assert.True(t, w.Submit(Job{SessionID: "s"}))
	}

	w.Close()
	assert.Equal(t, int64(jobs), runner.processed.Load())

	// Submissions after Close are rejected, not panicking sends.
	assert.False(t, w.Submit(Job{SessionID: "late"}))
}

func TestWorker_CloseIsIdempotent(t *testing.T) {
	defer goleak.VerifyNone(t)

	w := NewWorker(WorkerConfig{
		Runner: &fakeRunner{},
		Logger: testutil.DiscardLogger(),
	})
	w.Close()
	w.Close()
}

func TestWorker_ConcurrentCloseAndSubmit(t *testing.T) {
	defer goleak.VerifyNone(t)

	runner := &fakeRunner{}
	w := NewWorker(WorkerConfig{
		Runner: runner,
		Logger: testutil.DiscardLogger(),
	})

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				w.Submit(Job{SessionID: "s"})
			}
		}()
	}
	time.Sleep(time.Millisecond)
	w.Close()
	wg.Wait()
}

func TestWorker_RecoverFromPanic(t *testing.T) {
	defer goleak.VerifyNone(t)

	runner := &fakeRunner{panicOn: "bad"}
	w := NewWorker(WorkerConfig{
		Runner: runner,
		Logger: testutil.DiscardLogger(),
	})

	assert.True(t, w.Submit(Job{SessionID: "bad"}))
	assert.True(t, w.Submit(Job{SessionID: "good"}))
	w.Close()

	// The panicking job was swallowed; the next one still ran.
	assert.Equal(t, int64(1), runner.processed.Load())
}
