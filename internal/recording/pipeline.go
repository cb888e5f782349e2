package recording

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"chatcall/internal/calllog"
	"chatcall/pkg/logger"
)

// PipelineConfig tunes the stability wait and worker pool.
type PipelineConfig struct {
	Workers           int
	StabilityRetries  int
	StabilityInterval time.Duration
	// MergeTimeout bounds one encoder run.
	MergeTimeout time.Duration
}

func (c PipelineConfig) withDefaults() PipelineConfig {
	out := c
	if out.Workers <= 0 {
		out.Workers = 2
	}
	if out.StabilityRetries <= 0 {
		out.StabilityRetries = 10
	}
	if out.StabilityInterval <= 0 {
		out.StabilityInterval = time.Second
	}
	if out.MergeTimeout <= 0 {
		out.MergeTimeout = 10 * time.Minute
	}
	return out
}

// Pipeline runs merges off the signaling path. At most one merge per call id
// is queued or running at a time; the only visible result is the CallLog.
type Pipeline struct {
	store   calllog.Store
	storage *Storage
	encoder Encoder
	guard   Guard
	cfg     PipelineConfig
	log     *slog.Logger

	sleep func(ctx context.Context, d time.Duration) error

	mu       sync.Mutex
	inFlight map[int64]struct{}

	queue   chan int64
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
}

func NewPipeline(store calllog.Store, storage *Storage, encoder Encoder, cfg PipelineConfig, log *slog.Logger) *Pipeline {
	cfg = cfg.withDefaults()
	return &Pipeline{
		store:    store,
		storage:  storage,
		encoder:  encoder,
		cfg:      cfg,
		log:      logger.Component(log, "merge"),
		sleep:    sleepCtx,
		inFlight: map[int64]struct{}{},
		queue:    make(chan int64, cfg.Workers*16),
	}
}

// WithGuard adds a cross-process exclusion around each merge.
func (p *Pipeline) WithGuard(g Guard) *Pipeline {
	p.guard = g
	return p
}

// Start launches the worker goroutines. Work stops when ctx is cancelled or
// Close is called.
func (p *Pipeline) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return
	}
	p.started = true
	p.ctx, p.cancel = context.WithCancel(ctx)
	for i := 0; i < p.cfg.Workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
}

// Close stops the workers and waits for running merges to return.
// Queued ids that never started keep their processing flag.
func (p *Pipeline) Close() {
	p.mu.Lock()
	cancel := p.cancel
	p.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	p.wg.Wait()
}

// Submit queues a merge for callID unless one is already queued or running.
// It reports whether the id was queued.
func (p *Pipeline) Submit(callID int64) bool {
	p.mu.Lock()
	if _, busy := p.inFlight[callID]; busy {
		p.mu.Unlock()
		p.log.Debug("merge already in flight", "call_id", callID)
		return false
	}
	if !p.started {
		p.mu.Unlock()
		p.log.Warn("merge pipeline not started", "call_id", callID)
		return false
	}
	p.inFlight[callID] = struct{}{}
	ctx := p.ctx
	p.mu.Unlock()

	select {
	case p.queue <- callID:
		return true
	case <-ctx.Done():
		p.release(callID)
		return false
	}
}

// InFlight reports whether a merge for callID is queued or running.
func (p *Pipeline) InFlight(callID int64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.inFlight[callID]
	return ok
}

func (p *Pipeline) release(callID int64) {
	p.mu.Lock()
	delete(p.inFlight, callID)
	p.mu.Unlock()
}

func (p *Pipeline) worker() {
	defer p.wg.Done()
	for {
		select {
		case <-p.ctx.Done():
			return
		case id := <-p.queue:
			p.run(p.ctx, id)
		}
	}
}

// run executes one merge and always releases the in-flight mark.
func (p *Pipeline) run(ctx context.Context, callID int64) {
	defer p.release(callID)
	defer func() {
		if r := recover(); r != nil {
			p.log.Error("merge panicked", "call_id", callID, "panic", r)
			p.fail(callID, "panic", fmt.Errorf("%v", r))
		}
	}()

	log := p.log.With("call_id", callID)

	if p.guard != nil {
		release, ok, err := p.guard.TryAcquire(ctx, callID)
		if err != nil {
			p.fail(callID, "guard", err)
			return
		}
		if !ok {
			log.Debug("merge held by another instance")
			return
		}
		defer release()
	}

	rec, chunks, stage, err := p.merge(ctx, callID)
	if err != nil {
		p.fail(callID, stage, err)
		return
	}
	if err := p.store.CompleteRecording(context.WithoutCancel(ctx), callID, rec); err != nil {
		p.fail(callID, "persist", err)
		return
	}
	log.Info("recording merged", "chunks", chunks, "size", rec.Size)
}

func (p *Pipeline) merge(ctx context.Context, callID int64) (calllog.Recording, int, string, error) {
	dir := p.storage.CallDir(callID)
	if _, err := os.Stat(dir); err != nil {
		return calllog.Recording{}, 0, "list", fmt.Errorf("call directory: %w", err)
	}

	chunks, err := p.waitStable(ctx, callID)
	if err != nil {
		return calllog.Recording{}, 0, "stability", err
	}
	if len(chunks) == 0 {
		return calllog.Recording{}, 0, "stability", errNoChunks
	}

	inputs := make([]string, 0, len(chunks))
	for _, c := range chunks {
		inputs = append(inputs, c.Path)
	}
	output := filepath.Join(dir, OutputName)

	encCtx, cancel := context.WithTimeout(ctx, p.cfg.MergeTimeout)
	defer cancel()
	if err := p.encoder.Concat(encCtx, inputs, output); err != nil {
		return calllog.Recording{}, len(chunks), "encode", err
	}

	info, err := os.Stat(output)
	if err != nil {
		return calllog.Recording{}, len(chunks), "verify", err
	}
	if info.Size() == 0 {
		return calllog.Recording{}, len(chunks), "verify", errEmptyOutput
	}
	return calllog.Recording{
		Path:     OutputRel(callID),
		Size:     info.Size(),
		MimeType: MimeType,
	}, len(chunks), "", nil
}

// waitStable polls the chunk listing until two consecutive polls match, or the
// retry budget runs out, in which case the latest listing is used.
func (p *Pipeline) waitStable(ctx context.Context, callID int64) ([]Chunk, error) {
	prev, err := p.storage.ListChunks(callID)
	if err != nil {
		return nil, err
	}
	for i := 0; i < p.cfg.StabilityRetries; i++ {
		if err := p.sleep(ctx, p.cfg.StabilityInterval); err != nil {
			return nil, err
		}
		cur, err := p.storage.ListChunks(callID)
		if err != nil {
			return nil, err
		}
		if sameChunks(prev, cur) {
			return cur, nil
		}
		prev = cur
	}
	p.log.Debug("chunk set still changing, merging current listing", "call_id", callID, "chunks", len(prev))
	return prev, nil
}

func (p *Pipeline) fail(callID int64, stage string, err error) {
	p.log.Warn("recording merge failed", "call_id", callID, "stage", stage, "err", err)

	// Runs even after shutdown so the flags never stay stuck.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if ferr := p.store.FailRecording(ctx, callID); ferr != nil {
		p.log.Warn("recording flag reset failed", "call_id", callID, "err", ferr)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
