package tts

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/iabetor/voicestudio/internal/audio"
)

// fakeBackend 可控的测试后端：记录调用顺序并检测并发调用。
type fakeBackend struct {
	name  string
	delay time.Duration

	mu     sync.Mutex
	err    error
	wf     *audio.Waveform
	panics bool
	calls  []GenerateInput
	events []string
	closed bool

	active    int32
	maxActive int32
}

func newFakeBackend(sampleRate int) *fakeBackend {
	samples := make([]float32, sampleRate/2)
	for i := range samples {
		samples[i] = 0.1
	}
	return &fakeBackend{
		name: "fake-model",
		wf:   &audio.Waveform{Samples: samples, SampleRate: sampleRate},
	}
}

func (b *fakeBackend) Name() string { return b.name }

func (b *fakeBackend) Generate(ctx context.Context, in GenerateInput) (*audio.Waveform, error) {
	n := atomic.AddInt32(&b.active, 1)
	defer atomic.AddInt32(&b.active, -1)
	for {
		m := atomic.LoadInt32(&b.maxActive)
		if n <= m || atomic.CompareAndSwapInt32(&b.maxActive, m, n) {
			break
		}
	}

	b.mu.Lock()
	b.calls = append(b.calls, in)
	b.events = append(b.events, "start:"+in.Text)
	err, wf, panics := b.err, b.wf, b.panics
	b.mu.Unlock()

	if b.delay > 0 {
		select {
		case <-time.After(b.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	b.mu.Lock()
	b.events = append(b.events, "end:"+in.Text)
	b.mu.Unlock()

	if panics {
		panic("boom")
	}
	if err != nil {
		return nil, err
	}
	return wf, nil
}

func (b *fakeBackend) Close() {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
}

func (b *fakeBackend) setErr(err error) {
	b.mu.Lock()
	b.err = err
	b.mu.Unlock()
}

func (b *fakeBackend) callCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.calls)
}

func (b *fakeBackend) eventLog() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.events...)
}

func realSelector(b Backend, opts SelectorOptions) *BackendSelector {
	return NewBackendSelector(
		BackendCapability{Kind: "fake", Available: true},
		func() (Backend, error) { return b, nil },
		opts,
	)
}

// blockingSynth 第一次调用阻塞直到 release 被关闭。
type blockingSynth struct {
	started chan struct{}
	release chan struct{}
	once    sync.Once

	mu    sync.Mutex
	order []string
}

func newBlockingSynth() *blockingSynth {
	return &blockingSynth{started: make(chan struct{}), release: make(chan struct{})}
}

func (s *blockingSynth) Synthesize(_ context.Context, text, _ string, cfg GenerationConfig) (*Synthesis, error) {
	s.once.Do(func() { close(s.started) })
	<-s.release

	s.mu.Lock()
	s.order = append(s.order, text)
	s.mu.Unlock()

	return &Synthesis{Waveform: SynthesizePlaceholder(text, cfg), Backend: PlaceholderName}, nil
}

func (s *blockingSynth) executed() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.order...)
}

type fakeRecorder struct {
	mu      sync.Mutex
	records []string
	err     error
}

func (r *fakeRecorder) Record(backend string, fallback, failed bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, fmt.Sprintf("%s fallback=%v failed=%v", backend, fallback, failed))
	return r.err
}

func (r *fakeRecorder) all() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.records...)
}
