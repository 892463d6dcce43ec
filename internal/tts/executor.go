package tts

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/iabetor/voicestudio/internal/audio"
	"github.com/iabetor/voicestudio/internal/logger"
)

var (
	// ErrGenerationFailed 真实后端和占位回退都无法产出音频文件。
	ErrGenerationFailed = errors.New("音频生成失败")
	// ErrQueueFull 等待队列已满。
	ErrQueueFull = errors.New("生成队列已满")
	// ErrExecutorClosed 执行器已关闭。
	ErrExecutorClosed = errors.New("生成执行器已关闭")
)

// DefaultQueueSize 默认等待队列容量。
const DefaultQueueSize = 32

// Job 一个合成任务。
type Job struct {
	Text            string
	VoiceSamplePath string
	OutputPath      string
	Config          GenerationConfig
}

// Result 任务结果。
type Result struct {
	Path     string
	Backend  string
	Fallback bool
	Elapsed  time.Duration
	Err      error
}

// StatsRecorder 记录每个任务的结果，失败只影响统计不影响任务。
type StatsRecorder interface {
	Record(backend string, fallback, failed bool) error
}

type task struct {
	job    Job
	result chan Result
}

// TaskExecutor 单 worker 的合成执行器，所有合成调用按提交顺序串行执行。
type TaskExecutor struct {
	synth    Synthesizer
	recorder StatsRecorder
	maxQueue int

	mu      sync.Mutex
	cond    *sync.Cond
	queue   []*task
	running bool
	closed  bool
	done    chan struct{}
}

// NewTaskExecutor 创建执行器并启动唯一的 worker。
// queueSize <= 0 时使用 DefaultQueueSize；recorder 可以为 nil。
func NewTaskExecutor(synth Synthesizer, queueSize int, recorder StatsRecorder) *TaskExecutor {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	e := &TaskExecutor{
		synth:    synth,
		recorder: recorder,
		maxQueue: queueSize,
		done:     make(chan struct{}),
	}
	e.cond = sync.NewCond(&e.mu)
	go e.loop()
	return e
}

// SubmitAsync 提交任务，返回只会收到一个结果的 channel。
func (e *TaskExecutor) SubmitAsync(job Job) (<-chan Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil, ErrExecutorClosed
	}
	if len(e.queue) >= e.maxQueue {
		return nil, fmt.Errorf("%w: %d 个任务等待中", ErrQueueFull, len(e.queue))
	}

	t := &task{job: job, result: make(chan Result, 1)}
	e.queue = append(e.queue, t)
	e.cond.Signal()
	return t.result, nil
}

// Submit 提交任务并等待结果。ctx 取消只会让调用方提前返回，任务仍会执行完成。
func (e *TaskExecutor) Submit(ctx context.Context, job Job) (string, error) {
	ch, err := e.SubmitAsync(job)
	if err != nil {
		return "", err
	}

	select {
	case res := <-ch:
		return res.Path, res.Err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Pending 返回等待中和执行中的任务数。
func (e *TaskExecutor) Pending() int {
	e.mu.Lock()
	defer e.mu.Unlock()

	n := len(e.queue)
	if e.running {
		n++
	}
	return n
}

// Close 停止接收新任务，执行完队列中剩余任务后返回。
func (e *TaskExecutor) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		<-e.done
		return
	}
	e.closed = true
	e.cond.Broadcast()
	e.mu.Unlock()

	<-e.done
	logger.Info("[executor] 生成执行器已关闭")
}

func (e *TaskExecutor) loop() {
	defer close(e.done)

	for {
		t := e.next()
		if t == nil {
			return
		}
		res := e.run(t.job)

		e.mu.Lock()
		e.running = false
		e.mu.Unlock()

		t.result <- res
	}
}

// next 阻塞直到取到队首任务；关闭且队列为空时返回 nil。
func (e *TaskExecutor) next() *task {
	e.mu.Lock()
	defer e.mu.Unlock()

	for len(e.queue) == 0 && !e.closed {
		e.cond.Wait()
	}
	if len(e.queue) == 0 {
		return nil
	}

	t := e.queue[0]
	e.queue[0] = nil
	e.queue = e.queue[1:]
	e.running = true
	return t
}

func (e *TaskExecutor) run(job Job) Result {
	start := time.Now()
	res := Result{Path: job.OutputPath}

	// 任务一旦开始就执行到底，不受提交方 ctx 影响
	syn, err := e.synth.Synthesize(context.Background(), job.Text, job.VoiceSamplePath, job.Config)
	if err == nil && syn != nil {
		res.Backend = syn.Backend
		res.Fallback = syn.Fallback
		err = audio.WriteWAVFile(job.OutputPath, syn.Waveform)
	} else if err == nil {
		err = errors.New("合成器未返回结果")
	}

	res.Elapsed = time.Since(start)
	if err != nil {
		res.Path = ""
		res.Err = fmt.Errorf("%w: %w", ErrGenerationFailed, err)
		logger.Errorf("[executor] 生成失败 (%s): %v", job.OutputPath, err)
	} else {
		logger.Infof("[executor] 已生成 %s (backend=%s, fallback=%v, 耗时 %v)",
			job.OutputPath, res.Backend, res.Fallback, res.Elapsed.Round(time.Millisecond))
	}

	if e.recorder != nil {
		backend := res.Backend
		if backend == "" {
			backend = PlaceholderName
		}
		if rerr := e.recorder.Record(backend, res.Fallback, res.Err != nil); rerr != nil {
			logger.Warnf("[executor] 记录生成统计失败: %v", rerr)
		}
	}
	return res
}
