package tts

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/iabetor/voicestudio/internal/audio"
	"github.com/iabetor/voicestudio/internal/logger"
)

// BackendKind 当前合成能力的类型。
type BackendKind string

const (
	BackendReal        BackendKind = "real"
	BackendPlaceholder BackendKind = "placeholder"
)

// BackendState BackendSelector 状态快照。
type BackendState struct {
	Kind         BackendKind
	Backend      string // 配置的真实后端类型
	ModelName    string
	Loaded       bool
	Quantization string
	Capability   BackendCapability
	Reason       string // 降级原因
	DowngradedAt time.Time
}

// SelectorOptions BackendSelector 的可选参数。
type SelectorOptions struct {
	Quantization string
	// Timeout 单次真实后端调用的超时，0 表示不限制。
	// 超时按单次失败处理，本次回退占位音频。
	Timeout time.Duration
}

// BackendSelector 持有当前合成后端，只允许 Real → Placeholder 单向转换。
type BackendSelector struct {
	mu           sync.RWMutex
	kind         BackendKind
	backend      Backend
	capability   BackendCapability
	quantization string
	timeout      time.Duration
	reason       string
	downgradedAt time.Time
}

var _ Synthesizer = (*BackendSelector)(nil)

// NewBackendSelector 根据启动时探测的能力加载真实后端。
// 能力不可用或加载失败时记录原因并永久使用占位音频，不会返回错误。
func NewBackendSelector(capability BackendCapability, load BackendLoader, opts SelectorOptions) *BackendSelector {
	s := &BackendSelector{
		kind:         BackendPlaceholder,
		capability:   capability,
		quantization: opts.Quantization,
		timeout:      opts.Timeout,
	}
	if s.quantization == "" {
		s.quantization = "full"
	}

	if !capability.Available || load == nil {
		s.reason = capability.Reason
		logger.Warnf("[tts] 真实后端 %s 不可用，使用占位音频: %s", capability.Kind, capability.Reason)
		return s
	}

	backend, err := safeLoad(load)
	if err == nil && backend == nil {
		err = fmt.Errorf("加载器未返回后端")
	}
	if err != nil {
		s.reason = err.Error()
		s.downgradedAt = time.Now()
		logger.Warnf("[tts] 加载真实后端 %s 失败，回退到占位模式: %v", capability.Kind, err)
		return s
	}

	s.kind = BackendReal
	s.backend = backend
	logger.Infof("[tts] 真实后端已加载: %s (%s, quantization=%s)", backend.Name(), capability.Kind, s.quantization)
	return s
}

// State 返回当前后端类型。
func (s *BackendSelector) State() BackendKind {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.kind
}

// Snapshot 返回当前状态快照。
func (s *BackendSelector) Snapshot() BackendState {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := BackendState{
		Kind:         s.kind,
		Backend:      s.capability.Kind,
		Loaded:       s.kind == BackendReal,
		Quantization: s.quantization,
		Capability:   s.capability,
		Reason:       s.reason,
		DowngradedAt: s.downgradedAt,
	}
	if s.backend != nil {
		st.ModelName = s.backend.Name()
	}
	return st
}

// Downgrade 永久切换到占位模式，重复调用无效果。
func (s *BackendSelector) Downgrade(reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.kind == BackendPlaceholder {
		return
	}
	s.kind = BackendPlaceholder
	s.reason = reason
	s.downgradedAt = time.Now()
	logger.Warnf("[tts] 真实后端已永久降级为占位模式: %s", reason)
}

// Synthesize 实现 Synthesizer 接口。
// Real 状态下调用真实后端，任何失败（包括输出不合法）都只对本次回退占位音频；
// 初始化类错误额外触发永久降级。
func (s *BackendSelector) Synthesize(ctx context.Context, text, voiceSamplePath string, cfg GenerationConfig) (*Synthesis, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	kind, backend, timeout := s.kind, s.backend, s.timeout
	s.mu.RUnlock()

	if kind == BackendPlaceholder || backend == nil {
		return &Synthesis{Waveform: SynthesizePlaceholder(text, cfg), Backend: PlaceholderName}, nil
	}

	in := GenerateInput{
		Text:        text,
		Temperature: cfg.Temperature,
		Speed:       cfg.Speed,
		Emotion:     cfg.Emotion,
		Seed:        cfg.Seed,
	}
	if voiceSamplePath != "" {
		if _, err := os.Stat(voiceSamplePath); err == nil {
			in.RefAudioPath = voiceSamplePath
		} else {
			logger.Warnf("[tts] 参考音频不存在，不做声音克隆: %s", voiceSamplePath)
		}
	}

	callCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	start := time.Now()
	wf, err := safeGenerate(callCtx, backend, in)
	if err == nil {
		err = wf.Validate()
	}
	if err != nil {
		if IsInitError(err) {
			s.Downgrade(err.Error())
		}
		logger.Warnf("[tts] %s 合成失败，本次使用占位音频: %v", backend.Name(), err)
		return &Synthesis{
			Waveform: SynthesizePlaceholder(text, cfg),
			Backend:  PlaceholderName,
			Fallback: true,
		}, nil
	}

	logger.Infof("[tts] %s 合成完成: %.2fs 音频，耗时 %v", backend.Name(), wf.Duration().Seconds(), time.Since(start).Round(time.Millisecond))
	return &Synthesis{
		Waveform: audio.Resample(wf, cfg.SampleRate),
		Backend:  backend.Name(),
	}, nil
}

// Close 释放真实后端。
func (s *BackendSelector) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.backend != nil {
		s.backend.Close()
		s.backend = nil
	}
	s.kind = BackendPlaceholder
}

// safeGenerate 调用后端并把 panic 转为错误（cgo 后端可能在异常输入上 panic）。
func safeGenerate(ctx context.Context, b Backend, in GenerateInput) (wf *audio.Waveform, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("后端 panic: %v", r)
		}
	}()
	return b.Generate(ctx, in)
}

func safeLoad(load BackendLoader) (b Backend, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("加载 panic: %v", r)
		}
	}()
	return load()
}
