package tts

import (
	"context"
	"errors"
	"fmt"

	"github.com/iabetor/voicestudio/internal/audio"
)

// ErrBackendInit 初始化类错误：后端无法加载或已不可恢复。
// 真实后端返回包装了它的错误时，BackendSelector 会永久降级。
var ErrBackendInit = errors.New("真实后端初始化失败")

// GenerateInput 传给真实后端的合成输入。
type GenerateInput struct {
	Text         string
	RefAudioPath string // 为空表示不做声音克隆
	Temperature  float64
	Speed        float64
	Emotion      string
	Seed         *int64
}

// Backend 真实合成后端的统一接口。
// 无论底层返回什么形式，适配器都要转换为单声道 float32 波形。
type Backend interface {
	// Name 返回模型名称，用于状态展示。
	Name() string
	// Generate 合成一段音频，ctx 取消时应尽快返回。
	Generate(ctx context.Context, in GenerateInput) (*audio.Waveform, error)
	// Close 释放后端资源。
	Close()
}

// BackendFactory 描述一种真实后端：如何探测、如何加载。
type BackendFactory interface {
	// Kind 返回后端类型（sherpa、higgs、edge、tencent）。
	Kind() string
	// Probe 检查后端是否存在（模型文件、服务、凭证），不加载模型。
	Probe(ctx context.Context) error
	// Load 加载后端，失败的错误会被视为初始化类错误。
	Load() (Backend, error)
}

// BackendLoader 加载真实后端。
type BackendLoader func() (Backend, error)

// BackendCapability 启动时探测一次的真实后端可用性，作为依赖注入而不是全局变量。
type BackendCapability struct {
	Kind      string
	Available bool
	Reason    string // 不可用的原因
}

// ProbeCapability 探测真实后端是否可用。factory 为 nil 表示只配置了占位后端。
func ProbeCapability(ctx context.Context, factory BackendFactory) BackendCapability {
	if factory == nil {
		return BackendCapability{Kind: PlaceholderName, Reason: "未配置真实后端"}
	}
	if err := factory.Probe(ctx); err != nil {
		return BackendCapability{Kind: factory.Kind(), Reason: err.Error()}
	}
	return BackendCapability{Kind: factory.Kind(), Available: true}
}

// Synthesis 一次合成的结果。
type Synthesis struct {
	Waveform *audio.Waveform
	Backend  string // 实际产生音频的后端
	Fallback bool   // 真实后端失败后改用了占位音频
}

// Synthesizer 统一的合成能力，调用方不关心背后是哪种实现。
type Synthesizer interface {
	Synthesize(ctx context.Context, text, voiceSamplePath string, cfg GenerationConfig) (*Synthesis, error)
}

// IsInitError 判断错误是否属于初始化类，需要永久降级。
func IsInitError(err error) bool {
	return errors.Is(err, ErrBackendInit)
}

// initError 把加载失败包装为初始化类错误。
func initError(kind string, err error) error {
	return fmt.Errorf("%w (%s): %w", ErrBackendInit, kind, err)
}
