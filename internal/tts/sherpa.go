package tts

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	sherpa "github.com/k2-fsa/sherpa-onnx-go/sherpa_onnx"

	"github.com/iabetor/voicestudio/internal/audio"
	"github.com/iabetor/voicestudio/internal/logger"
)

// SherpaConfig sherpa-onnx 离线 VITS 模型配置。
type SherpaConfig struct {
	Model        string
	Tokens       string
	Lexicon      string
	DataDir      string
	NumThreads   int
	Provider     string
	SpeakerID    int
	Quantization string // 8bit/4bit 时优先使用同目录下的 *.int8.onnx
}

// SherpaFactory 探测并加载 sherpa-onnx 离线 TTS。
type SherpaFactory struct {
	cfg SherpaConfig
}

var _ BackendFactory = (*SherpaFactory)(nil)

// NewSherpaFactory 创建 sherpa-onnx 后端工厂。
func NewSherpaFactory(cfg SherpaConfig) *SherpaFactory {
	if cfg.NumThreads <= 0 {
		cfg.NumThreads = 2
	}
	if cfg.Provider == "" {
		cfg.Provider = "cpu"
	}
	return &SherpaFactory{cfg: cfg}
}

// Kind 实现 BackendFactory 接口。
func (f *SherpaFactory) Kind() string { return "sherpa" }

// ModelPath 返回实际会加载的模型文件路径。
func (f *SherpaFactory) ModelPath() string {
	if f.cfg.Quantization == "8bit" || f.cfg.Quantization == "4bit" {
		int8Path := strings.TrimSuffix(f.cfg.Model, ".onnx") + ".int8.onnx"
		if _, err := os.Stat(int8Path); err == nil {
			return int8Path
		}
	}
	return f.cfg.Model
}

// Probe 检查模型文件和词表是否存在。
func (f *SherpaFactory) Probe(_ context.Context) error {
	for _, p := range []string{f.ModelPath(), f.cfg.Tokens} {
		if _, err := os.Stat(p); err != nil {
			return fmt.Errorf("模型文件不存在: %s", p)
		}
	}
	if f.cfg.DataDir != "" {
		if st, err := os.Stat(f.cfg.DataDir); err != nil || !st.IsDir() {
			return fmt.Errorf("data_dir 不存在: %s", f.cfg.DataDir)
		}
	}
	return nil
}

// Load 实现 BackendFactory 接口。
func (f *SherpaFactory) Load() (Backend, error) {
	if err := f.Probe(context.Background()); err != nil {
		return nil, initError(f.Kind(), err)
	}

	modelPath := f.ModelPath()
	config := sherpa.OfflineTtsConfig{}
	config.Model.Vits.Model = modelPath
	config.Model.Vits.Tokens = f.cfg.Tokens
	config.Model.Vits.Lexicon = f.cfg.Lexicon
	config.Model.Vits.DataDir = f.cfg.DataDir
	config.Model.Vits.NoiseScale = 0.667
	config.Model.Vits.NoiseScaleW = 0.8
	config.Model.Vits.LengthScale = 1.0
	config.Model.NumThreads = f.cfg.NumThreads
	config.Model.Provider = f.cfg.Provider
	config.MaxNumSentences = 1

	impl := sherpa.NewOfflineTts(&config)
	if impl == nil {
		return nil, initError(f.Kind(), fmt.Errorf("创建离线 TTS 失败，模型路径: %s", modelPath))
	}

	logger.Infof("[tts] sherpa-onnx 离线 TTS 已初始化 (model=%s, threads=%d, provider=%s)",
		modelPath, f.cfg.NumThreads, f.cfg.Provider)

	return &SherpaBackend{
		impl:      impl,
		name:      "sherpa-onnx/" + filepath.Base(filepath.Dir(modelPath)),
		speakerID: f.cfg.SpeakerID,
	}, nil
}

// SherpaBackend 封装 sherpa-onnx OfflineTts。底层不支持并发调用，用互斥锁保护。
type SherpaBackend struct {
	mu        sync.Mutex
	impl      *sherpa.OfflineTts
	name      string
	speakerID int
}

var _ Backend = (*SherpaBackend)(nil)

// Name 实现 Backend 接口。
func (b *SherpaBackend) Name() string { return b.name }

// Generate 实现 Backend 接口。sherpa-onnx 不支持参考音频和随机种子，这两项被忽略。
// 底层调用不可中断：ctx 结束时立即返回错误，合成在后台完成后释放锁。
func (b *SherpaBackend) Generate(ctx context.Context, in GenerateInput) (*audio.Waveform, error) {
	if in.RefAudioPath != "" {
		logger.Debugf("[tts] sherpa-onnx 不支持声音克隆，忽略参考音频 %s", in.RefAudioPath)
	}
	speed := float32(in.Speed)
	if speed <= 0 {
		speed = 1.0
	}

	type genResult struct {
		wf  *audio.Waveform
		err error
	}
	ch := make(chan genResult, 1)

	go func() {
		b.mu.Lock()
		defer b.mu.Unlock()

		if b.impl == nil {
			ch <- genResult{err: initError("sherpa", fmt.Errorf("后端已关闭"))}
			return
		}
		generated := b.impl.Generate(in.Text, b.speakerID, speed)
		if generated == nil {
			ch <- genResult{err: fmt.Errorf("sherpa-onnx 未返回音频")}
			return
		}
		ch <- genResult{wf: &audio.Waveform{Samples: generated.Samples, SampleRate: generated.SampleRate}}
	}()

	select {
	case r := <-ch:
		return r.wf, r.err
	case <-ctx.Done():
		return nil, fmt.Errorf("sherpa-onnx 合成超时: %w", ctx.Err())
	}
}

// Close 实现 Backend 接口。
func (b *SherpaBackend) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.impl != nil {
		sherpa.DeleteOfflineTts(b.impl)
		b.impl = nil
		logger.Info("[tts] sherpa-onnx 离线 TTS 已关闭")
	}
}
