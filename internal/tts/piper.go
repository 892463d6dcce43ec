package tts

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"

	"github.com/iabetor/voicestudio/internal/audio"
	"github.com/iabetor/voicestudio/internal/logger"
)

// piperSampleRate 是 piper --output-raw 的固定采样率。
const piperSampleRate = 22050

// PiperFactory 使用 piper CLI 子进程的离线后端工厂。
type PiperFactory struct {
	binary    string
	modelPath string
}

var _ BackendFactory = (*PiperFactory)(nil)

// NewPiperFactory 创建 piper 后端工厂。binary 为空时从 PATH 查找 piper。
func NewPiperFactory(binary, modelPath string) *PiperFactory {
	if binary == "" {
		binary = "piper"
	}
	return &PiperFactory{binary: binary, modelPath: modelPath}
}

// Kind 实现 BackendFactory 接口。
func (f *PiperFactory) Kind() string { return "piper" }

// Probe 检查 piper 可执行文件和模型文件。
func (f *PiperFactory) Probe(_ context.Context) error {
	if _, err := exec.LookPath(f.binary); err != nil {
		return fmt.Errorf("未找到 piper 可执行文件: %w", err)
	}
	if _, err := os.Stat(f.modelPath); err != nil {
		return fmt.Errorf("piper 模型不存在: %s", f.modelPath)
	}
	return nil
}

// Load 实现 BackendFactory 接口。
func (f *PiperFactory) Load() (Backend, error) {
	if err := f.Probe(context.Background()); err != nil {
		return nil, initError(f.Kind(), err)
	}
	logger.Infof("[tts] piper 后端已就绪 (model=%s)", f.modelPath)
	return &PiperBackend{binary: f.binary, modelPath: f.modelPath}, nil
}

// PiperBackend 每次合成启动一个 piper 进程，输出 16-bit LE 单声道 PCM。
type PiperBackend struct {
	binary    string
	modelPath string
}

var _ Backend = (*PiperBackend)(nil)

// Name 实现 Backend 接口。
func (b *PiperBackend) Name() string { return "piper/" + b.modelPath }

// Generate 实现 Backend 接口。speed 通过 --length_scale 传递，其余参数被忽略。
func (b *PiperBackend) Generate(ctx context.Context, in GenerateInput) (*audio.Waveform, error) {
	logger.Debugf("[tts] piper: 正在合成 %d 个字符", len([]rune(in.Text)))

	args := []string{"--model", b.modelPath, "--output-raw"}
	if in.Speed > 0 && in.Speed != 1.0 {
		args = append(args, "--length_scale", strconv.FormatFloat(1.0/in.Speed, 'f', 3, 64))
	}

	cmd := exec.CommandContext(ctx, b.binary, args...)
	cmd.Stdin = bytes.NewReader([]byte(in.Text))

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if s := stderr.String(); s != "" {
			logger.Warnf("[tts] piper stderr: %s", s)
		}
		return nil, fmt.Errorf("piper 执行失败: %w", err)
	}
	if stdout.Len() == 0 {
		return nil, fmt.Errorf("piper: 未收到音频数据")
	}

	return &audio.Waveform{Samples: audio.BytesToFloat32(stdout.Bytes()), SampleRate: piperSampleRate}, nil
}

// Close 实现 Backend 接口。
func (b *PiperBackend) Close() {}
