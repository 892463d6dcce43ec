package audio

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// ErrInvalidWaveform 表示波形数据不可用（空、含 NaN/Inf 或采样率非法）。
var ErrInvalidWaveform = errors.New("无效的波形数据")

// Waveform 单声道 float32 波形，样本范围 [-1.0, 1.0]。
type Waveform struct {
	Samples    []float32
	SampleRate int
}

// Duration 返回波形时长。
func (w *Waveform) Duration() time.Duration {
	if w == nil || w.SampleRate <= 0 {
		return 0
	}
	return time.Duration(len(w.Samples)) * time.Second / time.Duration(w.SampleRate)
}

// Validate 检查波形能否被持久化。
func (w *Waveform) Validate() error {
	if w == nil {
		return fmt.Errorf("%w: 波形为空", ErrInvalidWaveform)
	}
	if w.SampleRate <= 0 {
		return fmt.Errorf("%w: 采样率 %d", ErrInvalidWaveform, w.SampleRate)
	}
	if len(w.Samples) == 0 {
		return fmt.Errorf("%w: 没有样本", ErrInvalidWaveform)
	}
	for i, s := range w.Samples {
		f := float64(s)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return fmt.Errorf("%w: 第 %d 个样本非有限值", ErrInvalidWaveform, i)
		}
	}
	return nil
}
