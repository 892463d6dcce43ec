package tts

import (
	"context"
	"math"
	"unicode/utf8"

	"github.com/iabetor/voicestudio/internal/audio"
)

// 占位音频参数：440 Hz 正弦，振幅 0.15，首尾各 0.1s 线性淡入淡出。
const (
	placeholderFreq       = 440.0
	placeholderAmplitude  = 0.15
	placeholderFadeSec    = 0.1
	placeholderSecPerRune = 0.1
	placeholderMinSec     = 1.0
	placeholderMaxSec     = 10.0
)

// PlaceholderName 占位后端在日志和状态中的名称。
const PlaceholderName = "placeholder"

// PlaceholderDuration 返回占位音频时长（秒）：字符数 × 0.1，限制在 [1, 10]。
func PlaceholderDuration(text string) float64 {
	d := float64(utf8.RuneCountInString(text)) * placeholderSecPerRune
	return math.Min(math.Max(d, placeholderMinSec), placeholderMaxSec)
}

// SynthesizePlaceholder 生成确定性的占位音频，只依赖文本长度和采样率。
func SynthesizePlaceholder(text string, cfg GenerationConfig) *audio.Waveform {
	sr := cfg.SampleRate
	dur := PlaceholderDuration(text)
	n := int(float64(sr) * dur)
	if n < 0 {
		n = 0
	}

	samples := make([]float32, n)
	step := dur / float64(n)
	for i := range samples {
		t := float64(i) * step
		samples[i] = float32(placeholderAmplitude * math.Sin(2*math.Pi*placeholderFreq*t))
	}

	fadeLen := int(placeholderFadeSec * float64(sr))
	if fadeLen > n {
		fadeLen = n
	}
	for i := 0; i < fadeLen; i++ {
		var g float64
		if fadeLen > 1 {
			g = float64(i) / float64(fadeLen-1)
		}
		samples[i] = float32(float64(samples[i]) * g)
		samples[n-1-i] = float32(float64(samples[n-1-i]) * g)
	}

	return &audio.Waveform{Samples: samples, SampleRate: sr}
}

// PlaceholderSynthesizer 只产生占位音频的 Synthesizer。
type PlaceholderSynthesizer struct{}

var _ Synthesizer = PlaceholderSynthesizer{}

// Synthesize 实现 Synthesizer 接口。
func (PlaceholderSynthesizer) Synthesize(_ context.Context, text, _ string, cfg GenerationConfig) (*Synthesis, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Synthesis{
		Waveform: SynthesizePlaceholder(text, cfg),
		Backend:  PlaceholderName,
	}, nil
}
