package tts

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidConfig 生成参数非法。
var ErrInvalidConfig = errors.New("无效的生成参数")

// 默认生成参数。
const (
	DefaultTemperature = 0.7
	DefaultSpeed       = 1.0
	DefaultEmotion     = "neutral"
	DefaultSampleRate  = 24000
)

// GenerationConfig 一次合成的参数，按值传递，构造后不再修改。
type GenerationConfig struct {
	Temperature float64
	Speed       float64
	Emotion     string
	SampleRate  int
	Seed        *int64 // nil 表示不固定随机种子
}

// NewGenerationConfig 构造并校验生成参数。
func NewGenerationConfig(temperature, speed float64, emotion string, sampleRate int, seed *int64) (GenerationConfig, error) {
	cfg := GenerationConfig{
		Temperature: temperature,
		Speed:       speed,
		Emotion:     emotion,
		SampleRate:  sampleRate,
	}
	if seed != nil {
		s := *seed
		cfg.Seed = &s
	}
	if err := cfg.Validate(); err != nil {
		return GenerationConfig{}, err
	}
	return cfg, nil
}

// DefaultGenerationConfig 返回默认参数：temperature 0.7，speed 1.0，neutral，24000 Hz。
func DefaultGenerationConfig() GenerationConfig {
	return GenerationConfig{
		Temperature: DefaultTemperature,
		Speed:       DefaultSpeed,
		Emotion:     DefaultEmotion,
		SampleRate:  DefaultSampleRate,
	}
}

// Validate 检查采样率为正、temperature 和 speed 为有限值。
func (c GenerationConfig) Validate() error {
	if c.SampleRate <= 0 {
		return fmt.Errorf("%w: 采样率必须为正数，当前 %d", ErrInvalidConfig, c.SampleRate)
	}
	if math.IsNaN(c.Temperature) || math.IsInf(c.Temperature, 0) {
		return fmt.Errorf("%w: temperature 不是有限值", ErrInvalidConfig)
	}
	if math.IsNaN(c.Speed) || math.IsInf(c.Speed, 0) {
		return fmt.Errorf("%w: speed 不是有限值", ErrInvalidConfig)
	}
	return nil
}
