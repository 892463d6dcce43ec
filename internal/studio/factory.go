package studio

import (
	"time"

	"github.com/iabetor/voicestudio/internal/config"
	"github.com/iabetor/voicestudio/internal/tts"
)

// NewFactory 根据配置创建真实后端工厂。backend 为 placeholder 时返回 nil。
func NewFactory(cfg *config.Config) tts.BackendFactory {
	m := cfg.Model
	switch m.Backend {
	case "sherpa":
		return tts.NewSherpaFactory(tts.SherpaConfig{
			Model:        m.Sherpa.Model,
			Tokens:       m.Sherpa.Tokens,
			Lexicon:      m.Sherpa.Lexicon,
			DataDir:      m.Sherpa.DataDir,
			NumThreads:   m.Sherpa.NumThreads,
			Provider:     m.Sherpa.Provider,
			SpeakerID:    m.Sherpa.SpeakerID,
			Quantization: m.Quantization,
		})
	case "higgs":
		return tts.NewHiggsFactory(tts.HiggsConfig{
			APIURL:       m.Higgs.APIURL,
			Timeout:      time.Duration(m.Higgs.TimeoutSeconds) * time.Second,
			Quantization: m.Quantization,
		})
	case "piper":
		return tts.NewPiperFactory(m.Piper.Binary, m.Piper.Model)
	case "edge":
		return tts.NewEdgeFactory(m.Edge.Voice)
	case "tencent":
		return tts.NewTencentFactory(tts.TencentConfig{
			SecretID:  m.Tencent.SecretID,
			SecretKey: m.Tencent.SecretKey,
			VoiceType: m.Tencent.VoiceType,
			Region:    m.Tencent.Region,
		})
	default:
		return nil
	}
}

// GenerationDefaults 返回配置中的默认生成参数。
func GenerationDefaults(cfg *config.Config) tts.GenerationConfig {
	return tts.GenerationConfig{
		Temperature: cfg.Generation.Temperature,
		Speed:       cfg.Generation.Speed,
		Emotion:     cfg.Generation.Emotion,
		SampleRate:  cfg.Generation.SampleRate,
	}
}
