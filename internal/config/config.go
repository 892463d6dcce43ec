package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config 是 Voice Studio 的顶层配置结构。
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Paths      PathsConfig      `yaml:"paths"`
	Model      ModelConfig      `yaml:"model"`
	Generation GenerationConfig `yaml:"generation"`
	Log        LogConfig        `yaml:"log"`
}

// ServerConfig HTTP 服务配置。
type ServerConfig struct {
	Addr           string `yaml:"addr"`
	MaxUploadMB    int64  `yaml:"max_upload_mb"`
	MaxConnections int    `yaml:"max_connections"` // 0 表示不限制
}

// PathsConfig 目录配置。相对路径基于 BaseDir 解析。
type PathsConfig struct {
	BaseDir       string `yaml:"base_dir"`
	VoiceInputDir string `yaml:"voice_input_dir"`
	GeneratedDir  string `yaml:"generated_dir"`
	ModelsDir     string `yaml:"models_dir"`
	Database      string `yaml:"database"`
}

// ModelConfig 合成后端配置。
type ModelConfig struct {
	// Backend 真实后端类型：sherpa, higgs, piper, edge, tencent, placeholder。
	Backend string `yaml:"backend"`
	// Quantization 量化模式：full, 8bit, 4bit。
	Quantization string        `yaml:"quantization"`
	Sherpa       SherpaConfig  `yaml:"sherpa"`
	Higgs        HiggsConfig   `yaml:"higgs"`
	Piper        PiperConfig   `yaml:"piper"`
	Edge         EdgeConfig    `yaml:"edge"`
	Tencent      TencentConfig `yaml:"tencent"`
}

// SherpaConfig sherpa-onnx 离线 TTS（VITS）配置。
// 文件路径为相对路径时基于 models_dir 解析。
type SherpaConfig struct {
	Model      string `yaml:"model"`
	Tokens     string `yaml:"tokens"`
	Lexicon    string `yaml:"lexicon"`
	DataDir    string `yaml:"data_dir"`
	NumThreads int    `yaml:"num_threads"`
	Provider   string `yaml:"provider"`
	SpeakerID  int    `yaml:"speaker_id"`
}

// HiggsConfig Higgs-Audio 推理服务配置。
type HiggsConfig struct {
	APIURL         string `yaml:"api_url"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// PiperConfig piper CLI 配置。
type PiperConfig struct {
	Binary string `yaml:"binary"`
	Model  string `yaml:"model"`
}

// EdgeConfig Edge TTS 配置。
type EdgeConfig struct {
	Voice string `yaml:"voice"`
}

// TencentConfig 腾讯云 TTS 配置。
type TencentConfig struct {
	SecretID  string `yaml:"secret_id"`
	SecretKey string `yaml:"secret_key"`
	VoiceType int64  `yaml:"voice_type"`
	Region    string `yaml:"region"`
}

// GenerationConfig 生成默认参数和执行器配置。
type GenerationConfig struct {
	SampleRate     int     `yaml:"sample_rate"`
	Temperature    float64 `yaml:"temperature"`
	Speed          float64 `yaml:"speed"`
	Emotion        string  `yaml:"emotion"`
	MaxTextLength  int     `yaml:"max_text_length"`
	HistoryLimit   int     `yaml:"history_limit"`
	QueueSize      int     `yaml:"queue_size"`
	BackendTimeout int     `yaml:"backend_timeout_seconds"` // 单次真实后端调用超时（秒）
}

// LogConfig 日志配置。
type LogConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSize    int    `yaml:"max_size"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAge     int    `yaml:"max_age"`
}

// Load 读取 YAML 配置文件并返回 Config。
// 支持 ${VAR_NAME} 形式的环境变量展开。
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件 %s 失败: %w", path, err)
	}
	return Parse(data)
}

// Parse 解析 YAML 配置内容并填充默认值。
func Parse(data []byte) (*Config, error) {
	expanded := os.Expand(string(data), func(key string) string {
		return os.Getenv(key)
	})

	cfg := &Config{}
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}

	setDefaults(cfg)
	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default 返回全部使用默认值的配置。
func Default() *Config {
	cfg := &Config{}
	setDefaults(cfg)
	return cfg
}

// setDefaults 为未设置的配置项填充默认值。
func setDefaults(cfg *Config) {
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8000"
	}
	if cfg.Server.MaxUploadMB == 0 {
		cfg.Server.MaxUploadMB = 50
	}

	if cfg.Paths.BaseDir == "" {
		cfg.Paths.BaseDir = "."
	}
	cfg.Paths.BaseDir = expandHome(cfg.Paths.BaseDir)
	if cfg.Paths.VoiceInputDir == "" {
		cfg.Paths.VoiceInputDir = "outputs/voice_inputs"
	}
	if cfg.Paths.GeneratedDir == "" {
		cfg.Paths.GeneratedDir = "outputs/audio"
	}
	if cfg.Paths.ModelsDir == "" {
		cfg.Paths.ModelsDir = "models_data"
	}
	if cfg.Paths.Database == "" {
		cfg.Paths.Database = "outputs/voicestudio.db"
	}
	cfg.Paths.VoiceInputDir = resolve(cfg.Paths.BaseDir, cfg.Paths.VoiceInputDir)
	cfg.Paths.GeneratedDir = resolve(cfg.Paths.BaseDir, cfg.Paths.GeneratedDir)
	cfg.Paths.ModelsDir = resolve(cfg.Paths.BaseDir, cfg.Paths.ModelsDir)
	cfg.Paths.Database = resolve(cfg.Paths.BaseDir, cfg.Paths.Database)

	if cfg.Model.Backend == "" {
		cfg.Model.Backend = "sherpa"
	}
	cfg.Model.Backend = strings.ToLower(cfg.Model.Backend)
	if cfg.Model.Quantization == "" {
		cfg.Model.Quantization = "full"
	}
	if cfg.Model.Sherpa.Model == "" {
		cfg.Model.Sherpa.Model = "vits/model.onnx"
	}
	if cfg.Model.Sherpa.Tokens == "" {
		cfg.Model.Sherpa.Tokens = "vits/tokens.txt"
	}
	if cfg.Model.Sherpa.NumThreads == 0 {
		cfg.Model.Sherpa.NumThreads = 2
	}
	if cfg.Model.Sherpa.Provider == "" {
		cfg.Model.Sherpa.Provider = "cpu"
	}
	cfg.Model.Sherpa.Model = resolve(cfg.Paths.ModelsDir, cfg.Model.Sherpa.Model)
	cfg.Model.Sherpa.Tokens = resolve(cfg.Paths.ModelsDir, cfg.Model.Sherpa.Tokens)
	if cfg.Model.Sherpa.Lexicon != "" {
		cfg.Model.Sherpa.Lexicon = resolve(cfg.Paths.ModelsDir, cfg.Model.Sherpa.Lexicon)
	}
	if cfg.Model.Sherpa.DataDir != "" {
		cfg.Model.Sherpa.DataDir = resolve(cfg.Paths.ModelsDir, cfg.Model.Sherpa.DataDir)
	}
	if cfg.Model.Higgs.APIURL == "" {
		cfg.Model.Higgs.APIURL = "http://localhost:8100"
	}
	cfg.Model.Higgs.APIURL = strings.TrimRight(cfg.Model.Higgs.APIURL, "/")
	if cfg.Model.Higgs.TimeoutSeconds == 0 {
		cfg.Model.Higgs.TimeoutSeconds = 600
	}
	if cfg.Model.Piper.Model == "" {
		cfg.Model.Piper.Model = "piper/model.onnx"
	}
	cfg.Model.Piper.Model = resolve(cfg.Paths.ModelsDir, cfg.Model.Piper.Model)
	if cfg.Model.Edge.Voice == "" {
		cfg.Model.Edge.Voice = "en-US-AriaNeural"
	}
	if cfg.Model.Tencent.Region == "" {
		cfg.Model.Tencent.Region = "ap-guangzhou"
	}
	// 去除密钥两端可能的空白（环境变量展开后常见）
	cfg.Model.Tencent.SecretID = strings.TrimSpace(cfg.Model.Tencent.SecretID)
	cfg.Model.Tencent.SecretKey = strings.TrimSpace(cfg.Model.Tencent.SecretKey)

	if cfg.Generation.SampleRate == 0 {
		cfg.Generation.SampleRate = 24000
	}
	if cfg.Generation.Temperature == 0 {
		cfg.Generation.Temperature = 0.7
	}
	if cfg.Generation.Speed == 0 {
		cfg.Generation.Speed = 1.0
	}
	if cfg.Generation.Emotion == "" {
		cfg.Generation.Emotion = "neutral"
	}
	if cfg.Generation.MaxTextLength == 0 {
		cfg.Generation.MaxTextLength = 5000
	}
	if cfg.Generation.HistoryLimit == 0 {
		cfg.Generation.HistoryLimit = 20
	}
	if cfg.Generation.QueueSize == 0 {
		cfg.Generation.QueueSize = 32
	}
	if cfg.Generation.BackendTimeout == 0 {
		cfg.Generation.BackendTimeout = 300
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.File != "" {
		cfg.Log.File = resolve(cfg.Paths.BaseDir, expandHome(cfg.Log.File))
	}
}

func validate(cfg *Config) error {
	switch cfg.Model.Backend {
	case "sherpa", "higgs", "piper", "edge", "tencent", "placeholder":
	default:
		return fmt.Errorf("不支持的合成后端: %s", cfg.Model.Backend)
	}
	switch cfg.Model.Quantization {
	case "full", "8bit", "4bit":
	default:
		return fmt.Errorf("不支持的量化模式: %s", cfg.Model.Quantization)
	}
	if cfg.Generation.SampleRate < 0 {
		return fmt.Errorf("采样率必须为正数: %d", cfg.Generation.SampleRate)
	}
	return nil
}

// expandHome 将 ~/ 前缀替换为用户主目录，Go 不会自动展开。
func expandHome(p string) string {
	if !strings.HasPrefix(p, "~/") {
		return p
	}
	home, _ := os.UserHomeDir()
	if home == "" {
		return p
	}
	return filepath.Join(home, p[2:])
}

func resolve(base, p string) string {
	p = expandHome(p)
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(base, p)
}
