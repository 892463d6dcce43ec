package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestSetDefaults_EmptyConfig(t *testing.T) {
	cfg := &Config{}
	setDefaults(cfg)

	checks := []struct {
		name string
		got  interface{}
		want interface{}
	}{
		{"Server.Addr", cfg.Server.Addr, ":8000"},
		{"Server.MaxUploadMB", cfg.Server.MaxUploadMB, int64(50)},
		{"Paths.GeneratedDir", cfg.Paths.GeneratedDir, filepath.Join("outputs", "audio")},
		{"Paths.VoiceInputDir", cfg.Paths.VoiceInputDir, filepath.Join("outputs", "voice_inputs")},
		{"Paths.ModelsDir", cfg.Paths.ModelsDir, "models_data"},
		{"Model.Backend", cfg.Model.Backend, "sherpa"},
		{"Model.Quantization", cfg.Model.Quantization, "full"},
		{"Model.Sherpa.Model", cfg.Model.Sherpa.Model, filepath.Join("models_data", "vits", "model.onnx")},
		{"Model.Higgs.APIURL", cfg.Model.Higgs.APIURL, "http://localhost:8100"},
		{"Generation.SampleRate", cfg.Generation.SampleRate, 24000},
		{"Generation.Temperature", cfg.Generation.Temperature, 0.7},
		{"Generation.Speed", cfg.Generation.Speed, 1.0},
		{"Generation.Emotion", cfg.Generation.Emotion, "neutral"},
		{"Generation.MaxTextLength", cfg.Generation.MaxTextLength, 5000},
		{"Generation.HistoryLimit", cfg.Generation.HistoryLimit, 20},
		{"Generation.QueueSize", cfg.Generation.QueueSize, 32},
		{"Generation.BackendTimeout", cfg.Generation.BackendTimeout, 300},
		{"Log.Level", cfg.Log.Level, "info"},
	}

	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s: got %v, want %v", c.name, c.got, c.want)
		}
	}
}

func TestSetDefaults_DoesNotOverride(t *testing.T) {
	cfg := &Config{
		Server:     ServerConfig{Addr: "127.0.0.1:9000"},
		Paths:      PathsConfig{BaseDir: "/srv/studio", GeneratedDir: "/data/audio"},
		Model:      ModelConfig{Backend: "Higgs", Quantization: "8bit"},
		Generation: GenerationConfig{SampleRate: 44100, HistoryLimit: 5},
		Log:        LogConfig{Level: "debug"},
	}
	setDefaults(cfg)

	if cfg.Server.Addr != "127.0.0.1:9000" {
		t.Errorf("Server.Addr should not be overridden: got %s", cfg.Server.Addr)
	}
	if cfg.Paths.GeneratedDir != "/data/audio" {
		t.Errorf("absolute GeneratedDir should be kept: got %s", cfg.Paths.GeneratedDir)
	}
	if cfg.Paths.VoiceInputDir != filepath.Join("/srv/studio", "outputs", "voice_inputs") {
		t.Errorf("VoiceInputDir should resolve against BaseDir: got %s", cfg.Paths.VoiceInputDir)
	}
	if cfg.Model.Backend != "higgs" {
		t.Errorf("Model.Backend should be lower-cased: got %s", cfg.Model.Backend)
	}
	if cfg.Model.Quantization != "8bit" {
		t.Errorf("Model.Quantization should not be overridden: got %s", cfg.Model.Quantization)
	}
	if cfg.Generation.SampleRate != 44100 {
		t.Errorf("SampleRate should not be overridden: got %d", cfg.Generation.SampleRate)
	}
	if cfg.Generation.HistoryLimit != 5 {
		t.Errorf("HistoryLimit should not be overridden: got %d", cfg.Generation.HistoryLimit)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level should not be overridden: got %s", cfg.Log.Level)
	}
}

func TestLoad_ValidYAML(t *testing.T) {
	yamlContent := `
server:
  addr: ":8080"
paths:
  base_dir: /tmp/studio
model:
  backend: placeholder
  quantization: 4bit
  tencent:
    secret_id: " id "
generation:
  temperature: 0.9
  queue_size: 4
log:
  level: debug
`
	tmpFile := filepath.Join(t.TempDir(), "voicestudio.yaml")
	if err := os.WriteFile(tmpFile, []byte(yamlContent), 0644); err != nil {
		t.Fatalf("failed to write temp file: %v", err)
	}

	cfg, err := Load(tmpFile)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.Addr != ":8080" {
		t.Errorf("Server.Addr: got %q", cfg.Server.Addr)
	}
	if cfg.Model.Backend != "placeholder" {
		t.Errorf("Model.Backend: got %q", cfg.Model.Backend)
	}
	if cfg.Model.Quantization != "4bit" {
		t.Errorf("Model.Quantization: got %q", cfg.Model.Quantization)
	}
	if cfg.Model.Tencent.SecretID != "id" {
		t.Errorf("SecretID should be trimmed: got %q", cfg.Model.Tencent.SecretID)
	}
	if cfg.Generation.Temperature != 0.9 {
		t.Errorf("Generation.Temperature: got %v", cfg.Generation.Temperature)
	}
	if cfg.Generation.QueueSize != 4 {
		t.Errorf("Generation.QueueSize: got %d", cfg.Generation.QueueSize)
	}
	if cfg.Paths.GeneratedDir != "/tmp/studio/outputs/audio" {
		t.Errorf("Paths.GeneratedDir: got %q", cfg.Paths.GeneratedDir)
	}
	// 未设置的字段应使用默认值
	if cfg.Generation.SampleRate != 24000 {
		t.Errorf("SampleRate should default to 24000, got %d", cfg.Generation.SampleRate)
	}
}

func TestLoad_EnvVarExpansion(t *testing.T) {
	t.Setenv("TEST_TENCENT_KEY", "secret-from-env")

	cfg, err := Parse([]byte(`
model:
  backend: tencent
  tencent:
    secret_key: "${TEST_TENCENT_KEY}"
`))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if cfg.Model.Tencent.SecretKey != "secret-from-env" {
		t.Errorf("SecretKey: got %q, want %q", cfg.Model.Tencent.SecretKey, "secret-from-env")
	}
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"unknown backend", "model:\n  backend: bark\n"},
		{"unknown quantization", "model:\n  quantization: 2bit\n"},
		{"negative sample rate", "generation:\n  sample_rate: -1\n"},
		{"broken yaml", "model: [\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse([]byte(tt.yaml)); err == nil {
				t.Errorf("expected error for %s", tt.name)
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoad_SampleConfig(t *testing.T) {
	t.Setenv("TENCENT_SECRET_ID", " id ")
	t.Setenv("TENCENT_SECRET_KEY", "key")

	cfg, err := Load(filepath.Join("..", "..", "configs", "voicestudio.yaml"))
	if err != nil {
		t.Fatalf("Load sample config: %v", err)
	}
	if cfg.Model.Backend != "sherpa" {
		t.Errorf("Model.Backend = %q, want sherpa", cfg.Model.Backend)
	}
	if cfg.Model.Tencent.SecretID != "id" {
		t.Errorf("Tencent.SecretID = %q, want id", cfg.Model.Tencent.SecretID)
	}
	if cfg.Server.MaxConnections != 64 {
		t.Errorf("Server.MaxConnections = %d, want 64", cfg.Server.MaxConnections)
	}
	if want := filepath.Join("outputs", "logs", "voicestudio.log"); cfg.Log.File != want {
		t.Errorf("Log.File = %q, want %q", cfg.Log.File, want)
	}
}
