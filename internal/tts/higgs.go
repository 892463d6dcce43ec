package tts

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/iabetor/voicestudio/internal/audio"
	"github.com/iabetor/voicestudio/internal/logger"
)

const (
	higgsModelName      = "BosonAI/Higgs-Audio-2"
	higgsGeneratePath   = "/v1/generate"
	higgsHealthPath     = "/health"
	higgsHealthTimeout  = 5 * time.Second
	higgsSampleRateHead = "X-Sample-Rate"
)

// HiggsConfig Higgs-Audio 推理服务配置。
type HiggsConfig struct {
	APIURL       string
	Timeout      time.Duration
	Quantization string
}

// higgsRequest 发送给推理服务的 JSON 请求。
type higgsRequest struct {
	Transcript   string   `json:"transcript"`
	RefAudio     string   `json:"ref_audio,omitempty"` // base64
	RefAudioName string   `json:"ref_audio_name,omitempty"`
	Temperature  float64  `json:"temperature"`
	Seed         *int64   `json:"seed,omitempty"`
	Speed        float64  `json:"speed,omitempty"`
	Emotion      string   `json:"emotion,omitempty"`
	Quantization string   `json:"quantization,omitempty"`
	Formats      []string `json:"accept_formats,omitempty"`
}

type higgsErrorResponse struct {
	Detail string `json:"detail"`
}

// HiggsFactory 通过 HTTP 探测并连接 Higgs-Audio 推理服务。
type HiggsFactory struct {
	cfg    HiggsConfig
	client *http.Client
}

var _ BackendFactory = (*HiggsFactory)(nil)

// NewHiggsFactory 创建 Higgs-Audio 后端工厂。
func NewHiggsFactory(cfg HiggsConfig) *HiggsFactory {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Minute
	}
	cfg.APIURL = strings.TrimRight(cfg.APIURL, "/")
	return &HiggsFactory{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

// Kind 实现 BackendFactory 接口。
func (f *HiggsFactory) Kind() string { return "higgs" }

// Probe 请求 /health，服务不可达或非 200 视为不可用。
func (f *HiggsFactory) Probe(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, higgsHealthTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.cfg.APIURL+higgsHealthPath, http.NoBody)
	if err != nil {
		return fmt.Errorf("创建健康检查请求失败: %w", err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return fmt.Errorf("Higgs-Audio 服务不可达 (%s): %w", f.cfg.APIURL, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("Higgs-Audio 健康检查返回 %s", resp.Status)
	}
	return nil
}

// Load 实现 BackendFactory 接口。
func (f *HiggsFactory) Load() (Backend, error) {
	if err := f.Probe(context.Background()); err != nil {
		return nil, initError(f.Kind(), err)
	}
	logger.Infof("[tts] Higgs-Audio 服务已连接 (%s, quantization=%s)", f.cfg.APIURL, f.cfg.Quantization)
	return &HiggsBackend{cfg: f.cfg, client: f.client}, nil
}

// HiggsBackend 调用远端 Higgs-Audio 推理服务，支持参考音频、temperature 和 seed。
type HiggsBackend struct {
	cfg    HiggsConfig
	client *http.Client
}

var _ Backend = (*HiggsBackend)(nil)

// Name 实现 Backend 接口。
func (b *HiggsBackend) Name() string { return higgsModelName }

// Generate 实现 Backend 接口。
// 服务可返回 audio/wav、audio/mpeg 或带 X-Sample-Rate 头的原始 float32 小端样本。
func (b *HiggsBackend) Generate(ctx context.Context, in GenerateInput) (*audio.Waveform, error) {
	body := higgsRequest{
		Transcript:   in.Text,
		Temperature:  in.Temperature,
		Seed:         in.Seed,
		Speed:        in.Speed,
		Emotion:      in.Emotion,
		Quantization: b.cfg.Quantization,
		Formats:      []string{"wav", "mp3", "f32le"},
	}
	if in.RefAudioPath != "" {
		data, err := os.ReadFile(in.RefAudioPath)
		if err != nil {
			return nil, fmt.Errorf("读取参考音频失败: %w", err)
		}
		body.RefAudio = base64.StdEncoding.EncodeToString(data)
		body.RefAudioName = filepath.Base(in.RefAudioPath)
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("序列化请求失败: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.cfg.APIURL+higgsGeneratePath, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("创建请求失败: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/wav, audio/mpeg, application/octet-stream")

	logger.Debugf("[tts] Higgs-Audio: 正在合成 %d 个字符 (ref=%v)", len([]rune(in.Text)), in.RefAudioPath != "")

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("请求 Higgs-Audio 服务失败: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("读取响应失败: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var e higgsErrorResponse
		if json.Unmarshal(data, &e) == nil && e.Detail != "" {
			return nil, fmt.Errorf("Higgs-Audio 返回 %s: %s", resp.Status, e.Detail)
		}
		return nil, fmt.Errorf("Higgs-Audio 返回 %s", resp.Status)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("Higgs-Audio 未返回音频数据")
	}

	return decodeHiggsAudio(resp.Header, data)
}

// Close 实现 Backend 接口。
func (b *HiggsBackend) Close() {
	b.client.CloseIdleConnections()
}

// decodeHiggsAudio 按 Content-Type 把响应统一转换为波形。
func decodeHiggsAudio(h http.Header, data []byte) (*audio.Waveform, error) {
	mediaType, _, _ := mime.ParseMediaType(h.Get("Content-Type"))
	switch mediaType {
	case "audio/wav", "audio/x-wav", "audio/wave":
		return audio.DecodeWAV(data)
	case "audio/mpeg", "audio/mp3":
		return audio.DecodeMP3(data)
	case "application/octet-stream":
		sr, err := strconv.Atoi(h.Get(higgsSampleRateHead))
		if err != nil || sr <= 0 {
			return nil, fmt.Errorf("原始样本缺少有效的 %s 头", higgsSampleRateHead)
		}
		return &audio.Waveform{Samples: audio.Float32LEToFloat32(data), SampleRate: sr}, nil
	default:
		return nil, fmt.Errorf("不支持的响应类型: %q", h.Get("Content-Type"))
	}
}
