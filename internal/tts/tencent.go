package tts

import (
	"context"
	"encoding/base64"
	"fmt"
	"math"

	"github.com/google/uuid"
	"github.com/tencentcloud/tencentcloud-sdk-go/tencentcloud/common"
	"github.com/tencentcloud/tencentcloud-sdk-go/tencentcloud/common/profile"
	tts "github.com/tencentcloud/tencentcloud-sdk-go/tencentcloud/tts/v20190823"

	"github.com/iabetor/voicestudio/internal/audio"
	"github.com/iabetor/voicestudio/internal/logger"
)

// TencentConfig 腾讯云 TTS 配置。
type TencentConfig struct {
	SecretID  string
	SecretKey string
	VoiceType int64
	Region    string
}

// TencentFactory 腾讯云 TTS 后端工厂。
type TencentFactory struct {
	cfg TencentConfig
}

var _ BackendFactory = (*TencentFactory)(nil)

// NewTencentFactory 创建腾讯云 TTS 后端工厂。
func NewTencentFactory(cfg TencentConfig) *TencentFactory {
	if cfg.VoiceType == 0 {
		cfg.VoiceType = 1001 // 智瑜（女声）
	}
	if cfg.Region == "" {
		cfg.Region = "ap-guangzhou"
	}
	return &TencentFactory{cfg: cfg}
}

// Kind 实现 BackendFactory 接口。
func (f *TencentFactory) Kind() string { return "tencent" }

// Probe 检查凭证是否配置。
func (f *TencentFactory) Probe(_ context.Context) error {
	if f.cfg.SecretID == "" || f.cfg.SecretKey == "" {
		return fmt.Errorf("腾讯云 TTS 需要 SecretID 和 SecretKey")
	}
	return nil
}

// Load 实现 BackendFactory 接口。
func (f *TencentFactory) Load() (Backend, error) {
	if err := f.Probe(context.Background()); err != nil {
		return nil, initError(f.Kind(), err)
	}

	credential := common.NewCredential(f.cfg.SecretID, f.cfg.SecretKey)
	cpf := profile.NewClientProfile()
	cpf.HttpProfile.Endpoint = "tts.tencentcloudapi.com"

	client, err := tts.NewClient(credential, f.cfg.Region, cpf)
	if err != nil {
		return nil, initError(f.Kind(), fmt.Errorf("创建腾讯云 TTS 客户端失败: %w", err))
	}

	logger.Infof("[tts] 腾讯云 TTS 后端已初始化 (voice=%d, region=%s)", f.cfg.VoiceType, f.cfg.Region)
	return &TencentBackend{client: client, voiceType: f.cfg.VoiceType}, nil
}

// TencentBackend 调用腾讯云 TextToVoice，返回 MP3 后解码。
type TencentBackend struct {
	client    *tts.Client
	voiceType int64
}

var _ Backend = (*TencentBackend)(nil)

// Name 实现 Backend 接口。
func (b *TencentBackend) Name() string { return fmt.Sprintf("tencent-tts/%d", b.voiceType) }

// Generate 实现 Backend 接口。
func (b *TencentBackend) Generate(ctx context.Context, in GenerateInput) (*audio.Waveform, error) {
	logger.Debugf("[tts] 腾讯云 TTS: 正在合成 %d 个字符，音色=%d", len([]rune(in.Text)), b.voiceType)

	request := tts.NewTextToVoiceRequest()
	request.SetContext(ctx)
	request.Text = common.StringPtr(in.Text)
	request.SessionId = common.StringPtr(uuid.NewString())
	request.VoiceType = common.Int64Ptr(b.voiceType)
	request.Codec = common.StringPtr("mp3")
	request.Speed = common.Float64Ptr(tencentSpeed(in.Speed))
	request.Volume = common.Float64Ptr(5.0)

	response, err := b.client.TextToVoice(request)
	if err != nil {
		return nil, fmt.Errorf("腾讯云 TTS 合成失败: %w", err)
	}
	if response.Response == nil || response.Response.Audio == nil {
		return nil, fmt.Errorf("腾讯云 TTS: 未返回音频数据")
	}

	mp3Data, err := base64.StdEncoding.DecodeString(*response.Response.Audio)
	if err != nil {
		return nil, fmt.Errorf("Base64 解码失败: %w", err)
	}
	logger.Debugf("[tts] 腾讯云 TTS: 收到 %d 字节 MP3 数据", len(mp3Data))

	return audio.DecodeMP3(mp3Data)
}

// Close 实现 Backend 接口。
func (b *TencentBackend) Close() {}

// tencentSpeed 把倍速映射到腾讯云的 [-2, 6] 语速档位，1.0 倍对应 0。
func tencentSpeed(speed float64) float64 {
	if speed <= 0 {
		return 0
	}
	v := math.Round((speed - 1.0) * 4)
	return math.Max(-2, math.Min(6, v))
}
