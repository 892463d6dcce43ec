package tts

import (
	"bytes"
	"context"
	"fmt"

	"github.com/pp-group/edge-tts-go/biz/service/tts/edge"

	"github.com/iabetor/voicestudio/internal/audio"
	"github.com/iabetor/voicestudio/internal/logger"
)

// EdgeFactory 微软 Edge TTS 后端工厂。该服务不需要本地模型和凭证。
type EdgeFactory struct {
	voice string
}

var _ BackendFactory = (*EdgeFactory)(nil)

// NewEdgeFactory 创建指定语音的 Edge TTS 后端工厂。
func NewEdgeFactory(voice string) *EdgeFactory {
	if voice == "" {
		voice = "en-US-AriaNeural"
	}
	return &EdgeFactory{voice: voice}
}

// Kind 实现 BackendFactory 接口。
func (f *EdgeFactory) Kind() string { return "edge" }

// Probe 只检查语音名称，网络可用性在调用时才能知道。
func (f *EdgeFactory) Probe(_ context.Context) error {
	if f.voice == "" {
		return fmt.Errorf("未配置 Edge TTS 语音")
	}
	return nil
}

// Load 实现 BackendFactory 接口。
func (f *EdgeFactory) Load() (Backend, error) {
	logger.Infof("[tts] Edge TTS 后端已就绪 (voice=%s)", f.voice)
	return &EdgeBackend{voice: f.voice}, nil
}

// EdgeBackend 通过 edge-tts-go 获取 MP3，再用 go-mp3 解码。
type EdgeBackend struct {
	voice string
}

var _ Backend = (*EdgeBackend)(nil)

// Name 实现 Backend 接口。
func (b *EdgeBackend) Name() string { return "edge-tts/" + b.voice }

// Generate 实现 Backend 接口。Edge TTS 不支持参考音频、temperature 和 seed。
func (b *EdgeBackend) Generate(ctx context.Context, in GenerateInput) (*audio.Waveform, error) {
	logger.Debugf("[tts] edge-tts: 正在合成 %d 个字符，语音=%s", len([]rune(in.Text)), b.voice)

	comm, err := edge.NewCommunicate(in.Text, edge.WithVoice(b.voice))
	if err != nil {
		return nil, fmt.Errorf("edge-tts 创建实例失败: %w", err)
	}

	ch, err := comm.Stream()
	if err != nil {
		return nil, fmt.Errorf("edge-tts 开始流式合成失败: %w", err)
	}

	var mp3Buf bytes.Buffer
	for msg := range ch {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		// type=="audio" 的条目包含 MP3 数据
		if msgType, ok := msg["type"].(string); ok && msgType == "audio" {
			if data, ok := msg["data"].([]byte); ok {
				mp3Buf.Write(data)
			}
		}
	}

	if mp3Buf.Len() == 0 {
		return nil, fmt.Errorf("edge-tts: 未收到音频数据")
	}
	logger.Debugf("[tts] edge-tts: 收到 %d 字节 MP3 数据", mp3Buf.Len())

	return audio.DecodeMP3(mp3Buf.Bytes())
}

// Close 实现 Backend 接口。
func (b *EdgeBackend) Close() {}
