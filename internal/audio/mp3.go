package audio

import (
	"bytes"
	"fmt"
	"io"

	"github.com/hajimehoshi/go-mp3"
)

// DecodeMP3 将 MP3 数据完整解码为单声道波形。
// go-mp3 输出固定为 16-bit 小端立体声。
func DecodeMP3(data []byte) (*Waveform, error) {
	decoder, err := mp3.NewDecoder(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("创建 MP3 解码器失败: %w", err)
	}

	pcm, err := io.ReadAll(decoder)
	if err != nil {
		return nil, fmt.Errorf("解码 MP3 失败: %w", err)
	}

	return &Waveform{
		Samples:    int16StereoToMonoFloat32(pcm),
		SampleRate: decoder.SampleRate(),
	}, nil
}

// int16StereoToMonoFloat32 将 16-bit 立体声 PCM 字节转换为单声道 float32。
func int16StereoToMonoFloat32(data []byte) []float32 {
	numSamples := len(data) / 4
	if numSamples == 0 {
		return nil
	}
	samples := make([]float32, numSamples)

	for i := 0; i < numSamples; i++ {
		left := int16(data[i*4]) | int16(data[i*4+1])<<8
		right := int16(data[i*4+2]) | int16(data[i*4+3])<<8
		samples[i] = (float32(left) + float32(right)) / 65536.0
	}

	return samples
}
