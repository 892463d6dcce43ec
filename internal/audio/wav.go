package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

const (
	wavFormatPCM   = 1
	wavFormatFloat = 3
)

// ErrUnsupportedWAV 表示无法解析的 WAV 格式。
var ErrUnsupportedWAV = errors.New("不支持的 WAV 格式")

type wavHeader struct {
	ChunkID       [4]byte
	ChunkSize     uint32
	Format        [4]byte
	Subchunk1ID   [4]byte
	Subchunk1Size uint32
	AudioFormat   uint16
	NumChannels   uint16
	SampleRate    uint32
	ByteRate      uint32
	BlockAlign    uint16
	BitsPerSample uint16
	Subchunk2ID   [4]byte
	Subchunk2Size uint32
}

// EncodeWAV 将波形编码为 16-bit PCM 单声道 WAV。
func EncodeWAV(w io.Writer, wf *Waveform) error {
	if wf == nil || wf.SampleRate <= 0 {
		return fmt.Errorf("%w: 无法编码", ErrInvalidWaveform)
	}

	pcm := Float32ToBytes(wf.Samples)
	hdr := wavHeader{
		ChunkID:       [4]byte{'R', 'I', 'F', 'F'},
		ChunkSize:     uint32(36 + len(pcm)),
		Format:        [4]byte{'W', 'A', 'V', 'E'},
		Subchunk1ID:   [4]byte{'f', 'm', 't', ' '},
		Subchunk1Size: 16,
		AudioFormat:   wavFormatPCM,
		NumChannels:   1,
		SampleRate:    uint32(wf.SampleRate),
		ByteRate:      uint32(wf.SampleRate * 2),
		BlockAlign:    2,
		BitsPerSample: 16,
		Subchunk2ID:   [4]byte{'d', 'a', 't', 'a'},
		Subchunk2Size: uint32(len(pcm)),
	}

	if err := binary.Write(w, binary.LittleEndian, hdr); err != nil {
		return fmt.Errorf("写入 WAV 头失败: %w", err)
	}
	if _, err := w.Write(pcm); err != nil {
		return fmt.Errorf("写入 PCM 数据失败: %w", err)
	}
	return nil
}

// DecodeWAV 解析 PCM16 或 float32 WAV，多声道会混为单声道。
func DecodeWAV(data []byte) (*Waveform, error) {
	r := bytes.NewReader(data)

	var riff [4]byte
	var size uint32
	var wave [4]byte
	if err := binary.Read(r, binary.LittleEndian, &riff); err != nil {
		return nil, fmt.Errorf("读取 RIFF 头失败: %w", err)
	}
	if err := binary.Read(r, binary.LittleEndian, &size); err != nil {
		return nil, fmt.Errorf("读取 RIFF 头失败: %w", err)
	}
	if err := binary.Read(r, binary.LittleEndian, &wave); err != nil {
		return nil, fmt.Errorf("读取 RIFF 头失败: %w", err)
	}
	if string(riff[:]) != "RIFF" || string(wave[:]) != "WAVE" {
		return nil, fmt.Errorf("%w: 缺少 RIFF/WAVE 标记", ErrUnsupportedWAV)
	}

	var (
		audioFormat uint16
		channels    uint16
		sampleRate  uint32
		bits        uint16
		gotFmt      bool
	)

	// 逐个遍历 chunk，跳过 LIST 等元数据块
	for {
		var id [4]byte
		var chunkSize uint32
		if err := binary.Read(r, binary.LittleEndian, &id); err != nil {
			return nil, fmt.Errorf("%w: 未找到 data 块", ErrUnsupportedWAV)
		}
		if err := binary.Read(r, binary.LittleEndian, &chunkSize); err != nil {
			return nil, fmt.Errorf("%w: chunk 长度不完整", ErrUnsupportedWAV)
		}

		switch string(id[:]) {
		case "fmt ":
			body := make([]byte, chunkSize)
			if _, err := io.ReadFull(r, body); err != nil || chunkSize < 16 {
				return nil, fmt.Errorf("%w: fmt 块不完整", ErrUnsupportedWAV)
			}
			audioFormat = binary.LittleEndian.Uint16(body[0:2])
			channels = binary.LittleEndian.Uint16(body[2:4])
			sampleRate = binary.LittleEndian.Uint32(body[4:8])
			bits = binary.LittleEndian.Uint16(body[14:16])
			gotFmt = true
		case "data":
			if !gotFmt {
				return nil, fmt.Errorf("%w: data 块出现在 fmt 之前", ErrUnsupportedWAV)
			}
			if int64(chunkSize) > int64(r.Len()) {
				chunkSize = uint32(r.Len())
			}
			body := make([]byte, chunkSize)
			if _, err := io.ReadFull(r, body); err != nil {
				return nil, fmt.Errorf("读取 data 块失败: %w", err)
			}
			samples, err := decodePCM(body, audioFormat, bits, int(channels))
			if err != nil {
				return nil, err
			}
			return &Waveform{Samples: samples, SampleRate: int(sampleRate)}, nil
		default:
			if _, err := r.Seek(int64(chunkSize+chunkSize%2), io.SeekCurrent); err != nil {
				return nil, fmt.Errorf("%w: 跳过 chunk 失败", ErrUnsupportedWAV)
			}
		}
	}
}

func decodePCM(body []byte, format, bits uint16, channels int) ([]float32, error) {
	if channels <= 0 {
		return nil, fmt.Errorf("%w: 声道数 %d", ErrUnsupportedWAV, channels)
	}

	var mono []float32
	switch {
	case format == wavFormatPCM && bits == 16:
		mono = Int16ToFloat32(BytesToInt16(body))
	case format == wavFormatFloat && bits == 32:
		mono = Float32LEToFloat32(body)
	default:
		return nil, fmt.Errorf("%w: format=%d bits=%d", ErrUnsupportedWAV, format, bits)
	}

	if channels == 1 {
		return mono, nil
	}
	return mixDown(mono, channels), nil
}

// mixDown 将交错的多声道样本平均为单声道。
func mixDown(interleaved []float32, channels int) []float32 {
	frames := len(interleaved) / channels
	out := make([]float32, frames)
	for i := 0; i < frames; i++ {
		var sum float32
		for c := 0; c < channels; c++ {
			sum += interleaved[i*channels+c]
		}
		out[i] = sum / float32(channels)
	}
	return out
}

// WriteWAVFile 将波形写入 path。先写 .tmp 再 rename，失败时不留下半成品。
func WriteWAVFile(path string, wf *Waveform) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("创建输出目录失败: %w", err)
	}

	tmpPath := path + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("创建临时文件失败: %w", err)
	}

	if err := EncodeWAV(f, wf); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("关闭临时文件失败: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("重命名输出文件失败: %w", err)
	}
	return nil
}

// ReadWAVFile 读取并解析 WAV 文件。
func ReadWAVFile(path string) (*Waveform, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取 WAV 文件失败: %w", err)
	}
	return DecodeWAV(data)
}
