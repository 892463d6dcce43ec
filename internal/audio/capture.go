package audio

import (
	"context"
	"fmt"
	"sync"

	"github.com/gen2brain/malgo"

	"github.com/iabetor/voicestudio/internal/logger"
)

// Recorder 通过默认麦克风录制参考音频（单声道 S16）。
type Recorder struct {
	ctx        *malgo.AllocatedContext
	sampleRate int
	mu         sync.Mutex
	closed     bool
}

// NewRecorder 创建录音器，sampleRate 为录制采样率。
func NewRecorder(sampleRate int) (*Recorder, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("采样率不合法: %d", sampleRate)
	}
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("初始化录音上下文失败: %w", err)
	}
	return &Recorder{ctx: ctx, sampleRate: sampleRate}, nil
}

// Record 录音直到 ctx 结束（通常是带超时的 ctx），返回录到的波形。
func (r *Recorder) Record(ctx context.Context) (*Waveform, error) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, fmt.Errorf("录音器已关闭")
	}
	r.mu.Unlock()

	frames := make(chan []float32, 64)
	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatS16
	deviceConfig.Capture.Channels = 1
	deviceConfig.SampleRate = uint32(r.sampleRate)
	deviceConfig.PeriodSizeInFrames = 512
	deviceConfig.Periods = 2

	callbacks := malgo.DeviceCallbacks{
		Data: func(_, inputSamples []byte, _ uint32) {
			if len(inputSamples) == 0 {
				return
			}
			// 消费端跟不上时丢帧，不阻塞音频线程
			select {
			case frames <- BytesToFloat32(inputSamples):
			default:
			}
		},
	}

	device, err := malgo.InitDevice(r.ctx.Context, deviceConfig, callbacks)
	if err != nil {
		return nil, fmt.Errorf("初始化录音设备失败: %w", err)
	}
	defer device.Uninit()

	if err := device.Start(); err != nil {
		return nil, fmt.Errorf("启动录音设备失败: %w", err)
	}
	logger.Info("[audio] 开始录音")

	var samples []float32
loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case f := <-frames:
			samples = append(samples, f...)
		}
	}
	device.Stop()

	// 设备停止后取走残留的帧
	for len(frames) > 0 {
		samples = append(samples, <-frames...)
	}

	wf := &Waveform{Samples: samples, SampleRate: r.sampleRate}
	logger.Infof("[audio] 录音结束: %.2fs", wf.Duration().Seconds())
	return wf, nil
}

// Close 释放录音上下文。
func (r *Recorder) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return
	}
	r.closed = true
	_ = r.ctx.Uninit()
	r.ctx.Free()
}
