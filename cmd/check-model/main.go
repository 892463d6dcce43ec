package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/iabetor/voicestudio/internal/artifact"
	"github.com/iabetor/voicestudio/internal/audio"
	"github.com/iabetor/voicestudio/internal/config"
	"github.com/iabetor/voicestudio/internal/studio"
	"github.com/iabetor/voicestudio/internal/tts"
)

const defaultPhrase = "Hello, this is a voice studio model check."

func main() {
	configPath := flag.String("config", "configs/voicestudio.yaml", "配置文件路径")
	play := flag.Bool("play", false, "合成测试语句并通过扬声器播放")
	out := flag.String("out", "", "把测试语句写入该 WAV 文件")
	text := flag.String("text", defaultPhrase, "测试语句")
	record := flag.Duration("record", 0, "录制指定时长的参考音频并保存到参考音频目录（如 10s）")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fmt.Println("Voice Studio 模型检查")
	fmt.Println()
	fmt.Printf("  配置的后端:   %s\n", cfg.Model.Backend)
	fmt.Printf("  量化模式:     %s\n", cfg.Model.Quantization)
	fmt.Printf("  模型目录:     %s (%s)\n", cfg.Paths.ModelsDir, existence(cfg.Paths.ModelsDir))
	for _, f := range modelFiles(cfg) {
		fmt.Printf("  模型文件:     %s (%s)\n", f, existence(f))
	}

	device := tts.NewNvidiaSMIProbe().Probe(ctx)
	if device.HasGPU() {
		fmt.Printf("  计算设备:     %s (%s)\n", device.Device, device.GPUName)
	} else {
		fmt.Printf("  计算设备:     %s\n", device.Device)
	}

	factory := studio.NewFactory(cfg)
	capability := tts.ProbeCapability(ctx, factory)
	if capability.Available {
		fmt.Printf("  后端探测:     %s 可用\n", capability.Kind)
	} else {
		fmt.Printf("  后端探测:     %s 不可用: %s\n", capability.Kind, capability.Reason)
	}

	var loader tts.BackendLoader
	if factory != nil {
		loader = factory.Load
	}
	selector := tts.NewBackendSelector(capability, loader, tts.SelectorOptions{
		Quantization: cfg.Model.Quantization,
		Timeout:      time.Duration(cfg.Generation.BackendTimeout) * time.Second,
	})
	defer selector.Close()

	snap := selector.Snapshot()
	fmt.Printf("  选择器状态:   %s\n", snap.Kind)
	if snap.ModelName != "" {
		fmt.Printf("  模型名称:     %s\n", snap.ModelName)
	}
	if snap.Reason != "" {
		fmt.Printf("  降级原因:     %s\n", snap.Reason)
	}
	fmt.Println()

	if *record > 0 {
		if err := recordVoice(ctx, cfg, *record); err != nil {
			fmt.Fprintf(os.Stderr, "录制参考音频失败: %v\n", err)
			os.Exit(1)
		}
	}

	if !*play && *out == "" {
		return
	}

	gen := studio.GenerationDefaults(cfg)
	syn, err := selector.Synthesize(ctx, *text, "", gen)
	if err != nil {
		fmt.Fprintf(os.Stderr, "合成失败: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("合成完成: 后端 %s，%.2fs 音频", syn.Backend, syn.Waveform.Duration().Seconds())
	if syn.Fallback {
		fmt.Print("（真实后端失败，使用了占位音频）")
	}
	fmt.Println()

	if *out != "" {
		if err := audio.WriteWAVFile(*out, syn.Waveform); err != nil {
			fmt.Fprintf(os.Stderr, "写入 %s 失败: %v\n", *out, err)
			os.Exit(1)
		}
		fmt.Printf("已写入 %s\n", *out)
	}

	if *play {
		player, err := audio.NewPlayer()
		if err != nil {
			fmt.Fprintf(os.Stderr, "初始化播放器失败: %v\n", err)
			os.Exit(1)
		}
		defer player.Close()
		if err := player.Play(ctx, syn.Waveform); err != nil {
			fmt.Fprintf(os.Stderr, "播放失败: %v\n", err)
			os.Exit(1)
		}
	}
}

// modelFiles 返回当前后端依赖的本地模型文件。
func modelFiles(cfg *config.Config) []string {
	switch cfg.Model.Backend {
	case "sherpa":
		files := []string{cfg.Model.Sherpa.Model, cfg.Model.Sherpa.Tokens}
		if cfg.Model.Sherpa.Lexicon != "" {
			files = append(files, cfg.Model.Sherpa.Lexicon)
		}
		return files
	case "piper":
		return []string{cfg.Model.Piper.Model}
	default:
		return nil
	}
}

func existence(path string) string {
	if _, err := os.Stat(path); err != nil {
		return "不存在"
	}
	return "存在"
}

// recordVoice 录制一段参考音频并按上传的规则保存，打印可用于生成的 voice_id。
func recordVoice(ctx context.Context, cfg *config.Config, d time.Duration) error {
	rec, err := audio.NewRecorder(cfg.Generation.SampleRate)
	if err != nil {
		return err
	}
	defer rec.Close()

	fmt.Print("按回车开始录制...")
	fmt.Scanln()
	fmt.Printf("  录制中（%v）...\n", d)

	recCtx, cancel := context.WithTimeout(ctx, d)
	defer cancel()
	wf, err := rec.Record(recCtx)
	if err != nil {
		return err
	}
	if err := wf.Validate(); err != nil {
		return fmt.Errorf("没有录到声音: %w", err)
	}

	var buf bytes.Buffer
	if err := audio.EncodeWAV(&buf, wf); err != nil {
		return err
	}

	store := artifact.NewStore(cfg.Paths.VoiceInputDir, cfg.Paths.GeneratedDir)
	if err := store.EnsureDirs(); err != nil {
		return err
	}
	sample, err := store.SaveVoiceSample("recording.wav", &buf)
	if err != nil {
		return err
	}
	fmt.Printf("  已保存 %.2fs 参考音频，voice_id: %s\n\n", wf.Duration().Seconds(), sample.ID)
	return nil
}
