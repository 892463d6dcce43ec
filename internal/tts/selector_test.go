package tts

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/iabetor/voicestudio/internal/audio"
)

func TestBackendSelector_Unavailable(t *testing.T) {
	called := false
	s := NewBackendSelector(
		BackendCapability{Kind: "higgs", Available: false, Reason: "服务不可达"},
		func() (Backend, error) { called = true; return nil, nil },
		SelectorOptions{},
	)

	if called {
		t.Error("能力不可用时不应调用加载器")
	}
	if s.State() != BackendPlaceholder {
		t.Fatalf("State() = %s, want placeholder", s.State())
	}
	st := s.Snapshot()
	if st.Loaded || st.Reason != "服务不可达" || st.Quantization != "full" || st.Backend != "higgs" {
		t.Errorf("快照不符合预期: %+v", st)
	}

	syn, err := s.Synthesize(context.Background(), "Hello world", "", DefaultGenerationConfig())
	if err != nil {
		t.Fatalf("Synthesize 失败: %v", err)
	}
	if syn.Backend != PlaceholderName || syn.Fallback {
		t.Errorf("got backend=%s fallback=%v, want placeholder 非回退", syn.Backend, syn.Fallback)
	}
	if len(syn.Waveform.Samples) != 26400 {
		t.Errorf("样本数 = %d, want 26400", len(syn.Waveform.Samples))
	}
}

func TestBackendSelector_LoadFailure(t *testing.T) {
	tests := []struct {
		name string
		load BackendLoader
	}{
		{"返回错误", func() (Backend, error) { return nil, errors.New("显存不足") }},
		{"返回 nil", func() (Backend, error) { return nil, nil }},
		{"panic", func() (Backend, error) { panic("cuda init") }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewBackendSelector(BackendCapability{Kind: "fake", Available: true}, tt.load, SelectorOptions{})
			if s.State() != BackendPlaceholder {
				t.Fatalf("State() = %s, want placeholder", s.State())
			}
			st := s.Snapshot()
			if st.Reason == "" {
				t.Error("加载失败应记录原因")
			}
			if st.DowngradedAt.IsZero() {
				t.Error("加载失败应记录降级时间")
			}
		})
	}
}

func TestBackendSelector_RealSuccess(t *testing.T) {
	b := newFakeBackend(16000)
	s := realSelector(b, SelectorOptions{Quantization: "8bit"})

	if s.State() != BackendReal {
		t.Fatalf("State() = %s, want real", s.State())
	}
	st := s.Snapshot()
	if !st.Loaded || st.ModelName != "fake-model" || st.Quantization != "8bit" {
		t.Errorf("快照不符合预期: %+v", st)
	}

	seed := int64(3)
	cfg, err := NewGenerationConfig(0.5, 1.2, "happy", 24000, &seed)
	if err != nil {
		t.Fatal(err)
	}
	syn, err := s.Synthesize(context.Background(), "你好", "", cfg)
	if err != nil {
		t.Fatalf("Synthesize 失败: %v", err)
	}
	if syn.Backend != "fake-model" || syn.Fallback {
		t.Errorf("got backend=%s fallback=%v", syn.Backend, syn.Fallback)
	}
	// 16000Hz 的 0.5 秒被重采样到 24000Hz
	if syn.Waveform.SampleRate != 24000 || len(syn.Waveform.Samples) != 12000 {
		t.Errorf("重采样结果 sr=%d len=%d, want 24000/12000", syn.Waveform.SampleRate, len(syn.Waveform.Samples))
	}

	in := b.calls[0]
	if in.Text != "你好" || in.Temperature != 0.5 || in.Speed != 1.2 || in.Emotion != "happy" {
		t.Errorf("参数未透传: %+v", in)
	}
	if in.Seed == nil || *in.Seed != 3 {
		t.Errorf("Seed 未透传: %v", in.Seed)
	}
}

func TestBackendSelector_TransientFailure(t *testing.T) {
	b := newFakeBackend(24000)
	b.setErr(errors.New("网络抖动"))
	s := realSelector(b, SelectorOptions{})

	syn, err := s.Synthesize(context.Background(), "Hello world", "", DefaultGenerationConfig())
	if err != nil {
		t.Fatalf("失败应回退而不是报错: %v", err)
	}
	if syn.Backend != PlaceholderName || !syn.Fallback {
		t.Errorf("got backend=%s fallback=%v, want placeholder 回退", syn.Backend, syn.Fallback)
	}
	if len(syn.Waveform.Samples) != 26400 {
		t.Errorf("回退样本数 = %d, want 26400", len(syn.Waveform.Samples))
	}
	if s.State() != BackendReal {
		t.Error("单次失败不应降级")
	}

	// 下一次调用恢复正常
	b.setErr(nil)
	syn, err = s.Synthesize(context.Background(), "again", "", DefaultGenerationConfig())
	if err != nil || syn.Fallback || syn.Backend != "fake-model" {
		t.Errorf("恢复后应使用真实后端: syn=%+v err=%v", syn, err)
	}
	if b.callCount() != 2 {
		t.Errorf("callCount = %d, want 2", b.callCount())
	}
}

func TestBackendSelector_InitErrorDowngradesForever(t *testing.T) {
	b := newFakeBackend(24000)
	b.setErr(initError("fake", errors.New("模型权重损坏")))
	s := realSelector(b, SelectorOptions{})

	syn, err := s.Synthesize(context.Background(), "one", "", DefaultGenerationConfig())
	if err != nil || !syn.Fallback {
		t.Fatalf("初始化错误应回退: syn=%+v err=%v", syn, err)
	}
	if s.State() != BackendPlaceholder {
		t.Fatalf("初始化错误应触发降级, State() = %s", s.State())
	}
	if s.Snapshot().Reason == "" {
		t.Error("降级原因为空")
	}

	b.setErr(nil)
	for i := 0; i < 3; i++ {
		syn, err := s.Synthesize(context.Background(), "later", "", DefaultGenerationConfig())
		if err != nil {
			t.Fatal(err)
		}
		if syn.Backend != PlaceholderName || syn.Fallback {
			t.Errorf("降级后应直接使用占位音频（非回退）: %+v", syn)
		}
	}
	if b.callCount() != 1 {
		t.Errorf("降级后不应再调用真实后端, callCount = %d", b.callCount())
	}
}

func TestBackendSelector_DowngradeIsOneWay(t *testing.T) {
	s := realSelector(newFakeBackend(24000), SelectorOptions{})

	s.Downgrade("手动降级")
	first := s.Snapshot()
	time.Sleep(2 * time.Millisecond)
	s.Downgrade("第二次")
	second := s.Snapshot()

	if second.Kind != BackendPlaceholder {
		t.Fatalf("Kind = %s, want placeholder", second.Kind)
	}
	if second.Reason != "手动降级" || !second.DowngradedAt.Equal(first.DowngradedAt) {
		t.Errorf("重复降级不应覆盖原因和时间: %+v", second)
	}
}

func TestBackendSelector_InvalidOutputFallsBack(t *testing.T) {
	tests := []struct {
		name string
		wf   *audio.Waveform
	}{
		{"nil 波形", nil},
		{"空样本", &audio.Waveform{SampleRate: 24000}},
		{"NaN 样本", &audio.Waveform{Samples: []float32{0, float32(math.NaN())}, SampleRate: 24000}},
		{"采样率为 0", &audio.Waveform{Samples: []float32{0.1}, SampleRate: 0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newFakeBackend(24000)
			b.wf = tt.wf
			s := realSelector(b, SelectorOptions{})

			syn, err := s.Synthesize(context.Background(), "Hello world", "", DefaultGenerationConfig())
			if err != nil {
				t.Fatal(err)
			}
			if !syn.Fallback || syn.Backend != PlaceholderName {
				t.Errorf("非法输出应回退: %+v", syn)
			}
			if s.State() != BackendReal {
				t.Error("非法输出不应触发降级")
			}
		})
	}
}

func TestBackendSelector_PanicFallsBack(t *testing.T) {
	b := newFakeBackend(24000)
	b.panics = true
	s := realSelector(b, SelectorOptions{})

	syn, err := s.Synthesize(context.Background(), "boom", "", DefaultGenerationConfig())
	if err != nil {
		t.Fatal(err)
	}
	if !syn.Fallback {
		t.Error("panic 应回退占位音频")
	}
}

func TestBackendSelector_Timeout(t *testing.T) {
	b := newFakeBackend(24000)
	b.delay = time.Second
	s := realSelector(b, SelectorOptions{Timeout: 20 * time.Millisecond})

	start := time.Now()
	syn, err := s.Synthesize(context.Background(), "slow", "", DefaultGenerationConfig())
	if err != nil {
		t.Fatal(err)
	}
	if !syn.Fallback {
		t.Error("超时应回退占位音频")
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("超时未生效, 耗时 %v", elapsed)
	}
	if s.State() != BackendReal {
		t.Error("超时不应触发降级")
	}
}

func TestBackendSelector_RefAudioOnlyWhenExists(t *testing.T) {
	dir := t.TempDir()
	existing := filepath.Join(dir, "abc.wav")
	if err := os.WriteFile(existing, []byte("RIFF"), 0644); err != nil {
		t.Fatal(err)
	}

	b := newFakeBackend(24000)
	s := realSelector(b, SelectorOptions{})
	cfg := DefaultGenerationConfig()

	if _, err := s.Synthesize(context.Background(), "a", existing, cfg); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Synthesize(context.Background(), "b", filepath.Join(dir, "missing.wav"), cfg); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Synthesize(context.Background(), "c", "", cfg); err != nil {
		t.Fatal(err)
	}

	want := []string{existing, "", ""}
	for i, w := range want {
		if got := b.calls[i].RefAudioPath; got != w {
			t.Errorf("call %d RefAudioPath = %q, want %q", i, got, w)
		}
	}
}

func TestBackendSelector_InvalidConfig(t *testing.T) {
	s := realSelector(newFakeBackend(24000), SelectorOptions{})
	if _, err := s.Synthesize(context.Background(), "x", "", GenerationConfig{}); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("err = %v, want ErrInvalidConfig", err)
	}
}

func TestBackendSelector_Close(t *testing.T) {
	b := newFakeBackend(24000)
	s := realSelector(b, SelectorOptions{})
	s.Close()

	if !b.closed {
		t.Error("Close 应释放后端")
	}
	if s.State() != BackendPlaceholder {
		t.Error("Close 后应处于占位模式")
	}
}
