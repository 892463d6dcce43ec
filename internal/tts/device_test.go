package tts

import (
	"context"
	"errors"
	"testing"
)

func TestParseNvidiaSMI(t *testing.T) {
	tests := []struct {
		name     string
		out      string
		wantName string
		wantMem  MemoryUsage
		wantErr  bool
	}{
		{"单卡", "NVIDIA GeForce RTX 4090, 10240, 12288\n", "NVIDIA GeForce RTX 4090", MemoryUsage{10240, 12288}, false},
		{"多卡取第一块", "A100, 100, 200\nA100, 300, 400\n", "A100", MemoryUsage{100, 200}, false},
		{"reserved 不支持", "T4, 512, [N/A]", "T4", MemoryUsage{512, 0}, false},
		{"字段不足", "T4, 512", "", MemoryUsage{}, true},
		{"used 非数字", "T4, abc, 1", "", MemoryUsage{}, true},
		{"空输出", "", "", MemoryUsage{}, true},
		{"名称为空", " , 1, 2", "", MemoryUsage{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			name, mem, err := parseNvidiaSMI(tt.out)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if name != tt.wantName || mem != tt.wantMem {
				t.Errorf("got (%q, %+v), want (%q, %+v)", name, mem, tt.wantName, tt.wantMem)
			}
		})
	}
}

func TestNvidiaSMIProbe(t *testing.T) {
	var gotName string
	p := &NvidiaSMIProbe{Run: func(_ context.Context, name string, _ ...string) ([]byte, error) {
		gotName = name
		return []byte("RTX 3060, 2048, 4096\n"), nil
	}}

	info := p.Probe(context.Background())
	if gotName != "nvidia-smi" {
		t.Errorf("执行的命令 = %q", gotName)
	}
	if !info.HasGPU() || info.GPUName != "RTX 3060" {
		t.Errorf("Probe() = %+v", info)
	}

	mem, err := p.Memory(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if mem.AllocatedMB != 2048 || mem.ReservedMB != 4096 {
		t.Errorf("Memory() = %+v", mem)
	}
}

func TestNvidiaSMIProbe_NoGPU(t *testing.T) {
	p := &NvidiaSMIProbe{Run: func(context.Context, string, ...string) ([]byte, error) {
		return nil, errors.New("executable file not found")
	}}

	info := p.Probe(context.Background())
	if info.HasGPU() || info.Device != "cpu" || info.GPUName != "" {
		t.Errorf("Probe() = %+v, want cpu", info)
	}
	if _, err := p.Memory(context.Background()); err == nil {
		t.Error("没有 GPU 时 Memory 应返回错误")
	}

	if info := (&NvidiaSMIProbe{}).Probe(context.Background()); info.Device != "cpu" {
		t.Errorf("未配置执行器时应返回 cpu, got %+v", info)
	}
}
