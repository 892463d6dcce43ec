package tts

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// DeviceInfo 启动时探测一次的计算设备信息。
type DeviceInfo struct {
	Device  string // cuda 或 cpu
	GPUName string
}

// HasGPU 是否检测到 GPU。
func (d DeviceInfo) HasGPU() bool { return d.Device == "cuda" }

// MemoryUsage 显存占用（MB）。
type MemoryUsage struct {
	AllocatedMB float64
	ReservedMB  float64
}

// DeviceProbe 设备探测能力。
type DeviceProbe interface {
	// Probe 探测设备，失败时返回 cpu。
	Probe(ctx context.Context) DeviceInfo
	// Memory 查询当前显存占用，不可用时返回错误。
	Memory(ctx context.Context) (MemoryUsage, error)
}

// CommandRunner 执行外部命令并返回 stdout。
type CommandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

// NvidiaSMIProbe 通过 nvidia-smi 查询 GPU 名称和显存。
type NvidiaSMIProbe struct {
	Run     CommandRunner
	Timeout time.Duration
}

// NewNvidiaSMIProbe 创建使用系统 nvidia-smi 的探测器。
func NewNvidiaSMIProbe() *NvidiaSMIProbe {
	return &NvidiaSMIProbe{
		Run: func(ctx context.Context, name string, args ...string) ([]byte, error) {
			return exec.CommandContext(ctx, name, args...).Output()
		},
		Timeout: 3 * time.Second,
	}
}

var nvidiaSMIArgs = []string{
	"--query-gpu=name,memory.used,memory.reserved",
	"--format=csv,noheader,nounits",
}

// Probe 实现 DeviceProbe 接口。
func (p *NvidiaSMIProbe) Probe(ctx context.Context) DeviceInfo {
	name, _, err := p.query(ctx)
	if err != nil {
		return DeviceInfo{Device: "cpu"}
	}
	return DeviceInfo{Device: "cuda", GPUName: name}
}

// Memory 实现 DeviceProbe 接口。
func (p *NvidiaSMIProbe) Memory(ctx context.Context) (MemoryUsage, error) {
	_, mem, err := p.query(ctx)
	return mem, err
}

func (p *NvidiaSMIProbe) query(ctx context.Context) (string, MemoryUsage, error) {
	if p.Run == nil {
		return "", MemoryUsage{}, fmt.Errorf("未配置命令执行器")
	}
	if p.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.Timeout)
		defer cancel()
	}

	out, err := p.Run(ctx, "nvidia-smi", nvidiaSMIArgs...)
	if err != nil {
		return "", MemoryUsage{}, fmt.Errorf("执行 nvidia-smi 失败: %w", err)
	}
	return parseNvidiaSMI(string(out))
}

// parseNvidiaSMI 解析第一块 GPU 的 "name, used, reserved"。
func parseNvidiaSMI(out string) (string, MemoryUsage, error) {
	line := strings.TrimSpace(strings.SplitN(strings.TrimSpace(out), "\n", 2)[0])
	fields := strings.Split(line, ",")
	if len(fields) < 3 {
		return "", MemoryUsage{}, fmt.Errorf("nvidia-smi 输出格式异常: %q", line)
	}

	name := strings.TrimSpace(fields[0])
	used, err := strconv.ParseFloat(strings.TrimSpace(fields[1]), 64)
	if err != nil {
		return "", MemoryUsage{}, fmt.Errorf("解析 memory.used 失败: %w", err)
	}
	reserved, err := strconv.ParseFloat(strings.TrimSpace(fields[2]), 64)
	if err != nil {
		// 旧驱动不支持 memory.reserved，显示为 [N/A]
		reserved = 0
	}
	if name == "" {
		return "", MemoryUsage{}, fmt.Errorf("nvidia-smi 未返回 GPU 名称")
	}
	return name, MemoryUsage{AllocatedMB: used, ReservedMB: reserved}, nil
}
