package tts

import (
	"context"
)

// Status 状态快照，字段名与 HTTP /status 输出一致。
type Status struct {
	ModelName            string   `json:"model_name"`
	Backend              string   `json:"backend"`
	Loaded               bool     `json:"loaded"`
	Quantization         string   `json:"quantization"`
	ModelsDir            string   `json:"models_dir"`
	RealBackendAvailable bool     `json:"real_backend_available"`
	DowngradeReason      string   `json:"downgrade_reason,omitempty"`
	Device               string   `json:"device,omitempty"`
	GPUName              string   `json:"gpu_name,omitempty"`
	VRAMAllocatedMB      *float64 `json:"vram_allocated_mb,omitempty"`
	VRAMReservedMB       *float64 `json:"vram_reserved_mb,omitempty"`
	QueueDepth           int      `json:"queue_depth"`
}

// StatusReporter 汇总后端状态和设备信息。
type StatusReporter struct {
	selector  *BackendSelector
	modelsDir string
	device    DeviceInfo
	probe     DeviceProbe
	pending   func() int
}

// NewStatusReporter 创建状态汇总器。device 应在启动时由 probe 探测一次后传入；
// probe 仅用于按需查询显存，可以为 nil。pending 返回队列深度，可以为 nil。
func NewStatusReporter(selector *BackendSelector, modelsDir string, device DeviceInfo, probe DeviceProbe, pending func() int) *StatusReporter {
	return &StatusReporter{
		selector:  selector,
		modelsDir: modelsDir,
		device:    device,
		probe:     probe,
		pending:   pending,
	}
}

// Report 返回当前状态。显存查询失败时省略相关字段。
func (r *StatusReporter) Report(ctx context.Context) Status {
	st := r.selector.Snapshot()
	isReal := st.Kind == BackendReal

	name := st.ModelName
	if name == "" {
		name = st.Backend
	}
	if !isReal && name != PlaceholderName {
		name += " (placeholder)"
	}

	out := Status{
		ModelName:            name,
		Backend:              st.Backend,
		Loaded:               st.Loaded,
		Quantization:         st.Quantization,
		ModelsDir:            r.modelsDir,
		RealBackendAvailable: isReal,
		DowngradeReason:      st.Reason,
	}
	if r.pending != nil {
		out.QueueDepth = r.pending()
	}

	if !isReal || !r.device.HasGPU() {
		out.Device = "cpu"
		return out
	}

	out.Device = r.device.Device
	out.GPUName = r.device.GPUName
	if r.probe != nil {
		if mem, err := r.probe.Memory(ctx); err == nil {
			allocated, reserved := mem.AllocatedMB, mem.ReservedMB
			out.VRAMAllocatedMB = &allocated
			out.VRAMReservedMB = &reserved
		}
	}
	return out
}
