package studio

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"time"

	"github.com/iabetor/voicestudio/internal/artifact"
	"github.com/iabetor/voicestudio/internal/config"
	"github.com/iabetor/voicestudio/internal/database"
	"github.com/iabetor/voicestudio/internal/logger"
	"github.com/iabetor/voicestudio/internal/tts"
)

// GenerationResult 一次生成的结果。
type GenerationResult struct {
	ID          string `json:"id"`
	Filename    string `json:"filename"`
	DownloadURL string `json:"download_url"`
}

// StatusResponse 状态快照加上今天的生成统计。
type StatusResponse struct {
	tts.Status
	Stats []database.GenerationStat `json:"stats,omitempty"`
}

// Option 可选依赖，主要用于测试注入。
type Option func(*options)

type options struct {
	factory    tts.BackendFactory
	hasFactory bool
	probe      tts.DeviceProbe
	noStats    bool
}

// WithFactory 使用指定的后端工厂代替配置。nil 表示只用占位音频。
func WithFactory(f tts.BackendFactory) Option {
	return func(o *options) {
		o.factory = f
		o.hasFactory = true
	}
}

// WithDeviceProbe 使用指定的设备探测器代替 nvidia-smi。
func WithDeviceProbe(p tts.DeviceProbe) Option {
	return func(o *options) { o.probe = p }
}

// WithoutStats 不打开统计数据库。
func WithoutStats() Option {
	return func(o *options) { o.noStats = true }
}

// Studio 把存储、后端选择器、执行器和统计组装在一起，供 HTTP 层调用。
type Studio struct {
	cfg      *config.Config
	store    *artifact.Store
	selector *tts.BackendSelector
	executor *tts.TaskExecutor
	reporter *tts.StatusReporter
	db       *database.DB
	stats    *database.StatsStore
}

// New 根据配置创建 Studio：建目录、探测并加载后端、启动执行器。
// 真实后端不可用不会导致失败，只有目录无法创建时返回错误。
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*Studio, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	s := &Studio{
		cfg:   cfg,
		store: artifact.NewStore(cfg.Paths.VoiceInputDir, cfg.Paths.GeneratedDir),
	}
	if err := EnsureDirs(cfg); err != nil {
		return nil, err
	}

	if !o.noStats {
		db, err := database.Open(cfg.Paths.Database)
		if err != nil {
			// 统计不可用不影响生成
			logger.Warnf("[studio] 打开统计数据库失败，生成统计将不可用: %v", err)
		} else {
			s.db = db
			s.stats = database.NewStatsStore(db)
		}
	}

	factory := o.factory
	if !o.hasFactory {
		factory = NewFactory(cfg)
	}
	capability := tts.ProbeCapability(ctx, factory)
	var loader tts.BackendLoader
	if factory != nil {
		loader = factory.Load
	}
	s.selector = tts.NewBackendSelector(capability, loader, tts.SelectorOptions{
		Quantization: cfg.Model.Quantization,
		Timeout:      time.Duration(cfg.Generation.BackendTimeout) * time.Second,
	})

	var recorder tts.StatsRecorder
	if s.stats != nil {
		recorder = s.stats
	}
	s.executor = tts.NewTaskExecutor(s.selector, cfg.Generation.QueueSize, recorder)

	probe := o.probe
	if probe == nil {
		probe = tts.NewNvidiaSMIProbe()
	}
	device := probe.Probe(ctx)
	logger.Infof("[studio] 计算设备: %s %s", device.Device, device.GPUName)
	s.reporter = tts.NewStatusReporter(s.selector, cfg.Paths.ModelsDir, device, probe, s.executor.Pending)

	return s, nil
}

// EnsureDirs 创建参考音频、生成音频和模型目录。
func EnsureDirs(cfg *config.Config) error {
	for _, dir := range []string{cfg.Paths.VoiceInputDir, cfg.Paths.GeneratedDir, cfg.Paths.ModelsDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("创建目录 %s 失败: %w", dir, err)
		}
	}
	return nil
}

// NewRequest 在边界处校验用户输入，文本长度上限来自配置。
func (s *Studio) NewRequest(text, voiceID string, cfg tts.GenerationConfig) (tts.GenerationRequest, error) {
	return tts.NewGenerationRequestWithLimit(text, voiceID, cfg, s.cfg.Generation.MaxTextLength)
}

// Defaults 返回配置中的默认生成参数。
func (s *Studio) Defaults() tts.GenerationConfig {
	return GenerationDefaults(s.cfg)
}

// Generate 解析参考音频、分配输出文件并提交给执行器，等待生成完成。
// 参考音频 ID 找不到时不做声音克隆，继续生成。
func (s *Studio) Generate(ctx context.Context, req tts.GenerationRequest) (GenerationResult, error) {
	var voicePath string
	if req.VoiceSampleID != "" {
		p, ok := s.store.ResolveVoiceSample(req.VoiceSampleID)
		if ok {
			voicePath = p
		} else {
			logger.Warnf("[studio] 未找到参考音频 %s，不做声音克隆", req.VoiceSampleID)
		}
	}

	art := s.store.NewArtifact(req.Text)
	if _, err := s.executor.Submit(ctx, tts.Job{
		Text:            req.Text,
		VoiceSamplePath: voicePath,
		OutputPath:      art.Path,
		Config:          req.Config,
	}); err != nil {
		return GenerationResult{}, err
	}

	return GenerationResult{
		ID:          art.ID,
		Filename:    art.Filename,
		DownloadURL: "/download/" + url.PathEscape(art.Filename),
	}, nil
}

// UploadVoice 保存上传的参考音频。
func (s *Studio) UploadVoice(filename string, r io.Reader) (artifact.VoiceSample, error) {
	return s.store.SaveVoiceSample(filename, r)
}

// History 返回最近的生成记录，limit <= 0 时使用配置值。
func (s *Studio) History(limit int) ([]artifact.HistoryItem, error) {
	if limit <= 0 {
		limit = s.cfg.Generation.HistoryLimit
	}
	return s.store.ListHistory(limit)
}

// ArtifactPath 返回可下载的生成音频路径。
func (s *Studio) ArtifactPath(filename string) (string, error) {
	return s.store.ArtifactPath(filename)
}

// Status 返回后端状态和今天的生成统计。
func (s *Studio) Status(ctx context.Context) StatusResponse {
	resp := StatusResponse{Status: s.reporter.Report(ctx)}
	if s.stats != nil {
		stats, err := s.stats.Today()
		if err != nil {
			logger.Warnf("[studio] 查询生成统计失败: %v", err)
		} else {
			resp.Stats = stats
		}
	}
	return resp
}

// Close 等待队列中的任务完成后释放后端和数据库。
func (s *Studio) Close() {
	s.executor.Close()
	s.selector.Close()
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			logger.Warnf("[studio] 关闭数据库失败: %v", err)
		}
	}
	logger.Info("[studio] 已关闭")
}
