package server

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/netutil"

	"github.com/iabetor/voicestudio/internal/artifact"
	"github.com/iabetor/voicestudio/internal/config"
	"github.com/iabetor/voicestudio/internal/logger"
	"github.com/iabetor/voicestudio/internal/studio"
	"github.com/iabetor/voicestudio/internal/tts"
)

//go:embed index.html
var indexHTML []byte

const shutdownTimeout = 10 * time.Second

// Service HTTP 层依赖的生成服务。
type Service interface {
	Defaults() tts.GenerationConfig
	NewRequest(text, voiceID string, cfg tts.GenerationConfig) (tts.GenerationRequest, error)
	Generate(ctx context.Context, req tts.GenerationRequest) (studio.GenerationResult, error)
	UploadVoice(filename string, r io.Reader) (artifact.VoiceSample, error)
	History(limit int) ([]artifact.HistoryItem, error)
	ArtifactPath(filename string) (string, error)
	Status(ctx context.Context) studio.StatusResponse
}

// Server Voice Studio 的 HTTP 服务。
type Server struct {
	svc         Service
	cfg         config.ServerConfig
	maxTextLen  int
	historySize int
	mux         *http.ServeMux
}

// New 创建 HTTP 服务并注册路由。
func New(svc Service, cfg config.ServerConfig, gen config.GenerationConfig) *Server {
	s := &Server{
		svc:         svc,
		cfg:         cfg,
		maxTextLen:  gen.MaxTextLength,
		historySize: gen.HistoryLimit,
		mux:         http.NewServeMux(),
	}
	if s.maxTextLen <= 0 || s.maxTextLen > tts.MaxTextLength {
		s.maxTextLen = tts.MaxTextLength
	}

	s.mux.HandleFunc("GET /{$}", s.handleIndex)
	s.mux.HandleFunc("POST /upload-voice", s.handleUploadVoice)
	s.mux.HandleFunc("POST /generate", s.handleGenerate)
	s.mux.HandleFunc("GET /download/{filename}", s.handleDownload)
	s.mux.HandleFunc("GET /history", s.handleHistory)
	s.mux.HandleFunc("GET /status", s.handleStatus)
	return s
}

// Handler 返回带请求日志的根 handler。
func (s *Server) Handler() http.Handler {
	return logRequests(s.mux)
}

// ListenAndServe 监听 cfg.Addr，ctx 取消后优雅关闭。
func (s *Server) ListenAndServe(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("监听 %s 失败: %w", s.cfg.Addr, err)
	}
	return s.Serve(ctx, listener)
}

// Serve 在给定 listener 上提供服务。max_connections > 0 时限制并发连接数。
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	if s.cfg.MaxConnections > 0 {
		listener = netutil.LimitListener(listener, s.cfg.MaxConnections)
	}

	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("[server] HTTP 服务已启动: http://%s", listener.Addr())
		errCh <- srv.Serve(listener)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("HTTP 服务异常: %w", err)
	case <-ctx.Done():
	}

	logger.Info("[server] 正在关闭 HTTP 服务...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("关闭 HTTP 服务失败: %w", err)
	}
	return nil
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		logger.Z.Debug("[server] 请求",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("elapsed", time.Since(start)),
		)
	})
}
