package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/iabetor/voicestudio/internal/config"
	"github.com/iabetor/voicestudio/internal/logger"
	"github.com/iabetor/voicestudio/internal/server"
	"github.com/iabetor/voicestudio/internal/studio"
)

func main() {
	configPath := flag.String("config", "configs/voicestudio.yaml", "配置文件路径")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Init(logger.Config{
		Level:      cfg.Log.Level,
		File:       cfg.Log.File,
		MaxSize:    cfg.Log.MaxSize,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAge:     cfg.Log.MaxAge,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "初始化日志失败: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Infof("[main] Voice Studio 启动中 (backend=%s, log_level=%s)", cfg.Model.Backend, cfg.Log.Level)

	// 监听系统信号，优雅关闭
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := studio.New(ctx, cfg)
	if err != nil {
		logger.Errorf("[main] 初始化失败: %v", err)
		logger.Sync()
		os.Exit(1)
	}
	defer st.Close()

	srv := server.New(st, cfg.Server, cfg.Generation)
	if err := srv.ListenAndServe(ctx); err != nil {
		logger.Errorf("[main] HTTP 服务出错: %v", err)
		st.Close()
		logger.Sync()
		os.Exit(1)
	}

	logger.Info("[main] Voice Studio 已停止")
}
