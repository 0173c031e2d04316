package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "go.uber.org/automaxprocs"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"subgate/internal/app"
	"subgate/internal/core/config"
	"subgate/internal/core/logger"
	"subgate/internal/core/server"
	"subgate/internal/transport/http/router"
	"subgate/pkg/utils"
)

func main() {
	hashPassword := flag.String("hash-password", "", "print the bcrypt hash for admin.passwordHash and exit")
	flag.Parse()
	if *hashPassword != "" {
		h, err := utils.HashPassword(*hashPassword)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		fmt.Println(h)
		return
	}

	_ = godotenv.Load()
	cfg, err := config.Load("")
	if err != nil {
		panic(err)
	}
	log, cleanup := logger.New(cfg.Log)
	defer cleanup()
	// 管理员凭据缺失时拒绝启动
	if err := cfg.ValidateAdmin(); err != nil {
		log.Fatal("invalid config", zap.Error(err))
	}
	if cfg.App.Env != "local" {
		gin.SetMode(gin.ReleaseMode)
	}
	gin.DefaultWriter = logger.ToWriter(log, zapcore.DebugLevel)
	gin.DefaultErrorWriter = logger.ToWriter(log, zapcore.ErrorLevel)

	deps, closeDeps, err := app.Wire(context.Background(), cfg, log)
	defer closeDeps()
	if err != nil {
		log.Fatal("wire dependencies", zap.Error(err))
	}

	// 路由（后台端）
	r := router.NewAdminEngine(deps)

	h := cfg.App.Admin
	addr := server.Addr(h.Host, h.Port)
	srv := server.BuildServer(
		addr, r,
		time.Duration(h.ReadTimeoutSec)*time.Second,
		time.Duration(h.WriteTimeoutSec)*time.Second,
		time.Duration(h.IdleTimeoutSec)*time.Second,
		logger.ToStdLogger(log, zapcore.WarnLevel),
	)

	baseURL := server.BaseURL(h.Host, h.Port)
	log.Info("admin api starting",
		zap.String("addr", addr),
		zap.String("open", baseURL+"/admin"),
		zap.String("health", baseURL+"/health"),
	)

	// 异步启动；失败立即标红退出
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("admin api start FAILED", zap.Error(err))
		}
	}()
	log.Info("admin api started SUCCESS")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Warn("shutdown", zap.Error(err))
	}
	log.Info("admin api stopped gracefully")
}
