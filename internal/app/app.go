// Package app 组装两个进程共用的依赖：DB、缓存、会话、事件、业务服务
package app

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"subgate/internal/core/auth"
	"subgate/internal/core/cache"
	"subgate/internal/core/config"
	"subgate/internal/core/database"
	"subgate/internal/core/events"
	"subgate/internal/domain"
	"subgate/internal/repo"
	"subgate/internal/service"
	"subgate/internal/transport/http/cookie"
	"subgate/internal/transport/http/router"
)

// Wire 返回 router.Deps 与关闭函数；Redis/AMQP 未配置时分别退回内存吊销表和空事件
func Wire(ctx context.Context, cfg *config.Config, log *zap.Logger) (router.Deps, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	db, err := OpenDB(cfg, log)
	if err != nil {
		return router.Deps{}, cleanup, err
	}
	if sqlDB, err := db.DB(); err == nil {
		closers = append(closers, func() { _ = sqlDB.Close() })
	}
	log.Info("database connected", zap.String("driver", cfg.DB.Driver))

	if cfg.DB.AutoMigrate {
		if err := repo.Migrate(db); err != nil {
			cleanup()
			return router.Deps{}, func() {}, fmt.Errorf("automigrate: %w", err)
		}
		log.Info("automigrate done")
	}

	opts := []service.Option{
		service.WithLogger(log),
		service.WithPolicy(domain.Policy{
			TrialPeriod:   cfg.Entitlement.TrialPeriod(),
			PremiumPeriod: cfg.Entitlement.PremiumPeriod(),
		}),
	}
	var deny auth.Denylist
	if cfg.Redis.Enabled() {
		c := cache.New(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err := c.Ping(ctx); err != nil {
			// 缓存不可用时继续运行，直接回源
			log.Warn("redis unavailable; running without cache", zap.Error(err))
			_ = c.Close()
		} else {
			closers = append(closers, func() { _ = c.Close() })
			opts = append(opts, service.WithCache(c, time.Duration(cfg.Redis.UserTTLSec)*time.Second))
			deny = auth.NewRedisDenylist(c.RDB)
			log.Info("redis connected", zap.String("addr", cfg.Redis.Addr))
		}
	}
	if cfg.AMQP.Enabled() {
		pub, err := events.NewRabbitPublisher(cfg.AMQP.URL, cfg.AMQP.Queue)
		if err != nil {
			log.Warn("amqp unavailable; entitlement events disabled", zap.Error(err))
		} else {
			closers = append(closers, pub.Close)
			opts = append(opts, service.WithPublisher(pub))
			log.Info("amqp connected", zap.String("queue", cfg.AMQP.Queue))
		}
	}

	svc := service.NewUserService(repo.NewUserRepo(db), opts...)
	jwter := &auth.JWTer{
		Secret: []byte(cfg.Session.Secret),
		Issuer: cfg.Session.Issuer,
		TTL:    time.Duration(cfg.Session.TTLMin) * time.Minute,
	}

	return router.Deps{
		Log:      log,
		Users:    svc,
		Sessions: auth.NewSessions(jwter, deny, time.Duration(cfg.Session.AdminTTLMin)*time.Minute),
		Cookies:  cookie.NewManager(cfg.Session.CookieDomain, cfg.Session.SecureCookie),
		Admin:    auth.AdminCredentials{Username: cfg.Admin.Username, PasswordHash: cfg.Admin.PasswordHash},
		Cfg:      cfg,
	}, cleanup, nil
}

func OpenDB(cfg *config.Config, l *zap.Logger) (*gorm.DB, error) {
	return database.NewGorm(database.Opts{
		Driver:             cfg.DB.Driver,
		DSN:                cfg.DB.DSN,
		Username:           cfg.DB.Username,
		Password:           cfg.DB.Password,
		MaxOpenConns:       cfg.DB.MaxOpenConns,
		MaxIdleConns:       cfg.DB.MaxIdleConns,
		ConnMaxLifetimeMin: cfg.DB.ConnMaxLifetimeMin,
		LogLevel:           cfg.DB.LogLevel,
		Log:                l,
	})
}
