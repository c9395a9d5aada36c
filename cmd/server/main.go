package main

import (
	"context"

	"github.com/chloHabitto/habitto/internal/config"
	"github.com/chloHabitto/habitto/internal/db"
	"github.com/chloHabitto/habitto/internal/handler"
	"github.com/chloHabitto/habitto/internal/remote"
	"github.com/chloHabitto/habitto/internal/router"
	"github.com/chloHabitto/habitto/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("failed to load config: %v", err)
	}

	gin.SetMode(cfg.GinMode)

	// 初始化本地持久化存储
	if err := db.Init(cfg.DatabasePath); err != nil {
		logrus.Fatalf("failed to initialize database: %v", err)
	}

	// 远端镜像可选；连不上只降级为纯本地模式，绝不拦住启动
	var remoteStore *remote.Store
	if cfg.RemoteEnabled {
		client, err := remote.InitClient(context.Background(), cfg.RedisAddr, cfg.RedisPassword)
		if err != nil {
			logrus.Errorf("remote store unavailable, running local-only: %v", err)
		} else {
			remoteStore = remote.NewStore(client)
		}
	}

	progress := service.NewProgressService(db.DB)
	habits := service.NewHabitService(db.DB)
	vacations := service.NewVacationService(db.DB)
	cache := service.NewProjectionCache(progress, habits)
	evaluator := service.NewEvaluator(habits, cache, vacations)
	awards := service.NewAwardService(db.DB, evaluator, cfg.UnitReward)
	streaks := service.NewStreakService(evaluator, habits)

	coordinator := service.NewCoordinator(
		cfg.DefaultUserID, progress, cache, habits, remoteStore,
		cfg.MirrorQueueSize, cfg.MirrorMaxRetries,
	)

	// 本地库为空时先从远端冷启动加载，再续传上次未镜像完的写入
	if err := coordinator.ColdStart(context.Background()); err != nil {
		logrus.Errorf("cold start load failed, continuing with local state: %v", err)
	}

	coordinator.Start()
	defer coordinator.Stop()

	if err := coordinator.ResumePending(); err != nil {
		logrus.Errorf("resume pending mirrors failed: %v", err)
	}

	api := handler.NewAPI(handler.Deps{
		UserID:      cfg.DefaultUserID,
		Habits:      habits,
		Vacations:   vacations,
		Progress:    progress,
		Cache:       cache,
		Coordinator: coordinator,
		Awards:      awards,
		Streaks:     streaks,
	})

	r := router.SetupRouter(api)
	if err := r.Run(cfg.ListenAddr); err != nil {
		logrus.Fatalf("failed to run server: %v", err)
	}
}
