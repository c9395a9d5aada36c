package handler

import (
	"github.com/chloHabitto/habitto/internal/service"
)

// API 聚合各 handler 共享的服务依赖
type API struct {
	userID      string
	habits      *service.HabitService
	vacations   *service.VacationService
	progress    *service.ProgressService
	cache       *service.ProjectionCache
	coordinator *service.Coordinator
	awards      *service.AwardService
	streaks     *service.StreakService
}

// Deps 是 NewAPI 的装配输入，服务实例与协调器那一套共用，全程只装配一次
type Deps struct {
	UserID      string
	Habits      *service.HabitService
	Vacations   *service.VacationService
	Progress    *service.ProgressService
	Cache       *service.ProjectionCache
	Coordinator *service.Coordinator
	Awards      *service.AwardService
	Streaks     *service.StreakService
}

// NewAPI 构造 handler 集合
// 变更一律走 coordinator，读取一律走投影缓存，handler 不直接碰完成事实
func NewAPI(deps Deps) *API {
	return &API{
		userID:      deps.UserID,
		habits:      deps.Habits,
		vacations:   deps.Vacations,
		progress:    deps.Progress,
		cache:       deps.Cache,
		coordinator: deps.Coordinator,
		awards:      deps.Awards,
		streaks:     deps.Streaks,
	}
}
