package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/chloHabitto/habitto/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// LogProgress 记录当日进度增量
// 本地落盘与投影补丁同步完成后才返回，随后就地重估当日奖励（幂等，可重复触发）
func (a *API) LogProgress(c *gin.Context) {
	habitID, err := parseUintParam(c, "id")
	if err != nil {
		respondError(c, http.StatusBadRequest, "无效的习惯ID")
		return
	}

	var payload struct {
		Date  string `json:"date"`
		Delta int    `json:"delta"`
	}
	if !bindJSON(c, &payload, "请求参数不合法") {
		return
	}

	date, ok := a.parseMutationDate(c, payload.Date)
	if !ok {
		return
	}

	result, err := a.coordinator.LogDelta(c.Request.Context(), habitID, date, payload.Delta)
	if err != nil {
		handleMutationError(c, err)
		return
	}

	a.respondMutation(c, result, date)
}

// UndoProgress 显式撤销当日进度，写入绝对值 0 并重估当日奖励（撤销入账）
func (a *API) UndoProgress(c *gin.Context) {
	habitID, err := parseUintParam(c, "id")
	if err != nil {
		respondError(c, http.StatusBadRequest, "无效的习惯ID")
		return
	}

	var payload struct {
		Date string `json:"date"`
	}
	if !bindJSON(c, &payload, "请求参数不合法") {
		return
	}

	date, ok := a.parseMutationDate(c, payload.Date)
	if !ok {
		return
	}

	result, err := a.coordinator.Undo(c.Request.Context(), habitID, date)
	if err != nil {
		handleMutationError(c, err)
		return
	}

	a.respondMutation(c, result, date)
}

func (a *API) respondMutation(c *gin.Context, result service.MutationResult, date time.Time) {
	granted, _, err := a.awards.Evaluate(a.userID, date)
	if err != nil {
		// 奖励评估失败不影响变更本身，下一次评估会自愈
		logrus.Errorf("award evaluation after mutation failed: %v", err)
	}

	total, entryCount, err := a.awards.TotalReward(a.userID)
	if err != nil {
		logrus.Errorf("recompute total reward failed: %v", err)
	}

	key := date.Format(dateFormat)
	c.JSON(http.StatusOK, gin.H{
		"fact": gin.H{
			"habit_id":       result.Fact.HabitID,
			"date":           key,
			"progress_count": result.Fact.ProgressCount,
		},
		"projection": projectionToPayload(result.View),
		"day": gin.H{
			"date":      key,
			"completed": result.View.Completed(key),
		},
		"award": gin.H{
			"granted_today": granted,
			"total_reward":  total,
			"entry_count":   entryCount,
		},
	})
}

// GetProjection 返回习惯的三张派生表
func (a *API) GetProjection(c *gin.Context) {
	habitID, err := parseUintParam(c, "id")
	if err != nil {
		respondError(c, http.StatusBadRequest, "无效的习惯ID")
		return
	}

	if _, err := a.habits.Get(habitID); err != nil {
		handleHabitError(c, err)
		return
	}

	view := a.cache.GetOrRebuild(habitID)
	c.JSON(http.StatusOK, gin.H{"projection": projectionToPayload(view)})
}

// GetStreak 返回当前连胜
func (a *API) GetStreak(c *gin.Context) {
	streak, err := a.streaks.ComputeStreak(a.userID, time.Now())
	if err != nil {
		respondError(c, http.StatusInternalServerError, "计算连胜失败")
		return
	}

	c.JSON(http.StatusOK, gin.H{"streak": streak})
}

// GetTotalReward 返回累计奖励，总额永远按台账行数重算
func (a *API) GetTotalReward(c *gin.Context) {
	total, entryCount, err := a.awards.TotalReward(a.userID)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "计算累计奖励失败")
		return
	}

	c.JSON(http.StatusOK, gin.H{"total_reward": total, "entry_count": entryCount})
}

func (a *API) parseMutationDate(c *gin.Context, raw string) (time.Time, bool) {
	if raw == "" {
		now := time.Now().In(time.Local)
		return now, true
	}

	date, err := time.ParseInLocation(dateFormat, raw, time.Local)
	if err != nil {
		respondError(c, http.StatusBadRequest, "无效的打卡日期")
		return time.Time{}, false
	}
	return date, true
}

func projectionToPayload(view service.ProjectionView) gin.H {
	timestamps := make(map[string][]string, len(view.Days))
	for key, stamps := range view.TimestampMap() {
		formatted := make([]string, 0, len(stamps))
		for _, stamp := range stamps {
			formatted = append(formatted, stamp.Format(time.RFC3339))
		}
		timestamps[key] = formatted
	}

	return gin.H{
		"habit_id":   view.HabitID,
		"goal":       view.Goal,
		"progress":   view.ProgressMap(),
		"completed":  view.CompletedMap(),
		"timestamps": timestamps,
	}
}

func handleMutationError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrHabitNotFound):
		respondError(c, http.StatusNotFound, "习惯不存在")
	case errors.Is(err, service.ErrDurability):
		respondError(c, http.StatusInternalServerError, "本地保存失败，本次打卡未生效")
	default:
		respondError(c, http.StatusInternalServerError, "操作失败")
	}
}
