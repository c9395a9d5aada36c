package handler

import (
	"cmp"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/chloHabitto/habitto/internal/db"
	"github.com/chloHabitto/habitto/internal/service"
	"github.com/gin-gonic/gin"
	"slices"
)

const dateFormat = "2006-01-02"

type heatmapHabit struct {
	ID      uint   `json:"id"`
	Name    string `json:"name"`
	TypeTag string `json:"type_tag"`
}

type heatmapDay struct {
	Date   string         `json:"date"`
	Habits []heatmapHabit `json:"habits"`
}

type heatmapRange struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

type heatmapSummary struct {
	TotalDays  int `json:"total_days"`
	ActiveDays int `json:"active_days"`
	HabitCount int `json:"habit_count"`
}

type habitHeatmapPayload struct {
	Range       heatmapRange   `json:"range"`
	Days        []heatmapDay   `json:"days"`
	Habits      []heatmapHabit `json:"habits"`
	Summary     heatmapSummary `json:"summary"`
	GeneratedAt string         `json:"generated_at"`
}

type habitPayload struct {
	Name            string `json:"name"`
	Description     string `json:"description"`
	SchedulePattern string `json:"schedule_pattern"`
	Goal            int    `json:"goal"`
	BaselineCount   int    `json:"baseline_count"`
	TypeTag         string `json:"type_tag"`
	Status          string `json:"status"`
	StartDate       string `json:"start_date"`
	EndDate         string `json:"end_date"`
}

// ListHabits 返回习惯列表 JSON
func (a *API) ListHabits(c *gin.Context) {
	filter := service.HabitFilter{
		Status:  c.Query("status"),
		TypeTag: c.Query("type_tag"),
		Search:  c.Query("search"),
	}

	habits, err := a.habits.List(filter)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "获取习惯列表失败")
		return
	}

	items := make([]gin.H, 0, len(habits))
	for _, habit := range habits {
		items = append(items, habitToPayload(habit))
	}

	c.JSON(http.StatusOK, gin.H{"habits": items})
}

// GetHabit 返回单个习惯详情及其豁免日
func (a *API) GetHabit(c *gin.Context) {
	id, err := parseUintParam(c, "id")
	if err != nil {
		respondError(c, http.StatusBadRequest, "无效的习惯ID")
		return
	}

	habit, err := a.habits.Get(id)
	if err != nil {
		handleHabitError(c, err)
		return
	}

	skips, err := a.habits.ListSkips(id)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "获取豁免日失败")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"habit": habitToPayload(*habit),
		"skips": serializeSkips(skips),
	})
}

// CreateHabit 创建习惯
func (a *API) CreateHabit(c *gin.Context) {
	input, ok := a.parseHabitInput(c)
	if !ok {
		return
	}

	habit, err := a.habits.Create(input)
	if err != nil {
		handleHabitError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"habit": habitToPayload(*habit)})
}

// UpdateHabit 更新习惯并使其投影失效，目标量变更后完成判定立即按新目标算
func (a *API) UpdateHabit(c *gin.Context) {
	id, err := parseUintParam(c, "id")
	if err != nil {
		respondError(c, http.StatusBadRequest, "无效的习惯ID")
		return
	}

	input, ok := a.parseHabitInput(c)
	if !ok {
		return
	}

	habit, err := a.habits.Update(id, input)
	if err != nil {
		handleHabitError(c, err)
		return
	}

	a.cache.Invalidate(id)

	c.JSON(http.StatusOK, gin.H{"habit": habitToPayload(*habit)})
}

// DeleteHabit 删除习惯，级联清理事实与豁免日
func (a *API) DeleteHabit(c *gin.Context) {
	id, err := parseUintParam(c, "id")
	if err != nil {
		respondError(c, http.StatusBadRequest, "无效的习惯ID")
		return
	}

	if err := a.habits.Delete(id); err != nil {
		respondError(c, http.StatusInternalServerError, "删除习惯失败")
		return
	}

	a.cache.Invalidate(id)

	c.JSON(http.StatusOK, gin.H{"deleted": true})
}

// AddHabitSkip 登记豁免日
func (a *API) AddHabitSkip(c *gin.Context) {
	habitID, err := parseUintParam(c, "id")
	if err != nil {
		respondError(c, http.StatusBadRequest, "无效的习惯ID")
		return
	}

	var payload struct {
		Date   string `json:"date"`
		Reason string `json:"reason"`
	}
	if !bindJSON(c, &payload, "请求参数不合法") {
		return
	}

	date, err := time.ParseInLocation(dateFormat, payload.Date, time.Local)
	if err != nil {
		respondError(c, http.StatusBadRequest, "无效的豁免日期")
		return
	}

	skip, err := a.habits.AddSkip(habitID, date, payload.Reason)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "保存豁免日失败")
		return
	}

	c.JSON(http.StatusOK, gin.H{"skip": serializeSkip(*skip)})
}

// RemoveHabitSkip 取消豁免日
func (a *API) RemoveHabitSkip(c *gin.Context) {
	habitID, err := parseUintParam(c, "id")
	if err != nil {
		respondError(c, http.StatusBadRequest, "无效的习惯ID")
		return
	}

	date, err := time.ParseInLocation(dateFormat, c.Query("date"), time.Local)
	if err != nil {
		respondError(c, http.StatusBadRequest, "无效的豁免日期")
		return
	}

	if err := a.habits.RemoveSkip(habitID, date); err != nil {
		respondError(c, http.StatusInternalServerError, "取消豁免日失败")
		return
	}

	c.JSON(http.StatusOK, gin.H{"deleted": true, "habit_id": habitID})
}

// GetHabitHeatmap 返回过去一年的达标热力图
func (a *API) GetHabitHeatmap(c *gin.Context) {
	now := time.Now().In(time.Local)
	end := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	start := end.AddDate(0, 0, -364)

	entries, err := a.progress.HeatmapRange(start, end)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "获取热力图数据失败")
		return
	}

	payload := buildHabitHeatmapPayload(entries, start, end, now)
	c.JSON(http.StatusOK, payload)
}

func buildHabitHeatmapPayload(entries []service.HeatmapEntry, start, end, generatedAt time.Time) habitHeatmapPayload {
	dayMap := make(map[string][]heatmapHabit)
	legendMap := make(map[uint]heatmapHabit)

	for _, entry := range entries {
		habit := heatmapHabit{ID: entry.HabitID, Name: entry.HabitName, TypeTag: entry.HabitType}
		key := entry.LogDate.Format(dateFormat)
		dayMap[key] = append(dayMap[key], habit)
		if _, exists := legendMap[habit.ID]; !exists {
			legendMap[habit.ID] = habit
		}
	}

	days := make([]heatmapDay, 0, len(dayMap))
	for date, habits := range dayMap {
		slices.SortFunc(habits, func(a, b heatmapHabit) int {
			return cmp.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name))
		})
		days = append(days, heatmapDay{Date: date, Habits: habits})
	}

	slices.SortFunc(days, func(a, b heatmapDay) int {
		return cmp.Compare(a.Date, b.Date)
	})

	legend := make([]heatmapHabit, 0, len(legendMap))
	for _, item := range legendMap {
		legend = append(legend, item)
	}

	slices.SortFunc(legend, func(a, b heatmapHabit) int {
		if diff := cmp.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name)); diff != 0 {
			return diff
		}
		return cmp.Compare(a.ID, b.ID)
	})

	payload := habitHeatmapPayload{
		Range: heatmapRange{
			Start: start.Format(dateFormat),
			End:   end.Format(dateFormat),
		},
		Days:    days,
		Habits:  legend,
		Summary: heatmapSummary{TotalDays: len(entries), ActiveDays: len(dayMap), HabitCount: len(legend)},
	}

	if !generatedAt.IsZero() {
		payload.GeneratedAt = generatedAt.Format(time.RFC3339)
	}

	return payload
}

func (a *API) parseHabitInput(c *gin.Context) (service.HabitInput, bool) {
	var payload habitPayload
	if !bindJSON(c, &payload, "请求参数不合法") {
		return service.HabitInput{}, false
	}

	startPtr, ok := parseOptionalDate(payload.StartDate)
	if !ok {
		respondError(c, http.StatusBadRequest, "无效的开始日期")
		return service.HabitInput{}, false
	}
	endPtr, ok := parseOptionalDate(payload.EndDate)
	if !ok {
		respondError(c, http.StatusBadRequest, "无效的结束日期")
		return service.HabitInput{}, false
	}

	input := service.HabitInput{
		Name:            payload.Name,
		Description:     payload.Description,
		SchedulePattern: payload.SchedulePattern,
		Goal:            payload.Goal,
		BaselineCount:   payload.BaselineCount,
		TypeTag:         payload.TypeTag,
		Status:          payload.Status,
		StartDate:       startPtr,
		EndDate:         endPtr,
	}

	if input.Goal <= 0 {
		respondError(c, http.StatusBadRequest, "目标量必须为正数")
		return service.HabitInput{}, false
	}

	return input, true
}

func parseOptionalDate(value string) (*time.Time, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, true
	}

	t, err := time.ParseInLocation(dateFormat, value, time.Local)
	if err != nil {
		return nil, false
	}

	return &t, true
}

func habitToPayload(habit db.Habit) gin.H {
	item := gin.H{
		"id":               habit.ID,
		"name":             habit.Name,
		"description":      habit.Description,
		"schedule_pattern": habit.SchedulePattern,
		"goal":             habit.Goal,
		"baseline_count":   habit.BaselineCount,
		"type_tag":         habit.TypeTag,
		"status":           habit.Status,
	}

	if habit.StartDate != nil {
		item["start_date"] = habit.StartDate.Format(dateFormat)
	}
	if habit.EndDate != nil {
		item["end_date"] = habit.EndDate.Format(dateFormat)
	}

	return item
}

func serializeSkips(skips []db.HabitSkip) []gin.H {
	items := make([]gin.H, 0, len(skips))
	for _, skip := range skips {
		items = append(items, serializeSkip(skip))
	}
	return items
}

func serializeSkip(skip db.HabitSkip) gin.H {
	return gin.H{
		"id":        skip.ID,
		"habit_id":  skip.HabitID,
		"skip_date": skip.SkipDate.Format(dateFormat),
		"reason":    skip.Reason,
	}
}

func handleHabitError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrHabitNotFound):
		respondError(c, http.StatusNotFound, "习惯不存在")
	case errors.Is(err, service.ErrHabitInvalidGoal):
		respondError(c, http.StatusBadRequest, "目标量配置无效")
	default:
		respondError(c, http.StatusInternalServerError, "操作失败")
	}
}
