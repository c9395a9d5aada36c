package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strconv"
	"testing"

	"github.com/chloHabitto/habitto/internal/db"
	"github.com/chloHabitto/habitto/internal/service"
	"github.com/gin-gonic/gin"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const testUserID = "test-user"

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

func setupTestDB(t *testing.T) (*API, func()) {
	t.Helper()

	gdb, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}

	if err := gdb.AutoMigrate(
		&db.Habit{},
		&db.HabitSkip{},
		&db.CompletionFact{},
		&db.AwardLedgerEntry{},
		&db.Vacation{},
	); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}

	db.DB = gdb

	progress := service.NewProgressService(db.DB)
	habits := service.NewHabitService(db.DB)
	vacations := service.NewVacationService(db.DB)
	cache := service.NewProjectionCache(progress, habits)
	evaluator := service.NewEvaluator(habits, cache, vacations)
	awards := service.NewAwardService(db.DB, evaluator, 50)
	streaks := service.NewStreakService(evaluator, habits)

	coordinator := service.NewCoordinator(testUserID, progress, cache, habits, nil, 16, 0)
	coordinator.Start()

	api := NewAPI(Deps{
		UserID:      testUserID,
		Habits:      habits,
		Vacations:   vacations,
		Progress:    progress,
		Cache:       cache,
		Coordinator: coordinator,
		Awards:      awards,
		Streaks:     streaks,
	})

	return api, func() {
		coordinator.Stop()
		if sqlDB, err := db.DB.DB(); err == nil {
			sqlDB.Close()
		}
	}
}

func seedHabit(t *testing.T, api *API, goal int) *db.Habit {
	t.Helper()
	habit, err := api.habits.Create(service.HabitInput{
		Name:            "喝水",
		SchedulePattern: "daily",
		Goal:            goal,
	})
	if err != nil {
		t.Fatalf("failed to seed habit: %v", err)
	}
	return habit
}

func postJSON(t *testing.T, path string, payload any, habitID uint) (*gin.Context, *httptest.ResponseRecorder) {
	t.Helper()

	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("failed to marshal payload: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = req
	if habitID != 0 {
		c.Params = gin.Params{gin.Param{Key: "id", Value: strconv.Itoa(int(habitID))}}
	}
	return c, w
}

func decodeMutation(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	return out
}

func TestLogProgressCrossesGoalAndGrantsAward(t *testing.T) {
	api, cleanup := setupTestDB(t)
	defer cleanup()

	habit := seedHabit(t, api, 10)

	// 7 个不够，未达标也没有奖励
	c, w := postJSON(t, "/api/habits/1/progress", map[string]any{"date": "2025-03-03", "delta": 7}, habit.ID)
	api.LogProgress(c)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	out := decodeMutation(t, w)
	day := out["day"].(map[string]any)
	award := out["award"].(map[string]any)
	if day["completed"].(bool) {
		t.Fatalf("day completed at 7/10")
	}
	if award["granted_today"].(bool) {
		t.Fatalf("award granted at 7/10")
	}

	// 再补 3 个就位
	c, w = postJSON(t, "/api/habits/1/progress", map[string]any{"date": "2025-03-03", "delta": 3}, habit.ID)
	api.LogProgress(c)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	out = decodeMutation(t, w)
	fact := out["fact"].(map[string]any)
	day = out["day"].(map[string]any)
	award = out["award"].(map[string]any)
	if int(fact["progress_count"].(float64)) != 10 {
		t.Fatalf("progress_count = %v, want 10", fact["progress_count"])
	}
	if !day["completed"].(bool) {
		t.Fatalf("day not completed at 10/10")
	}
	if !award["granted_today"].(bool) || int(award["total_reward"].(float64)) != 50 {
		t.Fatalf("award = %v, want granted with total 50", award)
	}
}

func TestLogProgressUnknownHabitReturns404(t *testing.T) {
	api, cleanup := setupTestDB(t)
	defer cleanup()

	c, w := postJSON(t, "/api/habits/9999/progress", map[string]any{"delta": 1}, 9999)
	api.LogProgress(c)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", w.Code)
	}
}

func TestLogProgressRejectsBadDate(t *testing.T) {
	api, cleanup := setupTestDB(t)
	defer cleanup()

	habit := seedHabit(t, api, 5)

	c, w := postJSON(t, "/api/habits/1/progress", map[string]any{"date": "2025/03/03", "delta": 1}, habit.ID)
	api.LogProgress(c)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", w.Code)
	}
}

func TestUndoProgressRevokesAward(t *testing.T) {
	api, cleanup := setupTestDB(t)
	defer cleanup()

	habit := seedHabit(t, api, 3)

	c, w := postJSON(t, "/api/habits/1/progress", map[string]any{"date": "2025-03-03", "delta": 3}, habit.ID)
	api.LogProgress(c)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	c, w = postJSON(t, "/api/habits/1/progress/undo", map[string]any{"date": "2025-03-03"}, habit.ID)
	api.UndoProgress(c)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	out := decodeMutation(t, w)
	fact := out["fact"].(map[string]any)
	award := out["award"].(map[string]any)
	if int(fact["progress_count"].(float64)) != 0 {
		t.Fatalf("progress_count after undo = %v, want 0", fact["progress_count"])
	}
	if award["granted_today"].(bool) || int(award["entry_count"].(float64)) != 0 {
		t.Fatalf("award after undo = %v, want revoked", award)
	}
}

func TestCreateHabitRejectsNonPositiveGoal(t *testing.T) {
	api, cleanup := setupTestDB(t)
	defer cleanup()

	c, w := postJSON(t, "/api/habits", map[string]any{
		"name": "喝水", "schedule_pattern": "daily", "goal": 0,
	}, 0)
	api.CreateHabit(c)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", w.Code)
	}
}

func TestGetProjectionUnknownHabitReturns404(t *testing.T) {
	api, cleanup := setupTestDB(t)
	defer cleanup()

	req := httptest.NewRequest(http.MethodGet, "/api/habits/42/projection", nil)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = req
	c.Params = gin.Params{gin.Param{Key: "id", Value: "42"}}

	api.GetProjection(c)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", w.Code)
	}
}
