package service

import (
	"testing"
	"time"

	"github.com/chloHabitto/habitto/internal/db"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const testUserID = "test-user"

func setupTestDB(t *testing.T) func() {
	t.Helper()
	gdb, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}

	if err := gdb.AutoMigrate(&db.Habit{}, &db.HabitSkip{}, &db.CompletionFact{}, &db.AwardLedgerEntry{}, &db.Vacation{}); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}

	db.DB = gdb

	return func() {
		sqlDB, err := db.DB.DB()
		if err == nil {
			sqlDB.Close()
		}
	}
}

// coreStack 把核心服务按生产装配方式拼起来，方便各测试复用
type coreStack struct {
	progress  *ProgressService
	habits    *HabitService
	vacations *VacationService
	cache     *ProjectionCache
	evaluator *Evaluator
	awards    *AwardService
	streaks   *StreakService
}

func newCoreStack(unitReward int) *coreStack {
	progress := NewProgressService(db.DB)
	habits := NewHabitService(db.DB)
	vacations := NewVacationService(db.DB)
	cache := NewProjectionCache(progress, habits)
	evaluator := NewEvaluator(habits, cache, vacations)

	return &coreStack{
		progress:  progress,
		habits:    habits,
		vacations: vacations,
		cache:     cache,
		evaluator: evaluator,
		awards:    NewAwardService(db.DB, evaluator, unitReward),
		streaks:   NewStreakService(evaluator, habits),
	}
}

func (s *coreStack) createHabit(t *testing.T, input HabitInput) *db.Habit {
	t.Helper()
	habit, err := s.habits.Create(input)
	if err != nil {
		t.Fatalf("failed to create habit: %v", err)
	}
	return habit
}

func (s *coreStack) createDailyHabit(t *testing.T, name string, goal int, start time.Time) *db.Habit {
	t.Helper()
	return s.createHabit(t, HabitInput{
		Name:            name,
		SchedulePattern: "daily",
		Goal:            goal,
		Status:          "active",
		StartDate:       &start,
	})
}

// logProgress 直接写入事实并重建投影，效果等价于经协调器走一遍补丁
func (s *coreStack) logProgress(t *testing.T, habitID uint, date time.Time, count int) {
	t.Helper()
	if _, err := s.progress.SetProgress(habitID, date, count); err != nil {
		t.Fatalf("failed to set progress: %v", err)
	}
	if _, err := s.cache.Rebuild(habitID); err != nil {
		t.Fatalf("failed to rebuild projection: %v", err)
	}
}

func testDay(year int, month time.Month, dayOfMonth int) time.Time {
	return time.Date(year, month, dayOfMonth, 0, 0, 0, 0, time.Local)
}
