package service

import (
	"testing"
	"time"
)

func TestStreakContinuesAcrossNeutralSkip(t *testing.T) {
	cleanup := setupTestDB(t)
	defer cleanup()

	stack := newCoreStack(50)
	habit := stack.createDailyHabit(t, "晨跑", 1, testDay(2025, time.March, 3))

	// 完成、完成、豁免、完成、完成(今天) ⇒ 连胜 4
	stack.logProgress(t, habit.ID, testDay(2025, time.March, 3), 1)
	stack.logProgress(t, habit.ID, testDay(2025, time.March, 4), 1)
	if _, err := stack.habits.AddSkip(habit.ID, testDay(2025, time.March, 5), "出差"); err != nil {
		t.Fatalf("AddSkip returned error: %v", err)
	}
	stack.logProgress(t, habit.ID, testDay(2025, time.March, 6), 1)
	stack.logProgress(t, habit.ID, testDay(2025, time.March, 7), 1)

	streak, err := stack.streaks.ComputeStreak(testUserID, testDay(2025, time.March, 7))
	if err != nil {
		t.Fatalf("ComputeStreak returned error: %v", err)
	}
	if streak != 4 {
		t.Fatalf("streak = %d, want 4", streak)
	}
}

func TestStreakBreaksOnMissedDay(t *testing.T) {
	cleanup := setupTestDB(t)
	defer cleanup()

	stack := newCoreStack(50)
	habit := stack.createDailyHabit(t, "晨跑", 1, testDay(2025, time.March, 3))

	// 完成、完成、漏掉、完成(今天) ⇒ 连胜 1
	stack.logProgress(t, habit.ID, testDay(2025, time.March, 3), 1)
	stack.logProgress(t, habit.ID, testDay(2025, time.March, 4), 1)
	stack.logProgress(t, habit.ID, testDay(2025, time.March, 6), 1)

	streak, err := stack.streaks.ComputeStreak(testUserID, testDay(2025, time.March, 6))
	if err != nil {
		t.Fatalf("ComputeStreak returned error: %v", err)
	}
	if streak != 1 {
		t.Fatalf("streak = %d, want 1", streak)
	}
}

func TestStreakTodayIncompleteDoesNotBreak(t *testing.T) {
	cleanup := setupTestDB(t)
	defer cleanup()

	stack := newCoreStack(50)
	habit := stack.createDailyHabit(t, "晨跑", 1, testDay(2025, time.March, 3))

	// 连续 3 天完成，今天还没做 ⇒ 连胜 3 而不是 0
	stack.logProgress(t, habit.ID, testDay(2025, time.March, 3), 1)
	stack.logProgress(t, habit.ID, testDay(2025, time.March, 4), 1)
	stack.logProgress(t, habit.ID, testDay(2025, time.March, 5), 1)

	streak, err := stack.streaks.ComputeStreak(testUserID, testDay(2025, time.March, 6))
	if err != nil {
		t.Fatalf("ComputeStreak returned error: %v", err)
	}
	if streak != 3 {
		t.Fatalf("streak = %d, want 3", streak)
	}
}

func TestStreakVacationDaysAreNeutral(t *testing.T) {
	cleanup := setupTestDB(t)
	defer cleanup()

	stack := newCoreStack(50)
	habit := stack.createDailyHabit(t, "晨跑", 1, testDay(2025, time.March, 3))

	stack.logProgress(t, habit.ID, testDay(2025, time.March, 3), 1)
	stack.logProgress(t, habit.ID, testDay(2025, time.March, 4), 1)
	if _, err := stack.vacations.Create(VacationInput{
		UserID:    testUserID,
		StartDate: testDay(2025, time.March, 5),
		EndDate:   testDay(2025, time.March, 6),
		Reason:    "年假",
	}); err != nil {
		t.Fatalf("create vacation returned error: %v", err)
	}
	stack.logProgress(t, habit.ID, testDay(2025, time.March, 7), 1)

	streak, err := stack.streaks.ComputeStreak(testUserID, testDay(2025, time.March, 7))
	if err != nil {
		t.Fatalf("ComputeStreak returned error: %v", err)
	}
	if streak != 3 {
		t.Fatalf("streak = %d, want 3", streak)
	}
}

func TestStreakStopsAtEarliestStartDate(t *testing.T) {
	cleanup := setupTestDB(t)
	defer cleanup()

	stack := newCoreStack(50)
	habit := stack.createDailyHabit(t, "晨跑", 1, testDay(2025, time.March, 5))

	stack.logProgress(t, habit.ID, testDay(2025, time.March, 5), 1)
	stack.logProgress(t, habit.ID, testDay(2025, time.March, 6), 1)

	streak, err := stack.streaks.ComputeStreak(testUserID, testDay(2025, time.March, 6))
	if err != nil {
		t.Fatalf("ComputeStreak returned error: %v", err)
	}
	if streak != 2 {
		t.Fatalf("streak = %d, want 2", streak)
	}
}

func TestStreakFloorIgnoresInactiveHabits(t *testing.T) {
	cleanup := setupTestDB(t)
	defer cleanup()

	stack := newCoreStack(50)

	// 早已停用的习惯不进应做集合，也不得拿它撑大回溯窗口
	oldStart := testDay(2024, time.January, 1)
	stack.createHabit(t, HabitInput{
		Name:            "尘封的计划",
		SchedulePattern: "daily",
		Goal:            1,
		Status:          "inactive",
		StartDate:       &oldStart,
	})

	habit := stack.createDailyHabit(t, "晨跑", 1, testDay(2025, time.March, 5))
	stack.logProgress(t, habit.ID, testDay(2025, time.March, 5), 1)
	stack.logProgress(t, habit.ID, testDay(2025, time.March, 6), 1)

	streak, err := stack.streaks.ComputeStreak(testUserID, testDay(2025, time.March, 6))
	if err != nil {
		t.Fatalf("ComputeStreak returned error: %v", err)
	}
	if streak != 2 {
		t.Fatalf("streak = %d, want 2", streak)
	}
}

func TestStreakOnlyInactiveHabitsIsZero(t *testing.T) {
	cleanup := setupTestDB(t)
	defer cleanup()

	stack := newCoreStack(50)
	start := testDay(2024, time.January, 1)
	stack.createHabit(t, HabitInput{
		Name:            "尘封的计划",
		SchedulePattern: "daily",
		Goal:            1,
		Status:          "inactive",
		StartDate:       &start,
	})

	streak, err := stack.streaks.ComputeStreak(testUserID, testDay(2025, time.March, 6))
	if err != nil {
		t.Fatalf("ComputeStreak returned error: %v", err)
	}
	if streak != 0 {
		t.Fatalf("streak with only inactive habits = %d, want 0", streak)
	}
}

func TestStreakNoHabitsIsZero(t *testing.T) {
	cleanup := setupTestDB(t)
	defer cleanup()

	stack := newCoreStack(50)

	streak, err := stack.streaks.ComputeStreak(testUserID, testDay(2025, time.March, 6))
	if err != nil {
		t.Fatalf("ComputeStreak returned error: %v", err)
	}
	if streak != 0 {
		t.Fatalf("streak with no habits = %d, want 0", streak)
	}
}
