package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/chloHabitto/habitto/internal/db"
	"github.com/chloHabitto/habitto/internal/remote"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

var (
	// ErrSync 在远端镜像写入失败时使用，只进日志与重试，绝不作为变更失败上抛
	ErrSync = errors.New("remote mirror failed")
	// ErrCoordinatorStopped 在协调器已停止后继续提交变更时返回
	ErrCoordinatorStopped = errors.New("coordinator stopped")
)

const mirrorWriteTimeout = 10 * time.Second

// MutationResult 是一次变更的回执：规范事实与已吸收该变更的投影快照
type MutationResult struct {
	Fact db.CompletionFact
	View ProjectionView
}

type mutationRequest struct {
	habitID uint
	date    time.Time
	value   int
	isDelta bool
	opID    string
	reply   chan mutationOutcome
}

type mutationOutcome struct {
	result MutationResult
	err    error
}

type mirrorTask struct {
	fact db.CompletionFact
	opID string
}

// Coordinator 收口全部进度变更
// 单写者队列串行执行：本地落盘确认 → 投影打补丁 → 异步镜像入队
// 调用方拿到回执时，派生计算读到的投影必然已吸收该变更；远端允许滞后
type Coordinator struct {
	userID   string
	progress *ProgressService
	cache    *ProjectionCache
	habits   *HabitService
	remote   *remote.Store

	requests         chan mutationRequest
	mirror           chan mirrorTask
	maxMirrorRetries uint64

	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewCoordinator 构造 Coordinator
// remoteStore 为 nil 时按纯本地模式运行，镜像步骤直接落空
func NewCoordinator(userID string, progress *ProgressService, cache *ProjectionCache, habits *HabitService, remoteStore *remote.Store, queueSize int, maxMirrorRetries uint64) *Coordinator {
	if queueSize <= 0 {
		queueSize = 256
	}
	return &Coordinator{
		userID:           userID,
		progress:         progress,
		cache:            cache,
		habits:           habits,
		remote:           remoteStore,
		requests:         make(chan mutationRequest),
		mirror:           make(chan mirrorTask, queueSize),
		maxMirrorRetries: maxMirrorRetries,
		done:             make(chan struct{}),
	}
}

// Start 启动变更工作协程与镜像工作协程
func (c *Coordinator) Start() {
	c.wg.Add(2)
	go c.mutationLoop()
	go c.mirrorLoop()
}

// Stop 停止协调器并等待在途任务收尾
// 未镜像完的事实保留 sync_pending 标记，下次启动续传
func (c *Coordinator) Stop() {
	c.stopOnce.Do(func() {
		close(c.done)
	})
	c.wg.Wait()
}

// Mutate 以绝对值写入当日累计量
func (c *Coordinator) Mutate(ctx context.Context, habitID uint, date time.Time, newCount int) (MutationResult, error) {
	return c.submit(ctx, mutationRequest{habitID: habitID, date: date, value: newCount})
}

// LogDelta 以增量写入当日累计量，结果向下钳到 0
func (c *Coordinator) LogDelta(ctx context.Context, habitID uint, date time.Time, delta int) (MutationResult, error) {
	return c.submit(ctx, mutationRequest{habitID: habitID, date: date, value: delta, isDelta: true})
}

// Undo 显式撤销当日进度：写入绝对值 0，产生新事实而非删除
func (c *Coordinator) Undo(ctx context.Context, habitID uint, date time.Time) (MutationResult, error) {
	return c.submit(ctx, mutationRequest{habitID: habitID, date: date, value: 0})
}

func (c *Coordinator) submit(ctx context.Context, req mutationRequest) (MutationResult, error) {
	req.opID = uuid.NewString()
	req.reply = make(chan mutationOutcome, 1)

	select {
	case c.requests <- req:
	case <-c.done:
		return MutationResult{}, ErrCoordinatorStopped
	case <-ctx.Done():
		return MutationResult{}, ctx.Err()
	}

	// 提交后本地写只会跑到底或硬失败，这里只等回执，不中途取消
	outcome := <-req.reply
	return outcome.result, outcome.err
}

func (c *Coordinator) mutationLoop() {
	defer c.wg.Done()
	for {
		select {
		case <-c.done:
			return
		case req := <-c.requests:
			req.reply <- c.apply(req)
		}
	}
}

// apply 在单写者协程内执行一次变更，本地写与投影补丁相对调用方同步完成
func (c *Coordinator) apply(req mutationRequest) mutationOutcome {
	newCount := req.value
	if req.isDelta {
		current, err := c.progress.GetProgress(req.habitID, req.date)
		if err != nil {
			return mutationOutcome{err: fmt.Errorf("%w: read current progress: %v", ErrDurability, err)}
		}
		newCount = current + req.value
		if newCount < 0 {
			newCount = 0
		}
	}

	habit, err := c.habits.Get(req.habitID)
	if err != nil {
		return mutationOutcome{err: err}
	}

	fact, err := c.progress.SetProgress(req.habitID, req.date, newCount)
	if err != nil {
		// 本地落盘失败整次变更失败，调用方必须回退到变更前状态
		return mutationOutcome{err: err}
	}

	view := c.cache.Patch(req.habitID, *fact, habit.Goal)
	c.enqueueMirror(mirrorTask{fact: *fact, opID: req.opID})

	return mutationOutcome{result: MutationResult{Fact: *fact, View: view}}
}

// enqueueMirror 把镜像任务送入后台队列，永不阻塞本地写路径
// 队列满时放弃入队：事实上的 sync_pending 标记仍在，重启续传兜底
func (c *Coordinator) enqueueMirror(task mirrorTask) {
	select {
	case c.mirror <- task:
	default:
		logrus.Warnf("mirror queue full, fact %d stays pending (op %s)", task.fact.ID, task.opID)
	}
}

func (c *Coordinator) mirrorLoop() {
	defer c.wg.Done()
	for {
		select {
		case <-c.done:
			return
		case task := <-c.mirror:
			c.mirrorFact(task)
		}
	}
}

// mirrorFact 以指数退避把单条事实镜像到远端
// 重试次数封顶；耗尽后保留待办标记等下次进程启动续传
func (c *Coordinator) mirrorFact(task mirrorTask) {
	fact := task.fact

	if c.remote == nil {
		if err := c.progress.MarkSynced(fact.ID, fact.LastLoggedAt); err != nil {
			logrus.Errorf("mark fact %d synced in local-only mode: %v", fact.ID, err)
		}
		return
	}

	var lastLoggedAt time.Time
	if fact.LastLoggedAt != nil {
		lastLoggedAt = *fact.LastLoggedAt
	}

	operation := func() error {
		ctx, cancel := context.WithTimeout(context.Background(), mirrorWriteTimeout)
		defer cancel()

		return c.remote.PutFact(ctx, remote.Fact{
			UserID:        c.userID,
			HabitID:       fact.HabitID,
			DateKey:       dateKey(fact.LogDate),
			ProgressCount: fact.ProgressCount,
			LastLoggedAt:  lastLoggedAt,
		})
	}

	b := backoff.NewExponentialBackOff()
	if err := backoff.Retry(operation, backoff.WithMaxRetries(b, c.maxMirrorRetries)); err != nil {
		logrus.Errorf("%v: fact %d (op %s): %v", ErrSync, fact.ID, task.opID, err)
		if markErr := c.progress.MarkSyncFailed(fact.ID); markErr != nil {
			logrus.Errorf("mark fact %d sync failed: %v", fact.ID, markErr)
		}
		return
	}

	if err := c.progress.MarkSynced(fact.ID, fact.LastLoggedAt); err != nil {
		logrus.Errorf("mark fact %d synced: %v", fact.ID, err)
	}
}

// ResumePending 把上次进程留下的未镜像事实重新入队
func (c *Coordinator) ResumePending() error {
	facts, err := c.progress.ListPending()
	if err != nil {
		return fmt.Errorf("resume pending mirrors: %w", err)
	}

	for _, fact := range facts {
		c.enqueueMirror(mirrorTask{fact: fact, opID: uuid.NewString()})
	}

	if len(facts) > 0 {
		logrus.Infof("resumed %d pending mirror writes", len(facts))
	}
	return nil
}

// ColdStart 在本地库为空时从远端整体拉取历史事实
// 仅冷启动使用；本地已有数据时绝不用远端状态回灌，避免旧数据冲掉新写入
func (c *Coordinator) ColdStart(ctx context.Context) error {
	if c.remote == nil {
		return nil
	}

	count, err := c.progress.CountFacts()
	if err != nil {
		return fmt.Errorf("cold start: %w", err)
	}
	if count > 0 {
		logrus.Infof("local store already holds %d facts, skipping cold start load", count)
		return nil
	}

	facts, err := c.remote.GetAllFacts(ctx, c.userID)
	if err != nil {
		return fmt.Errorf("cold start: %w", err)
	}

	imported := 0
	for _, fact := range facts {
		logDate, err := time.ParseInLocation(dateFormat, fact.DateKey, time.Local)
		if err != nil {
			logrus.Errorf("skipping remote fact with bad date key %q: %v", fact.DateKey, err)
			continue
		}
		lastLoggedAt := fact.LastLoggedAt
		if err := c.progress.ImportFact(fact.HabitID, logDate, fact.ProgressCount, &lastLoggedAt); err != nil {
			return fmt.Errorf("cold start import: %w", err)
		}
		imported++
	}

	if imported > 0 {
		logrus.Infof("cold start imported %d facts from remote store", imported)
	}
	return nil
}
