package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
)

const (
	// KeyPrefix 是远端事实键的统一前缀
	KeyPrefix = "habitto:fact:"
)

// Fact 是镜像到远端的完成事实
// 键为 (user_id, habit_id, date_key)，合并策略为 last_logged_at 新者胜
type Fact struct {
	UserID        string    `json:"user_id"`
	HabitID       uint      `json:"habit_id"`
	DateKey       string    `json:"date_key"`
	ProgressCount int       `json:"progress_count"`
	LastLoggedAt  time.Time `json:"last_logged_at"`
}

// Store 封装远端持久化存储的访问
// 仅承担镜像与冷启动加载，本地库永远是派生计算的权威数据源
type Store struct {
	client *redis.Client
}

// NewStore 构造 Store
func NewStore(client *redis.Client) *Store {
	return &Store{client: client}
}

// InitClient 初始化 Redis 客户端并用指数退避确认连通
func InitClient(ctx context.Context, addr, password string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           0,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	b := backoff.NewExponentialBackOff()
	err := backoff.Retry(
		func() error {
			if _, err := client.Ping(ctx).Result(); err != nil {
				logrus.Warnf("remote store connection failed: %v, retrying...", err)
				return err
			}
			return nil
		},
		backoff.WithMaxRetries(b, 5),
	)
	if err != nil {
		return nil, fmt.Errorf("connect remote store at %s: %w", addr, err)
	}

	logrus.Infof("remote store connected at %s", addr)
	return client, nil
}

func makeKey(userID string, habitID uint, dateKey string) string {
	return fmt.Sprintf("%s%s:%d:%s", KeyPrefix, userID, habitID, dateKey)
}

// PutFact 幂等写入一条完成事实，last_logged_at 新者胜
// 读-比-写之间没有远端事务；镜像写全部出自单写者队列，同键不会并发
func (s *Store) PutFact(ctx context.Context, fact Fact) error {
	key := makeKey(fact.UserID, fact.HabitID, fact.DateKey)

	existing, err := s.client.Get(ctx, key).Result()
	if err != nil && err != redis.Nil {
		return fmt.Errorf("get remote fact: %w", err)
	}
	if err == nil {
		var prior Fact
		if unmarshalErr := json.Unmarshal([]byte(existing), &prior); unmarshalErr == nil {
			if prior.LastLoggedAt.After(fact.LastLoggedAt) {
				logrus.Infof("remote fact %s is newer, skipping mirror", key)
				return nil
			}
		}
	}

	data, err := json.Marshal(fact)
	if err != nil {
		return fmt.Errorf("marshal remote fact: %w", err)
	}

	if err := s.client.Set(ctx, key, data, 0).Err(); err != nil {
		return fmt.Errorf("set remote fact: %w", err)
	}

	return nil
}

// GetAllFacts 拉取某用户的全部远端事实
// 仅用于本地库为空时的冷启动加载，启动后不得再用远端数据覆盖本地状态
func (s *Store) GetAllFacts(ctx context.Context, userID string) ([]Fact, error) {
	pattern := fmt.Sprintf("%s%s:*", KeyPrefix, userID)

	var facts []Fact
	iter := s.client.Scan(ctx, 0, pattern, 0).Iterator()
	for iter.Next(ctx) {
		data, err := s.client.Get(ctx, iter.Val()).Result()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("get remote fact %s: %w", iter.Val(), err)
		}

		var fact Fact
		if err := json.Unmarshal([]byte(data), &fact); err != nil {
			logrus.Errorf("skipping malformed remote fact %s: %v", iter.Val(), err)
			continue
		}
		facts = append(facts, fact)
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scan remote facts: %w", err)
	}

	return facts, nil
}
