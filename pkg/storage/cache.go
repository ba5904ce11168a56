package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/z-wentao/audioscribe/pkg/models"
)

// CachedStore Redis 读缓存：挡在持久化存储前面
// 读优先命中 Redis，未命中回源并回写；所有写操作直达内层存储后使缓存失效
// Claim 是条件写，必须由内层存储裁决，缓存只做失效
type CachedStore struct {
	inner  Store
	client *redis.Client
	ttl    time.Duration
}

// NewCachedStore 创建带 Redis 缓存的存储
func NewCachedStore(inner Store, addr, password string, db int, ttl time.Duration) (*CachedStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	// 测试连接
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("连接 Redis 失败: %w", err)
	}

	return &CachedStore{
		inner:  inner,
		client: client,
		ttl:    ttl,
	}, nil
}

func itemKey(id string) string     { return "audioscribe:item:" + id }
func segmentsKey(id string) string { return "audioscribe:segments:" + id }

func (cs *CachedStore) invalidate(ctx context.Context, id string) {
	if err := cs.client.Del(ctx, itemKey(id), segmentsKey(id)).Err(); err != nil {
		// 缓存失效失败只记日志，TTL 会兜底
		log.Printf("⚠️ Redis 失效缓存失败: %v", err)
	}
}

func (cs *CachedStore) CreateItem(ctx context.Context, item *models.AudioItem) error {
	if err := cs.inner.CreateItem(ctx, item); err != nil {
		return err
	}
	cs.cacheItem(ctx, item)
	return nil
}

func (cs *CachedStore) cacheItem(ctx context.Context, item *models.AudioItem) {
	data, err := json.Marshal(item)
	if err != nil {
		return
	}
	if err := cs.client.Set(ctx, itemKey(item.ID), data, cs.ttl).Err(); err != nil {
		log.Printf("⚠️ Redis 写入失败: %v", err)
	}
}

func (cs *CachedStore) GetItem(ctx context.Context, id string) (*models.AudioItem, error) {
	data, err := cs.client.Get(ctx, itemKey(id)).Bytes()
	if err == nil {
		var item models.AudioItem
		if err := json.Unmarshal(data, &item); err == nil {
			return &item, nil
		}
	}

	// 缓存未命中，回源并回写
	item, err := cs.inner.GetItem(ctx, id)
	if err != nil {
		return nil, err
	}
	cs.cacheItem(ctx, item)
	return item, nil
}

// ListItems 列表直接走内层存储，保证排序和完整性
func (cs *CachedStore) ListItems(ctx context.Context) ([]*models.AudioItem, error) {
	return cs.inner.ListItems(ctx)
}

func (cs *CachedStore) UpdateStatus(ctx context.Context, id string, status models.ItemStatus, reason models.FailReason) (*models.AudioItem, error) {
	item, err := cs.inner.UpdateStatus(ctx, id, status, reason)
	if err != nil {
		return nil, err
	}
	cs.cacheItem(ctx, item)
	return item, nil
}

func (cs *CachedStore) Claim(ctx context.Context, id string) (*models.AudioItem, error) {
	item, err := cs.inner.Claim(ctx, id)
	if err != nil {
		return nil, err
	}
	cs.cacheItem(ctx, item)
	return item, nil
}

func (cs *CachedStore) SetDuration(ctx context.Context, id string, seconds float64) error {
	if err := cs.inner.SetDuration(ctx, id, seconds); err != nil {
		return err
	}
	cs.invalidate(ctx, id)
	return nil
}

func (cs *CachedStore) ReplaceSegments(ctx context.Context, id string, drafts []models.SegmentDraft) error {
	if err := cs.inner.ReplaceSegments(ctx, id, drafts); err != nil {
		return err
	}
	cs.invalidate(ctx, id)
	return nil
}

func (cs *CachedStore) GetSegments(ctx context.Context, id string) ([]models.Segment, error) {
	data, err := cs.client.Get(ctx, segmentsKey(id)).Bytes()
	if err == nil {
		var segments []models.Segment
		if err := json.Unmarshal(data, &segments); err == nil {
			// AudioItemID 不参与 JSON 序列化，命中后补回，保证和回源读一致
			for i := range segments {
				segments[i].AudioItemID = id
			}
			return segments, nil
		}
	}

	segments, err := cs.inner.GetSegments(ctx, id)
	if err != nil {
		return nil, err
	}

	// 只缓存非空集合，pending 条目的空结果不值得占位
	if len(segments) > 0 {
		if data, err := json.Marshal(segments); err == nil {
			if err := cs.client.Set(ctx, segmentsKey(id), data, cs.ttl).Err(); err != nil {
				log.Printf("⚠️ Redis 写入失败: %v", err)
			}
		}
	}

	return segments, nil
}

func (cs *CachedStore) DeleteItem(ctx context.Context, id string) error {
	if err := cs.inner.DeleteItem(ctx, id); err != nil {
		return err
	}
	cs.invalidate(ctx, id)
	return nil
}

// Close 先关缓存再关内层存储
func (cs *CachedStore) Close() error {
	if err := cs.client.Close(); err != nil {
		log.Printf("⚠️ 关闭 Redis 连接失败: %v", err)
	}
	return cs.inner.Close()
}
