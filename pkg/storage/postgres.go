package storage

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
	"github.com/z-wentao/audioscribe/pkg/models"
)

// PostgresStore PostgreSQL 实现
// Claim 用带 WHERE 守卫的单条 UPDATE 实现，多 Worker 进程下依然正确
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore 创建 PostgreSQL 存储并确保表结构存在
func NewPostgresStore(connStr string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("打开数据库连接失败: %w", err)
	}

	// 测试连接
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("连接数据库失败: %w", err)
	}

	// 设置连接池
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)

	s := &PostgresStore{db: db}
	if err := s.ensureSchema(); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

// ensureSchema 建表（幂等）
// 片段删除与条目删除在同一事务里完成，不依赖外键级联
func (s *PostgresStore) ensureSchema() error {
	const schema = `
	CREATE TABLE IF NOT EXISTS audio_items (
	    id           TEXT PRIMARY KEY,
	    filename     TEXT NOT NULL,
	    storage_ref  TEXT NOT NULL,
	    language     TEXT NOT NULL DEFAULT '',
	    model_size   TEXT NOT NULL DEFAULT '',
	    device       TEXT NOT NULL DEFAULT '',
	    status       TEXT NOT NULL,
	    error_reason TEXT NOT NULL DEFAULT '',
	    duration     DOUBLE PRECISION NOT NULL DEFAULT 0,
	    created_at   TIMESTAMPTZ NOT NULL,
	    updated_at   TIMESTAMPTZ NOT NULL
	);
	CREATE TABLE IF NOT EXISTS segments (
	    audio_item_id TEXT NOT NULL,
	    idx           INTEGER NOT NULL,
	    start_seconds DOUBLE PRECISION NOT NULL,
	    end_seconds   DOUBLE PRECISION NOT NULL,
	    text          TEXT NOT NULL DEFAULT '',
	    PRIMARY KEY (audio_item_id, idx)
	);
	CREATE INDEX IF NOT EXISTS idx_audio_items_created_at ON audio_items (created_at DESC);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("初始化表结构失败: %w", err)
	}
	return nil
}

const itemColumns = `id, filename, storage_ref, language, model_size, device,
	status, error_reason, duration, created_at, updated_at`

func scanItem(row interface{ Scan(...any) error }) (*models.AudioItem, error) {
	var item models.AudioItem
	err := row.Scan(
		&item.ID,
		&item.Filename,
		&item.StorageRef,
		&item.Language,
		&item.ModelSize,
		&item.Device,
		&item.Status,
		&item.ErrorReason,
		&item.Duration,
		&item.CreatedAt,
		&item.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *PostgresStore) CreateItem(ctx context.Context, item *models.AudioItem) error {
	query := `
	INSERT INTO audio_items (` + itemColumns + `)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	ON CONFLICT (id) DO NOTHING
	`

	result, err := s.db.ExecContext(ctx, query,
		item.ID,
		item.Filename,
		item.StorageRef,
		item.Language,
		item.ModelSize,
		item.Device,
		item.Status,
		item.ErrorReason,
		item.Duration,
		item.CreatedAt,
		item.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("保存条目失败: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("获取插入结果失败: %w", err)
	}
	if rows == 0 {
		return models.ErrConflict
	}

	return nil
}

func (s *PostgresStore) GetItem(ctx context.Context, id string) (*models.AudioItem, error) {
	query := `SELECT ` + itemColumns + ` FROM audio_items WHERE id = $1`

	item, err := scanItem(s.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("查询条目失败: %w", err)
	}

	return item, nil
}

func (s *PostgresStore) ListItems(ctx context.Context) ([]*models.AudioItem, error) {
	query := `SELECT ` + itemColumns + ` FROM audio_items ORDER BY created_at DESC LIMIT 100`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("查询条目列表失败: %w", err)
	}
	defer rows.Close()

	items := make([]*models.AudioItem, 0)
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("扫描条目失败: %w", err)
		}
		items = append(items, item)
	}

	return items, rows.Err()
}

// UpdateStatus 先读后写，写入时用旧状态做守卫，和并发写串行化
func (s *PostgresStore) UpdateStatus(ctx context.Context, id string, status models.ItemStatus, reason models.FailReason) (*models.AudioItem, error) {
	current, err := s.GetItem(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := models.ValidateTransition(current.Status, status); err != nil {
		return nil, err
	}

	if status != models.StatusFailed {
		reason = ""
	}

	query := `
	UPDATE audio_items
	SET status = $2, error_reason = $3, updated_at = NOW()
	WHERE id = $1 AND status = $4
	RETURNING ` + itemColumns

	item, err := scanItem(s.db.QueryRowContext(ctx, query, id, status, reason, current.Status))
	if err == sql.ErrNoRows {
		// 并发修改抢先了一步
		return nil, models.ErrInvalidTransition
	}
	if err != nil {
		return nil, fmt.Errorf("更新状态失败: %w", err)
	}

	return item, nil
}

// Claim 原子认领：单条带守卫的 UPDATE，这是整个系统唯一的条件写
func (s *PostgresStore) Claim(ctx context.Context, id string) (*models.AudioItem, error) {
	query := `
	UPDATE audio_items
	SET status = $2, error_reason = '', updated_at = NOW()
	WHERE id = $1 AND status IN ($3, $4)
	RETURNING ` + itemColumns

	item, err := scanItem(s.db.QueryRowContext(ctx, query,
		id, models.StatusProcessing, models.StatusQueued, models.StatusFailed))
	if err == nil {
		return item, nil
	}
	if err != sql.ErrNoRows {
		return nil, fmt.Errorf("认领条目失败: %w", err)
	}

	// 没抢到：区分条目不存在和状态不允许
	current, err := s.GetItem(ctx, id)
	if err != nil {
		return nil, err
	}
	return nil, models.ValidateTransition(current.Status, models.StatusProcessing)
}

func (s *PostgresStore) SetDuration(ctx context.Context, id string, seconds float64) error {
	query := `UPDATE audio_items SET duration = $2, updated_at = NOW() WHERE id = $1`

	result, err := s.db.ExecContext(ctx, query, id, seconds)
	if err != nil {
		return fmt.Errorf("更新时长失败: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("获取更新结果失败: %w", err)
	}
	if rows == 0 {
		return models.ErrNotFound
	}

	return nil
}

// ReplaceSegments 在一个事务里删旧插新，读方看不到半成品
func (s *PostgresStore) ReplaceSegments(ctx context.Context, id string, drafts []models.SegmentDraft) error {
	if err := models.ValidateDrafts(drafts); err != nil {
		return err
	}

	if _, err := s.GetItem(ctx, id); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("开启事务失败: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM segments WHERE audio_item_id = $1`, id); err != nil {
		return fmt.Errorf("清理旧片段失败: %w", err)
	}

	insert := `
	INSERT INTO segments (audio_item_id, idx, start_seconds, end_seconds, text)
	VALUES ($1, $2, $3, $4, $5)
	`
	for _, seg := range models.BuildSegments(id, drafts) {
		if _, err := tx.ExecContext(ctx, insert,
			seg.AudioItemID, seg.Index, seg.StartSeconds, seg.EndSeconds, seg.Text); err != nil {
			return fmt.Errorf("写入片段 %d 失败: %w", seg.Index, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("提交片段失败: %w", err)
	}

	return nil
}

func (s *PostgresStore) GetSegments(ctx context.Context, id string) ([]models.Segment, error) {
	query := `
	SELECT audio_item_id, idx, start_seconds, end_seconds, text
	FROM segments
	WHERE audio_item_id = $1
	ORDER BY idx ASC
	`

	rows, err := s.db.QueryContext(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("查询片段失败: %w", err)
	}
	defer rows.Close()

	segments := make([]models.Segment, 0)
	for rows.Next() {
		var seg models.Segment
		if err := rows.Scan(&seg.AudioItemID, &seg.Index, &seg.StartSeconds, &seg.EndSeconds, &seg.Text); err != nil {
			return nil, fmt.Errorf("扫描片段失败: %w", err)
		}
		segments = append(segments, seg)
	}

	return segments, rows.Err()
}

// DeleteItem 片段和条目在同一事务里删除，避免留下孤儿片段
func (s *PostgresStore) DeleteItem(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("开启事务失败: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM segments WHERE audio_item_id = $1`, id); err != nil {
		return fmt.Errorf("删除片段失败: %w", err)
	}

	result, err := tx.ExecContext(ctx, `DELETE FROM audio_items WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("删除条目失败: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("获取删除结果失败: %w", err)
	}
	if rows == 0 {
		return models.ErrNotFound
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("提交删除失败: %w", err)
	}

	return nil
}

// Close 关闭数据库连接
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
