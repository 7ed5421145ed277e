package meta

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"loosevault/pkg/core"
	"loosevault/pkg/types"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrObjectNotFound = errors.New("object not found in catalog")
	ErrCommitNotFound = errors.New("commit not found in catalog")
	ErrNoFsckRun      = errors.New("no fsck run recorded")
)

// Problem 是 fsck 发现的一个问题
type Problem struct {
	ID    string `json:"id,omitempty"`
	Path  string `json:"path"`
	Class string `json:"class"`
	Error string `json:"error"`
}

// Repository 封装所有对 SQL 数据库的操作
type Repository struct {
	db *DB
}

func NewRepository(db *DB) *Repository {
	return &Repository{db: db}
}

// -----------------------------------------------------------------------------
// 1. 对象目录 (Objects)
// -----------------------------------------------------------------------------

// RecordObject 登记一个对象 (幂等写入)
// 同一个 ID 的内容永远相同，所以冲突时什么都不做
func (r *Repository) RecordObject(ctx context.Context, id types.ID, kind core.ObjectKind, size uint64) error {
	rec := ObjectRecord{
		ID:         id.String(),
		HashKind:   id.Kind().String(),
		Kind:       kind.String(),
		Size:       int64(size),
		RecordedAt: time.Now().UTC(),
	}

	err := r.db.GetConn().WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoNothing: true,
		}).
		Create(&rec).Error
	if err != nil {
		return fmt.Errorf("failed to record object: %w", err)
	}
	return nil
}

func (r *Repository) GetObject(ctx context.Context, id types.ID) (*ObjectRecord, error) {
	var rec ObjectRecord
	err := r.db.GetConn().WithContext(ctx).
		Where("id = ?", id.String()).
		First(&rec).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrObjectNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// KindCount 是按类型聚合的统计
type KindCount struct {
	Kind  string
	Count int64
	Bytes int64
}

// CountByKind 按对象类型统计数量和总大小
func (r *Repository) CountByKind(ctx context.Context) ([]KindCount, error) {
	var out []KindCount
	err := r.db.GetConn().WithContext(ctx).
		Model(&ObjectRecord{}).
		Select("kind, count(*) as count, coalesce(sum(size), 0) as bytes").
		Group("kind").
		Order("kind").
		Scan(&out).Error
	return out, err
}

// ListByKind 列出某种类型的对象，最大的在前
func (r *Repository) ListByKind(ctx context.Context, kind core.ObjectKind, limit int) ([]ObjectRecord, error) {
	var recs []ObjectRecord
	err := r.db.GetConn().WithContext(ctx).
		Where("kind = ?", kind.String()).
		Order("size DESC, id").
		Limit(limit).
		Find(&recs).Error
	return recs, err
}

// Reset 清空对象目录 (rebuild 之前调用)
func (r *Repository) Reset(ctx context.Context) error {
	return r.db.GetConn().WithContext(ctx).
		Session(&gorm.Session{AllowGlobalUpdate: true}).
		Delete(&ObjectRecord{}).Error
}

// -----------------------------------------------------------------------------
// 2. 提交索引 (Commit Indexing)
// -----------------------------------------------------------------------------

// IndexCommit 将 core.Commit 对象“投影”到 SQL 数据库中
func (r *Repository) IndexCommit(ctx context.Context, id types.ID, c *core.Commit) error {
	// 1. 转换 Parents (Link -> []string -> JSON)
	parentHashes := make([]string, 0, len(c.Parents))
	for _, p := range c.Parents {
		parentHashes = append(parentHashes, p.ID.String())
	}
	parentsJSON, err := json.Marshal(parentHashes)
	if err != nil {
		return fmt.Errorf("failed to marshal parents: %w", err)
	}

	// 2. 构造 Model
	model := CommitModel{
		Hash:      id.String(),
		Author:    c.Author,
		Message:   c.Message,
		Timestamp: c.Timestamp,
		TreeHash:  c.TreeCid.ID.String(),
		Parents:   datatypes.JSON(parentsJSON),
		CreatedAt: time.Unix(c.Timestamp, 0),
	}

	// 3. 写入数据库 (幂等写入)
	err = r.db.GetConn().WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "hash"}},
			DoNothing: true,
		}).
		Create(&model).Error
	if err != nil {
		return fmt.Errorf("failed to index commit: %w", err)
	}
	return nil
}

func (r *Repository) GetCommit(ctx context.Context, id types.ID) (*CommitModel, error) {
	var commit CommitModel
	err := r.db.GetConn().WithContext(ctx).
		Where("hash = ?", id.String()).
		First(&commit).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrCommitNotFound
	}
	if err != nil {
		return nil, err
	}
	return &commit, nil
}

// FindCommitsByAuthor 利用 SQL 能力进行查询，最新的在前
func (r *Repository) FindCommitsByAuthor(ctx context.Context, author string, limit int) ([]CommitModel, error) {
	var commits []CommitModel
	err := r.db.GetConn().WithContext(ctx).
		Where("author = ?", author).
		Order("timestamp DESC").
		Limit(limit).
		Find(&commits).Error
	return commits, err
}

// -----------------------------------------------------------------------------
// 3. fsck 历史
// -----------------------------------------------------------------------------

func (r *Repository) SaveFsckRun(ctx context.Context, started, finished time.Time, checked int, problems []Problem) (*FsckRun, error) {
	if problems == nil {
		problems = []Problem{}
	}
	data, err := json.Marshal(problems)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal problems: %w", err)
	}

	run := FsckRun{
		StartedAt:    started.UTC(),
		FinishedAt:   finished.UTC(),
		Checked:      checked,
		ProblemCount: len(problems),
		Problems:     datatypes.JSON(data),
	}
	if err := r.db.GetConn().WithContext(ctx).Create(&run).Error; err != nil {
		return nil, fmt.Errorf("failed to save fsck run: %w", err)
	}
	return &run, nil
}

func (r *Repository) LatestFsckRun(ctx context.Context) (*FsckRun, error) {
	var run FsckRun
	err := r.db.GetConn().WithContext(ctx).
		Order("id DESC").
		First(&run).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNoFsckRun
	}
	if err != nil {
		return nil, err
	}
	return &run, nil
}

// DecodeProblems 还原 FsckRun 中保存的问题列表
func (run *FsckRun) DecodeProblems() ([]Problem, error) {
	var out []Problem
	if len(run.Problems) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(run.Problems, &out); err != nil {
		return nil, err
	}
	return out, nil
}
