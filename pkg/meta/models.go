package meta

import (
	"time"

	"gorm.io/datatypes"
)

// ObjectRecord 是对象库中一个对象的目录项
// 对象库本身只靠文件系统，这张表用于统计和按类型查询，可以随时从对象库重建
type ObjectRecord struct {
	// ID 是对象的完整 Hex 摘要
	ID string `gorm:"primaryKey;type:varchar(64)"`

	HashKind string `gorm:"type:varchar(16);not null"`
	Kind     string `gorm:"index;type:varchar(16);not null"`
	Size     int64

	RecordedAt time.Time
}

func (ObjectRecord) TableName() string {
	return "objects"
}

// CommitModel 是 core.Commit 在关系型数据库中的投影 (索引)
// 用于按作者、时间查询历史
// 注意：为了避免跟 core.Commit 混淆，我们叫它 CommitModel
type CommitModel struct {
	Hash string `gorm:"primaryKey;type:varchar(64)"`

	Author    string `gorm:"index;type:varchar(100)"`
	Message   string `gorm:"type:text"`
	Timestamp int64  `gorm:"index"`

	TreeHash string `gorm:"type:varchar(64);not null"`

	// Parents: 父节点列表 ["hash1", "hash2"]
	Parents datatypes.JSON

	CreatedAt time.Time
}

// TableName 强制指定表名
func (CommitModel) TableName() string {
	return "commits"
}

// FsckRun 记录一次完整性检查的结果
type FsckRun struct {
	ID uint `gorm:"primaryKey;autoIncrement"`

	StartedAt  time.Time `gorm:"index"`
	FinishedAt time.Time

	Checked      int
	ProblemCount int

	// Problems: [{"id": "...", "path": "...", "class": "size-mismatch", "error": "..."}]
	Problems datatypes.JSON
}

// Models 返回需要迁移的全部表
func Models() []any {
	return []any{&ObjectRecord{}, &CommitModel{}, &FsckRun{}}
}
