// Package history 持久化商机的阶段变更记录，并提供当前阶段查询。
//
// 所有查询都带 opportunity_id 条件，因此 stage_history 表可以按
// opportunity_id 分表（见 db.ShardingRule）。
package history

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/ceyewan/dealflow/db"
	"github.com/ceyewan/dealflow/pipeline"
	"github.com/ceyewan/dealflow/xerrors"
)

// TableName 阶段历史表名
const TableName = "stage_history"

// Record 一条阶段变更
type Record struct {
	ID            int64     `gorm:"primaryKey;autoIncrement:false" json:"id"`
	OpportunityID string    `gorm:"size:64;not null;index:idx_opportunity_changed,priority:1" json:"opportunity_id"`
	FromStage     string    `gorm:"size:32" json:"from,omitempty"`
	ToStage       string    `gorm:"size:32;not null" json:"to"`
	Reason        string    `gorm:"size:255" json:"reason,omitempty"`
	Accepted      bool      `json:"accepted"`
	Warning       string    `gorm:"size:255" json:"warning,omitempty"`
	Probability   int       `json:"probability"`
	ChangedAt     time.Time `gorm:"not null;index:idx_opportunity_changed,priority:2" json:"changed_at"`
}

// TableName 实现 gorm 的 Tabler
func (Record) TableName() string { return TableName }

// FromResult 由校验结果构造记录
func FromResult(res pipeline.TransitionResult) Record {
	return Record{
		OpportunityID: res.History.OpportunityID,
		FromStage:     string(res.History.From),
		ToStage:       string(res.History.To),
		Reason:        res.History.Reason,
		Accepted:      res.Accepted,
		Warning:       res.Warning,
		Probability:   res.ResultingProbability,
		ChangedAt:     res.History.At,
	}
}

// Store 阶段历史存储
type Store interface {
	// Append 追加一条记录
	Append(ctx context.Context, r Record) error
	// List 按时间倒序返回最近 limit 条记录，limit <= 0 返回全部
	List(ctx context.Context, opportunityID string, limit int) ([]Record, error)
	// Current 最近一次变更后的阶段，没有记录时 ok 为 false
	Current(ctx context.Context, opportunityID string) (stage pipeline.Stage, ok bool, err error)
}

type gormStore struct {
	db db.DB
	id func() int64
}

// NewStore 创建基于 GORM 的存储，并确保表结构存在
//
// node 为雪花 ID 的节点号（0..1023），多实例部署时应各不相同。
func NewStore(ctx context.Context, database db.DB, node int64) (Store, error) {
	if database == nil {
		return nil, xerrors.NewConfiguration("history", "db is nil")
	}
	id, err := newIDGenerator(node)
	if err != nil {
		return nil, xerrors.NewConfiguration("history.node", err.Error())
	}
	if err := database.AutoMigrate(ctx, &Record{}); err != nil {
		return nil, err
	}
	return &gormStore{db: database, id: id}, nil
}

func (s *gormStore) Append(ctx context.Context, r Record) error {
	if r.OpportunityID == "" {
		return xerrors.NewValidation("opportunity_id", "is required")
	}
	if r.ID == 0 {
		r.ID = s.id()
	}
	return xerrors.Wrap(s.db.DB(ctx).Create(&r).Error, "append stage history")
}

func (s *gormStore) List(ctx context.Context, opportunityID string, limit int) ([]Record, error) {
	if opportunityID == "" {
		return nil, xerrors.NewValidation("opportunity_id", "is required")
	}
	q := s.db.DB(ctx).
		Where("opportunity_id = ?", opportunityID).
		Order("changed_at DESC").Order("id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var records []Record
	if err := q.Find(&records).Error; err != nil {
		return nil, xerrors.Wrap(err, "list stage history")
	}
	return records, nil
}

func (s *gormStore) Current(ctx context.Context, opportunityID string) (pipeline.Stage, bool, error) {
	if opportunityID == "" {
		return "", false, xerrors.NewValidation("opportunity_id", "is required")
	}
	var r Record
	err := s.db.DB(ctx).
		Where("opportunity_id = ?", opportunityID).
		Order("changed_at DESC").Order("id DESC").
		Take(&r).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, xerrors.Wrap(err, "current stage")
	}
	return pipeline.Stage(r.ToStage), true, nil
}
