package repo

import (
	"context"

	"github.com/TaXueWWL/matchEngine-x/pkg/archive"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type TradeSQLRepo struct {
	db *gorm.DB
}

func NewTradeSQLRepo(db *gorm.DB) *TradeSQLRepo {
	return &TradeSQLRepo{
		db: db,
	}
}

func (s *TradeSQLRepo) dbWithContext(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx)
}

func (s *TradeSQLRepo) Create(ctx context.Context, record *archive.TradeRecord) (*archive.TradeRecord, error) {
	return record, s.dbWithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(record).Error
}

func (s *TradeSQLRepo) BulkCreate(ctx context.Context, records []*archive.TradeRecord) ([]*archive.TradeRecord, error) {
	if len(records) == 0 {
		return records, nil
	}
	return records, s.dbWithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(records).Error
}

func (s *TradeSQLRepo) ListBySymbol(ctx context.Context, symbol string, limit int) ([]*archive.TradeRecord, error) {
	var records []*archive.TradeRecord
	err := s.dbWithContext(ctx).
		Where("symbol = ?", symbol).
		Order("executed_at desc").
		Limit(limit).
		Find(&records).Error
	return records, err
}
