package repo

import (
	"context"

	"github.com/TaXueWWL/matchEngine-x/pkg/archive"
	"gorm.io/gorm"
)

type OrderUpdateSQLRepo struct {
	db *gorm.DB
}

func NewOrderUpdateSQLRepo(db *gorm.DB) *OrderUpdateSQLRepo {
	return &OrderUpdateSQLRepo{
		db: db,
	}
}

func (s *OrderUpdateSQLRepo) dbWithContext(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx)
}

func (s *OrderUpdateSQLRepo) Create(ctx context.Context, record *archive.OrderUpdateRecord) (*archive.OrderUpdateRecord, error) {
	return record, s.dbWithContext(ctx).Create(record).Error
}

func (s *OrderUpdateSQLRepo) BulkCreate(ctx context.Context, records []*archive.OrderUpdateRecord) ([]*archive.OrderUpdateRecord, error) {
	if len(records) == 0 {
		return records, nil
	}
	return records, s.dbWithContext(ctx).Create(records).Error
}

func (s *OrderUpdateSQLRepo) ListByOrderID(ctx context.Context, orderID int64) ([]*archive.OrderUpdateRecord, error) {
	var records []*archive.OrderUpdateRecord
	err := s.dbWithContext(ctx).
		Where("order_id = ?", orderID).
		Order("id asc").
		Find(&records).Error
	return records, err
}
