package repository

import (
	"context"
	"time"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"perpsim/src/model"
)

// TradeRepository handles persistence for the closed-trade archive.
type TradeRepository struct {
	db *gorm.DB
}

func NewTradeRepository(db *gorm.DB) *TradeRepository {
	return &TradeRepository{db: db}
}

// WithDB allows overriding the underlying *gorm.DB instance.
func (r *TradeRepository) WithDB(db *gorm.DB) *TradeRepository {
	return &TradeRepository{db: db}
}

// Archive upserts the archive row for a closed position. Replaying the same
// close (e.g. after a crash-restart) updates the existing row instead of
// duplicating it.
func (r *TradeRepository) Archive(ctx context.Context, position model.Position) error {
	record := model.FromClosedPosition(position)

	logger.WithFields(map[string]interface{}{
		"repo":         "TradeRepository",
		"op":           "Archive",
		"position_id":  record.PositionID,
		"symbol":       record.Symbol,
		"realized_pnl": record.RealizedPnl,
	}).Debug("Archiving closed trade")

	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "position_id"}},
			UpdateAll: true,
		}).
		Create(&record).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo": "TradeRepository",
			"op":   "Archive",
		}).WithError(err).Error("Failed to archive trade")
		return err
	}

	return nil
}

// Recent returns the latest closed trades, newest first.
func (r *TradeRepository) Recent(ctx context.Context, limit int) ([]model.TradeRecord, error) {
	if limit <= 0 {
		limit = 20
	}

	var records []model.TradeRecord
	err := r.db.WithContext(ctx).
		Order("closed_at DESC").
		Limit(limit).
		Find(&records).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo": "TradeRepository",
			"op":   "Recent",
		}).WithError(err).Error("Failed to fetch recent trades")
		return nil, err
	}

	return records, nil
}

// TradeSearchOptions filters the archive; nil fields are ignored.
type TradeSearchOptions struct {
	Symbol       *string
	Side         *string
	ClosedAfter  *time.Time
	ClosedBefore *time.Time
}

// Search returns archived trades matching the options, newest first.
func (r *TradeRepository) Search(ctx context.Context, opts TradeSearchOptions) ([]model.TradeRecord, error) {
	query := r.db.WithContext(ctx).Model(&model.TradeRecord{})

	if opts.Symbol != nil {
		query = query.Where("symbol = ?", *opts.Symbol)
	}
	if opts.Side != nil {
		query = query.Where("side = ?", *opts.Side)
	}
	if opts.ClosedAfter != nil {
		query = query.Where("closed_at >= ?", *opts.ClosedAfter)
	}
	if opts.ClosedBefore != nil {
		query = query.Where("closed_at <= ?", *opts.ClosedBefore)
	}

	var records []model.TradeRecord
	if err := query.Order("closed_at DESC, id DESC").Find(&records).Error; err != nil {
		logger.WithFields(map[string]interface{}{
			"repo": "TradeRepository",
			"op":   "Search",
		}).WithError(err).Error("Failed to search trades")
		return nil, err
	}

	return records, nil
}
