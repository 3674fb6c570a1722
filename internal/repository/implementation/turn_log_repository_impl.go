package implementation

import (
	"context"

	"tracking-support-be/internal/entity"
	"tracking-support-be/internal/mapper"
	"tracking-support-be/internal/model"
	"tracking-support-be/internal/repository/contract"
	"tracking-support-be/internal/repository/specification"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type TurnLogRepositoryImpl struct {
	db     *gorm.DB
	mapper *mapper.TurnLogMapper
}

func NewTurnLogRepository(db *gorm.DB) contract.TurnLogRepository {
	return &TurnLogRepositoryImpl{
		db:     db,
		mapper: mapper.NewTurnLogMapper(),
	}
}

func (r *TurnLogRepositoryImpl) applySpecifications(db *gorm.DB, specs ...specification.Specification) *gorm.DB {
	for _, spec := range specs {
		db = spec.Apply(db)
	}
	return db
}

// Create is idempotent on TurnId so a redelivered audit message is harmless
func (r *TurnLogRepositoryImpl) Create(ctx context.Context, log *entity.TurnLog) error {
	m := r.mapper.ToModel(log)
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "turn_id"}}, DoNothing: true}).
		Create(m).Error
	if err != nil {
		return err
	}
	*log = *r.mapper.ToEntity(m)
	return nil
}

func (r *TurnLogRepositoryImpl) FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.TurnLog, error) {
	var models []*model.TurnLog
	query := r.applySpecifications(r.db.WithContext(ctx), specs...)
	if err := query.Find(&models).Error; err != nil {
		return nil, err
	}
	entities := make([]*entity.TurnLog, len(models))
	for i, m := range models {
		entities[i] = r.mapper.ToEntity(m)
	}
	return entities, nil
}

func (r *TurnLogRepositoryImpl) Count(ctx context.Context, specs ...specification.Specification) (int64, error) {
	var count int64
	query := r.applySpecifications(r.db.WithContext(ctx).Model(&model.TurnLog{}), specs...)
	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}
