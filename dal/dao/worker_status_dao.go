package dao

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/matrixbuilderops/solominerd/dal/do"
	"github.com/matrixbuilderops/solominerd/utils"
)

type WorkerStatusDAO interface {
	Create(ctx context.Context, tx *gorm.DB, info *do.WorkerStatusInfo) (int64, error)
	GetLatestByWorker(ctx context.Context, tx *gorm.DB, workerID string) (*do.WorkerStatusInfo, error)
}

type WorkerStatusDAOImpl struct{}

var workerStatusDAO WorkerStatusDAO = &WorkerStatusDAOImpl{}

func GetWorkerStatusDAOImpl() WorkerStatusDAO {
	return workerStatusDAO
}

func (m *WorkerStatusDAOImpl) Create(ctx context.Context, tx *gorm.DB, info *do.WorkerStatusInfo) (int64, error) {
	if tx == nil {
		return 0, utils.ErrNilGormDB
	}

	if info == nil {
		return 0, errors.New("nil worker status info when creating")
	}

	query := tx.Create(info)
	return query.RowsAffected, query.Error
}

func (m *WorkerStatusDAOImpl) GetLatestByWorker(ctx context.Context, tx *gorm.DB, workerID string) (*do.WorkerStatusInfo, error) {
	if tx == nil {
		return nil, utils.ErrNilGormDB
	}

	var res do.WorkerStatusInfo
	query := tx.Model(&do.WorkerStatusInfo{}).Where("worker_id = ?", workerID).
		Order("id desc").First(&res)
	if errors.Is(query.Error, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return &res, query.Error
}
