package dao

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/matrixbuilderops/solominerd/dal/do"
	"github.com/matrixbuilderops/solominerd/utils"
)

type ErrorRecordDAO interface {
	Create(ctx context.Context, tx *gorm.DB, info *do.ErrorRecordInfo) (int64, error)
}

type ErrorRecordDAOImpl struct{}

var errorRecordDAO ErrorRecordDAO = &ErrorRecordDAOImpl{}

func GetErrorRecordDAOImpl() ErrorRecordDAO {
	return errorRecordDAO
}

func (m *ErrorRecordDAOImpl) Create(ctx context.Context, tx *gorm.DB, info *do.ErrorRecordInfo) (int64, error) {
	if tx == nil {
		return 0, utils.ErrNilGormDB
	}

	if info == nil {
		return 0, errors.New("nil error record info when creating")
	}

	query := tx.Create(info)
	return query.RowsAffected, query.Error
}
