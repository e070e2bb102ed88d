package dao

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/matrixbuilderops/solominerd/dal/do"
	"github.com/matrixbuilderops/solominerd/utils"
)

type ProofRecordDAO interface {
	Create(ctx context.Context, tx *gorm.DB, info *do.ProofRecordInfo) (int64, error)
	GetByBlockHash(ctx context.Context, tx *gorm.DB, blockHash string) (*do.ProofRecordInfo, error)
	GetHigherThanHeight(ctx context.Context, tx *gorm.DB, height int64) ([]*do.ProofRecordInfo, error)
}

type ProofRecordDAOImpl struct{}

var proofRecordDAO ProofRecordDAO = &ProofRecordDAOImpl{}

func GetProofRecordDAOImpl() ProofRecordDAO {
	return proofRecordDAO
}

// Create inserts a proof record, ignoring a duplicate block hash so that a
// re-validated candidate never produces a second row.
func (m *ProofRecordDAOImpl) Create(ctx context.Context, tx *gorm.DB, info *do.ProofRecordInfo) (int64, error) {
	if tx == nil {
		return 0, utils.ErrNilGormDB
	}

	if info == nil {
		return 0, errors.New("nil proof record info when creating")
	}

	query := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(info)
	return query.RowsAffected, query.Error
}

func (m *ProofRecordDAOImpl) GetByBlockHash(ctx context.Context, tx *gorm.DB, blockHash string) (*do.ProofRecordInfo, error) {
	if tx == nil {
		return nil, utils.ErrNilGormDB
	}

	var res do.ProofRecordInfo
	query := tx.Model(&do.ProofRecordInfo{}).Where("block_hash = ?", blockHash).First(&res)
	if errors.Is(query.Error, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return &res, query.Error
}

func (m *ProofRecordDAOImpl) GetHigherThanHeight(ctx context.Context, tx *gorm.DB, height int64) ([]*do.ProofRecordInfo, error) {
	if tx == nil {
		return nil, utils.ErrNilGormDB
	}

	res := make([]*do.ProofRecordInfo, 0)
	query := tx.Model(&do.ProofRecordInfo{}).Where("height > ?", height).Find(&res)
	return res, query.Error
}
