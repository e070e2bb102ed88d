// Package service houses the ledger layer: an optional append-only record of
// proofs, worker status reports, and errors kept in the database.  Every call
// is fire-and-forget; the filesystem durable store remains the persistence
// floor when the database is absent or down.
package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/matrixbuilderops/solominerd/dal"
	"github.com/matrixbuilderops/solominerd/dal/dao"
	"github.com/matrixbuilderops/solominerd/dal/do"
	"github.com/matrixbuilderops/solominerd/model"
)

// LedgerService appends status and error records to the database.
type LedgerService interface {
	RecordStatus(ctx context.Context, payload interface{}, component string)
	RecordError(ctx context.Context, payload interface{}, component string)
}

type LedgerServiceImpl struct {
	proofRecordDao  dao.ProofRecordDAO
	workerStatusDao dao.WorkerStatusDAO
	errorRecordDao  dao.ErrorRecordDAO
}

var ledgerService LedgerService = &LedgerServiceImpl{
	proofRecordDao:  dao.GetProofRecordDAOImpl(),
	workerStatusDao: dao.GetWorkerStatusDAOImpl(),
	errorRecordDao:  dao.GetErrorRecordDAOImpl(),
}

func GetLedgerService() LedgerService {
	return ledgerService
}

// RecordStatus appends a status record.  Candidate solutions become proof
// rows; worker status reports become status rows; anything else is stored as
// its JSON form in the error table's detail column with a status tag.
func (s *LedgerServiceImpl) RecordStatus(ctx context.Context, payload interface{}, component string) {
	if dal.GlobalDBClient == nil {
		return
	}

	var err error
	switch v := payload.(type) {
	case *model.CandidateSolution:
		_, err = s.proofRecordDao.Create(ctx, dal.GetDB(ctx), &do.ProofRecordInfo{
			BlockHash:       v.HashString(),
			Height:          v.Height,
			Nonce:           v.Nonce,
			MerkleRoot:      v.MerkleRoot.String(),
			HeaderHex:       v.HeaderHex,
			LeadingZeroBits: v.LeadingZeroBits,
			WorkerID:        v.WorkerID,
			Status:          string(v.Status),
			Reason:          string(v.Reason),
		})

	case *model.WorkerStatus:
		_, err = s.workerStatusDao.Create(ctx, dal.GetDB(ctx), &do.WorkerStatusInfo{
			WorkerID:            v.WorkerID,
			ProcessID:           v.ProcessID,
			State:               string(v.State),
			Height:              v.Height,
			Attempts:            v.Attempts,
			AttemptsPerSec:      v.AttemptsPerSec,
			BestLeadingZeroBits: v.BestLeadingZeroBits,
			Component:           component,
		})

	default:
		data, marshalErr := json.Marshal(payload)
		if marshalErr != nil {
			data = []byte(fmt.Sprintf("%v", payload))
		}
		_, err = s.errorRecordDao.Create(ctx, dal.GetDB(ctx), &do.ErrorRecordInfo{
			Component: component,
			Detail:    "status: " + string(data),
		})
	}

	if err != nil {
		log.Warnf("Unable to record status for %s: %v", component, err)
	}
}

// RecordError appends an error record.  Rejected candidates keep their
// structured form; other payloads are stored as text.
func (s *LedgerServiceImpl) RecordError(ctx context.Context, payload interface{}, component string) {
	if dal.GlobalDBClient == nil {
		return
	}

	var detail string
	switch v := payload.(type) {
	case *model.CandidateSolution:
		detail = fmt.Sprintf("candidate %s rejected: %s", v.HashString(), v.Reason)
	case error:
		detail = v.Error()
	case string:
		detail = v
	default:
		data, marshalErr := json.Marshal(payload)
		if marshalErr != nil {
			detail = fmt.Sprintf("%v", payload)
		} else {
			detail = string(data)
		}
	}

	_, err := s.errorRecordDao.Create(ctx, dal.GetDB(ctx), &do.ErrorRecordInfo{
		Component: component,
		Detail:    detail,
	})
	if err != nil {
		log.Warnf("Unable to record error for %s: %v", component, err)
	}
}
