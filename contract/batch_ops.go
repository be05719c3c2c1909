package contract

import (
	"encoding/json"
	"fmt"

	"provtrace/model"

	"github.com/hyperledger/fabric-contract-api-go/contractapi"
)

// --- Lifecycle: Batch Operations ---

// CreateBatch opens a new production batch owned by the caller. Supplier
// count, quantity and the creation time are stored only as handles, each
// granted to the ledger context and the caller. Returns the new batch id.
func (s *ProvenanceSmartContract) CreateBatch(ctx contractapi.TransactionContextInterface, supplierCount uint64, quantity uint64) (uint64, error) {
	caller, err := s.getCallerID(ctx)
	if err != nil {
		return 0, fmt.Errorf("CreateBatch: failed to get caller identity: %w", err)
	}
	reg := NewAccessRegistry(ctx)
	if err := reg.RequireRole(model.RoleManufacturer); err != nil {
		return 0, fmt.Errorf("CreateBatch: %w", err)
	}

	now, err := s.getCurrentTxTimestamp(ctx)
	if err != nil {
		return 0, fmt.Errorf("CreateBatch: %w", err)
	}

	// Role check passed: only now is an id consumed.
	batchID, err := s.nextSequence(ctx, batchCounter)
	if err != nil {
		return 0, fmt.Errorf("CreateBatch: %w", err)
	}

	fm, err := s.newFieldManager(ctx, caller)
	if err != nil {
		return 0, fmt.Errorf("CreateBatch: %w", err)
	}
	supplierCountHandle, err := fm.encryptUint64(supplierCount)
	if err != nil {
		return 0, fmt.Errorf("CreateBatch: failed to encrypt supplier count: %w", err)
	}
	createdAtHandle, err := fm.encryptUint64(uint64(now.Unix()))
	if err != nil {
		return 0, fmt.Errorf("CreateBatch: failed to encrypt creation time: %w", err)
	}
	quantityHandle, err := fm.encryptUint64(quantity)
	if err != nil {
		return 0, fmt.Errorf("CreateBatch: failed to encrypt quantity: %w", err)
	}

	batch := model.Batch{
		ObjectType:    batchObjectType,
		ID:            batchID,
		Owner:         caller,
		IsSealed:      false,
		SupplierCount: supplierCountHandle,
		CreatedAt:     createdAtHandle,
		Quantity:      quantityHandle,
		ProductIDs:    []uint64{},
	}
	if err := s.putBatch(ctx, &batch); err != nil {
		return 0, fmt.Errorf("CreateBatch: %w", err)
	}

	s.emitLedgerEvent(ctx, "BatchCreated", map[string]interface{}{
		"batchId": batchID,
		"owner":   caller,
	})
	logger.Infof("Batch %d created by manufacturer '%s'.", batchID, caller)
	return batchID, nil
}

// SealBatch irreversibly closes a batch against further product
// registration.
func (s *ProvenanceSmartContract) SealBatch(ctx contractapi.TransactionContextInterface, batchID uint64) error {
	caller, err := s.getCallerID(ctx)
	if err != nil {
		return fmt.Errorf("SealBatch: failed to get caller identity: %w", err)
	}

	batch, err := s.getBatchByID(ctx, batchID)
	if err != nil {
		return fmt.Errorf("SealBatch: %w", err)
	}
	if batch.Owner != caller {
		return fmt.Errorf("SealBatch: caller '%s' does not own batch %d: %w", caller, batchID, ErrNotBatchOwner)
	}
	reg := NewAccessRegistry(ctx)
	if err := reg.RequireRole(model.RoleManufacturer); err != nil {
		return fmt.Errorf("SealBatch: %w", err)
	}
	if batch.IsSealed {
		return fmt.Errorf("SealBatch: batch %d: %w", batchID, ErrAlreadySealed)
	}

	batch.IsSealed = true
	if err := s.putBatch(ctx, batch); err != nil {
		return fmt.Errorf("SealBatch: %w", err)
	}

	s.emitLedgerEvent(ctx, "BatchSealed", map[string]interface{}{"batchId": batchID})
	logger.Infof("Batch %d sealed by owner '%s'.", batchID, caller)
	return nil
}

func (s *ProvenanceSmartContract) putBatch(ctx contractapi.TransactionContextInterface, batch *model.Batch) error {
	batchKey, err := s.createBatchCompositeKey(ctx, batch.ID)
	if err != nil {
		return fmt.Errorf("failed to create key for batch %d: %w", batch.ID, err)
	}
	batchBytes, err := json.Marshal(batch)
	if err != nil {
		return fmt.Errorf("failed to marshal batch %d: %w", batch.ID, err)
	}
	if err := ctx.GetStub().PutState(batchKey, batchBytes); err != nil {
		return fmt.Errorf("failed to save batch %d to ledger: %w", batch.ID, err)
	}
	return nil
}
