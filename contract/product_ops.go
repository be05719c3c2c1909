package contract

import (
	"encoding/json"
	"fmt"

	"provtrace/model"

	"github.com/hyperledger/fabric-contract-api-go/contractapi"
)

// --- Lifecycle: Product Operations ---

// maxQualityScore bounds the plaintext quality score before encryption.
// The stored handle carries no range proof beyond this input-time check.
const maxQualityScore = 100

// RegisterProduct registers a new product under an unsealed batch owned by
// the caller. Manufacturer id, production time, quality score and cost are
// stored only as handles; category stays plaintext. Returns the new
// product id.
//
// Preconditions are checked in order, first failure wins: manufacturer role,
// batch validity, batch not sealed, batch ownership, quality score range.
func (s *ProvenanceSmartContract) RegisterProduct(ctx contractapi.TransactionContextInterface,
	manufacturerID uint64, qualityScore uint64, cost uint64, batchID uint64, category string) (uint64, error) {

	caller, err := s.getCallerID(ctx)
	if err != nil {
		return 0, fmt.Errorf("RegisterProduct: failed to get caller identity: %w", err)
	}
	reg := NewAccessRegistry(ctx)
	if err := reg.RequireRole(model.RoleManufacturer); err != nil {
		return 0, fmt.Errorf("RegisterProduct: %w", err)
	}

	batch, err := s.getBatchByID(ctx, batchID)
	if err != nil {
		return 0, fmt.Errorf("RegisterProduct: %w", err)
	}
	if batch.IsSealed {
		return 0, fmt.Errorf("RegisterProduct: batch %d: %w", batchID, ErrBatchSealed)
	}
	if batch.Owner != caller {
		return 0, fmt.Errorf("RegisterProduct: caller '%s' does not own batch %d: %w", caller, batchID, ErrNotBatchOwner)
	}
	if qualityScore > maxQualityScore {
		return 0, fmt.Errorf("RegisterProduct: score %d: %w", qualityScore, ErrInvalidQualityScore)
	}
	if err := s.validateRequiredString(category, "category", maxStringInputLength); err != nil {
		return 0, fmt.Errorf("RegisterProduct: %w", err)
	}

	now, err := s.getCurrentTxTimestamp(ctx)
	if err != nil {
		return 0, fmt.Errorf("RegisterProduct: %w", err)
	}
	productID, err := s.nextSequence(ctx, productCounter)
	if err != nil {
		return 0, fmt.Errorf("RegisterProduct: %w", err)
	}

	fm, err := s.newFieldManager(ctx, caller)
	if err != nil {
		return 0, fmt.Errorf("RegisterProduct: %w", err)
	}
	manufacturerIDHandle, err := fm.encryptUint64(manufacturerID)
	if err != nil {
		return 0, fmt.Errorf("RegisterProduct: failed to encrypt manufacturer id: %w", err)
	}
	productionTimeHandle, err := fm.encryptUint64(uint64(now.Unix()))
	if err != nil {
		return 0, fmt.Errorf("RegisterProduct: failed to encrypt production time: %w", err)
	}
	qualityScoreHandle, err := fm.encryptUint64(qualityScore)
	if err != nil {
		return 0, fmt.Errorf("RegisterProduct: failed to encrypt quality score: %w", err)
	}
	costHandle, err := fm.encryptUint64(cost)
	if err != nil {
		return 0, fmt.Errorf("RegisterProduct: failed to encrypt cost: %w", err)
	}

	product := model.Product{
		ObjectType:     productObjectType,
		ID:             productID,
		Manufacturer:   caller,
		BatchID:        batchID,
		Category:       category,
		Exists:         true,
		TraceCount:     0,
		ManufacturerID: manufacturerIDHandle,
		ProductionTime: productionTimeHandle,
		QualityScore:   qualityScoreHandle,
		Cost:           costHandle,
	}
	if err := s.putProduct(ctx, &product); err != nil {
		return 0, fmt.Errorf("RegisterProduct: %w", err)
	}

	batch.ProductIDs = append(batch.ProductIDs, productID)
	if err := s.putBatch(ctx, batch); err != nil {
		return 0, fmt.Errorf("RegisterProduct: %w", err)
	}

	s.emitLedgerEvent(ctx, "ProductRegistered", map[string]interface{}{
		"productId":    productID,
		"manufacturer": caller,
		"batchId":      batchID,
	})
	logger.Infof("Product %d registered under batch %d by manufacturer '%s'.", productID, batchID, caller)
	return productID, nil
}

func (s *ProvenanceSmartContract) putProduct(ctx contractapi.TransactionContextInterface, product *model.Product) error {
	productKey, err := s.createProductCompositeKey(ctx, product.ID)
	if err != nil {
		return fmt.Errorf("failed to create key for product %d: %w", product.ID, err)
	}
	productBytes, err := json.Marshal(product)
	if err != nil {
		return fmt.Errorf("failed to marshal product %d: %w", product.ID, err)
	}
	if err := ctx.GetStub().PutState(productKey, productBytes); err != nil {
		return fmt.Errorf("failed to save product %d to ledger: %w", product.ID, err)
	}
	return nil
}
