package contract

import (
	"encoding/json"
	"fmt"

	"provtrace/model"

	"github.com/hyperledger/fabric-contract-api-go/contractapi"
)

// --- Query Functions ---
// All of these are public reads requiring no authorization. None of them
// ever include confidential handles or sealed bytes in their results.

// getBatchByID is an internal helper to retrieve and unmarshal a batch.
func (s *ProvenanceSmartContract) getBatchByID(ctx contractapi.TransactionContextInterface, batchID uint64) (*model.Batch, error) {
	batchKey, err := s.createBatchCompositeKey(ctx, batchID)
	if err != nil {
		return nil, fmt.Errorf("failed to create key for batch %d: %w", batchID, err)
	}
	batchBytes, err := ctx.GetStub().GetState(batchKey)
	if err != nil {
		return nil, fmt.Errorf("failed to read batch %d from ledger: %w", batchID, err)
	}
	if batchBytes == nil {
		return nil, fmt.Errorf("batch %d: %w", batchID, ErrInvalidBatch)
	}
	var batch model.Batch
	if err := json.Unmarshal(batchBytes, &batch); err != nil {
		return nil, fmt.Errorf("failed to unmarshal batch %d: %w", batchID, err)
	}
	if batch.ProductIDs == nil {
		batch.ProductIDs = []uint64{}
	}
	return &batch, nil
}

// getProductByID is an internal helper to retrieve and unmarshal a product.
func (s *ProvenanceSmartContract) getProductByID(ctx contractapi.TransactionContextInterface, productID uint64) (*model.Product, error) {
	productKey, err := s.createProductCompositeKey(ctx, productID)
	if err != nil {
		return nil, fmt.Errorf("failed to create key for product %d: %w", productID, err)
	}
	productBytes, err := ctx.GetStub().GetState(productKey)
	if err != nil {
		return nil, fmt.Errorf("failed to read product %d from ledger: %w", productID, err)
	}
	if productBytes == nil {
		return nil, fmt.Errorf("product %d: %w", productID, ErrProductNotFound)
	}
	var product model.Product
	if err := json.Unmarshal(productBytes, &product); err != nil {
		return nil, fmt.Errorf("failed to unmarshal product %d: %w", productID, err)
	}
	return &product, nil
}

// GetBatchInfo returns the public view of a batch.
func (s *ProvenanceSmartContract) GetBatchInfo(ctx contractapi.TransactionContextInterface, batchID uint64) (*model.BatchInfo, error) {
	logger.Debugf("GetBatchInfo: querying batch %d", batchID)
	batch, err := s.getBatchByID(ctx, batchID)
	if err != nil {
		return nil, fmt.Errorf("GetBatchInfo: %w", err)
	}
	return &model.BatchInfo{
		BatchID:      batch.ID,
		IsSealed:     batch.IsSealed,
		Owner:        batch.Owner,
		ProductCount: uint64(len(batch.ProductIDs)),
	}, nil
}

// GetBatchProducts returns the ordered product ids registered under a batch.
func (s *ProvenanceSmartContract) GetBatchProducts(ctx contractapi.TransactionContextInterface, batchID uint64) ([]uint64, error) {
	batch, err := s.getBatchByID(ctx, batchID)
	if err != nil {
		return nil, fmt.Errorf("GetBatchProducts: %w", err)
	}
	return batch.ProductIDs, nil
}

// GetTotalBatches returns the highest batch id issued so far.
func (s *ProvenanceSmartContract) GetTotalBatches(ctx contractapi.TransactionContextInterface) (uint64, error) {
	return s.readCounter(ctx, batchCounter)
}

// GetProductInfo returns the public view of a product.
func (s *ProvenanceSmartContract) GetProductInfo(ctx contractapi.TransactionContextInterface, productID uint64) (*model.ProductInfo, error) {
	logger.Debugf("GetProductInfo: querying product %d", productID)
	product, err := s.getProductByID(ctx, productID)
	if err != nil {
		return nil, fmt.Errorf("GetProductInfo: %w", err)
	}
	return &model.ProductInfo{
		ProductID:        product.ID,
		Manufacturer:     product.Manufacturer,
		BatchID:          product.BatchID,
		Category:         product.Category,
		TraceRecordCount: product.TraceCount,
	}, nil
}

// GetTotalProducts returns the highest product id issued so far.
func (s *ProvenanceSmartContract) GetTotalProducts(ctx contractapi.TransactionContextInterface) (uint64, error) {
	return s.readCounter(ctx, productCounter)
}

// VerifyAuthenticity reports whether the product was ever legitimately
// registered by a known identity: true iff the stored manufacturer identity
// is non-empty. This is a registration check, not a signature check.
func (s *ProvenanceSmartContract) VerifyAuthenticity(ctx contractapi.TransactionContextInterface, productID uint64) (bool, error) {
	product, err := s.getProductByID(ctx, productID)
	if err != nil {
		return false, fmt.Errorf("VerifyAuthenticity: %w", err)
	}
	return product.Manufacturer != "", nil
}

// GetTraceRecordCount returns the number of records in a product's history.
func (s *ProvenanceSmartContract) GetTraceRecordCount(ctx contractapi.TransactionContextInterface, productID uint64) (uint64, error) {
	product, err := s.getProductByID(ctx, productID)
	if err != nil {
		return 0, fmt.Errorf("GetTraceRecordCount: %w", err)
	}
	return product.TraceCount, nil
}

// GetPublicTraceInfo returns the public fields of the index-th record in a
// product's history.
func (s *ProvenanceSmartContract) GetPublicTraceInfo(ctx contractapi.TransactionContextInterface, productID uint64, index uint64) (*model.TraceInfo, error) {
	product, err := s.getProductByID(ctx, productID)
	if err != nil {
		return nil, fmt.Errorf("GetPublicTraceInfo: %w", err)
	}
	if index >= product.TraceCount {
		return nil, fmt.Errorf("GetPublicTraceInfo: index %d, count %d: %w", index, product.TraceCount, ErrIndexOutOfRange)
	}

	recordKey, err := s.createTraceCompositeKey(ctx, productID, index)
	if err != nil {
		return nil, fmt.Errorf("GetPublicTraceInfo: failed to create key for trace record: %w", err)
	}
	recordBytes, err := ctx.GetStub().GetState(recordKey)
	if err != nil {
		return nil, fmt.Errorf("GetPublicTraceInfo: failed to read trace record %d/%d: %w", productID, index, err)
	}
	if recordBytes == nil {
		return nil, fmt.Errorf("GetPublicTraceInfo: trace record %d/%d missing: %w", productID, index, ErrIndexOutOfRange)
	}
	var record model.TraceRecord
	if err := json.Unmarshal(recordBytes, &record); err != nil {
		return nil, fmt.Errorf("GetPublicTraceInfo: failed to unmarshal trace record %d/%d: %w", productID, index, err)
	}
	return &model.TraceInfo{
		ProductID:     record.ProductID,
		SequenceIndex: record.SequenceIndex,
		Recorder:      record.Recorder,
		EventType:     record.EventType,
	}, nil
}
