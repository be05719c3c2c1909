package contract

import (
	"encoding/json"
	"fmt"

	"provtrace/model"

	"github.com/hyperledger/fabric-contract-api-go/contractapi"
)

// --- Lifecycle: Trace Operations ---

// AddTraceRecord appends an immutable event to a product's history.
// Location, handler, timestamp and the quality-check result are stored only
// as handles; the event type and recorder stay plaintext. Records receive
// strictly increasing sequence indexes and are never removed or reordered.
func (s *ProvenanceSmartContract) AddTraceRecord(ctx contractapi.TransactionContextInterface,
	productID uint64, locationID uint64, handlerID uint64, qualityCheckPassed bool, eventType string) error {

	caller, err := s.getCallerID(ctx)
	if err != nil {
		return fmt.Errorf("AddTraceRecord: failed to get caller identity: %w", err)
	}
	reg := NewAccessRegistry(ctx)
	if err := reg.RequireRole(model.RoleTracker); err != nil {
		return fmt.Errorf("AddTraceRecord: %w", err)
	}

	product, err := s.getProductByID(ctx, productID)
	if err != nil {
		return fmt.Errorf("AddTraceRecord: %w", err)
	}
	if err := s.validateRequiredString(eventType, "eventType", maxStringInputLength); err != nil {
		return fmt.Errorf("AddTraceRecord: %w", err)
	}

	now, err := s.getCurrentTxTimestamp(ctx)
	if err != nil {
		return fmt.Errorf("AddTraceRecord: %w", err)
	}

	fm, err := s.newFieldManager(ctx, caller)
	if err != nil {
		return fmt.Errorf("AddTraceRecord: %w", err)
	}
	locationIDHandle, err := fm.encryptUint64(locationID)
	if err != nil {
		return fmt.Errorf("AddTraceRecord: failed to encrypt location id: %w", err)
	}
	timestampHandle, err := fm.encryptUint64(uint64(now.Unix()))
	if err != nil {
		return fmt.Errorf("AddTraceRecord: failed to encrypt timestamp: %w", err)
	}
	handlerIDHandle, err := fm.encryptUint64(handlerID)
	if err != nil {
		return fmt.Errorf("AddTraceRecord: failed to encrypt handler id: %w", err)
	}
	qualityCheckHandle, err := fm.encryptBool(qualityCheckPassed)
	if err != nil {
		return fmt.Errorf("AddTraceRecord: failed to encrypt quality check result: %w", err)
	}

	record := model.TraceRecord{
		ObjectType:         traceObjectType,
		ProductID:          productID,
		SequenceIndex:      product.TraceCount,
		Recorder:           caller,
		EventType:          eventType,
		LocationID:         locationIDHandle,
		Timestamp:          timestampHandle,
		HandlerID:          handlerIDHandle,
		QualityCheckPassed: qualityCheckHandle,
	}
	recordKey, err := s.createTraceCompositeKey(ctx, productID, record.SequenceIndex)
	if err != nil {
		return fmt.Errorf("AddTraceRecord: failed to create key for trace record: %w", err)
	}
	recordBytes, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("AddTraceRecord: failed to marshal trace record: %w", err)
	}
	if err := ctx.GetStub().PutState(recordKey, recordBytes); err != nil {
		return fmt.Errorf("AddTraceRecord: failed to save trace record for product %d: %w", productID, err)
	}

	product.TraceCount++
	if err := s.putProduct(ctx, product); err != nil {
		return fmt.Errorf("AddTraceRecord: %w", err)
	}

	s.emitLedgerEvent(ctx, "TraceRecordAdded", map[string]interface{}{
		"productId": productID,
		"recorder":  caller,
		"eventType": eventType,
	})
	// A passed quality check is announced as its own event; consumers must
	// not treat it as interchangeable with TraceRecordAdded.
	if qualityCheckPassed {
		s.emitLedgerEvent(ctx, "QualityCheckPerformed", map[string]interface{}{
			"productId": productID,
			"checker":   caller,
		})
	}
	logger.Infof("Trace record %d appended to product %d by tracker '%s' (event '%s').",
		record.SequenceIndex, productID, caller, eventType)
	return nil
}
