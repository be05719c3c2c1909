package contract

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/hyperledger/fabric-contract-api-go/contractapi"
)

// Object types for composite keys, also usable as 'docType' in CouchDB queries.
const (
	batchObjectType             = "Batch"
	productObjectType           = "Product"
	traceObjectType             = "TraceRecord"
	counterObjectType           = "Counter"
	roleGrantObjectType         = "RoleGrant"
	ledgerMetaObjectType        = "LedgerMeta"
	confidentialValueObjectType = "ConfidentialValue"
	decryptionRequestObjectType = "DecryptionRequest"
)

// Counter names for sequential id allocation.
const (
	batchCounter   = "batch"
	productCounter = "product"
)

const maxStringInputLength = 256

// getCurrentTxTimestamp retrieves the current transaction timestamp from the stub.
func (s *ProvenanceSmartContract) getCurrentTxTimestamp(ctx contractapi.TransactionContextInterface) (time.Time, error) {
	ts, err := ctx.GetStub().GetTxTimestamp()
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to get transaction timestamp: %w", err)
	}
	return ts.AsTime(), nil
}

// getCallerID returns the authenticated identity submitting the transaction.
func (s *ProvenanceSmartContract) getCallerID(ctx contractapi.TransactionContextInterface) (string, error) {
	clientIdentity := ctx.GetClientIdentity()
	if clientIdentity == nil {
		return "", errors.New("client identity is nil from context")
	}
	id, err := clientIdentity.GetID()
	if err != nil {
		return "", fmt.Errorf("failed to get client identity ID from context: %w", err)
	}
	if id == "" {
		return "", errors.New("client identity ID from context is empty")
	}
	return id, nil
}

// formatID renders a numeric id zero-padded so composite keys sort in
// numeric order.
func formatID(id uint64) string {
	return fmt.Sprintf("%020d", id)
}

func (s *ProvenanceSmartContract) createBatchCompositeKey(ctx contractapi.TransactionContextInterface, batchID uint64) (string, error) {
	return ctx.GetStub().CreateCompositeKey(batchObjectType, []string{formatID(batchID)})
}

func (s *ProvenanceSmartContract) createProductCompositeKey(ctx contractapi.TransactionContextInterface, productID uint64) (string, error) {
	return ctx.GetStub().CreateCompositeKey(productObjectType, []string{formatID(productID)})
}

func (s *ProvenanceSmartContract) createTraceCompositeKey(ctx contractapi.TransactionContextInterface, productID, index uint64) (string, error) {
	return ctx.GetStub().CreateCompositeKey(traceObjectType, []string{formatID(productID), formatID(index)})
}

// readCounter returns the highest id issued for the named sequence, 0 if
// none has been issued yet.
func (s *ProvenanceSmartContract) readCounter(ctx contractapi.TransactionContextInterface, name string) (uint64, error) {
	counterKey, err := ctx.GetStub().CreateCompositeKey(counterObjectType, []string{name})
	if err != nil {
		return 0, fmt.Errorf("failed to create counter key for '%s': %w", name, err)
	}
	raw, err := ctx.GetStub().GetState(counterKey)
	if err != nil {
		return 0, fmt.Errorf("failed to read counter '%s': %w", name, err)
	}
	if raw == nil {
		return 0, nil
	}
	value, err := strconv.ParseUint(string(raw), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("counter '%s' holds invalid value '%s': %w", name, string(raw), err)
	}
	return value, nil
}

// nextSequence allocates the next id for the named sequence. Ids start at 1
// and increase by exactly 1 per successful allocation; the read and write
// are atomic within the surrounding transaction.
func (s *ProvenanceSmartContract) nextSequence(ctx contractapi.TransactionContextInterface, name string) (uint64, error) {
	current, err := s.readCounter(ctx, name)
	if err != nil {
		return 0, err
	}
	next := current + 1
	counterKey, err := ctx.GetStub().CreateCompositeKey(counterObjectType, []string{name})
	if err != nil {
		return 0, fmt.Errorf("failed to create counter key for '%s': %w", name, err)
	}
	if err := ctx.GetStub().PutState(counterKey, []byte(strconv.FormatUint(next, 10))); err != nil {
		return 0, fmt.Errorf("failed to advance counter '%s': %w", name, err)
	}
	return next, nil
}

func (s *ProvenanceSmartContract) validateRequiredString(input, field string, max int) error {
	if strings.TrimSpace(input) == "" {
		return fmt.Errorf("%s cannot be empty", field)
	}
	if len(input) > max {
		return fmt.Errorf("%s exceeds max length %d", field, max)
	}
	return nil
}

// emitLedgerEvent sends a chaincode event with a JSON payload. Emission
// failures are logged, not surfaced: the mutation has already been applied.
func (s *ProvenanceSmartContract) emitLedgerEvent(ctx contractapi.TransactionContextInterface, eventName string, payload map[string]interface{}) {
	eventBytes, err := json.Marshal(payload)
	if err != nil {
		logger.Warningf("emitLedgerEvent: failed to marshal payload for event '%s': %v", eventName, err)
		return
	}
	if errSet := ctx.GetStub().SetEvent(eventName, eventBytes); errSet != nil {
		logger.Warningf("emitLedgerEvent: failed to set event '%s': %v", eventName, errSet)
	}
}
