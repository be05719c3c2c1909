package contract

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/json"
	"fmt"

	"provtrace/model"

	"github.com/hyperledger/fabric-contract-api-go/contractapi"
)

// --- Asynchronous Decryption Protocol ---

// ProofVerifier checks the gateway's attestation that a delivered plaintext
// really is the decryption of the named handle for the named request.
// Plaintext must never be trusted before this passes.
type ProofVerifier interface {
	Verify(requestID string, handle model.Handle, plaintext, proof []byte) error
}

// hmacProofVerifier validates HMAC-SHA256 attestations keyed by the secret
// shared with the decryption gateway.
type hmacProofVerifier struct {
	secret []byte
}

func (v *hmacProofVerifier) Verify(requestID string, handle model.Handle, plaintext, proof []byte) error {
	mac := hmac.New(sha256.New, v.secret)
	mac.Write([]byte(requestID))
	mac.Write([]byte(handle))
	mac.Write(plaintext)
	if !hmac.Equal(mac.Sum(nil), proof) {
		return fmt.Errorf("attestation mismatch for handle '%s': %w", handle, ErrDecryptionProofInvalid)
	}
	return nil
}

func (s *ProvenanceSmartContract) createRequestCompositeKey(ctx contractapi.TransactionContextInterface, requestID string) (string, error) {
	return ctx.GetStub().CreateCompositeKey(decryptionRequestObjectType, []string{requestID})
}

func (s *ProvenanceSmartContract) getRequestByID(ctx contractapi.TransactionContextInterface, requestID string) (*model.DecryptionRequest, error) {
	requestKey, err := s.createRequestCompositeKey(ctx, requestID)
	if err != nil {
		return nil, fmt.Errorf("failed to create key for request '%s': %w", requestID, err)
	}
	raw, err := ctx.GetStub().GetState(requestKey)
	if err != nil {
		return nil, fmt.Errorf("failed to read request '%s' from ledger: %w", requestID, err)
	}
	if raw == nil {
		return nil, fmt.Errorf("request '%s': %w", requestID, ErrRequestNotFound)
	}
	var request model.DecryptionRequest
	if err := json.Unmarshal(raw, &request); err != nil {
		return nil, fmt.Errorf("failed to unmarshal request '%s': %w", requestID, err)
	}
	return &request, nil
}

func (s *ProvenanceSmartContract) putRequest(ctx contractapi.TransactionContextInterface, request *model.DecryptionRequest) error {
	requestKey, err := s.createRequestCompositeKey(ctx, request.RequestID)
	if err != nil {
		return fmt.Errorf("failed to create key for request '%s': %w", request.RequestID, err)
	}
	requestBytes, err := json.Marshal(request)
	if err != nil {
		return fmt.Errorf("failed to marshal request '%s': %w", request.RequestID, err)
	}
	if err := ctx.GetStub().PutState(requestKey, requestBytes); err != nil {
		return fmt.Errorf("failed to save request '%s' to ledger: %w", request.RequestID, err)
	}
	return nil
}

// RequestDecryption submits the product's four confidential handles as one
// batched reveal to the off-chain gateway. Allowed for the product's
// manufacturer, the owner, or any tracker. The call returns the request id
// immediately; plaintexts arrive later through ProcessDecryption.
func (s *ProvenanceSmartContract) RequestDecryption(ctx contractapi.TransactionContextInterface, productID uint64) (string, error) {
	caller, err := s.getCallerID(ctx)
	if err != nil {
		return "", fmt.Errorf("RequestDecryption: failed to get caller identity: %w", err)
	}
	product, err := s.getProductByID(ctx, productID)
	if err != nil {
		return "", fmt.Errorf("RequestDecryption: %w", err)
	}

	reg := NewAccessRegistry(ctx)
	allowed := caller == product.Manufacturer
	if !allowed {
		isOwner, err := reg.IsOwner(caller)
		if err != nil {
			return "", fmt.Errorf("RequestDecryption: %w", err)
		}
		allowed = isOwner
	}
	if !allowed {
		isTracker, err := reg.IsTracker(caller)
		if err != nil {
			return "", fmt.Errorf("RequestDecryption: %w", err)
		}
		allowed = isTracker
	}
	if !allowed {
		return "", fmt.Errorf("RequestDecryption: caller '%s' may not reveal product %d: %w", caller, productID, ErrUnauthorized)
	}

	now, err := s.getCurrentTxTimestamp(ctx)
	if err != nil {
		return "", fmt.Errorf("RequestDecryption: %w", err)
	}

	requestID := ctx.GetStub().GetTxID()
	handles := []model.Handle{
		product.ManufacturerID,
		product.ProductionTime,
		product.QualityScore,
		product.Cost,
	}

	store, err := s.valueStore(ctx)
	if err != nil {
		return "", fmt.Errorf("RequestDecryption: %w", err)
	}
	if err := store.RequestReveal(requestID, handles); err != nil {
		return "", fmt.Errorf("RequestDecryption: %w", err)
	}

	request := model.DecryptionRequest{
		ObjectType:  decryptionRequestObjectType,
		RequestID:   requestID,
		ProductID:   productID,
		Requester:   caller,
		Handles:     handles,
		Status:      model.RequestPending,
		RequestedAt: now,
	}
	if err := s.putRequest(ctx, &request); err != nil {
		return "", fmt.Errorf("RequestDecryption: %w", err)
	}

	s.emitLedgerEvent(ctx, "DecryptionRequested", map[string]interface{}{
		"requestId": requestID,
		"productId": productID,
		"requester": caller,
		"handles":   handles,
	})
	logger.Infof("Decryption of product %d requested by '%s' (request '%s').", productID, caller, requestID)
	return requestID, nil
}

// ProcessDecryption is the gateway callback delivering the plaintexts for a
// pending request. Proofs are verified before any plaintext is trusted;
// invalid proofs reject the delivery without touching ledger state. A
// duplicate delivery for an already-fulfilled request is a no-op, since the
// gateway's delivery guarantees are not under this ledger's control.
//
// proofsJSON is a JSON array of four base64 attestations, one per handle in
// request order: manufacturerId, productionTimestamp, qualityScore, cost.
func (s *ProvenanceSmartContract) ProcessDecryption(ctx contractapi.TransactionContextInterface,
	requestID string, manufacturerID uint64, productionTimestamp uint64, qualityScore uint64, cost uint64, proofsJSON string) error {

	request, err := s.getRequestByID(ctx, requestID)
	if err != nil {
		return fmt.Errorf("ProcessDecryption: %w", err)
	}
	if request.Status == model.RequestFulfilled {
		logger.Infof("ProcessDecryption: request '%s' already fulfilled. Ignoring duplicate delivery.", requestID)
		return nil
	}

	var proofs [][]byte
	if err := json.Unmarshal([]byte(proofsJSON), &proofs); err != nil {
		return fmt.Errorf("ProcessDecryption: invalid proofsJSON: %w", err)
	}
	if len(proofs) != len(request.Handles) {
		return fmt.Errorf("ProcessDecryption: got %d proofs for %d handles: %w", len(proofs), len(request.Handles), ErrDecryptionProofInvalid)
	}
	if s.verifier == nil {
		return fmt.Errorf("ProcessDecryption: contract not initialised: no proof verifier")
	}

	plaintexts := [][]byte{
		uint64Plaintext(manufacturerID),
		uint64Plaintext(productionTimestamp),
		uint64Plaintext(qualityScore),
		uint64Plaintext(cost),
	}
	for i, handle := range request.Handles {
		if err := s.verifier.Verify(requestID, handle, plaintexts[i], proofs[i]); err != nil {
			return fmt.Errorf("ProcessDecryption: request '%s': %w", requestID, err)
		}
	}

	now, err := s.getCurrentTxTimestamp(ctx)
	if err != nil {
		return fmt.Errorf("ProcessDecryption: %w", err)
	}
	request.Status = model.RequestFulfilled
	request.FulfilledAt = now
	request.Values = &model.RevealedProductValues{
		ManufacturerID:      manufacturerID,
		ProductionTimestamp: productionTimestamp,
		QualityScore:        qualityScore,
		Cost:                cost,
	}
	if err := s.putRequest(ctx, request); err != nil {
		return fmt.Errorf("ProcessDecryption: %w", err)
	}

	s.emitLedgerEvent(ctx, "DecryptionCompleted", map[string]interface{}{
		"requestId": requestID,
		"productId": request.ProductID,
	})
	logger.Infof("Decryption request '%s' for product %d fulfilled.", requestID, request.ProductID)
	return nil
}

// GetDecryptionRequest returns the state of a decryption request to its
// requester or the owner.
func (s *ProvenanceSmartContract) GetDecryptionRequest(ctx contractapi.TransactionContextInterface, requestID string) (*model.DecryptionRequest, error) {
	caller, err := s.getCallerID(ctx)
	if err != nil {
		return nil, fmt.Errorf("GetDecryptionRequest: failed to get caller identity: %w", err)
	}
	request, err := s.getRequestByID(ctx, requestID)
	if err != nil {
		return nil, fmt.Errorf("GetDecryptionRequest: %w", err)
	}
	if caller != request.Requester {
		isOwner, err := NewAccessRegistry(ctx).IsOwner(caller)
		if err != nil {
			return nil, fmt.Errorf("GetDecryptionRequest: %w", err)
		}
		if !isOwner {
			return nil, fmt.Errorf("GetDecryptionRequest: caller '%s' may not read request '%s': %w", caller, requestID, ErrUnauthorized)
		}
	}
	return request, nil
}
