package contract

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"provtrace/model"

	"github.com/hyperledger/fabric-chaincode-go/shim"
	"github.com/hyperledger/fabric-contract-api-go/contractapi"
	"github.com/hyperledger/fabric/common/flogging"
)

var storeLogger = flogging.MustGetLogger("provtrace.valuestore")

// ledgerSelfID is the ledger's own processing context in grant sets. Every
// handle must carry a grant for it, or the value becomes unusable by the
// ledger itself (reveal requests are submitted under this identity).
const ledgerSelfID = "provtrace::ledger"

// ConfidentialValueStore is the boundary to the external confidentiality
// engine. Encrypt produces an opaque handle for one plaintext; GrantAccess
// additively records who may ever receive the plaintext; RequestReveal
// submits a batch of handles for asynchronous decryption, correlated by
// request id. The concrete scheme is the store's concern, never the ledger's.
type ConfidentialValueStore interface {
	Encrypt(plaintext []byte) (model.Handle, error)
	GrantAccess(handle model.Handle, identity string) error
	HasAccess(handle model.Handle, identity string) (bool, error)
	RequestReveal(requestID string, handles []model.Handle) error
}

// ledgerValueStore is the default store: sealed bytes and the grant set are
// kept as ledger state, decryption is carried out off-chain by a gateway
// holding the sealing key. Handles and nonces are derived from the
// transaction id so every endorser produces identical writes.
type ledgerValueStore struct {
	stub shim.ChaincodeStubInterface
	aead cipher.AEAD
	txID string
	seq  uint64
}

// NewLedgerValueStore builds the default store for one transaction.
func NewLedgerValueStore(ctx contractapi.TransactionContextInterface, cfg Config) (ConfidentialValueStore, error) {
	key, err := cfg.sealingKeyBytes()
	if err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to initialise sealing cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to initialise sealing cipher: %w", err)
	}
	return &ledgerValueStore{
		stub: ctx.GetStub(),
		aead: aead,
		txID: ctx.GetStub().GetTxID(),
	}, nil
}

func (vs *ledgerValueStore) createValueCompositeKey(handle model.Handle) (string, error) {
	return vs.stub.CreateCompositeKey(confidentialValueObjectType, []string{string(handle)})
}

func (vs *ledgerValueStore) getValue(handle model.Handle) (*model.ConfidentialValue, string, error) {
	valueKey, err := vs.createValueCompositeKey(handle)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create value key for handle '%s': %w", handle, err)
	}
	raw, err := vs.stub.GetState(valueKey)
	if err != nil {
		return nil, "", fmt.Errorf("ledger error reading value for handle '%s': %w", handle, err)
	}
	if raw == nil {
		return nil, "", fmt.Errorf("no confidential value for handle '%s'", handle)
	}
	var value model.ConfidentialValue
	if err := json.Unmarshal(raw, &value); err != nil {
		return nil, "", fmt.Errorf("failed to unmarshal value for handle '%s': %w", handle, err)
	}
	return &value, valueKey, nil
}

// Encrypt seals one plaintext and stores it under a fresh handle with an
// empty grant set.
func (vs *ledgerValueStore) Encrypt(plaintext []byte) (model.Handle, error) {
	vs.seq++
	material := fmt.Sprintf("%s:%d", vs.txID, vs.seq)

	handleSum := sha256.Sum256([]byte("provtrace-handle:" + material))
	handle := model.Handle(hex.EncodeToString(handleSum[:]))

	nonceSum := sha256.Sum256([]byte("provtrace-nonce:" + material))
	nonce := nonceSum[:vs.aead.NonceSize()]
	sealed := vs.aead.Seal(nil, nonce, plaintext, []byte(handle))

	value := model.ConfidentialValue{
		ObjectType: confidentialValueObjectType,
		Handle:     handle,
		Nonce:      nonce,
		Sealed:     sealed,
		Grants:     []string{},
	}
	valueBytes, err := json.Marshal(value)
	if err != nil {
		return "", fmt.Errorf("failed to marshal confidential value: %w", err)
	}
	valueKey, err := vs.createValueCompositeKey(handle)
	if err != nil {
		return "", fmt.Errorf("failed to create value key for handle '%s': %w", handle, err)
	}
	if err := vs.stub.PutState(valueKey, valueBytes); err != nil {
		return "", fmt.Errorf("failed to save confidential value for handle '%s': %w", handle, err)
	}
	return handle, nil
}

// GrantAccess adds an identity to a handle's grant set. Idempotent and
// additive only: there is no revocation path for grants.
func (vs *ledgerValueStore) GrantAccess(handle model.Handle, identity string) error {
	value, valueKey, err := vs.getValue(handle)
	if err != nil {
		return err
	}
	for _, granted := range value.Grants {
		if granted == identity {
			return nil
		}
	}
	value.Grants = append(value.Grants, identity)
	valueBytes, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal confidential value for handle '%s': %w", handle, err)
	}
	if err := vs.stub.PutState(valueKey, valueBytes); err != nil {
		return fmt.Errorf("failed to save grant for handle '%s': %w", handle, err)
	}
	storeLogger.Debugf("Granted decrypt capability on handle '%s' to '%s'.", handle, identity)
	return nil
}

// HasAccess reports whether the identity was ever granted on the handle.
func (vs *ledgerValueStore) HasAccess(handle model.Handle, identity string) (bool, error) {
	value, _, err := vs.getValue(handle)
	if err != nil {
		return false, err
	}
	for _, granted := range value.Grants {
		if granted == identity {
			return true, nil
		}
	}
	return false, nil
}

// RequestReveal validates that the ledger context holds a grant on every
// handle in the batch. The actual decryption happens off-chain; the
// coordinator announces the request to the gateway once this succeeds.
func (vs *ledgerValueStore) RequestReveal(requestID string, handles []model.Handle) error {
	if len(handles) == 0 {
		return fmt.Errorf("reveal request '%s' names no handles", requestID)
	}
	for _, handle := range handles {
		ok, err := vs.HasAccess(handle, ledgerSelfID)
		if err != nil {
			return fmt.Errorf("reveal request '%s': %w", requestID, err)
		}
		if !ok {
			return fmt.Errorf("reveal request '%s': ledger context lacks decrypt capability on handle '%s': %w", requestID, handle, ErrUnauthorized)
		}
	}
	storeLogger.Infof("Reveal request '%s' accepted for %d handles.", requestID, len(handles))
	return nil
}
