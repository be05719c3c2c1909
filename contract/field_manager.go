package contract

import (
	"fmt"
	"strconv"

	"provtrace/model"

	"github.com/hyperledger/fabric-contract-api-go/contractapi"
)

// fieldManager is the encrypt-on-write path for confidential attributes.
// Every handle it creates is granted to the ledger's own context first and
// to the writing caller second; skipping either makes the value permanently
// unrecoverable to that party, so the two grants are never optional.
type fieldManager struct {
	store  ConfidentialValueStore
	caller string
}

func (s *ProvenanceSmartContract) newFieldManager(ctx contractapi.TransactionContextInterface, caller string) (*fieldManager, error) {
	store, err := s.valueStore(ctx)
	if err != nil {
		return nil, err
	}
	return &fieldManager{store: store, caller: caller}, nil
}

func (m *fieldManager) seal(plaintext []byte) (model.Handle, error) {
	handle, err := m.store.Encrypt(plaintext)
	if err != nil {
		return "", err
	}
	if err := m.store.GrantAccess(handle, ledgerSelfID); err != nil {
		return "", fmt.Errorf("failed to grant ledger context on handle '%s': %w", handle, err)
	}
	if err := m.store.GrantAccess(handle, m.caller); err != nil {
		return "", fmt.Errorf("failed to grant caller '%s' on handle '%s': %w", m.caller, handle, err)
	}
	return handle, nil
}

// Plaintexts are encoded as decimal strings so the off-chain gateway and the
// proof attestations agree on a byte representation.
func uint64Plaintext(v uint64) []byte {
	return []byte(strconv.FormatUint(v, 10))
}

func boolPlaintext(v bool) []byte {
	return []byte(strconv.FormatBool(v))
}

func (m *fieldManager) encryptUint64(v uint64) (model.Handle, error) {
	return m.seal(uint64Plaintext(v))
}

func (m *fieldManager) encryptBool(v bool) (model.Handle, error) {
	return m.seal(boolPlaintext(v))
}
