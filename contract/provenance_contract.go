package contract

import (
	"fmt"

	"provtrace/model"

	"github.com/hyperledger/fabric-contract-api-go/contractapi"
	"github.com/hyperledger/fabric/common/flogging"
)

var logger = flogging.MustGetLogger("provtrace.contract")

// ProvenanceSmartContract provides functions for managing a
// confidentiality-preserving product provenance ledger: batches, products,
// trace histories, role membership and asynchronous decryption requests.
// @contract:ProvenanceSmartContract
type ProvenanceSmartContract struct {
	contractapi.Contract

	cfg          Config
	storeFactory func(ctx contractapi.TransactionContextInterface, cfg Config) (ConfidentialValueStore, error)
	verifier     ProofVerifier
}

// NewProvenanceContract wires the contract with its deployment config, the
// default ledger-backed value store and the HMAC proof verifier.
func NewProvenanceContract(cfg Config) (*ProvenanceSmartContract, error) {
	secret, err := cfg.gatewaySecretBytes()
	if err != nil {
		return nil, err
	}
	if _, err := cfg.sealingKeyBytes(); err != nil {
		return nil, err
	}
	return &ProvenanceSmartContract{
		cfg:          cfg,
		storeFactory: NewLedgerValueStore,
		verifier:     &hmacProofVerifier{secret: secret},
	}, nil
}

func (s *ProvenanceSmartContract) valueStore(ctx contractapi.TransactionContextInterface) (ConfidentialValueStore, error) {
	if s.storeFactory == nil {
		return nil, fmt.Errorf("contract not initialised: no value store factory")
	}
	return s.storeFactory(ctx, s.cfg)
}

// Instantiate is called during chaincode instantiation.
func (s *ProvenanceSmartContract) Instantiate(ctx contractapi.TransactionContextInterface) {
	logger.Info("ProvenanceSmartContract Instantiated/Upgraded")
}

// InitLedger fixes the caller as the ledger owner. It can only succeed once;
// the owner identity is immutable afterwards.
func (s *ProvenanceSmartContract) InitLedger(ctx contractapi.TransactionContextInterface) error {
	reg := NewAccessRegistry(ctx)
	existing, err := reg.Owner()
	if err != nil {
		return fmt.Errorf("InitLedger: failed to check for existing owner: %w", err)
	}
	if existing != "" {
		return fmt.Errorf("InitLedger: owner '%s' already set: %w", existing, ErrAlreadyInitialized)
	}

	caller, err := s.getCallerID(ctx)
	if err != nil {
		return fmt.Errorf("InitLedger: failed to get caller identity: %w", err)
	}
	now, err := s.getCurrentTxTimestamp(ctx)
	if err != nil {
		return fmt.Errorf("InitLedger: %w", err)
	}
	if err := reg.setOwner(caller, now); err != nil {
		return fmt.Errorf("InitLedger: %w", err)
	}

	s.emitLedgerEvent(ctx, "LedgerInitialized", map[string]interface{}{"owner": caller})
	logger.Infof("Ledger initialized. Identity '%s' is now the owner.", caller)
	return nil
}

// --- Role Management Wrappers (Delegating to AccessRegistry) ---
// Direct pass-throughs keeping the contract API clean. All of them are
// owner-gated inside the registry.

func (s *ProvenanceSmartContract) GrantManufacturerRole(ctx contractapi.TransactionContextInterface, identity string) error {
	logger.Infof("Chaincode Call: GrantManufacturerRole for '%s'", identity)
	if err := NewAccessRegistry(ctx).GrantRole(model.RoleManufacturer, identity); err != nil {
		return err
	}
	s.emitRoleEvent(ctx, "RoleGranted", model.RoleManufacturer, identity)
	return nil
}

func (s *ProvenanceSmartContract) RevokeManufacturerRole(ctx contractapi.TransactionContextInterface, identity string) error {
	logger.Infof("Chaincode Call: RevokeManufacturerRole for '%s'", identity)
	if err := NewAccessRegistry(ctx).RevokeRole(model.RoleManufacturer, identity); err != nil {
		return err
	}
	s.emitRoleEvent(ctx, "RoleRevoked", model.RoleManufacturer, identity)
	return nil
}

func (s *ProvenanceSmartContract) GrantTrackerRole(ctx contractapi.TransactionContextInterface, identity string) error {
	logger.Infof("Chaincode Call: GrantTrackerRole for '%s'", identity)
	if err := NewAccessRegistry(ctx).GrantRole(model.RoleTracker, identity); err != nil {
		return err
	}
	s.emitRoleEvent(ctx, "RoleGranted", model.RoleTracker, identity)
	return nil
}

func (s *ProvenanceSmartContract) RevokeTrackerRole(ctx contractapi.TransactionContextInterface, identity string) error {
	logger.Infof("Chaincode Call: RevokeTrackerRole for '%s'", identity)
	if err := NewAccessRegistry(ctx).RevokeRole(model.RoleTracker, identity); err != nil {
		return err
	}
	s.emitRoleEvent(ctx, "RoleRevoked", model.RoleTracker, identity)
	return nil
}

func (s *ProvenanceSmartContract) emitRoleEvent(ctx contractapi.TransactionContextInterface, eventName, role, identity string) {
	caller, err := s.getCallerID(ctx)
	if err != nil {
		caller = ""
	}
	s.emitLedgerEvent(ctx, eventName, map[string]interface{}{
		"role":     role,
		"identity": identity,
		"by":       caller,
	})
}

// GetOwner returns the ledger owner identity. Public read.
func (s *ProvenanceSmartContract) GetOwner(ctx contractapi.TransactionContextInterface) (string, error) {
	owner, err := NewAccessRegistry(ctx).Owner()
	if err != nil {
		return "", err
	}
	if owner == "" {
		return "", fmt.Errorf("GetOwner: ledger has not been initialized")
	}
	return owner, nil
}

// GetRoleMembers lists the explicit grants for a role. Public read;
// identities are public in this model, only attribute values are not.
func (s *ProvenanceSmartContract) GetRoleMembers(ctx contractapi.TransactionContextInterface, role string) ([]model.RoleGrant, error) {
	logger.Debugf("Chaincode Call: GetRoleMembers for role '%s'", role)
	return NewAccessRegistry(ctx).RoleMembers(role)
}
