package contract

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"provtrace/model"

	"github.com/hyperledger/fabric-contract-api-go/contractapi"
	"github.com/hyperledger/fabric/common/flogging"
)

var regLogger = flogging.MustGetLogger("provtrace.accessregistry")

// ValidRoles defines the set of permissible roles in the system.
// The owner is a fixed identity, not a role in this list.
var ValidRoles = map[string]bool{
	model.RoleManufacturer: true,
	model.RoleTracker:      true,
}

// AccessRegistry handles the ledger owner record and role membership.
// The owner implicitly passes every role check; membership changes take
// effect for subsequent checks only and never touch existing entities.
type AccessRegistry struct {
	Ctx contractapi.TransactionContextInterface
}

// NewAccessRegistry creates a new instance of AccessRegistry.
func NewAccessRegistry(ctx contractapi.TransactionContextInterface) *AccessRegistry {
	return &AccessRegistry{Ctx: ctx}
}

func (r *AccessRegistry) createOwnerCompositeKey() (string, error) {
	return r.Ctx.GetStub().CreateCompositeKey(ledgerMetaObjectType, []string{"owner"})
}

func (r *AccessRegistry) createRoleGrantCompositeKey(role, identity string) (string, error) {
	return r.Ctx.GetStub().CreateCompositeKey(roleGrantObjectType, []string{role, identity})
}

func (r *AccessRegistry) callerID() (string, error) {
	clientIdentity := r.Ctx.GetClientIdentity()
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

// Owner returns the ledger owner identity, or "" if the ledger has not been
// bootstrapped yet.
func (r *AccessRegistry) Owner() (string, error) {
	ownerKey, err := r.createOwnerCompositeKey()
	if err != nil {
		return "", fmt.Errorf("failed to create owner key: %w", err)
	}
	raw, err := r.Ctx.GetStub().GetState(ownerKey)
	if err != nil {
		return "", fmt.Errorf("ledger error reading owner record: %w", err)
	}
	if raw == nil {
		return "", nil
	}
	var rec model.OwnerRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return "", fmt.Errorf("failed to unmarshal owner record: %w", err)
	}
	return rec.Owner, nil
}

// setOwner writes the owner record. Only the bootstrap path calls this, and
// only when no owner exists.
func (r *AccessRegistry) setOwner(identity string, now time.Time) error {
	ownerKey, err := r.createOwnerCompositeKey()
	if err != nil {
		return fmt.Errorf("failed to create owner key: %w", err)
	}
	rec := model.OwnerRecord{
		ObjectType: ledgerMetaObjectType,
		Owner:      identity,
		CreatedAt:  now,
	}
	recBytes, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal owner record: %w", err)
	}
	if err := r.Ctx.GetStub().PutState(ownerKey, recBytes); err != nil {
		return fmt.Errorf("failed to save owner record: %w", err)
	}
	return nil
}

// IsOwner reports whether the given identity is the ledger owner.
func (r *AccessRegistry) IsOwner(identity string) (bool, error) {
	owner, err := r.Owner()
	if err != nil {
		return false, err
	}
	return owner != "" && owner == identity, nil
}

func (r *AccessRegistry) hasRoleGrant(role, identity string) (bool, error) {
	grantKey, err := r.createRoleGrantCompositeKey(role, identity)
	if err != nil {
		return false, fmt.Errorf("failed to create role grant key: %w", err)
	}
	raw, err := r.Ctx.GetStub().GetState(grantKey)
	if err != nil {
		return false, fmt.Errorf("ledger error checking role grant for '%s': %w", identity, err)
	}
	return raw != nil, nil
}

// HasRole reports whether the identity may act in the given role: either an
// explicit grant exists or the identity is the owner.
func (r *AccessRegistry) HasRole(role, identity string) (bool, error) {
	isOwner, err := r.IsOwner(identity)
	if err != nil {
		return false, err
	}
	if isOwner {
		return true, nil
	}
	return r.hasRoleGrant(role, identity)
}

// IsManufacturer reports whether the identity may act as a manufacturer.
func (r *AccessRegistry) IsManufacturer(identity string) (bool, error) {
	return r.HasRole(model.RoleManufacturer, identity)
}

// IsTracker reports whether the identity may act as a tracker.
func (r *AccessRegistry) IsTracker(identity string) (bool, error) {
	return r.HasRole(model.RoleTracker, identity)
}

// RequireRole fails with ErrUnauthorized unless the current caller holds the
// role (or is the owner).
func (r *AccessRegistry) RequireRole(role string) error {
	caller, err := r.callerID()
	if err != nil {
		return fmt.Errorf("failed to get current caller for role check: %w", err)
	}
	has, err := r.HasRole(role, caller)
	if err != nil {
		return fmt.Errorf("error checking role '%s' for caller '%s': %w", role, caller, err)
	}
	if !has {
		return fmt.Errorf("caller '%s' does not have required role '%s': %w", caller, role, ErrUnauthorized)
	}
	regLogger.Debugf("Role check passed for role '%s' for caller '%s'.", role, caller)
	return nil
}

// requireOwner fails with ErrUnauthorized unless the current caller is the
// owner. Returns the caller identity on success.
func (r *AccessRegistry) requireOwner() (string, error) {
	caller, err := r.callerID()
	if err != nil {
		return "", fmt.Errorf("failed to get current caller for owner check: %w", err)
	}
	isOwner, err := r.IsOwner(caller)
	if err != nil {
		return "", fmt.Errorf("failed to verify owner status for '%s': %w", caller, err)
	}
	if !isOwner {
		return "", fmt.Errorf("caller '%s' is not the ledger owner: %w", caller, ErrUnauthorized)
	}
	return caller, nil
}

// GrantRole adds the target identity to a role set. Only the owner may
// grant; granting an already-held role is a no-op. There is no self-service
// path: the target is always named explicitly by the owner.
func (r *AccessRegistry) GrantRole(role, target string) error {
	caller, err := r.requireOwner()
	if err != nil {
		return err
	}

	roleLower := strings.ToLower(strings.TrimSpace(role))
	if !ValidRoles[roleLower] {
		return fmt.Errorf("invalid role: '%s'", role)
	}
	if strings.TrimSpace(target) == "" {
		return errors.New("target identity cannot be empty")
	}

	already, err := r.hasRoleGrant(roleLower, target)
	if err != nil {
		return err
	}
	if already {
		regLogger.Infof("Role '%s' already granted to '%s'. No action needed.", roleLower, target)
		return nil
	}

	ts, err := r.Ctx.GetStub().GetTxTimestamp()
	if err != nil {
		return fmt.Errorf("failed to get transaction timestamp: %w", err)
	}
	grant := model.RoleGrant{
		ObjectType: roleGrantObjectType,
		Role:       roleLower,
		Identity:   target,
		GrantedBy:  caller,
		GrantedAt:  ts.AsTime(),
	}
	grantBytes, err := json.Marshal(grant)
	if err != nil {
		return fmt.Errorf("failed to marshal role grant: %w", err)
	}
	grantKey, err := r.createRoleGrantCompositeKey(roleLower, target)
	if err != nil {
		return fmt.Errorf("failed to create role grant key: %w", err)
	}
	if err := r.Ctx.GetStub().PutState(grantKey, grantBytes); err != nil {
		return fmt.Errorf("failed to save role grant for '%s': %w", target, err)
	}
	regLogger.Infof("Role '%s' granted to '%s' by owner '%s'.", roleLower, target, caller)
	return nil
}

// RevokeRole removes the target identity from a role set. Only the owner may
// revoke; revoking an absent grant is a no-op. Revocation affects subsequent
// authorization checks only: entities the identity already created, and
// decrypt capabilities it already holds, remain untouched.
func (r *AccessRegistry) RevokeRole(role, target string) error {
	caller, err := r.requireOwner()
	if err != nil {
		return err
	}

	roleLower := strings.ToLower(strings.TrimSpace(role))
	grantKey, err := r.createRoleGrantCompositeKey(roleLower, target)
	if err != nil {
		return fmt.Errorf("failed to create role grant key: %w", err)
	}
	raw, err := r.Ctx.GetStub().GetState(grantKey)
	if err != nil {
		return fmt.Errorf("ledger error checking role grant for '%s': %w", target, err)
	}
	if raw == nil {
		regLogger.Infof("Role '%s' not held by '%s'. No action taken for revocation.", roleLower, target)
		return nil
	}
	if err := r.Ctx.GetStub().DelState(grantKey); err != nil {
		return fmt.Errorf("failed to delete role grant for '%s': %w", target, err)
	}
	regLogger.Infof("Role '%s' revoked from '%s' by owner '%s'.", roleLower, target, caller)
	return nil
}

// RoleMembers lists the explicit grants for one role. The owner's implicit
// membership is not listed. Public read.
func (r *AccessRegistry) RoleMembers(role string) ([]model.RoleGrant, error) {
	roleLower := strings.ToLower(strings.TrimSpace(role))
	if !ValidRoles[roleLower] {
		return nil, fmt.Errorf("invalid role: '%s'", role)
	}
	resultsIterator, err := r.Ctx.GetStub().GetStateByPartialCompositeKey(roleGrantObjectType, []string{roleLower})
	if err != nil {
		return nil, fmt.Errorf("failed to get role grant iterator for '%s': %w", roleLower, err)
	}
	defer resultsIterator.Close()

	grants := []model.RoleGrant{}
	for resultsIterator.HasNext() {
		queryResponse, iterErr := resultsIterator.Next()
		if iterErr != nil {
			regLogger.Warningf("RoleMembers: failed to get next grant from iterator: %v. Skipping.", iterErr)
			continue
		}
		var grant model.RoleGrant
		if err := json.Unmarshal(queryResponse.Value, &grant); err != nil {
			regLogger.Warningf("RoleMembers: failed to unmarshal grant for key '%s': %v. Skipping.", queryResponse.Key, err)
			continue
		}
		grants = append(grants, grant)
	}
	return grants, nil
}
