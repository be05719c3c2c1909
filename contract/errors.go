package contract

import "errors"

// Error kinds reported to callers. Every precondition failure wraps one of
// these so UI layers can tell "not authorized" from "no such id" from
// "batch is closed" with errors.Is.
var (
	ErrUnauthorized           = errors.New("unauthorized")
	ErrInvalidBatch           = errors.New("batch id outside issued range")
	ErrProductNotFound        = errors.New("product does not exist")
	ErrBatchSealed            = errors.New("batch is sealed")
	ErrNotBatchOwner          = errors.New("caller is not the batch owner")
	ErrAlreadySealed          = errors.New("batch is already sealed")
	ErrInvalidQualityScore    = errors.New("quality score must be between 0 and 100")
	ErrIndexOutOfRange        = errors.New("trace record index out of range")
	ErrDecryptionProofInvalid = errors.New("decryption proof invalid")
	ErrRequestNotFound        = errors.New("decryption request does not exist")
	ErrAlreadyInitialized     = errors.New("ledger already initialized")
)
