package model

import "time"

// Handle is an opaque reference to an encrypted value held by the
// confidential value store. It carries no information about the plaintext.
type Handle string

// Batch groups products produced in one production run.
// Supplier count, creation time and quantity are stored only as handles.
type Batch struct {
	ObjectType    string   `json:"objectType"` // "Batch"
	ID            uint64   `json:"id"`
	Owner         string   `json:"owner"`
	IsSealed      bool     `json:"isSealed"`
	SupplierCount Handle   `json:"supplierCountHandle"`
	CreatedAt     Handle   `json:"createdAtHandle"`
	Quantity      Handle   `json:"quantityHandle"`
	ProductIDs    []uint64 `json:"productIds"`
}

// Product is a single tracked item registered under a batch.
type Product struct {
	ObjectType     string `json:"objectType"` // "Product"
	ID             uint64 `json:"id"`
	Manufacturer   string `json:"manufacturer"`
	BatchID        uint64 `json:"batchId"`
	Category       string `json:"category"`
	Exists         bool   `json:"exists"`
	TraceCount     uint64 `json:"traceCount"`
	ManufacturerID Handle `json:"manufacturerIdHandle"`
	ProductionTime Handle `json:"productionTimeHandle"`
	QualityScore   Handle `json:"qualityScoreHandle"`
	Cost           Handle `json:"costHandle"`
}

// TraceRecord is one append-only event in a product's history.
type TraceRecord struct {
	ObjectType         string `json:"objectType"` // "TraceRecord"
	ProductID          uint64 `json:"productId"`
	SequenceIndex      uint64 `json:"sequenceIndex"`
	Recorder           string `json:"recorder"`
	EventType          string `json:"eventType"`
	LocationID         Handle `json:"locationIdHandle"`
	Timestamp          Handle `json:"timestampHandle"`
	HandlerID          Handle `json:"handlerIdHandle"`
	QualityCheckPassed Handle `json:"qualityCheckPassedHandle"`
}

// ConfidentialValue is the store's record for one encrypted value:
// the sealed bytes plus the additive set of identities permitted to
// receive the plaintext once revealed. Grants are never removed.
type ConfidentialValue struct {
	ObjectType string   `json:"objectType"` // "ConfidentialValue"
	Handle     Handle   `json:"handle"`
	Nonce      []byte   `json:"nonce"`
	Sealed     []byte   `json:"sealed"`
	Grants     []string `json:"grants"`
}

// Decryption request lifecycle states.
const (
	RequestPending   = "PENDING"
	RequestFulfilled = "FULFILLED"
)

// RevealedProductValues holds the plaintexts delivered by the gateway
// for one fulfilled decryption request.
type RevealedProductValues struct {
	ManufacturerID      uint64 `json:"manufacturerId"`
	ProductionTimestamp uint64 `json:"productionTimestamp"`
	QualityScore        uint64 `json:"qualityScore"`
	Cost                uint64 `json:"cost"`
}

// DecryptionRequest tracks one asynchronous reveal of a product's
// confidential fields. Handles are stored in a fixed order:
// manufacturerId, productionTimestamp, qualityScore, cost.
type DecryptionRequest struct {
	ObjectType  string                 `json:"objectType"` // "DecryptionRequest"
	RequestID   string                 `json:"requestId"`
	ProductID   uint64                 `json:"productId"`
	Requester   string                 `json:"requester"`
	Handles     []Handle               `json:"handles"`
	Status      string                 `json:"status"`
	RequestedAt time.Time              `json:"requestedAt"`
	FulfilledAt time.Time              `json:"fulfilledAt,omitempty"`
	Values      *RevealedProductValues `json:"values,omitempty"`
}

// BatchInfo is the public view of a batch. It never carries handles.
type BatchInfo struct {
	BatchID      uint64 `json:"batchId"`
	IsSealed     bool   `json:"isSealed"`
	Owner        string `json:"owner"`
	ProductCount uint64 `json:"productCount"`
}

// ProductInfo is the public view of a product. It never carries handles.
type ProductInfo struct {
	ProductID        uint64 `json:"productId"`
	Manufacturer     string `json:"manufacturer"`
	BatchID          uint64 `json:"batchId"`
	Category         string `json:"category"`
	TraceRecordCount uint64 `json:"traceRecordCount"`
}

// TraceInfo is the public view of one trace record.
type TraceInfo struct {
	ProductID     uint64 `json:"productId"`
	SequenceIndex uint64 `json:"sequenceIndex"`
	Recorder      string `json:"recorder"`
	EventType     string `json:"eventType"`
}
