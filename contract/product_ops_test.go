package contract

import (
	"encoding/json"
	"testing"

	"provtrace/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readProduct(t *testing.T, stub *fakeStub, productID uint64) model.Product {
	t.Helper()
	key, err := stub.CreateCompositeKey(productObjectType, []string{formatID(productID)})
	require.NoError(t, err)
	raw := stub.state[key]
	require.NotNil(t, raw, "product %d not in state", productID)
	var product model.Product
	require.NoError(t, json.Unmarshal(raw, &product))
	return product
}

// openBatch creates a fresh unsealed batch owned by makerID.
func openBatch(t *testing.T, sc *ProvenanceSmartContract, stub *fakeStub) uint64 {
	t.Helper()
	batchID, err := sc.CreateBatch(stub.tx(makerID), 3, 500)
	require.NoError(t, err)
	return batchID
}

func TestRegisterProduct(t *testing.T) {
	sc, stub := setupLedger(t)
	batchID := openBatch(t, sc, stub)

	productID, err := sc.RegisterProduct(stub.tx(makerID), 11, 95, 2500, batchID, "electronics")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), productID)

	product := readProduct(t, stub, productID)
	assert.Equal(t, makerID, product.Manufacturer)
	assert.Equal(t, batchID, product.BatchID)
	assert.Equal(t, "electronics", product.Category)
	assert.True(t, product.Exists)
	assert.Equal(t, uint64(0), product.TraceCount)

	// The product is linked back into its batch.
	products, err := sc.GetBatchProducts(stub.tx(strangerID), batchID)
	require.NoError(t, err)
	assert.Equal(t, []uint64{productID}, products)

	payload := stub.lastEvent(t, "ProductRegistered")
	assert.Equal(t, float64(productID), payload["productId"])
	assert.Equal(t, float64(batchID), payload["batchId"])
}

func TestRegisterProductSequentialIDsAcrossBatches(t *testing.T) {
	sc, stub := setupLedger(t)
	firstBatch := openBatch(t, sc, stub)
	secondBatch := openBatch(t, sc, stub)

	first, err := sc.RegisterProduct(stub.tx(makerID), 11, 90, 1000, firstBatch, "food")
	require.NoError(t, err)
	second, err := sc.RegisterProduct(stub.tx(makerID), 11, 91, 1100, secondBatch, "food")
	require.NoError(t, err)

	assert.Equal(t, uint64(1), first)
	assert.Equal(t, uint64(2), second)

	total, err := sc.GetTotalProducts(stub.tx(strangerID))
	require.NoError(t, err)
	assert.Equal(t, uint64(2), total)
}

func TestRegisterProductPreconditions(t *testing.T) {
	sc, stub := setupLedger(t)
	require.NoError(t, sc.GrantManufacturerRole(stub.tx(ownerID), otherMaker))
	batchID := openBatch(t, sc, stub)

	_, err := sc.RegisterProduct(stub.tx(trackerID), 11, 90, 1000, batchID, "food")
	require.ErrorIs(t, err, ErrUnauthorized)

	_, err = sc.RegisterProduct(stub.tx(makerID), 11, 90, 1000, 99, "food")
	require.ErrorIs(t, err, ErrInvalidBatch)

	_, err = sc.RegisterProduct(stub.tx(otherMaker), 11, 90, 1000, batchID, "food")
	require.ErrorIs(t, err, ErrNotBatchOwner)

	_, err = sc.RegisterProduct(stub.tx(makerID), 11, 101, 1000, batchID, "food")
	require.ErrorIs(t, err, ErrInvalidQualityScore)

	_, err = sc.RegisterProduct(stub.tx(makerID), 11, 90, 1000, batchID, "  ")
	require.Error(t, err)

	// None of the failures consumed a product id.
	productID, err := sc.RegisterProduct(stub.tx(makerID), 11, 90, 1000, batchID, "food")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), productID)
}

func TestRegisterProductBoundaryQualityScore(t *testing.T) {
	sc, stub := setupLedger(t)
	batchID := openBatch(t, sc, stub)

	_, err := sc.RegisterProduct(stub.tx(makerID), 11, 100, 1000, batchID, "food")
	require.NoError(t, err)
	_, err = sc.RegisterProduct(stub.tx(makerID), 11, 0, 1000, batchID, "food")
	require.NoError(t, err)
}

func TestRegisterProductSealedBatch(t *testing.T) {
	sc, stub := setupLedger(t)
	batchID := openBatch(t, sc, stub)
	require.NoError(t, sc.SealBatch(stub.tx(makerID), batchID))

	_, err := sc.RegisterProduct(stub.tx(makerID), 11, 90, 1000, batchID, "food")
	require.ErrorIs(t, err, ErrBatchSealed)
}

func TestRegisterProductSealsConfidentialFields(t *testing.T) {
	sc, stub := setupLedger(t)
	batchID := openBatch(t, sc, stub)

	productID, err := sc.RegisterProduct(stub.tx(makerID), 11, 95, 2500, batchID, "food")
	require.NoError(t, err)

	product := readProduct(t, stub, productID)
	handles := []model.Handle{product.ManufacturerID, product.ProductionTime, product.QualityScore, product.Cost}
	seen := map[model.Handle]bool{}
	for _, handle := range handles {
		assert.False(t, seen[handle], "handles must be distinct")
		seen[handle] = true
		value := confidentialValue(t, stub, handle)
		assert.Contains(t, value.Grants, makerID)
		assert.Contains(t, value.Grants, ledgerSelfID)
	}
}

func TestGetProductInfoAndAuthenticity(t *testing.T) {
	sc, stub := setupLedger(t)
	batchID := openBatch(t, sc, stub)
	productID, err := sc.RegisterProduct(stub.tx(makerID), 11, 95, 2500, batchID, "food")
	require.NoError(t, err)

	info, err := sc.GetProductInfo(stub.tx(strangerID), productID)
	require.NoError(t, err)
	assert.Equal(t, productID, info.ProductID)
	assert.Equal(t, makerID, info.Manufacturer)
	assert.Equal(t, batchID, info.BatchID)
	assert.Equal(t, "food", info.Category)
	assert.Equal(t, uint64(0), info.TraceRecordCount)

	authentic, err := sc.VerifyAuthenticity(stub.tx(strangerID), productID)
	require.NoError(t, err)
	assert.True(t, authentic)

	_, err = sc.GetProductInfo(stub.tx(strangerID), 42)
	require.ErrorIs(t, err, ErrProductNotFound)
	_, err = sc.VerifyAuthenticity(stub.tx(strangerID), 42)
	require.ErrorIs(t, err, ErrProductNotFound)
}
