package contract

import (
	"testing"

	"provtrace/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestProvenanceLifecycle walks one product from batch creation through
// tracing to an asynchronous reveal, the way the parties would on a real
// channel.
func TestProvenanceLifecycle(t *testing.T) {
	sc, stub := newTestContract(t)

	// Bootstrap and role distribution.
	require.NoError(t, sc.InitLedger(stub.tx(ownerID)))
	require.NoError(t, sc.GrantManufacturerRole(stub.tx(ownerID), makerID))
	require.NoError(t, sc.GrantTrackerRole(stub.tx(ownerID), trackerID))

	// The manufacturer opens a batch and registers two products.
	batchID, err := sc.CreateBatch(stub.tx(makerID), 4, 2000)
	require.NoError(t, err)
	first, err := sc.RegisterProduct(stub.tx(makerID), 11, 92, 1800, batchID, "pharma")
	require.NoError(t, err)
	second, err := sc.RegisterProduct(stub.tx(makerID), 11, 88, 1750, batchID, "pharma")
	require.NoError(t, err)

	// Sealing closes the batch for good.
	require.NoError(t, sc.SealBatch(stub.tx(makerID), batchID))
	_, err = sc.RegisterProduct(stub.tx(makerID), 11, 90, 1800, batchID, "pharma")
	require.ErrorIs(t, err, ErrBatchSealed)

	info, err := sc.GetBatchInfo(stub.tx(strangerID), batchID)
	require.NoError(t, err)
	assert.True(t, info.IsSealed)
	assert.Equal(t, uint64(2), info.ProductCount)

	// The tracker records the first product's journey.
	require.NoError(t, sc.AddTraceRecord(stub.tx(trackerID), first, 500, 21, false, "SHIPPED"))
	require.NoError(t, sc.AddTraceRecord(stub.tx(trackerID), first, 501, 22, true, "INSPECTED"))

	count, err := sc.GetTraceRecordCount(stub.tx(strangerID), first)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), count)
	count, err = sc.GetTraceRecordCount(stub.tx(strangerID), second)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), count)

	// The owner asks for the first product's confidential fields.
	requestID, err := sc.RequestDecryption(stub.tx(ownerID), first)
	require.NoError(t, err)
	request, err := sc.GetDecryptionRequest(stub.tx(ownerID), requestID)
	require.NoError(t, err)
	assert.Equal(t, model.RequestPending, request.Status)

	// The gateway delivers plaintexts with matching attestations.
	values := [4]uint64{11, 1700000005, 92, 1800}
	proofs := gatewayProofs(t, requestID, request.Handles, values)
	require.NoError(t, sc.ProcessDecryption(stub.tx(ownerID), requestID, values[0], values[1], values[2], values[3], proofs))

	request, err = sc.GetDecryptionRequest(stub.tx(ownerID), requestID)
	require.NoError(t, err)
	assert.Equal(t, model.RequestFulfilled, request.Status)
	assert.Equal(t, uint64(92), request.Values.QualityScore)
	assert.Equal(t, uint64(1800), request.Values.Cost)

	// Public views stayed handle-free throughout.
	productInfo, err := sc.GetProductInfo(stub.tx(strangerID), first)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), productInfo.TraceRecordCount)
	authentic, err := sc.VerifyAuthenticity(stub.tx(strangerID), first)
	require.NoError(t, err)
	assert.True(t, authentic)
}
