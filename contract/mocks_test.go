package contract

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"testing"
	"time"

	"provtrace/model"

	"github.com/hyperledger/fabric-chaincode-go/pkg/cid"
	"github.com/hyperledger/fabric-chaincode-go/shim"
	"github.com/hyperledger/fabric-protos-go/ledger/queryresult"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/types/known/timestamppb"
)

// Test identities. The registry does not care about X.509 structure, only
// equality, so short stand-ins are enough.
const (
	ownerID     = "x509::CN=owner"
	makerID     = "x509::CN=acme"
	trackerID   = "x509::CN=carrier"
	strangerID  = "x509::CN=stranger"
	otherMaker  = "x509::CN=globex"
	testSealKey = "6368616e676520746869732070617373776f726420746f206120736563726574"
	testSecret  = "746f702d7365637265742d676174657761792d6b6579"
)

type stubEvent struct {
	name    string
	payload []byte
}

// fakeStub implements the slice of shim.ChaincodeStubInterface the contract
// touches. Unimplemented methods panic through the embedded nil interface.
type fakeStub struct {
	shim.ChaincodeStubInterface
	state   map[string][]byte
	events  []stubEvent
	txCount int
	txID    string
	now     time.Time
}

func newFakeStub() *fakeStub {
	return &fakeStub{
		state: map[string][]byte{},
		txID:  "tx-0",
		now:   time.Unix(1700000000, 0).UTC(),
	}
}

func (s *fakeStub) GetState(key string) ([]byte, error) {
	return s.state[key], nil
}

func (s *fakeStub) PutState(key string, value []byte) error {
	s.state[key] = value
	return nil
}

func (s *fakeStub) DelState(key string) error {
	delete(s.state, key)
	return nil
}

func (s *fakeStub) CreateCompositeKey(objectType string, attributes []string) (string, error) {
	key := "\x00" + objectType + "\x00"
	for _, attr := range attributes {
		key += attr + "\x00"
	}
	return key, nil
}

func (s *fakeStub) GetStateByPartialCompositeKey(objectType string, attributes []string) (shim.StateQueryIteratorInterface, error) {
	prefix, _ := s.CreateCompositeKey(objectType, attributes)
	keys := make([]string, 0, len(s.state))
	for key := range s.state {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	kvs := make([]*queryresult.KV, 0, len(keys))
	for _, key := range keys {
		kvs = append(kvs, &queryresult.KV{Key: key, Value: s.state[key]})
	}
	return &fakeIterator{kvs: kvs}, nil
}

func (s *fakeStub) GetTxTimestamp() (*timestamppb.Timestamp, error) {
	return timestamppb.New(s.now), nil
}

func (s *fakeStub) GetTxID() string {
	return s.txID
}

func (s *fakeStub) SetEvent(name string, payload []byte) error {
	s.events = append(s.events, stubEvent{name: name, payload: payload})
	return nil
}

func (s *fakeStub) eventNames() []string {
	names := make([]string, 0, len(s.events))
	for _, ev := range s.events {
		names = append(names, ev.name)
	}
	return names
}

func (s *fakeStub) lastEvent(t *testing.T, name string) map[string]interface{} {
	t.Helper()
	for i := len(s.events) - 1; i >= 0; i-- {
		if s.events[i].name == name {
			var payload map[string]interface{}
			require.NoError(t, json.Unmarshal(s.events[i].payload, &payload))
			return payload
		}
	}
	t.Fatalf("no event %q emitted; saw %v", name, s.eventNames())
	return nil
}

// tx opens a fresh simulated transaction submitted by the given identity.
func (s *fakeStub) tx(identity string) *fakeCtx {
	s.txCount++
	s.txID = fmt.Sprintf("tx-%d", s.txCount)
	s.now = s.now.Add(time.Second)
	return &fakeCtx{stub: s, identity: &fakeClientIdentity{id: identity, msp: "Org1MSP"}}
}

type fakeIterator struct {
	shim.StateQueryIteratorInterface
	kvs []*queryresult.KV
	pos int
}

func (it *fakeIterator) HasNext() bool {
	return it.pos < len(it.kvs)
}

func (it *fakeIterator) Next() (*queryresult.KV, error) {
	kv := it.kvs[it.pos]
	it.pos++
	return kv, nil
}

func (it *fakeIterator) Close() error {
	return nil
}

type fakeClientIdentity struct {
	cid.ClientIdentity
	id  string
	msp string
}

func (f *fakeClientIdentity) GetID() (string, error) {
	return f.id, nil
}

func (f *fakeClientIdentity) GetMSPID() (string, error) {
	return f.msp, nil
}

type fakeCtx struct {
	stub     *fakeStub
	identity *fakeClientIdentity
}

func (c *fakeCtx) GetStub() shim.ChaincodeStubInterface {
	return c.stub
}

func (c *fakeCtx) GetClientIdentity() cid.ClientIdentity {
	return c.identity
}

func testConfig() Config {
	return Config{SealingKey: testSealKey, GatewaySecret: testSecret}
}

func newTestContract(t *testing.T) (*ProvenanceSmartContract, *fakeStub) {
	t.Helper()
	sc, err := NewProvenanceContract(testConfig())
	require.NoError(t, err)
	return sc, newFakeStub()
}

// setupLedger bootstraps a ledger with one owner, one manufacturer and one
// tracker, the common fixture for the operation tests.
func setupLedger(t *testing.T) (*ProvenanceSmartContract, *fakeStub) {
	t.Helper()
	sc, stub := newTestContract(t)
	require.NoError(t, sc.InitLedger(stub.tx(ownerID)))
	require.NoError(t, sc.GrantManufacturerRole(stub.tx(ownerID), makerID))
	require.NoError(t, sc.GrantTrackerRole(stub.tx(ownerID), trackerID))
	return sc, stub
}

// confidentialValue reads the store record behind a handle straight from
// fake ledger state.
func confidentialValue(t *testing.T, stub *fakeStub, handle model.Handle) model.ConfidentialValue {
	t.Helper()
	key, err := stub.CreateCompositeKey(confidentialValueObjectType, []string{string(handle)})
	require.NoError(t, err)
	raw := stub.state[key]
	require.NotNil(t, raw, "no confidential value stored for handle %s", handle)
	var value model.ConfidentialValue
	require.NoError(t, json.Unmarshal(raw, &value))
	return value
}

// gatewayProofs builds the attestations the off-chain gateway would attach
// to a plaintext delivery.
func gatewayProofs(t *testing.T, requestID string, handles []model.Handle, values [4]uint64) string {
	t.Helper()
	secret, err := hex.DecodeString(testSecret)
	require.NoError(t, err)
	proofs := make([][]byte, len(handles))
	for i, handle := range handles {
		mac := hmac.New(sha256.New, secret)
		mac.Write([]byte(requestID))
		mac.Write([]byte(handle))
		mac.Write(uint64Plaintext(values[i]))
		proofs[i] = mac.Sum(nil)
	}
	proofsJSON, err := json.Marshal(proofs)
	require.NoError(t, err)
	return string(proofsJSON)
}
