package main

import (
	"provtrace/contract"

	"github.com/hyperledger/fabric-contract-api-go/contractapi"
)

func main() {
	cfg, err := contract.LoadConfig()
	if err != nil {
		panic("Error loading provtrace config: " + err.Error())
	}
	sc, err := contract.NewProvenanceContract(cfg)
	if err != nil {
		panic("Error creating ProvenanceSmartContract: " + err.Error())
	}
	cc, err := contractapi.NewChaincode(sc)
	if err != nil {
		panic("Error creating provtrace chaincode: " + err.Error())
	}
	if err := cc.Start(); err != nil {
		panic("Error starting provtrace chaincode: " + err.Error())
	}
}
