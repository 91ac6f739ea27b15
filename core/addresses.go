package core

import (
	"strings"

	ethcommon "github.com/ethereum/go-ethereum/common"

	"nftlend/crypto"
	"nftlend/native/signing"
)

// Well-known component addresses. Each is derived from the component's module
// name so every node agrees on them without configuration.
var (
	RegistryAddress    = crypto.ModuleAddress("registry")
	EscrowAddress      = crypto.ModuleAddress("escrow")
	CoordinatorAddress = crypto.ModuleAddress("coordinator")
	PoolAddress        = crypto.ModuleAddress("liquidity")
	RefinanceAddress   = crypto.ModuleAddress("refinance")
	TreasuryAddress    = crypto.ModuleAddress("treasury")
)

// LoanContractAddress is the origination contract serving offerType.
func LoanContractAddress(offerType signing.OfferType) ethcommon.Address {
	return crypto.ModuleAddress("loans/" + strings.ToLower(string(offerType)))
}
