package registry

import (
	"errors"
	"fmt"
	"strings"

	ethcommon "github.com/ethereum/go-ethereum/common"

	"nftlend/core/events"
)

var (
	ErrNilState                = errors.New("registry: state not configured")
	ErrNotOwner                = errors.New("registry: caller is not the owner")
	ErrNotPendingOwner         = errors.New("registry: caller is not the pending owner")
	ErrOwnerAlreadyInitialised = errors.New("registry: owner already initialised")
	ErrZeroAddress             = errors.New("registry: zero address")
	ErrArityMismatch           = errors.New("registry: function information arity mismatch")
	ErrUnknownAssetType        = errors.New("registry: unknown asset type")
	ErrInvalidAssetType        = errors.New("registry: asset type must not be empty")
	ErrInvalidLoanType         = errors.New("registry: loan type must not be empty")
	ErrLoanContractTaken       = errors.New("registry: contract already registered for another loan type")
	ErrInvalidModule           = errors.New("registry: module name must not be empty")
)

const (
	EventTypeOwnershipProposed  = "registry.ownership.proposed"
	EventTypeOwnershipTransfer  = "registry.ownership.transferred"
	EventTypePaused             = "registry.module.paused"
	EventTypeUnpaused           = "registry.module.unpaused"
	EventTypeAssetTypeSet       = "registry.asset_type.set"
	EventTypeCollateralSet      = "registry.collateral.set"
	EventTypeCurrencySet        = "registry.currency.set"
	EventTypeLoanTypeRegistered = "registry.loan_type.registered"
)

type engineState interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
	KVDelete(key []byte) error
	KVAppend(key []byte, value []byte) error
	KVRemove(key []byte, value []byte) error
	KVGetList(key []byte, out interface{}) error
}

// Registry is the permitted-asset allow-list plus the single authority role
// that administers it.
type Registry struct {
	state   engineState
	emitter events.Emitter
}

func New() *Registry {
	return &Registry{emitter: events.NoopEmitter{}}
}

func (r *Registry) SetState(state engineState) { r.state = state }

func (r *Registry) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	r.emitter = emitter
}

var (
	ownerKey           = []byte("registry/owner")
	pendingOwnerKey    = []byte("registry/pending-owner")
	currencyIndexKey   = []byte("registry/currencies")
	collateralIndexKey = []byte("registry/collaterals")
	loanTypeIndexKey   = []byte("registry/loan-types")
)

func pausedKey(module string) []byte {
	return []byte("registry/paused/" + module)
}

func assetTypeKey(typeTag string) []byte {
	return []byte("registry/asset-type/" + typeTag)
}

func collateralKey(contract ethcommon.Address) []byte {
	return []byte(fmt.Sprintf("registry/collateral/%s", contract.Hex()))
}

func currencyKey(currency ethcommon.Address) []byte {
	return []byte(fmt.Sprintf("registry/currency/%s", currency.Hex()))
}

func loanTypeKey(loanType string) []byte {
	return []byte("registry/loan-type/" + loanType)
}

func loanContractKey(contract ethcommon.Address) []byte {
	return []byte(fmt.Sprintf("registry/loan-contract/%s", contract.Hex()))
}

func normalizeTag(tag string) string {
	return strings.ToLower(strings.TrimSpace(tag))
}

func (r *Registry) ready() error {
	if r == nil || r.state == nil {
		return ErrNilState
	}
	return nil
}

func (r *Registry) getAddress(key []byte) (ethcommon.Address, bool, error) {
	var addr ethcommon.Address
	ok, err := r.state.KVGet(key, &addr)
	return addr, ok, err
}

func (r *Registry) emit(evt *events.Event) {
	if r.emitter != nil {
		r.emitter.Emit(evt)
	}
}
