package registry

import (
	ethcommon "github.com/ethereum/go-ethereum/common"

	"nftlend/core/events"
)

// RegisterLoanType points an offer taxonomy at the contract that originates
// loans for it. The zero address unregisters the taxonomy.
func (r *Registry) RegisterLoanType(caller ethcommon.Address, loanType string, contract ethcommon.Address) error {
	if err := r.onlyOwner(caller); err != nil {
		return err
	}
	return r.registerLoanType(loanType, contract)
}

// RegisterLoanTypes is the batch form of RegisterLoanType.
func (r *Registry) RegisterLoanTypes(caller ethcommon.Address, loanTypes []string, contracts []ethcommon.Address) error {
	if err := r.onlyOwner(caller); err != nil {
		return err
	}
	if len(loanTypes) != len(contracts) {
		return ErrArityMismatch
	}
	for i := range loanTypes {
		if err := r.registerLoanType(loanTypes[i], contracts[i]); err != nil {
			return err
		}
	}
	return nil
}

func (r *Registry) registerLoanType(loanType string, contract ethcommon.Address) error {
	if loanType == "" {
		return ErrInvalidLoanType
	}
	if contract != (ethcommon.Address{}) {
		var existing string
		ok, err := r.state.KVGet(loanContractKey(contract), &existing)
		if err != nil {
			return err
		}
		if ok && existing != loanType {
			return ErrLoanContractTaken
		}
	}
	previous, ok, err := r.getAddress(loanTypeKey(loanType))
	if err != nil {
		return err
	}
	if ok && previous != contract {
		if err := r.state.KVDelete(loanContractKey(previous)); err != nil {
			return err
		}
	}
	if contract == (ethcommon.Address{}) {
		if err := r.state.KVDelete(loanTypeKey(loanType)); err != nil {
			return err
		}
		if err := r.state.KVRemove(loanTypeIndexKey, []byte(loanType)); err != nil {
			return err
		}
	} else {
		if err := r.state.KVPut(loanTypeKey(loanType), contract); err != nil {
			return err
		}
		if err := r.state.KVPut(loanContractKey(contract), loanType); err != nil {
			return err
		}
		if err := r.state.KVAppend(loanTypeIndexKey, []byte(loanType)); err != nil {
			return err
		}
	}
	r.emit(events.New(EventTypeLoanTypeRegistered).
		With("loanType", loanType).
		With("contract", contract.Hex()))
	return nil
}

// LoanContractFor returns the contract registered for a taxonomy.
func (r *Registry) LoanContractFor(loanType string) (ethcommon.Address, bool, error) {
	if err := r.ready(); err != nil {
		return ethcommon.Address{}, false, err
	}
	return r.getAddress(loanTypeKey(loanType))
}

// LoanTypeOf returns the taxonomy a contract is registered under.
func (r *Registry) LoanTypeOf(contract ethcommon.Address) (string, bool, error) {
	if err := r.ready(); err != nil {
		return "", false, err
	}
	var loanType string
	ok, err := r.state.KVGet(loanContractKey(contract), &loanType)
	return loanType, ok, err
}

// IsLoanContract reports whether addr is currently a registered loan contract.
func (r *Registry) IsLoanContract(addr ethcommon.Address) (bool, error) {
	_, ok, err := r.LoanTypeOf(addr)
	return ok, err
}

// LoanTypes lists registered taxonomies in registration order.
func (r *Registry) LoanTypes() ([]string, error) {
	if err := r.ready(); err != nil {
		return nil, err
	}
	var raw [][]byte
	if err := r.state.KVGetList(loanTypeIndexKey, &raw); err != nil {
		return nil, err
	}
	out := make([]string, 0, len(raw))
	for _, b := range raw {
		out = append(out, string(b))
	}
	return out, nil
}
