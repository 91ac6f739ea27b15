package registry

import (
	ethcommon "github.com/ethereum/go-ethereum/common"

	"nftlend/core/events"
)

// SetAssetType records which escrow adapter handles the asset type tag.
// An empty wrapper removes the type.
func (r *Registry) SetAssetType(caller ethcommon.Address, typeTag, wrapper string) error {
	if err := r.onlyOwner(caller); err != nil {
		return err
	}
	return r.setAssetType(typeTag, wrapper)
}

// SetAssetTypes is the batch form of SetAssetType.
func (r *Registry) SetAssetTypes(caller ethcommon.Address, typeTags, wrappers []string) error {
	if err := r.onlyOwner(caller); err != nil {
		return err
	}
	if len(typeTags) != len(wrappers) {
		return ErrArityMismatch
	}
	for i := range typeTags {
		if err := r.setAssetType(typeTags[i], wrappers[i]); err != nil {
			return err
		}
	}
	return nil
}

func (r *Registry) setAssetType(typeTag, wrapper string) error {
	tag := normalizeTag(typeTag)
	if tag == "" {
		return ErrInvalidAssetType
	}
	wrapper = normalizeTag(wrapper)
	if wrapper == "" {
		if err := r.state.KVDelete(assetTypeKey(tag)); err != nil {
			return err
		}
	} else if err := r.state.KVPut(assetTypeKey(tag), wrapper); err != nil {
		return err
	}
	r.emit(events.New(EventTypeAssetTypeSet).With("typeTag", tag).With("wrapper", wrapper))
	return nil
}

// WrapperForType resolves the adapter name for a type tag.
func (r *Registry) WrapperForType(typeTag string) (string, bool, error) {
	if err := r.ready(); err != nil {
		return "", false, err
	}
	var wrapper string
	ok, err := r.state.KVGet(assetTypeKey(normalizeTag(typeTag)), &wrapper)
	return wrapper, ok, err
}

// SetPermittedCollateral allows a collateral contract under an asset type.
// An empty type tag disallows it.
func (r *Registry) SetPermittedCollateral(caller, contract ethcommon.Address, typeTag string) error {
	if err := r.onlyOwner(caller); err != nil {
		return err
	}
	return r.setPermittedCollateral(contract, typeTag)
}

// SetPermittedCollaterals is the batch form of SetPermittedCollateral.
func (r *Registry) SetPermittedCollaterals(caller ethcommon.Address, contracts []ethcommon.Address, typeTags []string) error {
	if err := r.onlyOwner(caller); err != nil {
		return err
	}
	if len(contracts) != len(typeTags) {
		return ErrArityMismatch
	}
	for i := range contracts {
		if err := r.setPermittedCollateral(contracts[i], typeTags[i]); err != nil {
			return err
		}
	}
	return nil
}

func (r *Registry) setPermittedCollateral(contract ethcommon.Address, typeTag string) error {
	if contract == (ethcommon.Address{}) {
		return ErrZeroAddress
	}
	tag := normalizeTag(typeTag)
	if tag == "" {
		if err := r.state.KVDelete(collateralKey(contract)); err != nil {
			return err
		}
		if err := r.state.KVRemove(collateralIndexKey, contract.Bytes()); err != nil {
			return err
		}
	} else {
		if _, ok, err := r.WrapperForType(tag); err != nil {
			return err
		} else if !ok {
			return ErrUnknownAssetType
		}
		if err := r.state.KVPut(collateralKey(contract), tag); err != nil {
			return err
		}
		if err := r.state.KVAppend(collateralIndexKey, contract.Bytes()); err != nil {
			return err
		}
	}
	r.emit(events.New(EventTypeCollateralSet).With("contract", contract.Hex()).With("typeTag", tag))
	return nil
}

// PermittedCollateral returns the asset type tag of an allowed collateral contract.
func (r *Registry) PermittedCollateral(contract ethcommon.Address) (string, bool, error) {
	if err := r.ready(); err != nil {
		return "", false, err
	}
	var tag string
	ok, err := r.state.KVGet(collateralKey(contract), &tag)
	return tag, ok, err
}

// WrapperFor resolves the adapter that moves assets of the given contract.
func (r *Registry) WrapperFor(contract ethcommon.Address) (string, error) {
	tag, ok, err := r.PermittedCollateral(contract)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", ErrUnknownAssetType
	}
	wrapper, ok, err := r.WrapperForType(tag)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", ErrUnknownAssetType
	}
	return wrapper, nil
}

// PermittedCollaterals lists every allowed collateral contract.
func (r *Registry) PermittedCollaterals() ([]ethcommon.Address, error) {
	return r.addressIndex(collateralIndexKey)
}

// SetPermittedCurrency allows or disallows a settlement currency.
func (r *Registry) SetPermittedCurrency(caller, currency ethcommon.Address, permitted bool) error {
	if err := r.onlyOwner(caller); err != nil {
		return err
	}
	return r.setPermittedCurrency(currency, permitted)
}

// SetPermittedCurrencies is the batch form of SetPermittedCurrency.
func (r *Registry) SetPermittedCurrencies(caller ethcommon.Address, currencies []ethcommon.Address, permitted []bool) error {
	if err := r.onlyOwner(caller); err != nil {
		return err
	}
	if len(currencies) != len(permitted) {
		return ErrArityMismatch
	}
	for i := range currencies {
		if err := r.setPermittedCurrency(currencies[i], permitted[i]); err != nil {
			return err
		}
	}
	return nil
}

func (r *Registry) setPermittedCurrency(currency ethcommon.Address, permitted bool) error {
	if currency == (ethcommon.Address{}) {
		return ErrZeroAddress
	}
	if permitted {
		if err := r.state.KVPut(currencyKey(currency), true); err != nil {
			return err
		}
		if err := r.state.KVAppend(currencyIndexKey, currency.Bytes()); err != nil {
			return err
		}
	} else {
		if err := r.state.KVDelete(currencyKey(currency)); err != nil {
			return err
		}
		if err := r.state.KVRemove(currencyIndexKey, currency.Bytes()); err != nil {
			return err
		}
	}
	evt := events.New(EventTypeCurrencySet).With("currency", currency.Hex())
	if permitted {
		evt.With("permitted", "true")
	} else {
		evt.With("permitted", "false")
	}
	r.emit(evt)
	return nil
}

// IsPermittedCurrency reports whether loans may settle in currency.
func (r *Registry) IsPermittedCurrency(currency ethcommon.Address) (bool, error) {
	if err := r.ready(); err != nil {
		return false, err
	}
	var permitted bool
	ok, err := r.state.KVGet(currencyKey(currency), &permitted)
	return ok && permitted, err
}

// PermittedCurrencies lists every allowed settlement currency.
func (r *Registry) PermittedCurrencies() ([]ethcommon.Address, error) {
	return r.addressIndex(currencyIndexKey)
}

func (r *Registry) addressIndex(key []byte) ([]ethcommon.Address, error) {
	if err := r.ready(); err != nil {
		return nil, err
	}
	var raw [][]byte
	if err := r.state.KVGetList(key, &raw); err != nil {
		return nil, err
	}
	out := make([]ethcommon.Address, 0, len(raw))
	for _, b := range raw {
		out = append(out, ethcommon.BytesToAddress(b))
	}
	return out, nil
}
