package routes

import (
	"net/http"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"

	"nftlend/core"
	"nftlend/gateway/wire"
	"nftlend/native/registry"
)

type moduleRequest struct {
	Module string `json:"module"`
}

type currencyRequest struct {
	Currency  string `json:"currency"`
	Permitted bool   `json:"permitted"`
}

type collateralRequest struct {
	Contract string `json:"contract"`
	Tag      string `json:"tag"`
}

type assetTypeRequest struct {
	Tag     string `json:"tag"`
	Wrapper string `json:"wrapper"`
}

type ownerRequest struct {
	NewOwner string `json:"newOwner"`
}

type mintRequest struct {
	Currency string `json:"currency"`
	To       string `json:"to"`
	Amount   string `json:"amount"`
}

type mintTokenRequest struct {
	Contract string `json:"contract"`
	TokenID  string `json:"tokenId"`
	Owner    string `json:"owner"`
	Standard string `json:"standard"`
}

// mountAdmin registers registry administration. The registry itself checks
// that the acting address is the owner.
func (s *server) mountAdmin(r chi.Router) {
	r.Post("/admin/pause", s.mutate("admin.pause", s.setPaused(true)))
	r.Post("/admin/unpause", s.mutate("admin.unpause", s.setPaused(false)))
	r.Post("/admin/currencies", s.mutate("admin.currency", s.setCurrency))
	r.Post("/admin/collaterals", s.mutate("admin.collateral", s.setCollateral))
	r.Post("/admin/asset-types", s.mutate("admin.asset_type", s.setAssetType))
	r.Post("/admin/ownership/transfer", s.mutate("admin.transfer_ownership", s.transferOwnership))
	r.Post("/admin/mint", s.mutate("admin.mint", s.mint))
	r.Post("/admin/mint-collateral", s.mutate("admin.mint_collateral", s.mintCollateral))
}

// mountOwnership registers the second step of an ownership handover, which
// the pending owner performs without the admin scope.
func (s *server) mountOwnership(r chi.Router) {
	r.Post("/admin/ownership/accept", s.mutate("admin.accept_ownership", func(_ *http.Request, actor ethcommon.Address) (prepared, error) {
		return func() (interface{}, error) {
			if err := s.node.Registry().AcceptOwnership(actor); err != nil {
				return nil, err
			}
			return map[string]string{"owner": actor.Hex()}, nil
		}, nil
	}))
}

func (s *server) mountAdminQueries(r chi.Router) {
	r.Get("/registry", s.query("registry", s.registryStatus))
}

func (s *server) setPaused(paused bool) func(*http.Request, ethcommon.Address) (prepared, error) {
	return func(r *http.Request, actor ethcommon.Address) (prepared, error) {
		var req moduleRequest
		if err := decodeJSON(r, &req); err != nil {
			return nil, err
		}
		return func() (interface{}, error) {
			var err error
			if paused {
				err = s.node.Registry().Pause(actor, req.Module)
			} else {
				err = s.node.Registry().Unpause(actor, req.Module)
			}
			if err != nil {
				return nil, err
			}
			return map[string]interface{}{"module": req.Module, "paused": paused}, nil
		}, nil
	}
}

func (s *server) setCurrency(r *http.Request, actor ethcommon.Address) (prepared, error) {
	var req currencyRequest
	if err := decodeJSON(r, &req); err != nil {
		return nil, err
	}
	currency, err := wire.ParseAddress("currency", req.Currency)
	if err != nil {
		return nil, asBadRequest(err)
	}
	return func() (interface{}, error) {
		if err := s.node.Registry().SetPermittedCurrency(actor, currency, req.Permitted); err != nil {
			return nil, err
		}
		return map[string]interface{}{"currency": currency.Hex(), "permitted": req.Permitted}, nil
	}, nil
}

func (s *server) setCollateral(r *http.Request, actor ethcommon.Address) (prepared, error) {
	var req collateralRequest
	if err := decodeJSON(r, &req); err != nil {
		return nil, err
	}
	contract, err := wire.ParseAddress("contract", req.Contract)
	if err != nil {
		return nil, asBadRequest(err)
	}
	return func() (interface{}, error) {
		if err := s.node.Registry().SetPermittedCollateral(actor, contract, req.Tag); err != nil {
			return nil, err
		}
		return map[string]string{"contract": contract.Hex(), "tag": req.Tag}, nil
	}, nil
}

func (s *server) setAssetType(r *http.Request, actor ethcommon.Address) (prepared, error) {
	var req assetTypeRequest
	if err := decodeJSON(r, &req); err != nil {
		return nil, err
	}
	return func() (interface{}, error) {
		if err := s.node.Registry().SetAssetType(actor, req.Tag, req.Wrapper); err != nil {
			return nil, err
		}
		return map[string]string{"tag": req.Tag, "wrapper": req.Wrapper}, nil
	}, nil
}

func (s *server) transferOwnership(r *http.Request, actor ethcommon.Address) (prepared, error) {
	var req ownerRequest
	if err := decodeJSON(r, &req); err != nil {
		return nil, err
	}
	newOwner, err := wire.ParseAddress("newOwner", req.NewOwner)
	if err != nil {
		return nil, asBadRequest(err)
	}
	return func() (interface{}, error) {
		if err := s.node.Registry().TransferOwnership(actor, newOwner); err != nil {
			return nil, err
		}
		return map[string]string{"pendingOwner": newOwner.Hex()}, nil
	}, nil
}

// mint credits currency on development networks. Only the registry owner
// may call it.
func (s *server) mint(r *http.Request, actor ethcommon.Address) (prepared, error) {
	var req mintRequest
	if err := decodeJSON(r, &req); err != nil {
		return nil, err
	}
	currency, err := wire.ParseAddress("currency", req.Currency)
	if err != nil {
		return nil, asBadRequest(err)
	}
	to, err := wire.ParseAddress("to", req.To)
	if err != nil {
		return nil, asBadRequest(err)
	}
	amount, err := wire.ParseAmount("amount", req.Amount)
	if err != nil {
		return nil, asBadRequest(err)
	}
	return func() (interface{}, error) {
		if err := s.requireOwner(actor); err != nil {
			return nil, err
		}
		if err := s.node.Bank().Mint(currency, to, amount); err != nil {
			return nil, err
		}
		return map[string]string{"minted": amount.String()}, nil
	}, nil
}

func (s *server) mintCollateral(r *http.Request, actor ethcommon.Address) (prepared, error) {
	var req mintTokenRequest
	if err := decodeJSON(r, &req); err != nil {
		return nil, err
	}
	asset, err := parseAsset(req.Contract, req.TokenID)
	if err != nil {
		return nil, err
	}
	owner, err := wire.ParseAddress("owner", req.Owner)
	if err != nil {
		return nil, asBadRequest(err)
	}
	return func() (interface{}, error) {
		if err := s.requireOwner(actor); err != nil {
			return nil, err
		}
		tok := core.Token{Contract: asset.Contract, ID: asset.TokenID, Owner: owner, Standard: req.Standard}
		if err := s.node.MintCollateral(tok); err != nil {
			return nil, err
		}
		return map[string]string{"asset": asset.String()}, nil
	}, nil
}

func (s *server) requireOwner(actor ethcommon.Address) error {
	owner, err := s.node.Registry().Owner()
	if err != nil {
		return err
	}
	if owner != actor {
		return registry.ErrNotOwner
	}
	return nil
}

func (s *server) registryStatus(*http.Request) (interface{}, error) {
	reg := s.node.Registry()
	owner, err := reg.Owner()
	if err != nil {
		return nil, err
	}
	pending, err := reg.PendingOwner()
	if err != nil {
		return nil, err
	}
	currencies, err := reg.PermittedCurrencies()
	if err != nil {
		return nil, err
	}
	collaterals, err := reg.PermittedCollaterals()
	if err != nil {
		return nil, err
	}
	paused := make(map[string]bool)
	for _, module := range []string{"loans", "refinance", "liquidity", "escrow"} {
		paused[module] = reg.IsPaused(module)
	}
	return map[string]interface{}{
		"owner":        owner.Hex(),
		"pendingOwner": pending.Hex(),
		"currencies":   hexList(currencies),
		"collaterals":  hexList(collaterals),
		"paused":       paused,
	}, nil
}

func hexList(addrs []ethcommon.Address) []string {
	out := make([]string, 0, len(addrs))
	for _, addr := range addrs {
		out = append(out, addr.Hex())
	}
	return out
}
