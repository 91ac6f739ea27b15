package routes

import (
	"fmt"
	"net/http"
	"strconv"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"

	"nftlend/gateway/wire"
	"nftlend/native/escrow"
)

type approveRequest struct {
	Currency string `json:"currency"`
	Spender  string `json:"spender"`
	Amount   string `json:"amount"`
}

type custodyRequest struct {
	Contract string `json:"contract"`
	TokenID  string `json:"tokenId"`
}

func (s *server) mountAssets(r chi.Router) {
	r.Post("/bank/approve", s.mutate("bank.approve", s.approve))
	r.Post("/escrow/custody", s.mutate("escrow.custody", s.grantCustody))
}

func (s *server) mountAssetQueries(r chi.Router) {
	r.Get("/bank/{currency}/{owner}", s.query("bank.balance", s.balance))
	r.Get("/bank/{currency}/{owner}/allowance/{spender}", s.query("bank.allowance", s.allowance))
	r.Get("/escrow/locks/{lockID}", s.query("escrow.lock", s.lockStatus))
	r.Get("/escrow/deposits/{contract}/{tokenID}/{owner}", s.query("escrow.deposit", s.depositStatus))
}

func (s *server) approve(r *http.Request, actor ethcommon.Address) (prepared, error) {
	var req approveRequest
	if err := decodeJSON(r, &req); err != nil {
		return nil, err
	}
	currency, err := wire.ParseAddress("currency", req.Currency)
	if err != nil {
		return nil, asBadRequest(err)
	}
	spender, err := wire.ParseAddress("spender", req.Spender)
	if err != nil {
		return nil, asBadRequest(err)
	}
	amount, err := wire.ParseAmount("amount", req.Amount)
	if err != nil {
		return nil, asBadRequest(err)
	}
	return func() (interface{}, error) {
		if err := s.node.Bank().Approve(currency, actor, spender, amount); err != nil {
			return nil, err
		}
		return map[string]string{"allowance": amount.String()}, nil
	}, nil
}

func (s *server) grantCustody(r *http.Request, actor ethcommon.Address) (prepared, error) {
	var req custodyRequest
	if err := decodeJSON(r, &req); err != nil {
		return nil, err
	}
	asset, err := parseAsset(req.Contract, req.TokenID)
	if err != nil {
		return nil, err
	}
	return func() (interface{}, error) {
		if err := s.node.Escrow().GrantCustody(actor, asset); err != nil {
			return nil, err
		}
		return map[string]string{"asset": asset.String()}, nil
	}, nil
}

func (s *server) balance(r *http.Request) (interface{}, error) {
	currency, err := wire.ParseAddress("currency", chi.URLParam(r, "currency"))
	if err != nil {
		return nil, asBadRequest(err)
	}
	holder, err := wire.ParseAddress("owner", chi.URLParam(r, "owner"))
	if err != nil {
		return nil, asBadRequest(err)
	}
	bal, err := s.node.Bank().Balance(currency, holder)
	if err != nil {
		return nil, err
	}
	return map[string]string{"balance": bal.String()}, nil
}

func (s *server) allowance(r *http.Request) (interface{}, error) {
	currency, err := wire.ParseAddress("currency", chi.URLParam(r, "currency"))
	if err != nil {
		return nil, asBadRequest(err)
	}
	owner, err := wire.ParseAddress("owner", chi.URLParam(r, "owner"))
	if err != nil {
		return nil, asBadRequest(err)
	}
	spender, err := wire.ParseAddress("spender", chi.URLParam(r, "spender"))
	if err != nil {
		return nil, asBadRequest(err)
	}
	allowance, err := s.node.Bank().Allowance(currency, owner, spender)
	if err != nil {
		return nil, err
	}
	return map[string]string{"allowance": allowance.String()}, nil
}

func (s *server) lockStatus(r *http.Request) (interface{}, error) {
	lockID, err := strconv.ParseUint(chi.URLParam(r, "lockID"), 10, 64)
	if err != nil {
		return nil, asBadRequest(fmt.Errorf("lockId: %w", err))
	}
	lock, locked, err := s.node.Escrow().LockOf(lockID)
	if err != nil {
		return nil, err
	}
	if !locked {
		return map[string]interface{}{"locked": false}, nil
	}
	return map[string]interface{}{
		"locked":   true,
		"asset":    lock.Asset().String(),
		"owner":    lock.Owner.Hex(),
		"locker":   lock.Locker.Hex(),
		"custody":  lock.Custody.Hex(),
		"wrapper":  lock.Wrapper,
		"personal": lock.Personal,
		"lockedAt": lock.LockedAt,
	}, nil
}

func (s *server) depositStatus(r *http.Request) (interface{}, error) {
	asset, err := parseAsset(chi.URLParam(r, "contract"), chi.URLParam(r, "tokenID"))
	if err != nil {
		return nil, err
	}
	owner, err := wire.ParseAddress("owner", chi.URLParam(r, "owner"))
	if err != nil {
		return nil, asBadRequest(err)
	}
	deposit, ok, err := s.node.Escrow().DepositOf(asset, owner)
	if err != nil {
		return nil, err
	}
	if !ok {
		return map[string]interface{}{"units": 0, "locked": 0}, nil
	}
	return map[string]interface{}{
		"vault":  deposit.Vault.Hex(),
		"units":  deposit.Units,
		"locked": deposit.Locked,
	}, nil
}

func parseAsset(contract, tokenID string) (escrow.Asset, error) {
	addr, err := wire.ParseAddress("contract", contract)
	if err != nil {
		return escrow.Asset{}, asBadRequest(err)
	}
	id, err := wire.ParseAmount("tokenId", tokenID)
	if err != nil {
		return escrow.Asset{}, asBadRequest(err)
	}
	return escrow.Asset{Contract: addr, TokenID: id}, nil
}
