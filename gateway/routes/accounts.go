package routes

import (
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"

	"nftlend/gateway/wire"
	"nftlend/native/accounts"
)

type deployAccountRequest struct {
	Owners    []string `json:"owners"`
	Threshold uint64   `json:"threshold"`
	// Salt is an optional 32-byte hex value that varies the derived address.
	Salt string `json:"salt,omitempty"`
}

type accountView struct {
	Address   string   `json:"address"`
	Owners    []string `json:"owners"`
	Threshold uint64   `json:"threshold"`
	Creator   string   `json:"creator"`
}

func (s *server) mountAccounts(r chi.Router) {
	r.Post("/accounts", s.mutate("accounts.deploy", s.deployAccount))
}

func (s *server) mountAccountQueries(r chi.Router) {
	r.Get("/accounts/{address}", s.query("accounts.get", s.getAccount))
}

func (s *server) deployAccount(r *http.Request, actor ethcommon.Address) (prepared, error) {
	var req deployAccountRequest
	if err := decodeJSON(r, &req); err != nil {
		return nil, err
	}
	owners := make([]ethcommon.Address, 0, len(req.Owners))
	for i, raw := range req.Owners {
		owner, err := wire.ParseAddress(fmt.Sprintf("owners[%d]", i), raw)
		if err != nil {
			return nil, asBadRequest(err)
		}
		owners = append(owners, owner)
	}
	salt, err := parseSalt(req.Salt)
	if err != nil {
		return nil, asBadRequest(err)
	}
	return func() (interface{}, error) {
		account, err := s.node.Accounts().Deploy(actor, owners, req.Threshold, salt)
		if err != nil {
			return nil, err
		}
		return viewAccount(account), nil
	}, nil
}

func (s *server) getAccount(r *http.Request) (interface{}, error) {
	addr, err := wire.ParseAddress("address", chi.URLParam(r, "address"))
	if err != nil {
		return nil, asBadRequest(err)
	}
	account, err := s.node.Accounts().Get(addr)
	if err != nil {
		return nil, err
	}
	return viewAccount(account), nil
}

func viewAccount(m *accounts.Multisig) accountView {
	return accountView{
		Address:   m.Address.Hex(),
		Owners:    hexList(m.Owners),
		Threshold: m.Threshold,
		Creator:   m.Creator.Hex(),
	}
}

func parseSalt(raw string) ([32]byte, error) {
	var salt [32]byte
	raw = strings.TrimPrefix(strings.TrimSpace(raw), "0x")
	if raw == "" {
		return salt, nil
	}
	decoded, err := hex.DecodeString(raw)
	if err != nil || len(decoded) > len(salt) {
		return salt, fmt.Errorf("salt must be at most 32 hex bytes")
	}
	copy(salt[len(salt)-len(decoded):], decoded)
	return salt, nil
}
