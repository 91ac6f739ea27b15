package routes

import (
	"net/http"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"

	"nftlend/gateway/wire"
	"nftlend/native/refinance"
	"nftlend/native/signing"
)

type refinanceRequest struct {
	OldLoanID    uint64         `json:"oldLoanId"`
	NewOfferType string         `json:"newOfferType"`
	Offer        wire.Offer     `json:"offer"`
	Signature    wire.Signature `json:"signature"`
}

type refinanceResponse struct {
	OldLoanID uint64 `json:"oldLoanId"`
	NewLoanID uint64 `json:"newLoanId"`
	Payoff    string `json:"payoff"`
	FlashFee  string `json:"flashFee"`
	Deficit   string `json:"deficit"`
	Surplus   string `json:"surplus"`
}

type poolAmountRequest struct {
	Currency string `json:"currency"`
	Amount   string `json:"amount,omitempty"`
	Shares   string `json:"shares,omitempty"`
}

func (s *server) mountRefinance(r chi.Router) {
	r.Post("/refinance", s.mutate("refinance", s.refinance))
	r.Post("/pool/supply", s.mutate("pool.supply", s.supply))
	r.Post("/pool/withdraw", s.mutate("pool.withdraw", s.withdraw))
}

func (s *server) mountRefinanceQueries(r chi.Router) {
	r.Get("/loans/{loanID}/refinance-quote", s.query("refinance.quote", s.quote))
	r.Get("/pool/{currency}", s.query("pool", s.poolStatus))
	r.Get("/pool/{currency}/shares/{holder}", s.query("pool.shares", s.poolShares))
}

func (s *server) refinance(r *http.Request, actor ethcommon.Address) (prepared, error) {
	var req refinanceRequest
	if err := decodeJSON(r, &req); err != nil {
		return nil, err
	}
	offerType, err := signing.ParseOfferType(req.NewOfferType)
	if err != nil {
		return nil, asBadRequest(err)
	}
	newContract, err := s.node.LoanContract(offerType)
	if err != nil {
		return nil, err
	}
	offer, err := req.Offer.ToOffer()
	if err != nil {
		return nil, asBadRequest(err)
	}
	sig, err := req.Signature.ToSignature()
	if err != nil {
		return nil, asBadRequest(err)
	}
	return func() (interface{}, error) {
		oldContract, err := s.node.LoanContractFor(req.OldLoanID)
		if err != nil {
			return nil, err
		}
		res, err := s.node.Refinancer().Refinance(actor, refinance.Request{
			OldLoanContract: oldContract.Address(),
			OldLoanID:       req.OldLoanID,
			NewLoanContract: newContract.Address(),
			Offer:           offer,
			Signature:       sig,
		})
		if err != nil {
			return nil, err
		}
		return refinanceResponse{
			OldLoanID: req.OldLoanID,
			NewLoanID: res.NewLoanID,
			Payoff:    res.Payoff.String(),
			FlashFee:  res.FlashFee.String(),
			Deficit:   res.Deficit.String(),
			Surplus:   res.Surplus.String(),
		}, nil
	}, nil
}

func (s *server) quote(r *http.Request) (interface{}, error) {
	loanID, err := loanIDParam(r)
	if err != nil {
		return nil, err
	}
	contract, err := s.node.LoanContractFor(loanID)
	if err != nil {
		return nil, err
	}
	payoff, fee, err := s.node.Refinancer().Quote(contract.Address(), loanID)
	if err != nil {
		return nil, err
	}
	return map[string]string{"payoff": payoff.String(), "flashFee": fee.String()}, nil
}

func (s *server) supply(r *http.Request, actor ethcommon.Address) (prepared, error) {
	var req poolAmountRequest
	if err := decodeJSON(r, &req); err != nil {
		return nil, err
	}
	currency, err := wire.ParseAddress("currency", req.Currency)
	if err != nil {
		return nil, asBadRequest(err)
	}
	amount, err := wire.ParseAmount("amount", req.Amount)
	if err != nil {
		return nil, asBadRequest(err)
	}
	return func() (interface{}, error) {
		shares, err := s.node.Pool().Supply(actor, currency, amount)
		if err != nil {
			return nil, err
		}
		return map[string]string{"shares": shares.String()}, nil
	}, nil
}

func (s *server) withdraw(r *http.Request, actor ethcommon.Address) (prepared, error) {
	var req poolAmountRequest
	if err := decodeJSON(r, &req); err != nil {
		return nil, err
	}
	currency, err := wire.ParseAddress("currency", req.Currency)
	if err != nil {
		return nil, asBadRequest(err)
	}
	shares, err := wire.ParseAmount("shares", req.Shares)
	if err != nil {
		return nil, asBadRequest(err)
	}
	return func() (interface{}, error) {
		amount, err := s.node.Pool().Withdraw(actor, currency, shares)
		if err != nil {
			return nil, err
		}
		return map[string]string{"amount": amount.String()}, nil
	}, nil
}

func (s *server) poolStatus(r *http.Request) (interface{}, error) {
	currency, err := wire.ParseAddress("currency", chi.URLParam(r, "currency"))
	if err != nil {
		return nil, asBadRequest(err)
	}
	pool := s.node.Pool()
	market, err := pool.Market(currency)
	if err != nil {
		return nil, err
	}
	liquidity, err := pool.Liquidity(currency)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"currency":    currency.Hex(),
		"liquidity":   liquidity.String(),
		"totalShares": market.TotalShares.String(),
		"feesEarned":  market.FeesEarned.String(),
		"flashLoans":  market.FlashLoans,
		"flashFeeBps": pool.FlashFeeBps(),
	}, nil
}

func (s *server) poolShares(r *http.Request) (interface{}, error) {
	currency, err := wire.ParseAddress("currency", chi.URLParam(r, "currency"))
	if err != nil {
		return nil, asBadRequest(err)
	}
	holder, err := wire.ParseAddress("holder", chi.URLParam(r, "holder"))
	if err != nil {
		return nil, asBadRequest(err)
	}
	shares, err := s.node.Pool().SharesOf(currency, holder)
	if err != nil {
		return nil, err
	}
	return map[string]string{"shares": shares.String()}, nil
}
