package routes

import (
	"math/big"
	"net/http"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"

	"nftlend/gateway/wire"
	"nftlend/native/coordinator"
	"nftlend/native/loans"
	"nftlend/native/signing"
)

type acceptOfferRequest struct {
	OfferType    string         `json:"offerType"`
	Offer        wire.Offer     `json:"offer"`
	Signature    wire.Signature `json:"signature"`
	CollateralID string         `json:"collateralId,omitempty"`
}

type renegotiateRequest struct {
	NewDuration     uint64         `json:"newDuration"`
	NewMaxRepayment string         `json:"newMaxRepayment"`
	Fee             string         `json:"fee,omitempty"`
	NewProRata      bool           `json:"newProRata"`
	Signature       wire.Signature `json:"signature"`
}

type cancelCommitmentRequest struct {
	OfferType string `json:"offerType"`
	Nonce     string `json:"nonce"`
}

type loanIDResponse struct {
	LoanID uint64 `json:"loanId"`
}

type receiptResponse struct {
	LoanID    uint64 `json:"loanId"`
	ReceiptID uint64 `json:"receiptId"`
}

type contractView struct {
	OfferType string `json:"offerType"`
	Address   string `json:"address"`
	ChainID   string `json:"chainId"`
}

func (s *server) mountLoans(r chi.Router) {
	r.Post("/offers/accept", s.mutate("loans.accept", s.acceptOffer))
	r.Post("/loans/{loanID}/payback", s.mutate("loans.payback", s.loanAction(func(c *loans.Engine, actor ethcommon.Address, id uint64) error {
		return c.PayBackLoan(actor, id)
	})))
	r.Post("/loans/{loanID}/liquidate", s.mutate("loans.liquidate", s.loanAction(func(c *loans.Engine, actor ethcommon.Address, id uint64) error {
		return c.LiquidateOverdueLoan(actor, id)
	})))
	r.Post("/loans/{loanID}/renegotiate", s.mutate("loans.renegotiate", s.renegotiate))
	r.Post("/loans/{loanID}/promissory-note", s.mutate("loans.mint_note", s.mintReceipt((*loans.Engine).MintPromissoryNote)))
	r.Post("/loans/{loanID}/obligation-receipt", s.mutate("loans.mint_receipt", s.mintReceipt((*loans.Engine).MintObligationReceipt)))
	r.Post("/commitments/cancel", s.mutate("loans.cancel", s.cancelCommitment))
}

func (s *server) mountLoanQueries(r chi.Router) {
	r.Get("/contracts", s.query("contracts", s.listContracts))
	r.Get("/contracts/{offerType}/nonces/{user}/{nonce}", s.query("nonce", s.nonceStatus))
	r.Get("/loans/{loanID}", s.query("loan", s.getLoan))
	r.Get("/loans/{loanID}/events", s.loanEvents)
	r.Get("/events", s.recentEvents)
}

func (s *server) acceptOffer(r *http.Request, actor ethcommon.Address) (prepared, error) {
	var req acceptOfferRequest
	if err := decodeJSON(r, &req); err != nil {
		return nil, err
	}
	offerType, err := signing.ParseOfferType(req.OfferType)
	if err != nil {
		return nil, asBadRequest(err)
	}
	contract, err := s.node.LoanContract(offerType)
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
	var collateralID *big.Int
	if req.CollateralID != "" {
		if collateralID, err = wire.ParseAmount("collateralId", req.CollateralID); err != nil {
			return nil, asBadRequest(err)
		}
	}
	return func() (interface{}, error) {
		loanID, err := contract.AcceptOffer(actor, offer, sig, collateralID)
		if err != nil {
			return nil, err
		}
		return loanIDResponse{LoanID: loanID}, nil
	}, nil
}

// loanAction resolves the loan's originating contract and applies fn.
func (s *server) loanAction(fn func(c *loans.Engine, actor ethcommon.Address, loanID uint64) error) func(*http.Request, ethcommon.Address) (prepared, error) {
	return func(r *http.Request, actor ethcommon.Address) (prepared, error) {
		loanID, err := loanIDParam(r)
		if err != nil {
			return nil, err
		}
		return func() (interface{}, error) {
			contract, err := s.node.LoanContractFor(loanID)
			if err != nil {
				return nil, err
			}
			if err := fn(contract, actor, loanID); err != nil {
				return nil, err
			}
			return loanIDResponse{LoanID: loanID}, nil
		}, nil
	}
}

func (s *server) renegotiate(r *http.Request, actor ethcommon.Address) (prepared, error) {
	loanID, err := loanIDParam(r)
	if err != nil {
		return nil, err
	}
	var req renegotiateRequest
	if err := decodeJSON(r, &req); err != nil {
		return nil, err
	}
	terms, err := wire.Renegotiation{
		LoanID:          loanID,
		NewDuration:     req.NewDuration,
		NewMaxRepayment: req.NewMaxRepayment,
		Fee:             req.Fee,
		NewProRata:      req.NewProRata,
	}.ToRenegotiation()
	if err != nil {
		return nil, asBadRequest(err)
	}
	sig, err := req.Signature.ToSignature()
	if err != nil {
		return nil, asBadRequest(err)
	}
	return func() (interface{}, error) {
		contract, err := s.node.LoanContractFor(loanID)
		if err != nil {
			return nil, err
		}
		err = contract.RenegotiateLoan(actor, loanID, terms.NewDuration, terms.NewMaxRepayment, terms.Fee, terms.NewProRata, sig)
		if err != nil {
			return nil, err
		}
		return loanIDResponse{LoanID: loanID}, nil
	}, nil
}

func (s *server) mintReceipt(mint func(*loans.Engine, ethcommon.Address, uint64) (uint64, error)) func(*http.Request, ethcommon.Address) (prepared, error) {
	return func(r *http.Request, actor ethcommon.Address) (prepared, error) {
		loanID, err := loanIDParam(r)
		if err != nil {
			return nil, err
		}
		return func() (interface{}, error) {
			contract, err := s.node.LoanContractFor(loanID)
			if err != nil {
				return nil, err
			}
			receiptID, err := mint(contract, actor, loanID)
			if err != nil {
				return nil, err
			}
			return receiptResponse{LoanID: loanID, ReceiptID: receiptID}, nil
		}, nil
	}
}

func (s *server) cancelCommitment(r *http.Request, actor ethcommon.Address) (prepared, error) {
	var req cancelCommitmentRequest
	if err := decodeJSON(r, &req); err != nil {
		return nil, err
	}
	offerType, err := signing.ParseOfferType(req.OfferType)
	if err != nil {
		return nil, asBadRequest(err)
	}
	contract, err := s.node.LoanContract(offerType)
	if err != nil {
		return nil, err
	}
	nonce, err := wire.ParseAmount("nonce", req.Nonce)
	if err != nil {
		return nil, asBadRequest(err)
	}
	return func() (interface{}, error) {
		if err := contract.CancelLoanCommitment(actor, nonce); err != nil {
			return nil, err
		}
		return map[string]string{"nonce": nonce.String()}, nil
	}, nil
}

func (s *server) listContracts(*http.Request) (interface{}, error) {
	out := make([]contractView, 0, len(signing.OfferTypes))
	for _, offerType := range signing.OfferTypes {
		contract, err := s.node.LoanContract(offerType)
		if err != nil {
			return nil, err
		}
		domain := contract.Verifier().Domain()
		out = append(out, contractView{
			OfferType: string(offerType),
			Address:   domain.Contract.Hex(),
			ChainID:   domain.ChainID.String(),
		})
	}
	return map[string]interface{}{"contracts": out}, nil
}

func (s *server) nonceStatus(r *http.Request) (interface{}, error) {
	offerType, err := signing.ParseOfferType(chi.URLParam(r, "offerType"))
	if err != nil {
		return nil, asBadRequest(err)
	}
	user, err := wire.ParseAddress("user", chi.URLParam(r, "user"))
	if err != nil {
		return nil, asBadRequest(err)
	}
	nonce, err := wire.ParseAmount("nonce", chi.URLParam(r, "nonce"))
	if err != nil {
		return nil, asBadRequest(err)
	}
	contract, err := s.node.LoanContract(offerType)
	if err != nil {
		return nil, err
	}
	used, err := contract.NonceUsed(user, nonce)
	if err != nil {
		return nil, err
	}
	drawn, err := contract.Drawn(user, nonce)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"used": used, "drawn": drawn.String()}, nil
}

func (s *server) getLoan(r *http.Request) (interface{}, error) {
	loanID, err := loanIDParam(r)
	if err != nil {
		return nil, err
	}
	data, err := s.node.Coordinator().GetLoanData(loanID)
	if err != nil {
		return nil, err
	}
	view := wire.FromLoanData(loanID, data)
	contract, err := s.node.LoanContractAt(data.LoanContract)
	if err != nil {
		return nil, err
	}
	terms, err := contract.LoanTerms(loanID)
	if err != nil {
		return nil, err
	}
	view.Terms = wire.FromTerms(terms)
	if data.Status != coordinator.StatusNew {
		return view, nil
	}
	lender, err := contract.CurrentLender(loanID)
	if err != nil {
		return nil, err
	}
	borrower, err := contract.CurrentBorrower(loanID)
	if err != nil {
		return nil, err
	}
	payoff, err := contract.PayoffAmount(loanID)
	if err != nil {
		return nil, err
	}
	view.CurrentLender = lender.Hex()
	view.CurrentBorrower = borrower.Hex()
	view.Payoff = payoff.String()
	return view, nil
}
