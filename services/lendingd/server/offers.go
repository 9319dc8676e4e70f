package server

import (
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"

	"frendlend/core"
	"frendlend/crypto"
	"frendlend/native/lending"
)

// offerParams is the wire form of lending.LoanRequestParams. Amounts travel
// as decimal strings.
type offerParams struct {
	TermLength             int64            `json:"termLength"`
	InterestRateBps        uint16           `json:"interestRateBps"`
	NumberOfPeriodsPerYear uint16           `json:"numberOfPeriodsPerYear"`
	LoanAmount             string           `json:"loanAmount"`
	Creditor               common.Address   `json:"creditor"`
	Debtor                 common.Address   `json:"debtor"`
	Description            string           `json:"description"`
	Token                  common.Address   `json:"token"`
	ImpairmentGracePeriod  int64            `json:"impairmentGracePeriod"`
	ExpiresAt              int64            `json:"expiresAt"`
	CallbackContract       common.Address   `json:"callbackContract"`
	CallbackSelector       lending.Selector `json:"callbackSelector"`
}

func (p offerParams) toParams() (lending.LoanRequestParams, error) {
	amount, err := parseAmount("loanAmount", p.LoanAmount)
	if err != nil {
		return lending.LoanRequestParams{}, err
	}
	return lending.LoanRequestParams{
		TermLength: p.TermLength,
		Interest: lending.InterestConfig{
			InterestRateBps:        p.InterestRateBps,
			NumberOfPeriodsPerYear: p.NumberOfPeriodsPerYear,
		},
		LoanAmount:            amount,
		Creditor:              p.Creditor,
		Debtor:                p.Debtor,
		Description:           p.Description,
		Token:                 p.Token,
		ImpairmentGracePeriod: p.ImpairmentGracePeriod,
		ExpiresAt:             p.ExpiresAt,
		CallbackContract:      p.CallbackContract,
		CallbackSelector:      p.CallbackSelector,
	}, nil
}

type offerRequest struct {
	Params   offerParams                `json:"params"`
	Metadata *lending.LoanOfferMetadata `json:"metadata,omitempty"`
}

type offerResponse struct {
	OfferID  uint64                     `json:"offerId"`
	Offer    *lending.LoanOffer         `json:"offer,omitempty"`
	Metadata *lending.LoanOfferMetadata `json:"metadata,omitempty"`
}

type acceptRequest struct {
	Value    string          `json:"value"`
	Receiver *common.Address `json:"receiver,omitempty"`
}

type acceptResponse struct {
	OfferID uint64 `json:"offerId"`
	ClaimID uint64 `json:"claimId"`
}

type batchAcceptRequest struct {
	OfferIDs []uint64 `json:"offerIds"`
	Value    string   `json:"value"`
}

type batchAcceptResponse struct {
	ClaimIDs []uint64 `json:"claimIds"`
}

type batchCall struct {
	Method   string                     `json:"method"`
	Params   *offerParams               `json:"params,omitempty"`
	Metadata *lending.LoanOfferMetadata `json:"metadata,omitempty"`
	OfferID  uint64                     `json:"offerId,omitempty"`
	ClaimID  uint64                     `json:"claimId,omitempty"`
	Receiver common.Address             `json:"receiver,omitempty"`
	Amount   string                     `json:"amount,omitempty"`
	Value    string                     `json:"value,omitempty"`
}

type batchRequest struct {
	Calls        []batchCall `json:"calls"`
	RevertOnFail bool        `json:"revertOnFail"`
	Value        string      `json:"value"`
}

type batchResponse struct {
	Results []lending.CallResult `json:"results"`
}

func (c batchCall) toCall() (lending.Call, error) {
	call := lending.Call{
		Method:   c.Method,
		Metadata: c.Metadata,
		OfferID:  c.OfferID,
		ClaimID:  c.ClaimID,
		Receiver: c.Receiver,
	}
	if c.Params != nil {
		params, err := c.Params.toParams()
		if err != nil {
			return lending.Call{}, err
		}
		call.Params = &params
	}
	var err error
	if call.Amount, err = parseAmount("amount", c.Amount); err != nil {
		return lending.Call{}, err
	}
	if call.Value, err = parseAmount("value", c.Value); err != nil {
		return lending.Call{}, err
	}
	return call, nil
}

func (s *Server) handleOfferLoan(w http.ResponseWriter, r *http.Request, sender common.Address, body []byte) {
	var req offerRequest
	if err := decodeBody(body, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	params, err := req.Params.toParams()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	op := lending.MethodOfferLoan
	if req.Metadata != nil {
		op = lending.MethodOfferLoanWithMetadata
	}
	s.execute(w, r, core.Message{From: sender, Operation: op}, func(m *core.Modules) (any, error) {
		var id uint64
		var err error
		if req.Metadata != nil {
			id, err = m.Lending.OfferLoanWithMetadata(sender, params, *req.Metadata)
		} else {
			id, err = m.Lending.OfferLoan(sender, params)
		}
		if err != nil {
			return nil, err
		}
		return offerResponse{OfferID: id}, nil
	})
}

func (s *Server) handleRejectOffer(w http.ResponseWriter, r *http.Request, sender common.Address, _ []byte) {
	id, err := uintParam(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.execute(w, r, core.Message{From: sender, Operation: lending.MethodRejectLoanOffer}, func(m *core.Modules) (any, error) {
		if err := m.Lending.RejectLoanOffer(sender, id); err != nil {
			return nil, err
		}
		return offerResponse{OfferID: id}, nil
	})
}

func (s *Server) handleAcceptOffer(w http.ResponseWriter, r *http.Request, sender common.Address, body []byte) {
	id, err := uintParam(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req acceptRequest
	if len(body) > 0 {
		if err := decodeBody(body, &req); err != nil {
			s.writeError(w, r, err)
			return
		}
	}
	value, err := parseAmount("value", req.Value)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	op := lending.MethodAcceptLoan
	if req.Receiver != nil {
		op = lending.MethodAcceptLoanWithReceiver
	}
	msg := core.Message{From: sender, To: lending.ModuleAddress(), Value: value, Operation: op}
	s.execute(w, r, msg, func(m *core.Modules) (any, error) {
		var claimID uint64
		var err error
		if req.Receiver != nil {
			claimID, err = m.Lending.AcceptLoanWithReceiver(sender, value, id, *req.Receiver)
		} else {
			claimID, err = m.Lending.AcceptLoan(sender, value, id)
		}
		if err != nil {
			return nil, err
		}
		return acceptResponse{OfferID: id, ClaimID: claimID}, nil
	})
}

func (s *Server) handleBatchAccept(w http.ResponseWriter, r *http.Request, sender common.Address, body []byte) {
	var req batchAcceptRequest
	if err := decodeBody(body, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if len(req.OfferIDs) == 0 {
		s.writeError(w, r, badRequest("offerIds required"))
		return
	}
	value, err := parseAmount("value", req.Value)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	msg := core.Message{From: sender, To: lending.ModuleAddress(), Value: value, Operation: "batchAcceptLoans"}
	s.execute(w, r, msg, func(m *core.Modules) (any, error) {
		ids, err := m.Lending.BatchAcceptLoans(sender, value, req.OfferIDs)
		if err != nil {
			return nil, err
		}
		return batchAcceptResponse{ClaimIDs: ids}, nil
	})
}

func (s *Server) handleBatch(w http.ResponseWriter, r *http.Request, sender common.Address, body []byte) {
	var req batchRequest
	if err := decodeBody(body, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	calls := make([]lending.Call, 0, len(req.Calls))
	for i, c := range req.Calls {
		call, err := c.toCall()
		if err != nil {
			s.writeError(w, r, badRequest("calls[%d]: %v", i, err))
			return
		}
		calls = append(calls, call)
	}
	value, err := parseAmount("value", req.Value)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	msg := core.Message{From: sender, To: lending.ModuleAddress(), Value: value, Operation: "batch"}
	s.execute(w, r, msg, func(m *core.Modules) (any, error) {
		results, err := m.Lending.Batch(sender, value, calls, req.RevertOnFail)
		if err != nil {
			return nil, err
		}
		return batchResponse{Results: results}, nil
	})
}

func (s *Server) handleOfferCount(w http.ResponseWriter, r *http.Request) {
	s.view(w, r, func(m *core.Modules) (any, error) {
		count, err := m.Lending.LoanOfferCount()
		if err != nil {
			return nil, err
		}
		return map[string]uint64{"count": count}, nil
	})
}

func (s *Server) handleGetOffer(w http.ResponseWriter, r *http.Request) {
	id, err := uintParam(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.view(w, r, func(m *core.Modules) (any, error) {
		offer, err := m.Lending.GetLoanOffer(id)
		if err != nil {
			return nil, err
		}
		meta, err := m.Lending.GetLoanOfferMetadata(id)
		if err != nil {
			return nil, err
		}
		return offerResponse{OfferID: id, Offer: offer, Metadata: meta}, nil
	})
}

func uintParam(r *http.Request, name string) (uint64, error) {
	v, err := strconv.ParseUint(chi.URLParam(r, name), 10, 64)
	if err != nil {
		return 0, pathError(name, err)
	}
	return v, nil
}

func addressParam(r *http.Request, name string) (common.Address, error) {
	addr, err := crypto.ParseAddress(chi.URLParam(r, name))
	if err != nil {
		return common.Address{}, pathError(name, err)
	}
	return addr, nil
}
