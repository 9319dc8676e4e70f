package server

import (
	"encoding/hex"
	"math/big"
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"frendlend/core"
	"frendlend/native/claims"
	"frendlend/native/lending"
)

type payRequest struct {
	Amount string `json:"amount"`
}

type amountDueResponse struct {
	ClaimID   uint64 `json:"claimId"`
	Principal string `json:"principal"`
	Interest  string `json:"interest"`
	Total     string `json:"total"`
}

// claimView is the JSON rendering of a claims.Claim.
type claimView struct {
	ID                    uint64         `json:"id"`
	Creditor              common.Address `json:"creditor"`
	Debtor                common.Address `json:"debtor"`
	Token                 common.Address `json:"token"`
	Amount                string         `json:"amount"`
	PaidAmount            string         `json:"paidAmount"`
	Outstanding           string         `json:"outstanding"`
	Description           string         `json:"description"`
	DueBy                 int64          `json:"dueBy"`
	ImpairmentGracePeriod int64          `json:"impairmentGracePeriod"`
	Binding               string         `json:"binding"`
	Status                string         `json:"status"`
	Controller            common.Address `json:"controller"`
	TokenURI              string         `json:"tokenURI,omitempty"`
	AttachmentURI         string         `json:"attachmentURI,omitempty"`
	CreatedAt             int64          `json:"createdAt"`
}

func newClaimView(c *claims.Claim) claimView {
	return claimView{
		ID:                    c.ID,
		Creditor:              c.Creditor,
		Debtor:                c.Debtor,
		Token:                 c.Token,
		Amount:                formatAmount(c.Amount),
		PaidAmount:            formatAmount(c.PaidAmount),
		Outstanding:           formatAmount(c.Outstanding()),
		Description:           c.Description,
		DueBy:                 c.DueBy,
		ImpairmentGracePeriod: c.ImpairmentGracePeriod,
		Binding:               c.Binding.String(),
		Status:                c.Status.String(),
		Controller:            c.Controller,
		TokenURI:              c.TokenURI,
		AttachmentURI:         c.AttachmentURI,
		CreatedAt:             c.CreatedAt,
	}
}

type approveTokenRequest struct {
	Spender common.Address `json:"spender"`
	Amount  string         `json:"amount"`
}

type approveClaimsRequest struct {
	Operator common.Address `json:"operator"`
	Count    uint64         `json:"count"`
}

type permitRequest struct {
	Owner     common.Address `json:"owner"`
	Operator  common.Address `json:"operator"`
	Count     uint64         `json:"count"`
	Deadline  int64          `json:"deadline"`
	Signature string         `json:"signature"`
}

type claimApprovalResponse struct {
	Owner       common.Address `json:"owner"`
	Operator    common.Address `json:"operator"`
	Count       uint64         `json:"count"`
	PermitNonce uint64         `json:"permitNonce"`
}

type balanceResponse struct {
	Token   common.Address  `json:"token"`
	Owner   common.Address  `json:"owner"`
	Spender *common.Address `json:"spender,omitempty"`
	Amount  string          `json:"amount"`
}

func (s *Server) handlePayLoan(w http.ResponseWriter, r *http.Request, sender common.Address, body []byte) {
	claimID, err := uintParam(r, "claimID")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req payRequest
	if err := decodeBody(body, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.execute(w, r, core.Message{From: sender, Operation: lending.MethodPayLoan}, func(m *core.Modules) (any, error) {
		return m.Lending.PayLoan(sender, claimID, amount)
	})
}

func (s *Server) handleImpairLoan(w http.ResponseWriter, r *http.Request, sender common.Address, _ []byte) {
	s.loanTransition(w, r, sender, lending.MethodImpairLoan, func(m *core.Modules, id uint64) error {
		return m.Lending.ImpairLoan(sender, id)
	})
}

func (s *Server) handleMarkPaid(w http.ResponseWriter, r *http.Request, sender common.Address, _ []byte) {
	s.loanTransition(w, r, sender, lending.MethodMarkLoanAsPaid, func(m *core.Modules, id uint64) error {
		return m.Lending.MarkLoanAsPaid(sender, id)
	})
}

func (s *Server) loanTransition(w http.ResponseWriter, r *http.Request, sender common.Address, op string, fn func(*core.Modules, uint64) error) {
	claimID, err := uintParam(r, "claimID")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.execute(w, r, core.Message{From: sender, Operation: op}, func(m *core.Modules) (any, error) {
		if err := fn(m, claimID); err != nil {
			return nil, err
		}
		return m.Lending.GetLoan(claimID)
	})
}

func (s *Server) handleApproveToken(w http.ResponseWriter, r *http.Request, sender common.Address, body []byte) {
	tok, err := addressParam(r, "token")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req approveTokenRequest
	if err := decodeBody(body, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.execute(w, r, core.Message{From: sender, Operation: "token.approve"}, func(m *core.Modules) (any, error) {
		if err := m.Tokens.Approve(tok, sender, req.Spender, amount); err != nil {
			return nil, err
		}
		spender := req.Spender
		return balanceResponse{Token: tok, Owner: sender, Spender: &spender, Amount: formatAmount(amount)}, nil
	})
}

func (s *Server) handleApproveClaims(w http.ResponseWriter, r *http.Request, sender common.Address, body []byte) {
	var req approveClaimsRequest
	if err := decodeBody(body, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.execute(w, r, core.Message{From: sender, Operation: "claims.approveCreateClaim"}, func(m *core.Modules) (any, error) {
		if err := m.Claims.ApproveCreateClaim(sender, req.Operator, req.Count); err != nil {
			return nil, err
		}
		return claimApprovalResponse{Owner: sender, Operator: req.Operator, Count: req.Count}, nil
	})
}

func (s *Server) handlePermit(w http.ResponseWriter, r *http.Request, sender common.Address, body []byte) {
	var req permitRequest
	if err := decodeBody(body, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	sig, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(req.Signature), "0x"))
	if err != nil {
		s.writeError(w, r, badRequest("signature: %v", err))
		return
	}
	s.execute(w, r, core.Message{From: sender, Operation: "claims.permit"}, func(m *core.Modules) (any, error) {
		if err := m.Claims.Permit(req.Owner, req.Operator, req.Count, req.Deadline, sig); err != nil {
			return nil, err
		}
		nonce, err := m.Claims.PermitNonce(req.Owner)
		if err != nil {
			return nil, err
		}
		return claimApprovalResponse{Owner: req.Owner, Operator: req.Operator, Count: req.Count, PermitNonce: nonce}, nil
	})
}

func (s *Server) handleGetLoan(w http.ResponseWriter, r *http.Request) {
	claimID, err := uintParam(r, "claimID")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.view(w, r, func(m *core.Modules) (any, error) {
		return m.Lending.GetLoan(claimID)
	})
}

func (s *Server) handleAmountDue(w http.ResponseWriter, r *http.Request) {
	claimID, err := uintParam(r, "claimID")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.view(w, r, func(m *core.Modules) (any, error) {
		principal, interest, err := m.Lending.GetTotalAmountDue(claimID)
		if err != nil {
			return nil, err
		}
		return amountDueResponse{
			ClaimID:   claimID,
			Principal: formatAmount(principal),
			Interest:  formatAmount(interest),
			Total:     formatAmount(new(big.Int).Add(principal, interest)),
		}, nil
	})
}

func (s *Server) handleGetClaim(w http.ResponseWriter, r *http.Request) {
	id, err := uintParam(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.view(w, r, func(m *core.Modules) (any, error) {
		c, err := m.Claims.GetClaim(id)
		if err != nil {
			return nil, err
		}
		return newClaimView(c), nil
	})
}

func (s *Server) handleClaimApproval(w http.ResponseWriter, r *http.Request) {
	owner, err := addressParam(r, "owner")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	operator, err := addressParam(r, "operator")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.view(w, r, func(m *core.Modules) (any, error) {
		count, err := m.Claims.CreateApproval(owner, operator)
		if err != nil {
			return nil, err
		}
		nonce, err := m.Claims.PermitNonce(owner)
		if err != nil {
			return nil, err
		}
		return claimApprovalResponse{Owner: owner, Operator: operator, Count: count, PermitNonce: nonce}, nil
	})
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	tok, err := addressParam(r, "token")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	owner, err := addressParam(r, "owner")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.view(w, r, func(m *core.Modules) (any, error) {
		bal, err := m.Tokens.BalanceOf(tok, owner)
		if err != nil {
			return nil, err
		}
		return balanceResponse{Token: tok, Owner: owner, Amount: formatAmount(bal)}, nil
	})
}

func (s *Server) handleAllowance(w http.ResponseWriter, r *http.Request) {
	tok, err := addressParam(r, "token")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	owner, err := addressParam(r, "owner")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	spender, err := addressParam(r, "spender")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.view(w, r, func(m *core.Modules) (any, error) {
		amt, err := m.Tokens.Allowance(tok, owner, spender)
		if err != nil {
			return nil, err
		}
		return balanceResponse{Token: tok, Owner: owner, Spender: &spender, Amount: formatAmount(amt)}, nil
	})
}
