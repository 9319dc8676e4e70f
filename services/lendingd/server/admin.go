package server

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"frendlend/core"
	"frendlend/native/lending"
	"frendlend/services/lendingd/indexer"
)

var errIndexerDisabled = errors.New("indexer disabled")

type setAdminRequest struct {
	Admin common.Address `json:"admin"`
}

type feeRateRequest struct {
	Bps uint16 `json:"bps"`
}

type feeTokenRequest struct {
	Token  common.Address `json:"token"`
	Listed bool           `json:"listed"`
}

type callbackRequest struct {
	Contract    common.Address   `json:"contract"`
	Selector    lending.Selector `json:"selector"`
	Whitelisted bool             `json:"whitelisted"`
}

type coreFeeRequest struct {
	Fee string `json:"fee"`
}

type exemptionRequest struct {
	Account common.Address `json:"account"`
	Exempt  bool           `json:"exempt"`
}

type exportRequest struct {
	Type          string  `json:"type,omitempty"`
	OfferID       *uint64 `json:"offerId,omitempty"`
	ClaimID       *uint64 `json:"claimId,omitempty"`
	AfterSequence uint64  `json:"afterSequence,omitempty"`
}

type feeTokenView struct {
	Token       common.Address `json:"token"`
	Amount      string         `json:"amount"`
	Whitelisted bool           `json:"whitelisted"`
	Blacklisted bool           `json:"blacklisted"`
}

type feesResponse struct {
	Admin            common.Address `json:"admin"`
	ClaimsAdmin      common.Address `json:"claimsAdmin"`
	ProtocolFeeBps   uint16         `json:"protocolFeeBps"`
	ProcessingFeeBps uint16         `json:"processingFeeBps"`
	CoreFee          string         `json:"coreFee"`
	Tokens           []feeTokenView `json:"tokens"`
}

type withdrawalView struct {
	Token  common.Address `json:"token"`
	Amount string         `json:"amount"`
}

func (s *Server) handleSetLendingAdmin(w http.ResponseWriter, r *http.Request, sender common.Address, body []byte) {
	var req setAdminRequest
	if err := decodeBody(body, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.execute(w, r, core.Message{From: sender, Operation: "setAdmin"}, func(m *core.Modules) (any, error) {
		return nil, m.Lending.SetAdmin(sender, req.Admin)
	})
}

func (s *Server) handleSetProtocolFee(w http.ResponseWriter, r *http.Request, sender common.Address, body []byte) {
	var req feeRateRequest
	if err := decodeBody(body, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.execute(w, r, core.Message{From: sender, Operation: "setProtocolFee"}, func(m *core.Modules) (any, error) {
		return nil, m.Lending.SetProtocolFee(sender, req.Bps)
	})
}

func (s *Server) handleSetProcessingFee(w http.ResponseWriter, r *http.Request, sender common.Address, body []byte) {
	var req feeRateRequest
	if err := decodeBody(body, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.execute(w, r, core.Message{From: sender, Operation: "setProcessingFee"}, func(m *core.Modules) (any, error) {
		return nil, m.Lending.SetProcessingFee(sender, req.Bps)
	})
}

func (s *Server) handleWithdrawFees(w http.ResponseWriter, r *http.Request, sender common.Address, _ []byte) {
	s.execute(w, r, core.Message{From: sender, Operation: "withdrawAllFees"}, func(m *core.Modules) (any, error) {
		withdrawn, err := m.Lending.WithdrawAllFees(sender)
		if err != nil {
			return nil, err
		}
		out := make([]withdrawalView, 0, len(withdrawn))
		for _, wd := range withdrawn {
			out = append(out, withdrawalView{Token: wd.Token, Amount: formatAmount(wd.Amount)})
		}
		return out, nil
	})
}

func (s *Server) handleFeeTokenWhitelist(w http.ResponseWriter, r *http.Request, sender common.Address, body []byte) {
	var req feeTokenRequest
	if err := decodeBody(body, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.execute(w, r, core.Message{From: sender, Operation: "feeTokenWhitelist"}, func(m *core.Modules) (any, error) {
		if req.Listed {
			return nil, m.Lending.AddToFeeTokenWhitelist(sender, req.Token)
		}
		return nil, m.Lending.RemoveFromFeeTokenWhitelist(sender, req.Token)
	})
}

func (s *Server) handleFeeTokenBlacklist(w http.ResponseWriter, r *http.Request, sender common.Address, body []byte) {
	var req feeTokenRequest
	if err := decodeBody(body, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.execute(w, r, core.Message{From: sender, Operation: "feeTokenBlacklist"}, func(m *core.Modules) (any, error) {
		if req.Listed {
			return nil, m.Lending.AddToFeeTokenBlacklist(sender, req.Token)
		}
		return nil, m.Lending.RemoveFromFeeTokenBlacklist(sender, req.Token)
	})
}

func (s *Server) handleCallbackWhitelist(w http.ResponseWriter, r *http.Request, sender common.Address, body []byte) {
	var req callbackRequest
	if err := decodeBody(body, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.execute(w, r, core.Message{From: sender, Operation: "callbackWhitelist"}, func(m *core.Modules) (any, error) {
		if req.Whitelisted {
			return nil, m.Lending.AddToCallbackWhitelist(sender, req.Contract, req.Selector)
		}
		return nil, m.Lending.RemoveFromCallbackWhitelist(sender, req.Contract, req.Selector)
	})
}

func (s *Server) handleSetClaimsAdmin(w http.ResponseWriter, r *http.Request, sender common.Address, body []byte) {
	var req setAdminRequest
	if err := decodeBody(body, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.execute(w, r, core.Message{From: sender, Operation: "claims.setAdmin"}, func(m *core.Modules) (any, error) {
		return nil, m.Claims.SetAdmin(sender, req.Admin)
	})
}

func (s *Server) handleSetCoreFee(w http.ResponseWriter, r *http.Request, sender common.Address, body []byte) {
	var req coreFeeRequest
	if err := decodeBody(body, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	fee, err := parseAmount("fee", req.Fee)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.execute(w, r, core.Message{From: sender, Operation: "claims.setCoreFee"}, func(m *core.Modules) (any, error) {
		return nil, m.Claims.SetCoreFee(sender, fee)
	})
}

func (s *Server) handleWithdrawCoreFees(w http.ResponseWriter, r *http.Request, sender common.Address, _ []byte) {
	s.execute(w, r, core.Message{From: sender, Operation: "claims.withdrawCoreFees"}, func(m *core.Modules) (any, error) {
		amount, err := m.Claims.WithdrawCoreFees(sender)
		if err != nil {
			return nil, err
		}
		return map[string]string{"amount": formatAmount(amount)}, nil
	})
}

func (s *Server) handleSetExemption(w http.ResponseWriter, r *http.Request, sender common.Address, body []byte) {
	var req exemptionRequest
	if err := decodeBody(body, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.execute(w, r, core.Message{From: sender, Operation: "claims.setExemption"}, func(m *core.Modules) (any, error) {
		return nil, m.Claims.SetExemption(sender, req.Account, req.Exempt)
	})
}

// handleExport writes matching indexed events to a parquet file under the
// export directory. Only the lending admin may export.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request, sender common.Address, body []byte) {
	if s.indexer == nil || s.exportDir == "" {
		s.writeError(w, r, errIndexerDisabled)
		return
	}
	var req exportRequest
	if len(body) > 0 {
		if err := decodeBody(body, &req); err != nil {
			s.writeError(w, r, err)
			return
		}
	}
	err := s.exec.View(func(m *core.Modules) error {
		admin, err := m.Lending.Admin()
		if err != nil {
			return err
		}
		if admin != sender {
			return lending.ErrNotAdmin
		}
		return nil
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := os.MkdirAll(s.exportDir, 0o755); err != nil {
		s.writeError(w, r, fmt.Errorf("create export dir: %w", err))
		return
	}
	path := filepath.Join(s.exportDir, fmt.Sprintf("events-%d-%s.parquet", time.Now().UTC().Unix(), RequestID(r.Context())))
	rows, err := s.indexer.ExportParquet(r.Context(), path, indexer.Filter{
		Type:          req.Type,
		OfferID:       req.OfferID,
		ClaimID:       req.ClaimID,
		AfterSequence: req.AfterSequence,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"requestId": RequestID(r.Context()),
		"path":      path,
		"rows":      rows,
	})
}

func (s *Server) handleFees(w http.ResponseWriter, r *http.Request) {
	s.view(w, r, func(m *core.Modules) (any, error) {
		var resp feesResponse
		var err error
		if resp.Admin, err = m.Lending.Admin(); err != nil {
			return nil, err
		}
		if resp.ClaimsAdmin, err = m.Claims.Admin(); err != nil {
			return nil, err
		}
		if resp.ProtocolFeeBps, err = m.Lending.ProtocolFeeBps(); err != nil {
			return nil, err
		}
		if resp.ProcessingFeeBps, err = m.Lending.ProcessingFeeBps(); err != nil {
			return nil, err
		}
		coreFee, err := m.Claims.CoreFee()
		if err != nil {
			return nil, err
		}
		resp.CoreFee = formatAmount(coreFee)
		tokens, err := m.Lending.ProtocolFeeTokens()
		if err != nil {
			return nil, err
		}
		resp.Tokens = make([]feeTokenView, 0, len(tokens))
		for _, tok := range tokens {
			view, err := feeToken(m, tok)
			if err != nil {
				return nil, err
			}
			resp.Tokens = append(resp.Tokens, view)
		}
		return resp, nil
	})
}

func (s *Server) handleFeeToken(w http.ResponseWriter, r *http.Request) {
	tok, err := addressParam(r, "token")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.view(w, r, func(m *core.Modules) (any, error) {
		return feeToken(m, tok)
	})
}

func feeToken(m *core.Modules, tok common.Address) (feeTokenView, error) {
	amount, err := m.Lending.ProtocolFeesByToken(tok)
	if err != nil {
		return feeTokenView{}, err
	}
	white, err := m.Lending.IsFeeTokenWhitelisted(tok)
	if err != nil {
		return feeTokenView{}, err
	}
	black, err := m.Lending.IsFeeTokenBlacklisted(tok)
	if err != nil {
		return feeTokenView{}, err
	}
	return feeTokenView{Token: tok, Amount: formatAmount(amount), Whitelisted: white, Blacklisted: black}, nil
}

func (s *Server) handleRequiredCoreFee(w http.ResponseWriter, r *http.Request) {
	account, err := addressParam(r, "account")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.view(w, r, func(m *core.Modules) (any, error) {
		fee, exempt, err := m.Lending.RequiredCoreFee(account)
		if err != nil {
			return nil, err
		}
		return map[string]any{"account": account, "fee": formatAmount(fee), "exempt": exempt}, nil
	})
}

func (s *Server) handleCallbackStatus(w http.ResponseWriter, r *http.Request) {
	contract, err := addressParam(r, "contract")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	selector, err := lending.ParseSelector(chiParam(r, "selector"))
	if err != nil {
		s.writeError(w, r, badRequest("selector: %v", err))
		return
	}
	s.view(w, r, func(m *core.Modules) (any, error) {
		ok, err := m.Lending.IsCallbackWhitelisted(contract, selector)
		if err != nil {
			return nil, err
		}
		return map[string]any{"contract": contract, "selector": selector, "whitelisted": ok}, nil
	})
}

func (s *Server) handleSupportsInterface(w http.ResponseWriter, r *http.Request) {
	id, err := lending.ParseSelector(chiParam(r, "id"))
	if err != nil {
		s.writeError(w, r, badRequest("interface id: %v", err))
		return
	}
	s.view(w, r, func(m *core.Modules) (any, error) {
		return map[string]any{"interfaceId": id, "supported": m.Lending.SupportsInterface(id)}, nil
	})
}

func (s *Server) handleIndexedEvents(w http.ResponseWriter, r *http.Request) {
	if s.indexer == nil {
		s.writeError(w, r, errIndexerDisabled)
		return
	}
	q := r.URL.Query()
	filter := indexer.Filter{Type: strings.TrimSpace(q.Get("type"))}
	var err error
	if filter.OfferID, err = optionalQueryUint(q.Get("offerId")); err != nil {
		s.writeError(w, r, badRequest("offerId: %v", err))
		return
	}
	if filter.ClaimID, err = optionalQueryUint(q.Get("claimId")); err != nil {
		s.writeError(w, r, badRequest("claimId: %v", err))
		return
	}
	if after, err := optionalQueryUint(q.Get("after")); err != nil {
		s.writeError(w, r, badRequest("after: %v", err))
		return
	} else if after != nil {
		filter.AfterSequence = *after
	}
	if limit, err := optionalQueryUint(q.Get("limit")); err != nil {
		s.writeError(w, r, badRequest("limit: %v", err))
		return
	} else if limit != nil {
		filter.Limit = int(*limit)
	}
	rows, err := s.indexer.Events(r.Context(), filter)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func (s *Server) handleIndexedLoan(w http.ResponseWriter, r *http.Request) {
	if s.indexer == nil {
		s.writeError(w, r, errIndexerDisabled)
		return
	}
	claimID, err := uintParam(r, "claimID")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	loan, err := s.indexer.Loan(r.Context(), claimID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, loan)
}

func (s *Server) handleIndexedAccountLoans(w http.ResponseWriter, r *http.Request) {
	if s.indexer == nil {
		s.writeError(w, r, errIndexerDisabled)
		return
	}
	account, err := addressParam(r, "account")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	loans, err := s.indexer.LoansByAccount(r.Context(), account.Hex())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, loans)
}

func optionalQueryUint(raw string) (*uint64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return nil, err
	}
	return &v, nil
}
