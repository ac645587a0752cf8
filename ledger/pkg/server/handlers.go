package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gagliardetto/solana-go"
	"github.com/go-chi/chi/v5"

	"github.com/malbeclabs/racevault/ledger/pkg/vault"
)

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if err := s.cfg.Store.Ping(r.Context()); err != nil {
		s.log.Warn("server: store not ready", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "not_ready", Message: "store unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.cfg.Build)
}

func pubkeyParam(r *http.Request, name string) (solana.PublicKey, error) {
	pk, err := solana.PublicKeyFromBase58(chi.URLParam(r, name))
	if err != nil {
		return solana.PublicKey{}, badRequest("invalid %s: %v", name, err)
	}
	return pk, nil
}

var errEmptyBody = fmt.Errorf("%w: request body is required", errBadRequest)

func decode(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errEmptyBody
		}
		return badRequest("invalid request body: %v", err)
	}
	return nil
}

// caller is only called behind authenticate.
func caller(r *http.Request) solana.PublicKey {
	pk, _ := Caller(r.Context())
	return pk
}

// respond writes v as JSON or the error mapped onto its status.
func (s *Server) respond(w http.ResponseWriter, r *http.Request, status int, v any, err error) {
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, status, v)
}

// Mutating routes.

func (s *Server) handleInitialize(w http.ResponseWriter, r *http.Request) {
	mint, err := pubkeyParam(r, "mint")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	cfg, err := s.cfg.Ledger.Initialize(r.Context(), vault.InitializeParams{Authority: caller(r), Mint: mint})
	s.respond(w, r, http.StatusCreated, cfg, err)
}

func (s *Server) handleClose(w http.ResponseWriter, r *http.Request) {
	mint, err := pubkeyParam(r, "mint")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.cfg.Ledger.Close(r.Context(), mint, caller(r)); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type updateConfigRequest struct {
	Paused *bool `json:"paused"`
}

func (s *Server) handleUpdateConfig(w http.ResponseWriter, r *http.Request) {
	mint, err := pubkeyParam(r, "mint")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req updateConfigRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	cfg, err := s.cfg.Ledger.UpdateConfig(r.Context(), mint, caller(r), req.Paused)
	s.respond(w, r, http.StatusOK, cfg, err)
}

type transferAuthorityRequest struct {
	NewAuthority solana.PublicKey `json:"new_authority"`
}

func (s *Server) handleTransferAuthority(w http.ResponseWriter, r *http.Request) {
	mint, err := pubkeyParam(r, "mint")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req transferAuthorityRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	cfg, err := s.cfg.Ledger.TransferAuthority(r.Context(), mint, caller(r), req.NewAuthority)
	s.respond(w, r, http.StatusOK, cfg, err)
}

type depositRequest struct {
	Amount uint64 `json:"amount"`
}

func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request) {
	mint, err := pubkeyParam(r, "mint")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req depositRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	acct, err := s.cfg.Ledger.Deposit(r.Context(), vault.DepositParams{Mint: mint, Depositor: caller(r), Amount: req.Amount})
	s.respond(w, r, http.StatusOK, acct, err)
}

func (s *Server) handleReconcile(w http.ResponseWriter, r *http.Request) {
	mint, err := pubkeyParam(r, "mint")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	result, err := s.cfg.Ledger.Reconcile(r.Context(), mint, caller(r))
	s.respond(w, r, http.StatusOK, result, err)
}

type registerPayoutRequest struct {
	EventID     string           `json:"event_id"`
	EventIDHash vault.Hash       `json:"event_id_hash"`
	Recipient   solana.PublicKey `json:"recipient"`
	Points      uint64           `json:"points"`
	Amount      uint64           `json:"amount"`
}

func (s *Server) handleRegisterPayout(w http.ResponseWriter, r *http.Request) {
	mint, err := pubkeyParam(r, "mint")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req registerPayoutRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	receipt, err := s.cfg.Ledger.RegisterPayout(r.Context(), vault.RegisterPayoutParams{
		Mint:        mint,
		Caller:      caller(r),
		EventID:     req.EventID,
		EventIDHash: req.EventIDHash,
		Recipient:   req.Recipient,
		Points:      req.Points,
		Amount:      req.Amount,
	})
	s.respond(w, r, http.StatusCreated, receipt, err)
}

type registerReferralBonusRequest struct {
	EventID  string           `json:"event_id"`
	Referrer solana.PublicKey `json:"referrer"`
	Referee  solana.PublicKey `json:"referee"`
	Amount   uint64           `json:"amount"`
}

func (s *Server) handleRegisterReferralBonus(w http.ResponseWriter, r *http.Request) {
	mint, err := pubkeyParam(r, "mint")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req registerReferralBonusRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	record, err := s.cfg.Ledger.RegisterReferralBonus(r.Context(), vault.RegisterReferralBonusParams{
		Mint:     mint,
		Caller:   caller(r),
		EventID:  req.EventID,
		Referrer: req.Referrer,
		Referee:  req.Referee,
		Amount:   req.Amount,
	})
	s.respond(w, r, http.StatusCreated, record, err)
}

type claimPayoutsRequest struct {
	// DesignatedRecipient defaults to the recipient in the path.
	DesignatedRecipient *solana.PublicKey `json:"designated_recipient,omitempty"`
}

// Claims are permissionless: the signer only authenticates the request and
// funds always go to the beneficiary named in the path.
func (s *Server) handleClaimPayouts(w http.ResponseWriter, r *http.Request) {
	mint, err := pubkeyParam(r, "mint")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	recipient, err := pubkeyParam(r, "recipient")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req claimPayoutsRequest
	if err := decode(r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		s.writeError(w, r, err)
		return
	}
	designated := recipient
	if req.DesignatedRecipient != nil {
		designated = *req.DesignatedRecipient
	}
	result, err := s.cfg.Ledger.ClaimPendingPayouts(r.Context(), vault.ClaimPayoutsParams{
		Mint:                mint,
		Caller:              caller(r),
		Recipient:           recipient,
		DesignatedRecipient: designated,
	})
	s.respond(w, r, http.StatusOK, result, err)
}

func (s *Server) handleClaimBonuses(w http.ResponseWriter, r *http.Request) {
	mint, err := pubkeyParam(r, "mint")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	referrer, err := pubkeyParam(r, "referrer")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	result, err := s.cfg.Ledger.ClaimPendingBonuses(r.Context(), vault.ClaimBonusesParams{
		Mint:     mint,
		Caller:   caller(r),
		Referrer: referrer,
	})
	s.respond(w, r, http.StatusOK, result, err)
}

// Read routes.

func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	mint, err := pubkeyParam(r, "mint")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	cfg, err := s.cfg.Ledger.GetConfig(r.Context(), mint)
	s.respond(w, r, http.StatusOK, cfg, err)
}

func (s *Server) handleGetVaultBalance(w http.ResponseWriter, r *http.Request) {
	mint, err := pubkeyParam(r, "mint")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	acct, err := s.cfg.Ledger.GetVaultBalance(r.Context(), mint)
	s.respond(w, r, http.StatusOK, acct, err)
}

func (s *Server) handleGetGlobalPayoutStats(w http.ResponseWriter, r *http.Request) {
	mint, err := pubkeyParam(r, "mint")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	stats, err := s.cfg.Ledger.GetGlobalPayoutStats(r.Context(), mint)
	s.respond(w, r, http.StatusOK, stats, err)
}

func (s *Server) handleGetGlobalReferralStats(w http.ResponseWriter, r *http.Request) {
	mint, err := pubkeyParam(r, "mint")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	stats, err := s.cfg.Ledger.GetGlobalReferralStats(r.Context(), mint)
	s.respond(w, r, http.StatusOK, stats, err)
}

func (s *Server) handleGetPendingPayouts(w http.ResponseWriter, r *http.Request) {
	mint, err := pubkeyParam(r, "mint")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	recipient, err := pubkeyParam(r, "recipient")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	reg, err := s.cfg.Ledger.GetPendingPayouts(r.Context(), mint, recipient)
	s.respond(w, r, http.StatusOK, reg, err)
}

func (s *Server) handleGetPayoutReceipt(w http.ResponseWriter, r *http.Request) {
	mint, err := pubkeyParam(r, "mint")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	recipient, err := pubkeyParam(r, "recipient")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	hash, err := vault.ParseHash(chi.URLParam(r, "hash"))
	if err != nil {
		s.writeError(w, r, badRequest("invalid hash: %v", err))
		return
	}
	receipt, err := s.cfg.Ledger.GetPayoutReceipt(r.Context(), mint, hash, recipient)
	s.respond(w, r, http.StatusOK, receipt, err)
}

func (s *Server) handleGetPendingBonuses(w http.ResponseWriter, r *http.Request) {
	mint, err := pubkeyParam(r, "mint")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	referrer, err := pubkeyParam(r, "referrer")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	reg, err := s.cfg.Ledger.GetPendingBonuses(r.Context(), mint, referrer)
	s.respond(w, r, http.StatusOK, reg, err)
}

func (s *Server) handleGetAllBonuses(w http.ResponseWriter, r *http.Request) {
	mint, err := pubkeyParam(r, "mint")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	referrer, err := pubkeyParam(r, "referrer")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	history, err := s.cfg.Ledger.GetAllBonuses(r.Context(), mint, referrer)
	s.respond(w, r, http.StatusOK, history, err)
}

func (s *Server) handleGetReferralBonus(w http.ResponseWriter, r *http.Request) {
	mint, err := pubkeyParam(r, "mint")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	referrer, err := pubkeyParam(r, "referrer")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	referee, err := pubkeyParam(r, "referee")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	record, err := s.cfg.Ledger.GetReferralBonus(r.Context(), mint, chi.URLParam(r, "eventID"), referrer, referee)
	s.respond(w, r, http.StatusOK, record, err)
}

func (s *Server) handleGetTokenAccount(w http.ResponseWriter, r *http.Request) {
	mint, err := pubkeyParam(r, "mint")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	owner, err := pubkeyParam(r, "owner")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	acct, err := s.cfg.Ledger.GetTokenAccount(r.Context(), mint, owner)
	s.respond(w, r, http.StatusOK, acct, err)
}
