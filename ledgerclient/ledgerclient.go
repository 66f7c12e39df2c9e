// Package ledgerclient is the thin contract this process uses to move
// funds on the external T/nT/R ledgers. One Ledger implementation is
// constructed per unit; all three share a single JSON-over-HTTP transport.
package ledgerclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"liquidneuron/core"
)

// Ledger is the subset of an ICRC-1/ICRC-2-style ledger canister this
// process depends on.
type Ledger interface {
	// Transfer moves amount from the ledger's own minting/treasury
	// subaccount (from) to to, returning the resulting block index.
	Transfer(ctx context.Context, from *[32]byte, to core.Account, amount uint64, memo *uint64) (uint64, error)
	// TransferFrom pulls amount out of the caller's account into to,
	// using a pre-existing ICRC-2 allowance.
	TransferFrom(ctx context.Context, caller core.Account, to core.Account, amount uint64, memo *uint64) (uint64, error)
	// BalanceOf reports the balance of account.
	BalanceOf(ctx context.Context, account core.Account) (uint64, error)
}

// HTTPLedger implements Ledger over a JSON-RPC-style HTTP endpoint,
// with one request/response envelope shared across all three ledgers.
type HTTPLedger struct {
	BaseURL *url.URL
	Client  *http.Client
}

// New returns an HTTPLedger pointed at baseURL, with a bounded default
// timeout so a stalled ledger canister never blocks the scheduler
// indefinitely.
func New(baseURL string) (*HTTPLedger, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("ledgerclient: parse base url: %w", err)
	}
	return &HTTPLedger{BaseURL: u, Client: &http.Client{Timeout: 15 * time.Second}}, nil
}

type transferRequest struct {
	From   *[32]byte `json:"from_subaccount,omitempty"`
	To     core.Account `json:"to"`
	Amount uint64    `json:"amount"`
	Memo   *uint64   `json:"memo,omitempty"`
}

type transferResponse struct {
	BlockIndex uint64 `json:"block_index"`
	Error      string `json:"error,omitempty"`
}

func (h *HTTPLedger) Transfer(ctx context.Context, from *[32]byte, to core.Account, amount uint64, memo *uint64) (uint64, error) {
	var tr transferResponse
	if err := h.postInto(ctx, "/transfer", transferRequest{From: from, To: to, Amount: amount, Memo: memo}, &tr); err != nil {
		return 0, err
	}
	if tr.Error != "" {
		return 0, fmt.Errorf("ledgerclient: transfer: %s", tr.Error)
	}
	return tr.BlockIndex, nil
}

func (h *HTTPLedger) TransferFrom(ctx context.Context, caller core.Account, to core.Account, amount uint64, memo *uint64) (uint64, error) {
	body := struct {
		Caller core.Account `json:"caller"`
		To     core.Account `json:"to"`
		Amount uint64       `json:"amount"`
		Memo   *uint64      `json:"memo,omitempty"`
	}{Caller: caller, To: to, Amount: amount, Memo: memo}
	var tr transferResponse
	if err := h.postInto(ctx, "/transfer_from", body, &tr); err != nil {
		return 0, err
	}
	if tr.Error != "" {
		return 0, fmt.Errorf("ledgerclient: transfer_from: %s", tr.Error)
	}
	return tr.BlockIndex, nil
}

func (h *HTTPLedger) BalanceOf(ctx context.Context, account core.Account) (uint64, error) {
	var br struct {
		Balance uint64 `json:"balance"`
		Error   string `json:"error,omitempty"`
	}
	if err := h.postInto(ctx, "/balance_of", struct {
		Account core.Account `json:"account"`
	}{Account: account}, &br); err != nil {
		return 0, err
	}
	if br.Error != "" {
		return 0, fmt.Errorf("ledgerclient: balance_of: %s", br.Error)
	}
	return br.Balance, nil
}

func (h *HTTPLedger) postInto(ctx context.Context, path string, body any, out any) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("ledgerclient: encode request: %w", err)
	}
	u := *h.BaseURL
	u.Path = u.Path + path
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("ledgerclient: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := h.Client.Do(req)
	if err != nil {
		return fmt.Errorf("ledgerclient: %s: %w", path, err)
	}
	defer resp.Body.Close()
	raw, err = io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("ledgerclient: %s: read response: %w", path, err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ledgerclient: %s: unexpected status %d: %s", path, resp.StatusCode, raw)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("ledgerclient: %s: decode response: %w", path, err)
	}
	return nil
}
