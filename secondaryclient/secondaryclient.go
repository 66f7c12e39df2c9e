// Package secondaryclient is the contract this process uses to mirror
// proposals into, and read neuron stake from, the secondary DAO that the
// governance-share treasury and secondary distribution feed into.
package secondaryclient

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

// Neuron is a secondary-DAO neuron's stake-weighted identity, as read for
// secondary distribution's stake-weighted payout. StakeE8s is the cached
// stake net of fees plus maturity and staked maturity, as the secondary
// DAO reports it.
type Neuron struct {
	NeuronId core.NeuronId
	Owner    string
	StakeE8s uint64
}

// Proposal mirrors the shape governanceclient.Proposal has on the primary
// side, once submitted to the secondary DAO.
type Proposal struct {
	ProposalId core.ProposalId
	Title      string
	Summary    string
}

// SecondaryDAO is the external secondary-DAO canister surface this process
// depends on. ListNeurons pages: it returns up to limit neurons with ids
// strictly after startPageAt, in id order, so callers resume with the last
// id of the previous page as the next cursor.
type SecondaryDAO interface {
	ListNeurons(ctx context.Context, startPageAt core.NeuronId, limit int) ([]Neuron, error)
	GetProposal(ctx context.Context, id core.ProposalId) (Proposal, error)
	SubmitProposal(ctx context.Context, p Proposal) (core.ProposalId, error)
}

// HTTPSecondaryDAO implements SecondaryDAO over a JSON HTTP endpoint.
type HTTPSecondaryDAO struct {
	BaseURL *url.URL
	Client  *http.Client
}

func New(baseURL string) (*HTTPSecondaryDAO, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("secondaryclient: parse base url: %w", err)
	}
	return &HTTPSecondaryDAO{BaseURL: u, Client: &http.Client{Timeout: 20 * time.Second}}, nil
}

func (h *HTTPSecondaryDAO) ListNeurons(ctx context.Context, startPageAt core.NeuronId, limit int) ([]Neuron, error) {
	var resp struct {
		Neurons []Neuron `json:"neurons"`
		Error   string   `json:"error,omitempty"`
	}
	if err := h.postInto(ctx, "/list_neurons", struct {
		StartPageAt core.NeuronId `json:"start_page_at"`
		Limit       int           `json:"limit"`
	}{StartPageAt: startPageAt, Limit: limit}, &resp); err != nil {
		return nil, err
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("secondaryclient: list_neurons: %s", resp.Error)
	}
	return resp.Neurons, nil
}

func (h *HTTPSecondaryDAO) GetProposal(ctx context.Context, id core.ProposalId) (Proposal, error) {
	var resp struct {
		Proposal Proposal `json:"proposal"`
		Error    string   `json:"error,omitempty"`
	}
	if err := h.postInto(ctx, "/get_proposal", struct {
		ProposalId core.ProposalId `json:"proposal_id"`
	}{ProposalId: id}, &resp); err != nil {
		return Proposal{}, err
	}
	if resp.Error != "" {
		return Proposal{}, fmt.Errorf("secondaryclient: get_proposal: %s", resp.Error)
	}
	return resp.Proposal, nil
}

func (h *HTTPSecondaryDAO) SubmitProposal(ctx context.Context, p Proposal) (core.ProposalId, error) {
	var resp struct {
		ProposalId core.ProposalId `json:"proposal_id"`
		Error      string          `json:"error,omitempty"`
	}
	if err := h.postInto(ctx, "/submit_proposal", p, &resp); err != nil {
		return 0, err
	}
	if resp.Error != "" {
		return 0, fmt.Errorf("secondaryclient: submit_proposal: %s", resp.Error)
	}
	return resp.ProposalId, nil
}

func (h *HTTPSecondaryDAO) postInto(ctx context.Context, path string, body any, out any) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("secondaryclient: encode request: %w", err)
	}
	u := *h.BaseURL
	u.Path = u.Path + path
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("secondaryclient: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := h.Client.Do(req)
	if err != nil {
		return fmt.Errorf("secondaryclient: %s: %w", path, err)
	}
	defer resp.Body.Close()
	raw, err = io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("secondaryclient: %s: read response: %w", path, err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("secondaryclient: %s: unexpected status %d: %s", path, resp.StatusCode, raw)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("secondaryclient: %s: decode response: %w", path, err)
	}
	return nil
}
