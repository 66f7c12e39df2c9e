// Package governanceclient is the contract this process uses to manage the
// two main neurons (short-term and long-term) held with the external
// governance canister: splitting, dissolving, disbursing, spawning
// maturity, and reading proposals for the mirror.
package governanceclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"liquidneuron/core"
)

// ErrGovernance marks a call the governance canister accepted but answered
// with an error payload, as opposed to a transport failure. Callers can
// distinguish the two with errors.Is.
var ErrGovernance = errors.New("governanceclient: governance error")

// NeuronCommand is the subset of ManageNeuron commands this process issues.
type NeuronCommand string

const (
	CommandClaim                 NeuronCommand = "claim_or_refresh"
	CommandSplit                 NeuronCommand = "split"
	CommandDissolve              NeuronCommand = "start_dissolving"
	CommandStopDissolving        NeuronCommand = "stop_dissolving"
	CommandIncreaseDissolveDelay NeuronCommand = "increase_dissolve_delay"
	CommandDisburse              NeuronCommand = "disburse"
	CommandSpawn                 NeuronCommand = "spawn"
	CommandMerge                 NeuronCommand = "merge"
	CommandRegisterVote          NeuronCommand = "register_vote"
)

// DissolveState values reported by the governance canister.
const (
	DissolveStateNotDissolving = "not_dissolving"
	DissolveStateDissolving    = "dissolving"
	DissolveStateDissolved     = "dissolved"
)

// Neuron is the subset of governance neuron state this process reads.
type Neuron struct {
	NeuronId        core.NeuronId
	CachedStakeE8s  uint64
	MaturityE8s     uint64
	DissolveState   string
	WhenDissolvedTs int64
}

// Proposal is a pending governance proposal eligible for mirroring.
type Proposal struct {
	ProposalId core.ProposalId
	Title      string
	Summary    string
	ProposedTs int64
}

// Governance is the external governance canister surface this process
// depends on.
type Governance interface {
	ManageNeuron(ctx context.Context, neuron core.NeuronId, cmd NeuronCommand, arg uint64) (uint64, error)
	ListNeurons(ctx context.Context, ids []core.NeuronId) ([]Neuron, error)
	GetFullNeuron(ctx context.Context, id core.NeuronId) (Neuron, error)
	GetPendingProposals(ctx context.Context) ([]Proposal, error)
}

// HTTPGovernance implements Governance over a JSON HTTP endpoint, following
// the same request/response envelope as ledgerclient.HTTPLedger.
type HTTPGovernance struct {
	BaseURL *url.URL
	Client  *http.Client
}

func New(baseURL string) (*HTTPGovernance, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("governanceclient: parse base url: %w", err)
	}
	return &HTTPGovernance{BaseURL: u, Client: &http.Client{Timeout: 20 * time.Second}}, nil
}

func (h *HTTPGovernance) ManageNeuron(ctx context.Context, neuron core.NeuronId, cmd NeuronCommand, arg uint64) (uint64, error) {
	var resp struct {
		Result uint64 `json:"result"`
		Error  string `json:"error,omitempty"`
	}
	body := struct {
		NeuronId core.NeuronId `json:"neuron_id"`
		Command  NeuronCommand `json:"command"`
		Arg      uint64        `json:"arg"`
	}{NeuronId: neuron, Command: cmd, Arg: arg}
	if err := h.postInto(ctx, "/manage_neuron", body, &resp); err != nil {
		return 0, err
	}
	if resp.Error != "" {
		return 0, fmt.Errorf("%w: manage_neuron %s: %s", ErrGovernance, cmd, resp.Error)
	}
	return resp.Result, nil
}

func (h *HTTPGovernance) ListNeurons(ctx context.Context, ids []core.NeuronId) ([]Neuron, error) {
	var resp struct {
		Neurons []Neuron `json:"neurons"`
		Error   string   `json:"error,omitempty"`
	}
	if err := h.postInto(ctx, "/list_neurons", struct {
		NeuronIds []core.NeuronId `json:"neuron_ids"`
	}{NeuronIds: ids}, &resp); err != nil {
		return nil, err
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("%w: list_neurons: %s", ErrGovernance, resp.Error)
	}
	return resp.Neurons, nil
}

func (h *HTTPGovernance) GetFullNeuron(ctx context.Context, id core.NeuronId) (Neuron, error) {
	var resp struct {
		Neuron Neuron `json:"neuron"`
		Error  string `json:"error,omitempty"`
	}
	if err := h.postInto(ctx, "/get_full_neuron", struct {
		NeuronId core.NeuronId `json:"neuron_id"`
	}{NeuronId: id}, &resp); err != nil {
		return Neuron{}, err
	}
	if resp.Error != "" {
		return Neuron{}, fmt.Errorf("%w: get_full_neuron: %s", ErrGovernance, resp.Error)
	}
	return resp.Neuron, nil
}

func (h *HTTPGovernance) GetPendingProposals(ctx context.Context) ([]Proposal, error) {
	var resp struct {
		Proposals []Proposal `json:"proposals"`
		Error     string     `json:"error,omitempty"`
	}
	if err := h.postInto(ctx, "/get_pending_proposals", struct{}{}, &resp); err != nil {
		return nil, err
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("%w: get_pending_proposals: %s", ErrGovernance, resp.Error)
	}
	return resp.Proposals, nil
}

func (h *HTTPGovernance) postInto(ctx context.Context, path string, body any, out any) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("governanceclient: encode request: %w", err)
	}
	u := *h.BaseURL
	u.Path = u.Path + path
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("governanceclient: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := h.Client.Do(req)
	if err != nil {
		return fmt.Errorf("governanceclient: %s: %w", path, err)
	}
	defer resp.Body.Close()
	raw, err = io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("governanceclient: %s: read response: %w", path, err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("governanceclient: %s: unexpected status %d: %s", path, resp.StatusCode, raw)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("governanceclient: %s: decode response: %w", path, err)
	}
	return nil
}
