// Package consent implements the ICRC-21 human-readable consent message
// boundary: a pure function mapping a method name and its argument bytes
// to the text a signer's wallet should display before approving the call.
package consent

import (
	"encoding/json"
	"fmt"
)

// MaxArgBytes caps the argument payload this renderer will accept.
const MaxArgBytes = 500

// ErrArgTooLarge is returned when the argument payload exceeds MaxArgBytes.
type ErrArgTooLarge struct {
	Size int
}

func (e ErrArgTooLarge) Error() string {
	return fmt.Sprintf("consent: argument of %d bytes exceeds the %d byte cap", e.Size, MaxArgBytes)
}

// ErrUnsupportedMethod is returned for any method outside the supported
// list.
type ErrUnsupportedMethod struct {
	Method string
}

func (e ErrUnsupportedMethod) Error() string {
	return fmt.Sprintf("consent: unsupported method %q", e.Method)
}

// depositArg / withdrawArg / cancelArg / claimArg are the minimal argument
// shapes this renderer needs to produce readable text; the full request
// types live in conversion/ and api/ and are a superset of these fields.
type depositArg struct {
	AmountE8s uint64 `json:"amount_e8s"`
	Receiver  string `json:"receiver,omitempty"`
}

type withdrawArg struct {
	AmountE8s uint64 `json:"amount_e8s"`
	Receiver  string `json:"receiver,omitempty"`
}

type cancelArg struct {
	NeuronId uint64 `json:"neuron_id"`
}

type claimArg struct{}

// Render maps (method, argument bytes) to a human-readable consent
// string. It performs no state mutation and has no side effects.
func Render(method string, arg []byte) (string, error) {
	if len(arg) > MaxArgBytes {
		return "", ErrArgTooLarge{Size: len(arg)}
	}
	switch method {
	case "icp_to_nicp":
		var a depositArg
		if len(arg) > 0 {
			if err := json.Unmarshal(arg, &a); err != nil {
				return "", fmt.Errorf("consent: decode icp_to_nicp argument: %w", err)
			}
		}
		return renderDeposit(a), nil
	case "nicp_to_icp":
		var a withdrawArg
		if len(arg) > 0 {
			if err := json.Unmarshal(arg, &a); err != nil {
				return "", fmt.Errorf("consent: decode nicp_to_icp argument: %w", err)
			}
		}
		return renderWithdraw(a), nil
	case "cancel_withdrawal":
		var a cancelArg
		if len(arg) > 0 {
			if err := json.Unmarshal(arg, &a); err != nil {
				return "", fmt.Errorf("consent: decode cancel_withdrawal argument: %w", err)
			}
		}
		return renderCancel(a), nil
	case "claim_airdrop":
		return renderClaim(), nil
	default:
		return "", ErrUnsupportedMethod{Method: method}
	}
}

func renderDeposit(a depositArg) string {
	t := formatE8s(a.AmountE8s)
	if a.Receiver != "" {
		return fmt.Sprintf("# Stake ICP\n\nYou are staking **%s ICP** and will receive nICP credited to %s at the current exchange rate.", t, a.Receiver)
	}
	return fmt.Sprintf("# Stake ICP\n\nYou are staking **%s ICP** and will receive nICP credited to your account at the current exchange rate.", t)
}

func renderWithdraw(a withdrawArg) string {
	t := formatE8s(a.AmountE8s)
	receiver := "your account"
	if a.Receiver != "" {
		receiver = a.Receiver
	}
	return fmt.Sprintf("# Unstake nICP\n\nYou are redeeming **%s nICP** for ICP. The ICP will be disbursed to %s after the protocol's dissolve delay has elapsed.", t, receiver)
}

func renderCancel(a cancelArg) string {
	return fmt.Sprintf("# Cancel withdrawal\n\nYou are cancelling the pending withdrawal tied to neuron **%d**. Its staked ICP will be merged back into the protocol's short-term neuron.", a.NeuronId)
}

func renderClaim() string {
	return "# Claim airdrop\n\nYou are claiming your accumulated airdrop reward tokens. This transfers your full entitlement, minus the ledger fee, to your account."
}

// formatE8s renders an e8s amount (1e8 scale) as a fixed-point decimal
// string for display.
func formatE8s(e8s uint64) string {
	whole := e8s / 100_000_000
	frac := e8s % 100_000_000
	return fmt.Sprintf("%d.%08d", whole, frac)
}
