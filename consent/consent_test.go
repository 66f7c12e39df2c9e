package consent

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRenderDeposit(t *testing.T) {
	arg, err := json.Marshal(map[string]any{"amount_e8s": 100_000_000})
	require.NoError(t, err)
	text, err := Render("icp_to_nicp", arg)
	require.NoError(t, err)
	require.Contains(t, text, "1.00000000 ICP")
}

func TestRenderWithdraw(t *testing.T) {
	arg, err := json.Marshal(map[string]any{"amount_e8s": 1_000_000_000, "receiver": "abc-owner"})
	require.NoError(t, err)
	text, err := Render("nicp_to_icp", arg)
	require.NoError(t, err)
	require.Contains(t, text, "10.00000000 nICP")
	require.Contains(t, text, "abc-owner")
}

func TestRenderCancel(t *testing.T) {
	arg, err := json.Marshal(map[string]any{"neuron_id": 42})
	require.NoError(t, err)
	text, err := Render("cancel_withdrawal", arg)
	require.NoError(t, err)
	require.Contains(t, text, "42")
}

func TestRenderClaim(t *testing.T) {
	text, err := Render("claim_airdrop", nil)
	require.NoError(t, err)
	require.Contains(t, text, "Claim airdrop")
}

func TestRenderUnsupportedMethod(t *testing.T) {
	_, err := Render("delete_everything", nil)
	require.Error(t, err)
	var unsupported ErrUnsupportedMethod
	require.ErrorAs(t, err, &unsupported)
}

func TestRenderArgTooLarge(t *testing.T) {
	big := bytes.Repeat([]byte("a"), MaxArgBytes+1)
	_, err := Render("icp_to_nicp", big)
	require.Error(t, err)
	var tooLarge ErrArgTooLarge
	require.ErrorAs(t, err, &tooLarge)
}
