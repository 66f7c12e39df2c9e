package conversion

import stderrors "errors"

// Sentinel errors for the conversion entry points. Cancellation failures
// carry one category each so callers can dispatch with errors.Is rather
// than parsing messages.
var (
	ErrBelowMinimum   = stderrors.New("conversion: amount below configured minimum")
	ErrLedgerTransfer = stderrors.New("conversion: ledger transfer failed")

	// RequestNotFound: no open withdrawal is bound to the given neuron.
	ErrNotFound = stderrors.New("conversion: withdrawal not found")
	// The withdrawal exists but has not reached a cancellable phase.
	ErrNotCancellable = stderrors.New("conversion: withdrawal has no neuron to cancel yet")
	// Less than the cancellation window remains before disbursement.
	ErrTooLate = stderrors.New("conversion: cancellation window has closed")
	// The neuron reports itself dissolving but no dissolve timestamp is
	// available, so the time left cannot be established.
	ErrUnknownTimeLeft = stderrors.New("conversion: time left before disbursement is unknown")
	// The caller does not own the withdrawal.
	ErrBadCaller = stderrors.New("conversion: caller does not own this withdrawal")
	// Reading the neuron back from governance failed.
	ErrGetFullNeuron = stderrors.New("conversion: get full neuron failed")
	// Governance accepted the call but returned an error payload.
	ErrGovernance = stderrors.New("conversion: governance error")
	// The stop-dissolving command failed.
	ErrStopDissolvement = stderrors.New("conversion: stop dissolvement failed")
	// The merge command failed, or left stake behind on the source neuron.
	ErrMergeNeuron = stderrors.New("conversion: merge neuron failed")
	// Governance answered with a response of the wrong command shape.
	ErrBadCommand = stderrors.New("conversion: unexpected governance command response")
)

// cancelWindow is the minimum time that must remain before a withdrawal's
// scheduled disbursement for cancel_withdrawal to still succeed.
const cancelWindow = 14 * 24 * 60 * 60 // seconds
