package eventlog

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"time"
)

// Event pairs a payload with the wall-clock time it was recorded.
type Event struct {
	Timestamp time.Time
	Payload   Payload
}

func init() {
	gob.Register(Init{})
	gob.Register(Upgrade{})
	gob.Register(DistributeICPtoSNS{})
	gob.Register(TransferExecuted{})
	gob.Register(IcpDeposit{})
	gob.Register(NIcpWithdrawal{})
	gob.Register(DispatchICPRewards{})
	gob.Register(SplitNeuron{})
	gob.Register(StartedToDissolve{})
	gob.Register(DisbursedUserNeuron{})
	gob.Register(MaturityNeuron{})
	gob.Register(DisbursedMaturityNeuron{})
	gob.Register(NeuronSixMonths{})
	gob.Register(NeuronEightYears{})
	gob.Register(ClaimedAirdrop{})
	gob.Register(MirroredProposal{})
	gob.Register(MergeNeuron{})
}

// gobEvent is the concrete struct gob actually encodes: the Payload field of
// Event is an interface, and gob requires the envelope holding it to be a
// concrete, addressable field for interface-value encoding to round-trip.
type gobEvent struct {
	Timestamp time.Time
	Payload   Payload
}

// encode serializes ev into a self-describing gob frame. Unknown payload
// types cannot be produced by this package (the Payload interface is closed
// over the types registered in init), so encode only fails on true I/O
// errors from the underlying buffer, which never occur in-memory.
func encode(ev Event) ([]byte, error) {
	var buf bytes.Buffer
	enc := gob.NewEncoder(&buf)
	if err := enc.Encode(gobEvent(ev)); err != nil {
		return nil, fmt.Errorf("eventlog: encode: %w", err)
	}
	return buf.Bytes(), nil
}

// decode parses a gob frame produced by encode. A frame naming a type that
// was never gob.Register-ed decodes with an error here, which the caller
// (Log.Iterate) treats as a fatal unknown-variant-on-replay
// inconsistency rather than skipping it.
func decode(raw []byte) (Event, error) {
	var ge gobEvent
	dec := gob.NewDecoder(bytes.NewReader(raw))
	if err := dec.Decode(&ge); err != nil {
		return Event{}, fmt.Errorf("eventlog: decode: %w", err)
	}
	return Event(ge), nil
}
