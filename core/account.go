package core

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// Account is a ledger account: an owner principal plus an optional
// 32-byte subaccount.
type Account struct {
	Owner      string
	Subaccount *[32]byte
}

// NewAccount constructs an Account with no subaccount (the owner's default
// account).
func NewAccount(owner string) Account {
	return Account{Owner: owner}
}

// WithSubaccount returns a copy of the account bound to the given
// subaccount bytes.
func (a Account) WithSubaccount(sub [32]byte) Account {
	a.Subaccount = &sub
	return a
}

// MarshalText renders the account as "owner" or "owner:hex(subaccount)".
// A plain text form keeps the places that render accounts for display
// (consent messages, dashboard JSON, logs) free of any extra
// serialization dependency.
func (a Account) MarshalText() ([]byte, error) {
	if a.Subaccount == nil {
		return []byte(a.Owner), nil
	}
	return []byte(a.Owner + ":" + hex.EncodeToString(a.Subaccount[:])), nil
}

// UnmarshalText parses the text form produced by MarshalText.
func (a *Account) UnmarshalText(text []byte) error {
	s := string(text)
	owner, subHex, hasSub := strings.Cut(s, ":")
	a.Owner = owner
	if !hasSub {
		a.Subaccount = nil
		return nil
	}
	raw, err := hex.DecodeString(subHex)
	if err != nil {
		return fmt.Errorf("core: decode subaccount: %w", err)
	}
	if len(raw) != 32 {
		return fmt.Errorf("core: subaccount must be 32 bytes, got %d", len(raw))
	}
	var sub [32]byte
	copy(sub[:], raw)
	a.Subaccount = &sub
	return nil
}

// String implements fmt.Stringer for logging.
func (a Account) String() string {
	text, _ := a.MarshalText()
	return string(text)
}

// Equal reports whether two accounts refer to the same (owner, subaccount)
// pair.
func (a Account) Equal(other Account) bool {
	if a.Owner != other.Owner {
		return false
	}
	if (a.Subaccount == nil) != (other.Subaccount == nil) {
		return false
	}
	if a.Subaccount == nil {
		return true
	}
	return *a.Subaccount == *other.Subaccount
}
