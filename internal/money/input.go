package money

import (
	"bytes"
	"fmt"
)

// Input is a major-unit amount as it arrives in a JSON body. Both "150.25"
// and 150.25 are accepted; the literal is kept as text so no float is ever
// involved.
type Input string

// UnmarshalJSON keeps the raw literal of a JSON string or number.
func (in *Input) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*in = ""
		return nil
	}
	if len(b) >= 2 && b[0] == '"' && b[len(b)-1] == '"' {
		b = b[1 : len(b)-1]
	} else if len(b) > 0 && (b[0] == '{' || b[0] == '[' || b[0] == 't' || b[0] == 'f') {
		return fmt.Errorf("%w: amount must be a number or numeric string", ErrInvalidAmount)
	}
	*in = Input(b)
	return nil
}

// Amount converts the input to minor units.
func (in Input) Amount() (Amount, error) {
	return ParseMajor(string(in))
}
