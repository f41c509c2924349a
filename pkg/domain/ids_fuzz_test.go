package domain

import (
	"testing"
	"unicode/utf8"
)

// FuzzParseTransactionID checks parsing never panics and only accepts
// round-trippable ASCII tokens.
func FuzzParseTransactionID(f *testing.F) {
	f.Add("")
	f.Add("T1")
	f.Add("q8Xv2v0m3mS8c1bV0qf7aGk1nQ9b4dR2yJ6eZt5hLwU")
	f.Add("'; DROP TABLE transactions;--")
	f.Add(string([]byte{0x00, 0x01, 0x02}))

	f.Fuzz(func(t *testing.T, input string) {
		txID, err := ParseTransactionID(input)
		if err != nil {
			return
		}
		if txID.String() != input {
			t.Errorf("parsed id %q differs from input %q", txID, input)
		}
		if !utf8.ValidString(input) || len(input) == 0 || len(input) > maxTransactionIDLength {
			t.Errorf("invalid input accepted: %q", input)
		}
	})
}
