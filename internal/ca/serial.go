package ca

import (
	"crypto/rand"
	"math/big"

	"github.com/pkg/errors"
)

// serialBytes is the number of random bytes spec §4.4 requires for a
// certificate's serial number.
const serialBytes = 20

// generateSerial returns a random 160-bit serial number with the high bit of
// the first byte cleared, guaranteeing it decodes as a positive INTEGER
// without an extra leading zero byte (spec §4.4's serial-number algorithm).
func generateSerial() (*big.Int, error) {
	buf := make([]byte, serialBytes)
	if _, err := rand.Read(buf); err != nil {
		return nil, errors.Wrap(err, "failed to read random bytes for serial number")
	}
	buf[0] &^= 0x80
	return new(big.Int).SetBytes(buf), nil
}
