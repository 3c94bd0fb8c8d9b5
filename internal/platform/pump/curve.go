package pump

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// curveLayoutSize covers the discriminator, five u64 fields and the
// complete flag.
const curveLayoutSize = 8 + 5*8 + 1

// ErrShortCurve is returned when bonding curve account data is truncated.
var ErrShortCurve = errors.New("pump: bonding curve data too short")

// Curve is the decoded state of a bonding curve account, in base units.
type Curve struct {
	VirtualTokenReserves uint64
	VirtualSolReserves   uint64
	RealTokenReserves    uint64
	RealSolReserves      uint64
	TokenTotalSupply     uint64
	Complete             bool
}

// DecodeCurve parses bonding curve account data.
func DecodeCurve(data []byte) (Curve, error) {
	if len(data) < curveLayoutSize {
		return Curve{}, fmt.Errorf("%w: %d bytes", ErrShortCurve, len(data))
	}
	u := func(i int) uint64 { return binary.LittleEndian.Uint64(data[8+8*i:]) }
	return Curve{
		VirtualTokenReserves: u(0),
		VirtualSolReserves:   u(1),
		RealTokenReserves:    u(2),
		RealSolReserves:      u(3),
		TokenTotalSupply:     u(4),
		Complete:             data[48] != 0,
	}, nil
}
