package passing

import (
	"fmt"
	"strings"
)

const (
	passingToken   = "#P"
	minLineFields  = 5
	lineFieldCount = 18
)

// LineNormalizer decodes the decoder's native line protocol.
//
// A passing line looks like:
//
//	#P;PassingNo;Transponder;Date;Time;EventID;Hits;MaxRSSI;InternalData;IsActive;Channel;LoopID;LoopIDWakeup;Battery;Temperature;InternalActiveData;BoxTemp;BoxReaderID
//
// Trailing fields may be missing and default to "". Fields past the
// seventeenth are ignored.
type LineNormalizer struct{}

// Normalize decodes one line. Lines not starting with the #P token
// return ErrNotPassing.
func (LineNormalizer) Normalize(line string) (Passing, error) {
	line = strings.TrimRight(line, "\r\n")
	parts := strings.Split(line, ";")
	if parts[0] != passingToken {
		return Passing{}, ErrNotPassing
	}
	if len(parts) < minLineFields {
		return Passing{}, fmt.Errorf("%w: %d fields", ErrShortPassing, len(parts))
	}

	var f [lineFieldCount]string
	copy(f[:], parts)

	return Passing{
		PassingNumber:      f[1],
		Transponder:        f[2],
		Date:               f[3] + "T" + f[4],
		Time:               f[4],
		EventID:            f[5],
		Hits:               f[6],
		MaxRSSI:            f[7],
		InternalData:       f[8],
		IsActive:           f[9],
		Channel:            f[10],
		LoopID:             f[11],
		LoopIDWakeup:       f[12],
		Battery:            f[13],
		Temperature:        f[14],
		InternalActiveData: f[15],
		BoxTemp:            f[16],
		BoxReaderID:        f[17],
	}, nil
}
