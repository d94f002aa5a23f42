package passing

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// zeroDate is the placeholder date some timing software sends when the
// wall-clock date is unknown.
const zeroDate = "0001-01-01"

type jsonEnvelope struct {
	Passing *jsonPassing `json:"Passing"`
}

type jsonPassing struct {
	Transponder  *string  `json:"Transponder"`
	Hits         *int64   `json:"Hits"`
	RSSI         *int64   `json:"RSSI"`
	Battery      *float64 `json:"Battery"`
	Temperature  *float64 `json:"Temperature"`
	LoopID       *int64   `json:"LoopID"`
	Channel      *int64   `json:"Channel"`
	InternalData *string  `json:"InternalData"`
	PassingNo    *int64   `json:"PassingNo"`
	UTCTime      *string  `json:"UTCTime"`
	Time         *float64 `json:"Time"` // seconds since midnight
}

// JSONNormalizer decodes the JSON-line ingestion protocol:
//
//	{"Passing":{"Transponder":"T1","UTCTime":"2024-01-12T09:06:35.944Z","Time":47217.234,...}}
//
// When Time is present it takes precedence over the time part of UTCTime.
type JSONNormalizer struct {
	// Now supplies today's date when the input carries none. Defaults to time.Now.
	Now func() time.Time
}

// Normalize decodes one JSON line. Blank lines return ErrNotPassing.
func (n JSONNormalizer) Normalize(line string) (Passing, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return Passing{}, ErrNotPassing
	}

	var env jsonEnvelope
	if err := json.Unmarshal([]byte(line), &env); err != nil {
		return Passing{}, fmt.Errorf("%w: %w", ErrMalformedJSON, err)
	}
	in := env.Passing
	switch {
	case in == nil:
		return Passing{}, fmt.Errorf("%w: missing Passing object", ErrMalformedJSON)
	case in.Transponder == nil:
		return Passing{}, fmt.Errorf("%w: missing Transponder", ErrMalformedJSON)
	case in.UTCTime == nil:
		return Passing{}, fmt.Errorf("%w: missing UTCTime", ErrMalformedJSON)
	}

	utc := *in.UTCTime
	var date, clock string
	if d, t, ok := strings.Cut(utc, "T"); ok {
		date, clock = d, strings.TrimSuffix(t, "Z")
	}

	if in.Time != nil {
		clock = formatSecondsOfDay(*in.Time)
		if date == "" || date == zeroDate {
			date = n.now().Format("2006-01-02")
		}
	}

	full := utc
	if date != "" && clock != "" {
		full = date + "T" + clock
	}

	return Passing{
		PassingNumber: formatInt(in.PassingNo),
		Transponder:   *in.Transponder,
		Date:          full,
		Time:          clock,
		Hits:          formatInt(in.Hits),
		MaxRSSI:       formatInt(in.RSSI),
		InternalData:  deref(in.InternalData),
		IsActive:      "1",
		Channel:       formatInt(in.Channel),
		LoopID:        formatInt(in.LoopID),
		Battery:       formatFloat(in.Battery),
		Temperature:   formatFloat(in.Temperature),
	}, nil
}

func (n JSONNormalizer) now() time.Time {
	if n.Now != nil {
		return n.Now()
	}
	return time.Now()
}

// formatSecondsOfDay renders seconds since midnight as HH:MM:SS.mmm.
// The small epsilon keeps values like 47217.234 from landing one
// millisecond short due to binary representation.
func formatSecondsOfDay(secs float64) string {
	totalMS := int64(math.Floor(secs*1000 + 1e-6))
	if totalMS < 0 {
		totalMS = 0
	}
	whole := totalMS / 1000
	return fmt.Sprintf("%02d:%02d:%02d.%03d", whole/3600, (whole%3600)/60, whole%60, totalMS%1000)
}

func formatInt(v *int64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatInt(*v, 10)
}

func formatFloat(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
