package passing

// Passing is the canonical passing record.
//
// Field order and JSON names match what feed consumers expect. No field
// uses omitempty: consumers index by key and rely on every key existing.
type Passing struct {
	PassingNumber      string `json:"passing_number"`
	Transponder        string `json:"transponder"`
	Date               string `json:"date"` // date and time joined with "T"
	Time               string `json:"time"`
	EventID            string `json:"event_id"`
	Hits               string `json:"hits"`
	MaxRSSI            string `json:"max_rssi"`
	InternalData       string `json:"internal_data"` // hex
	IsActive           string `json:"is_active"`     // "1" or "0"
	Channel            string `json:"channel"`
	LoopID             string `json:"loop_id"`
	LoopIDWakeup       string `json:"loop_id_wakeup"`
	Battery            string `json:"battery"`
	Temperature        string `json:"temperature"`
	InternalActiveData string `json:"internal_active_data"` // hex
	BoxTemp            string `json:"box_temp"`
	BoxReaderID        string `json:"box_reader_id"`
}

// Normalizer converts one input line into a Passing.
//
// Implementations return ErrNotPassing for lines that carry no passing,
// and a wrapped sentinel for lines that should have been a passing but
// could not be decoded.
type Normalizer interface {
	Normalize(line string) (Passing, error)
}
