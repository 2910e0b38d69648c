package model

// Status is the publication state of an event.
type Status string

const (
	StatusConfirmed Status = "confirmed"
	StatusTentative Status = "tentative"
)

// Event is a record that has passed schema validation. Start and End are
// kept as text: either the original offset-bearing timestamp or, after
// normalization, the canonical minute-precision form.
//
// Events are never mutated once they are part of a Dataset.
type Event struct {
	Title     string   `json:"title"`
	Start     string   `json:"start"`
	End       string   `json:"end"`
	Location  string   `json:"location,omitempty"`
	Organizer string   `json:"organizer"`
	URL       string   `json:"url,omitempty"`
	Contact   string   `json:"contact,omitempty"`
	Status    Status   `json:"status"`
	Tags      []string `json:"tags"`
}

// Dataset is the merged, ordered sequence of events. Order is source order
// then in-source order; duplicates are kept.
type Dataset []Event

// Filter returns the events for which keep reports true, preserving order.
func (d Dataset) Filter(keep func(Event) bool) Dataset {
	out := make(Dataset, 0, len(d))
	for _, ev := range d {
		if keep(ev) {
			out = append(out, ev)
		}
	}
	return out
}

// HasStatus builds a Filter predicate matching a single status.
func HasStatus(s Status) func(Event) bool {
	return func(ev Event) bool {
		return ev.Status == s
	}
}
