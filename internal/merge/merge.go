package merge

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"eventcal/internal/datetime"
	appLog "eventcal/internal/log"
	"eventcal/internal/model"
	"eventcal/internal/schema"
)

var (
	ErrInvalidJSON = errors.New("invalid JSON")
	ErrBadShape    = errors.New("source must contain a JSON object or an array")
)

// Source is one fully read record file.
type Source struct {
	// Name is the source identifier, normally the path relative to the data dir.
	Name string
	Body []byte
}

// Rejection describes a record that failed validation. Index is the
// 1-based position inside its source.
type Rejection struct {
	Source string
	Index  int
	Errors schema.Errors
}

// Result is the outcome of merging a set of sources.
type Result struct {
	Dataset  model.Dataset
	Rejected []Rejection
	// Skipped counts array elements that were not objects.
	Skipped int
	// Failed maps source names to the structural error that dropped them.
	Failed map[string]error
}

// Merger validates, normalizes and concatenates records from many sources.
type Merger struct {
	validator  *schema.Validator
	normalizer *datetime.Normalizer
}

func New(v *schema.Validator, n *datetime.Normalizer) *Merger {
	return &Merger{validator: v, normalizer: n}
}

// Merge processes sources sorted by Name, then records in source order.
// Nothing is deduplicated. Structural problems drop a single source, schema
// violations drop a single record; neither stops the merge.
func (m *Merger) Merge(sources []Source) Result {
	res := Result{
		Dataset: model.Dataset{},
		Failed:  make(map[string]error),
	}

	ordered := make([]Source, len(sources))
	copy(ordered, sources)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Name < ordered[j].Name
	})

	for _, src := range ordered {
		records, err := Decode(src.Body)
		if err != nil {
			res.Failed[src.Name] = err
			appLog.Error("merge: source dropped", err, "source", src.Name)
			continue
		}

		for i, raw := range records {
			rec, ok := raw.(map[string]any)
			if !ok {
				res.Skipped++
				appLog.Warn("merge: skipping non-object element", "source", src.Name, "index", i+1)
				continue
			}

			ev, errs := m.validator.Decode(rec)
			if len(errs) == 0 {
				ev, err = m.normalize(ev)
				if err != nil {
					errs = schema.Errors{{Reason: err.Error()}}
				}
			}
			if len(errs) > 0 {
				res.Rejected = append(res.Rejected, Rejection{Source: src.Name, Index: i + 1, Errors: errs})
				for _, fe := range errs {
					appLog.Warn("merge: record rejected",
						"source", src.Name,
						"index", i+1,
						"field", fe.Field,
						"reason", fe.Reason,
					)
				}
				continue
			}

			res.Dataset = append(res.Dataset, ev)
		}
	}

	appLog.Debug("merge completed",
		"sources", len(ordered),
		"accepted", len(res.Dataset),
		"rejected", len(res.Rejected),
		"skipped", res.Skipped,
	)
	return res
}

func (m *Merger) normalize(ev model.Event) (model.Event, error) {
	start, err := m.normalizer.Normalize(ev.Start, datetime.Start)
	if err != nil {
		return ev, err
	}
	end, err := m.normalizer.Normalize(ev.End, datetime.End)
	if err != nil {
		return ev, err
	}
	ev.Start = start
	ev.End = end
	return ev, nil
}

// Decode parses a source body and flattens it into a list of elements.
// A single object becomes a one-element list.
func Decode(body []byte) ([]any, error) {
	var doc any
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidJSON, err)
	}
	switch d := doc.(type) {
	case map[string]any:
		return []any{d}, nil
	case []any:
		return d, nil
	default:
		return nil, ErrBadShape
	}
}
