package ics

import (
	"bytes"
	"errors"
	"fmt"

	ical "github.com/arran4/golang-ical"
)

var ErrEntryCount = errors.New("calendar entry count mismatch")

// Summary is what a third-party parser sees in a rendered document.
type Summary struct {
	ProductID string
	Entries   int
	UIDs      []string
}

// Inspect re-parses a rendered document with golang-ical. It is used as a
// self-check after rendering: a document the parser rejects, or whose
// VEVENT count differs from what the Builder reported, is not written.
func Inspect(body []byte) (Summary, error) {
	var sum Summary
	if len(body) == 0 {
		return sum, errors.New("empty calendar body")
	}

	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		return sum, fmt.Errorf("parse calendar: %w", err)
	}

	for _, p := range cal.CalendarProperties {
		if p.IANAToken == "PRODID" {
			sum.ProductID = p.Value
		}
	}

	for _, ve := range cal.Events() {
		sum.Entries++
		if p := ve.GetProperty(ical.ComponentPropertyUniqueId); p != nil {
			sum.UIDs = append(sum.UIDs, p.Value)
		}
	}
	return sum, nil
}

// Verify checks doc against its own parsed Summary.
func Verify(doc Document) (Summary, error) {
	sum, err := Inspect([]byte(doc.Body))
	if err != nil {
		return sum, fmt.Errorf("%s: %w", doc.Name, err)
	}
	if sum.Entries != doc.Entries {
		return sum, fmt.Errorf("%s: %w: rendered %d, parsed %d", doc.Name, ErrEntryCount, doc.Entries, sum.Entries)
	}
	return sum, nil
}
