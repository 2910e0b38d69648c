package merge

import (
	"errors"
	"testing"
	"time"

	"eventcal/internal/datetime"
	"eventcal/internal/schema"
)

func newTestMerger(t *testing.T) *Merger {
	t.Helper()
	home := time.FixedZone("UTC+08:00", 8*3600)
	rules, err := schema.NewRules(
		[]string{"實體", "線上", "資安"},
		[]string{"實體", "線上"},
		[]string{"confirmed", "tentative"},
		home,
	)
	if err != nil {
		t.Fatalf("NewRules: %v", err)
	}
	return New(schema.New(rules), datetime.NewNormalizer(home))
}

const meetup = `{"title":"Meetup","start":"2025-03-01","end":"2025-03-01","status":"confirmed","organizer":"Org","tags":["實體"]}`

func TestMergeNormalizesScenario(t *testing.T) {
	m := newTestMerger(t)
	res := m.Merge([]Source{{Name: "meetup.json", Body: []byte(meetup)}})

	if len(res.Dataset) != 1 {
		t.Fatalf("expected 1 event, got %d (rejected %v)", len(res.Dataset), res.Rejected)
	}
	ev := res.Dataset[0]
	if ev.Start != "2025-03-01T00:00+08:00" {
		t.Fatalf("expected start 2025-03-01T00:00+08:00, got %s", ev.Start)
	}
	if ev.End != "2025-03-01T23:59+08:00" {
		t.Fatalf("expected end 2025-03-01T23:59+08:00, got %s", ev.End)
	}
}

func TestMergeOrderAndDuplicates(t *testing.T) {
	m := newTestMerger(t)
	rec := func(title string) string {
		return `{"title":"` + title + `","start":"2025-03-01T10:00+08:00","end":"2025-03-01T12:00+08:00","status":"tentative","organizer":"Org","tags":["線上"]}`
	}
	sources := []Source{
		{Name: "c.json", Body: []byte(rec("C"))},
		{Name: "a.json", Body: []byte("[" + rec("A1") + "," + rec("A2") + "]")},
		{Name: "b.json", Body: []byte(rec("B"))},
		{Name: "d.json", Body: []byte(rec("B"))},
	}

	res := m.Merge(sources)
	var titles []string
	for _, ev := range res.Dataset {
		titles = append(titles, ev.Title)
	}
	want := []string{"A1", "A2", "B", "C", "B"}
	if len(titles) != len(want) {
		t.Fatalf("expected %v, got %v", want, titles)
	}
	for i := range want {
		if titles[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, titles)
		}
	}
	if res.Dataset[0].Start != "2025-03-01T10:00+08:00" {
		t.Fatalf("expected timestamp to pass through unchanged, got %s", res.Dataset[0].Start)
	}
	if sources[0].Name != "c.json" {
		t.Fatalf("expected caller's slice to be left unsorted")
	}
}

func TestMergePartialFailures(t *testing.T) {
	m := newTestMerger(t)
	bad := `{"title":"Bad","start":"2025-03-01","end":"2025-03-01","status":"confirmed","organizer":"Org","tags":["unknown-tag"]}`
	sources := []Source{
		{Name: "1.json", Body: []byte("[" + meetup + `, 42, "text", ` + bad + "]")},
		{Name: "2.json", Body: []byte("{not json")},
		{Name: "3.json", Body: []byte(`"scalar"`)},
		{Name: "4.json", Body: []byte(meetup)},
	}

	res := m.Merge(sources)
	if len(res.Dataset) != 2 {
		t.Fatalf("expected 2 accepted events, got %d", len(res.Dataset))
	}
	if res.Skipped != 2 {
		t.Fatalf("expected 2 skipped elements, got %d", res.Skipped)
	}
	if len(res.Rejected) != 1 {
		t.Fatalf("expected 1 rejection, got %v", res.Rejected)
	}
	rej := res.Rejected[0]
	if rej.Source != "1.json" || rej.Index != 4 {
		t.Fatalf("expected rejection of 1.json record 4, got %s record %d", rej.Source, rej.Index)
	}
	if !errors.Is(res.Failed["2.json"], ErrInvalidJSON) {
		t.Fatalf("expected 2.json to fail with ErrInvalidJSON, got %v", res.Failed["2.json"])
	}
	if !errors.Is(res.Failed["3.json"], ErrBadShape) {
		t.Fatalf("expected 3.json to fail with ErrBadShape, got %v", res.Failed["3.json"])
	}
}

func TestMergeEmpty(t *testing.T) {
	res := newTestMerger(t).Merge(nil)
	if res.Dataset == nil || len(res.Dataset) != 0 {
		t.Fatalf("expected empty non-nil dataset, got %v", res.Dataset)
	}
}

func TestDecode(t *testing.T) {
	got, err := Decode([]byte(meetup))
	if err != nil || len(got) != 1 {
		t.Fatalf("expected single object to flatten to one element, got %v, %v", got, err)
	}
	got, err = Decode([]byte(`[]`))
	if err != nil || len(got) != 0 {
		t.Fatalf("expected empty array, got %v, %v", got, err)
	}
}
