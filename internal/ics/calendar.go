package ics

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"eventcal/internal/clock"
	"eventcal/internal/datetime"
	appLog "eventcal/internal/log"
	"eventcal/internal/model"
)

const dtstampLayout = "20060102T150405Z"

// Document names used by BuildAll.
const (
	DocumentAll       = "all"
	DocumentConfirmed = "confirmed"
	DocumentTentative = "tentative"
)

// Exclusion reasons.
const (
	ReasonEmptyField      = "empty_field"
	ReasonUnparseableTime = "unparseable_time"
)

// Options configures a Builder.
type Options struct {
	ProductID string
	// UIDDomain is appended to every entry identifier after "@".
	UIDDomain string
	Escaping  Escaping
	// Home is the zone given to date-only start/end values.
	Home  *time.Location
	Clock clock.Clock
}

// Exclusion records an event that was left out of a document.
type Exclusion struct {
	Title  string
	Start  string
	End    string
	Reason string
}

// Document is one rendered calendar.
type Document struct {
	Name     string
	Body     string
	Entries  int
	Excluded []Exclusion
}

// Builder renders events into iCalendar text.
//
// Output is LF-terminated, one property per line, without line folding.
// Events with an empty title/start/end or a start/end in neither accepted
// format are skipped and reported in Document.Excluded.
type Builder struct {
	opts Options
	norm *datetime.Normalizer
}

func NewBuilder(opts Options) *Builder {
	if opts.Clock == nil {
		opts.Clock = clock.NewSystem()
	}
	return &Builder{
		opts: opts,
		norm: datetime.NewNormalizer(opts.Home),
	}
}

// BuildAll renders the unfiltered, confirmed-only and tentative-only documents.
func (b *Builder) BuildAll(events model.Dataset) []Document {
	return []Document{
		b.Build(DocumentAll, events),
		b.Build(DocumentConfirmed, events.Filter(model.HasStatus(model.StatusConfirmed))),
		b.Build(DocumentTentative, events.Filter(model.HasStatus(model.StatusTentative))),
	}
}

// Build renders events in order into a single document.
func (b *Builder) Build(name string, events model.Dataset) Document {
	doc := Document{Name: name}
	dtstamp := b.opts.Clock.Now().UTC().Format(dtstampLayout)

	lines := []string{
		"BEGIN:VCALENDAR",
		"VERSION:2.0",
		"PRODID:" + b.opts.ProductID,
		"CALSCALE:GREGORIAN",
		"METHOD:PUBLISH",
	}

	for _, ev := range events {
		entry, reason := b.entry(ev, dtstamp)
		if reason != "" {
			doc.Excluded = append(doc.Excluded, Exclusion{Title: ev.Title, Start: ev.Start, End: ev.End, Reason: reason})
			appLog.Warn("ics: event excluded",
				"document", name,
				"title", ev.Title,
				"start", ev.Start,
				"end", ev.End,
				"reason", reason,
			)
			continue
		}
		lines = append(lines, entry...)
		doc.Entries++
	}

	lines = append(lines, "END:VCALENDAR")
	doc.Body = strings.Join(lines, "\n") + "\n"
	return doc
}

func (b *Builder) entry(ev model.Event, dtstamp string) ([]string, string) {
	if ev.Title == "" || ev.Start == "" || ev.End == "" {
		return nil, ReasonEmptyField
	}
	start, err := b.norm.Resolve(ev.Start, datetime.Start)
	if err != nil {
		return nil, ReasonUnparseableTime
	}
	end, err := b.norm.Resolve(ev.End, datetime.End)
	if err != nil {
		return nil, ReasonUnparseableTime
	}

	esc := b.opts.Escaping
	lines := []string{
		"BEGIN:VEVENT",
		"UID:" + UID(ev.Title, ev.Start, ev.End, b.opts.UIDDomain),
		"DTSTAMP:" + dtstamp,
		"SUMMARY:" + esc.escapeText(ev.Title),
		"DTSTART:" + start.Format(datetime.CompactLayout),
		"DTEND:" + end.Format(datetime.CompactLayout),
	}
	if ev.Location != "" {
		lines = append(lines, "LOCATION:"+esc.escapeText(ev.Location))
	}
	if desc := b.description(ev); desc != "" {
		lines = append(lines, "DESCRIPTION:"+desc)
	}
	if ev.URL != "" {
		lines = append(lines, "URL:"+escapeURI(ev.URL))
	}
	lines = append(lines, "END:VEVENT")
	return lines, ""
}

// description joins the organizer/contact/URL sentences with an escaped
// line break.
func (b *Builder) description(ev model.Event) string {
	esc := b.opts.Escaping
	var parts []string
	if ev.Organizer != "" {
		parts = append(parts, esc.escapeText("Organizer: "+ev.Organizer))
	}
	if ev.Contact != "" {
		parts = append(parts, esc.escapeText("Contact: "+ev.Contact))
	}
	if ev.URL != "" {
		parts = append(parts, esc.escapeText("URL: "+ev.URL))
	}
	return strings.Join(parts, `\n`)
}

// UID derives the entry identifier from (title, start, end). It is a
// name-based (SHA-1) UUID, stable across runs and platforms. Distinct events
// sharing all three values get the same UID.
func UID(title, start, end, domain string) string {
	ns := uuid.NewSHA1(uuid.NameSpaceDNS, []byte(domain))
	key := strings.Join([]string{title, start, end}, "\x00")
	return uuid.NewSHA1(ns, []byte(key)).String() + "@" + domain
}
