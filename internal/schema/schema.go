// Package schema validates raw event records decoded from JSON.
//
// A record is validated as a whole: every violation is collected and
// reported, validation never stops at the first problem. Malformed input
// (a non-object, a wrong field type) is itself a validation failure, never
// a panic.
package schema

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/text/unicode/norm"

	"eventcal/internal/datetime"
	"eventcal/internal/model"
)

const (
	FieldTitle     = "title"
	FieldStart     = "start"
	FieldEnd       = "end"
	FieldStatus    = "status"
	FieldOrganizer = "organizer"
	FieldTags      = "tags"
	FieldLocation  = "location"
	FieldContact   = "contact"
	FieldURL       = "url"
)

// RequiredFields lists the fields every record must carry, in report order.
var RequiredFields = []string{FieldTitle, FieldStart, FieldEnd, FieldStatus, FieldOrganizer, FieldTags}

var ErrEmptyWhitelist = errors.New("supported tag set is empty")

var fieldValidate = validator.New()

// Rules is the configuration a Validator checks against. Build it once with
// NewRules and pass it explicitly; it is read-only afterwards.
type Rules struct {
	supported     map[string]struct{}
	required      []string
	requiredSet   map[string]struct{}
	statusList    []string
	allowedStatus map[string]struct{}
	home          *time.Location
}

// NewRules builds Rules from the supported tag whitelist, the attendance
// subset (at least one must appear on each record), the allowed status
// values, and the home zone used to compare date-only spans.
func NewRules(supported, required, status []string, home *time.Location) (*Rules, error) {
	if len(supported) == 0 {
		return nil, ErrEmptyWhitelist
	}
	r := &Rules{
		supported:     make(map[string]struct{}, len(supported)),
		requiredSet:   make(map[string]struct{}, len(required)),
		allowedStatus: make(map[string]struct{}, len(status)),
		home:          home,
	}
	for _, t := range supported {
		r.supported[norm.NFC.String(t)] = struct{}{}
	}
	for _, t := range required {
		key := norm.NFC.String(t)
		if _, ok := r.supported[key]; !ok {
			return nil, fmt.Errorf("required tag %q is not supported", t)
		}
		r.required = append(r.required, t)
		r.requiredSet[key] = struct{}{}
	}
	if len(r.required) == 0 {
		return nil, errors.New("required tag set is empty")
	}
	for _, s := range status {
		r.statusList = append(r.statusList, s)
		r.allowedStatus[s] = struct{}{}
	}
	if len(r.statusList) == 0 {
		return nil, errors.New("allowed status set is empty")
	}
	if r.home == nil {
		r.home = time.UTC
	}
	return r, nil
}

// FieldError is one violation. Index is the 1-based record position when
// the record came from a collection and 0 otherwise. Field is empty for
// record-level problems.
type FieldError struct {
	Index  int
	Field  string
	Reason string
}

func (e FieldError) Error() string {
	var sb strings.Builder
	if e.Index > 0 {
		fmt.Fprintf(&sb, "record %d: ", e.Index)
	}
	if e.Field != "" {
		fmt.Fprintf(&sb, "field '%s': ", e.Field)
	}
	sb.WriteString(e.Reason)
	return sb.String()
}

// Errors is the list of violations for one validation call.
type Errors []FieldError

func (e Errors) Error() string {
	msgs := make([]string, len(e))
	for i, fe := range e {
		msgs[i] = fe.Error()
	}
	return strings.Join(msgs, "; ")
}

// Fields returns the distinct field names mentioned, in order.
func (e Errors) Fields() []string {
	seen := make(map[string]bool)
	var out []string
	for _, fe := range e {
		if !seen[fe.Field] {
			seen[fe.Field] = true
			out = append(out, fe.Field)
		}
	}
	return out
}

// Validator checks records against Rules.
type Validator struct {
	rules *Rules
	norm  *datetime.Normalizer
}

func New(rules *Rules) *Validator {
	return &Validator{
		rules: rules,
		norm:  datetime.NewNormalizer(rules.home),
	}
}

// ValidateDocument accepts either a single record or an array of records.
// Array errors carry the 1-based index of the offending record.
func (v *Validator) ValidateDocument(doc any) Errors {
	switch d := doc.(type) {
	case map[string]any:
		return v.Validate(d)
	case []any:
		return v.ValidateAll(d)
	default:
		return Errors{{Reason: "document must contain a JSON object or an array of objects"}}
	}
}

// ValidateAll validates each element independently.
func (v *Validator) ValidateAll(docs []any) Errors {
	var errs Errors
	for i, doc := range docs {
		rec, ok := doc.(map[string]any)
		if !ok {
			errs = append(errs, FieldError{Index: i + 1, Reason: "record must be a JSON object"})
			continue
		}
		for _, fe := range v.Validate(rec) {
			fe.Index = i + 1
			errs = append(errs, fe)
		}
	}
	return errs
}

// Validate checks one record. A nil result means the record is valid.
func (v *Validator) Validate(rec map[string]any) Errors {
	c := &collector{}

	for _, field := range RequiredFields {
		if _, ok := rec[field]; !ok {
			c.add(field, "missing required field")
		}
	}

	for _, field := range []string{FieldTitle, FieldOrganizer} {
		if val, ok := rec[field]; ok {
			if _, isStr := val.(string); !isStr {
				c.add(field, "must be a string")
			}
		}
	}
	if val, ok := rec[FieldTitle].(string); ok && strings.TrimSpace(val) == "" {
		c.add(FieldTitle, "must not be empty")
	}

	if val, ok := rec[FieldStatus]; ok {
		v.checkStatus(c, val)
	}
	if val, ok := rec[FieldTags]; ok {
		v.checkTags(c, val)
	}

	for _, field := range []string{FieldLocation, FieldContact} {
		if val, ok := rec[field]; ok && val != nil {
			if _, isStr := val.(string); !isStr {
				c.add(field, "must be a string if provided")
			}
		}
	}
	if val, ok := rec[FieldURL]; ok {
		checkURL(c, val)
	}

	start, startOK := v.checkTime(c, rec, FieldStart, datetime.Start)
	end, endOK := v.checkTime(c, rec, FieldEnd, datetime.End)
	if startOK && endOK && end.Before(start) {
		c.add(FieldEnd, "must not be earlier than start")
	}

	return c.errs
}

func (v *Validator) checkStatus(c *collector, val any) {
	s, ok := val.(string)
	if !ok {
		c.add(FieldStatus, "must be a string")
		return
	}
	if _, ok := v.rules.allowedStatus[s]; !ok {
		c.add(FieldStatus, "must be one of: "+strings.Join(v.rules.statusList, ", "))
	}
}

func (v *Validator) checkTags(c *collector, val any) {
	tags, ok := val.([]any)
	if !ok {
		c.add(FieldTags, "must be an array of strings")
		return
	}
	hasRequired := false
	for i, raw := range tags {
		tag, ok := raw.(string)
		if !ok {
			c.add(FieldTags, fmt.Sprintf("element %d must be a string", i+1))
			continue
		}
		key := norm.NFC.String(tag)
		if _, ok := v.rules.supported[key]; !ok {
			c.add(FieldTags, fmt.Sprintf("unsupported tag %q", tag))
			continue
		}
		if _, ok := v.rules.requiredSet[key]; ok {
			hasRequired = true
		}
	}
	if !hasRequired {
		c.add(FieldTags, "must include at least one of: "+strings.Join(v.rules.required, ", "))
	}
}

func checkURL(c *collector, val any) {
	if val == nil {
		return
	}
	s, ok := val.(string)
	if !ok {
		c.add(FieldURL, "must be a string if provided")
		return
	}
	if s == "" {
		return
	}
	if err := fieldValidate.Var(s, "http_url"); err != nil {
		c.add(FieldURL, "must be a valid http or https URL")
	}
}

func (v *Validator) checkTime(c *collector, rec map[string]any, field string, kind datetime.Kind) (time.Time, bool) {
	val, ok := rec[field]
	if !ok {
		return time.Time{}, false
	}
	s, ok := val.(string)
	if !ok {
		c.add(field, "must be a string")
		return time.Time{}, false
	}
	t, err := v.norm.Resolve(s, kind)
	switch {
	case err == nil:
		return t, true
	case errors.Is(err, datetime.ErrMissingOffset):
		c.add(field, "datetime must include a UTC offset")
	case datetime.IsTimestamp(s):
		c.add(field, "must be a valid ISO datetime with timezone")
	default:
		c.add(field, "must be YYYY-MM-DD or ISO datetime with timezone")
	}
	return time.Time{}, false
}

// Decode validates rec and converts it into a model.Event.
func (v *Validator) Decode(rec map[string]any) (model.Event, Errors) {
	if errs := v.Validate(rec); len(errs) > 0 {
		return model.Event{}, errs
	}
	ev := model.Event{
		Title:     rec[FieldTitle].(string),
		Start:     rec[FieldStart].(string),
		End:       rec[FieldEnd].(string),
		Organizer: rec[FieldOrganizer].(string),
		Status:    model.Status(rec[FieldStatus].(string)),
		Location:  optString(rec[FieldLocation]),
		Contact:   optString(rec[FieldContact]),
		URL:       optString(rec[FieldURL]),
	}
	for _, t := range rec[FieldTags].([]any) {
		ev.Tags = append(ev.Tags, t.(string))
	}
	return ev, nil
}

func optString(v any) string {
	s, _ := v.(string)
	return s
}

type collector struct {
	errs Errors
}

func (c *collector) add(field, reason string) {
	c.errs = append(c.errs, FieldError{Field: field, Reason: reason})
}
