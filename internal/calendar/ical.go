// Package calendar pulls booking feeds, normalizes them into calendar
// events and reconciles them against stored state per property.
package calendar

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/emersion/go-ical"
)

// icalDateLayout is the iCalendar DATE value format.
const icalDateLayout = "20060102"

// RawEntry is one VEVENT of a feed before normalization.
type RawEntry struct {
	UID         string
	Summary     string
	Description string
	Status      string
	Start       time.Time
	End         time.Time
	AllDay      bool

	// DateErr is set when DTSTART or DTEND could not be read. The entry
	// is still returned so the normalizer can report the skip.
	DateErr error
}

// Text returns the summary and description joined for keyword and
// pattern matching.
func (e RawEntry) Text() string {
	return e.Summary + "\n" + e.Description
}

// Parser parses iCalendar feed documents.
type Parser struct{}

// NewParser creates a new iCal parser.
func NewParser() *Parser {
	return &Parser{}
}

// Parse decodes every VEVENT of data. A document that is empty or not a
// VCALENDAR fails as a whole with a *ParseError; a valid calendar with no
// events yields no entries and no error.
func (p *Parser) Parse(data []byte) ([]RawEntry, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, &ParseError{Err: errors.New("empty document")}
	}

	dec := ical.NewDecoder(bytes.NewReader(data))

	var (
		entries   []RawEntry
		calendars int
	)
	for {
		cal, err := dec.Decode()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, &ParseError{Err: err}
		}
		calendars++

		for _, comp := range cal.Children {
			if comp.Name != ical.CompEvent {
				continue
			}
			entries = append(entries, parseEntry(comp))
		}
	}

	if calendars == 0 {
		return nil, &ParseError{Err: errors.New("no VCALENDAR found")}
	}

	return entries, nil
}

func parseEntry(comp *ical.Component) RawEntry {
	var entry RawEntry

	if prop := comp.Props.Get(ical.PropUID); prop != nil {
		entry.UID = strings.TrimSpace(prop.Value)
	}
	entry.Summary = textProp(comp, ical.PropSummary)
	entry.Description = textProp(comp, ical.PropDescription)
	entry.Status = strings.ToUpper(textProp(comp, ical.PropStatus))

	start := comp.Props.Get(ical.PropDateTimeStart)
	if start == nil {
		entry.DateErr = errors.New("missing DTSTART")
		return entry
	}
	t, allDay, err := propTime(start)
	if err != nil {
		entry.DateErr = fmt.Errorf("invalid DTSTART: %w", err)
		return entry
	}
	entry.Start = t
	entry.AllDay = allDay

	switch {
	case comp.Props.Get(ical.PropDateTimeEnd) != nil:
		end, _, err := propTime(comp.Props.Get(ical.PropDateTimeEnd))
		if err != nil {
			entry.DateErr = fmt.Errorf("invalid DTEND: %w", err)
			return entry
		}
		entry.End = end
	case comp.Props.Get(ical.PropDuration) != nil:
		d, err := comp.Props.Get(ical.PropDuration).Duration()
		if err != nil {
			entry.DateErr = fmt.Errorf("invalid DURATION: %w", err)
			return entry
		}
		entry.End = entry.Start.Add(d)
	case entry.AllDay:
		entry.End = entry.Start.AddDate(0, 0, 1)
	default:
		entry.End = entry.Start
	}

	return entry
}

// propTime reads a DTSTART or DTEND value. A bare YYYYMMDD value without
// VALUE=DATE is still a date; some providers emit it that way.
func propTime(prop *ical.Prop) (time.Time, bool, error) {
	if prop.Params.Get(ical.ParamValue) == string(ical.ValueDate) {
		t, err := prop.DateTime(time.UTC)
		return t, true, err
	}
	if v := strings.TrimSpace(prop.Value); len(v) == len(icalDateLayout) {
		if t, err := time.ParseInLocation(icalDateLayout, v, time.UTC); err == nil {
			return t, true, nil
		}
	}
	t, err := prop.DateTime(time.UTC)
	return t, false, err
}

// textProp returns the unescaped value of a text property, falling back
// to the raw value when it does not decode.
func textProp(comp *ical.Component, name string) string {
	v, err := comp.Props.Text(name)
	if err != nil {
		if prop := comp.Props.Get(name); prop != nil {
			return strings.TrimSpace(prop.Value)
		}
		return ""
	}
	return strings.TrimSpace(v)
}
