package domain

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// ReminderSpec describes when to notify. It is one of AbsoluteSpec,
// AbsoluteFieldSpec, RelativeSpec or InvalidSpec.
type ReminderSpec interface {
	specKind() string
}

// AbsoluteSpec is a bare timestamp string.
type AbsoluteSpec struct {
	At string
}

// AbsoluteFieldSpec is an object carrying {"remind_at": "..."}.
type AbsoluteFieldSpec struct {
	RemindAt string
}

// RelativeSpec fires DaysBefore days before the exception date at TimeOfDay
// (HH:MM, 24h) in the exception's offset.
type RelativeSpec struct {
	DaysBefore int
	TimeOfDay  string
}

// InvalidSpec is produced for input matching none of the shapes above. It is
// kept so callers can count it as skipped.
type InvalidSpec struct {
	Reason string
}

func (AbsoluteSpec) specKind() string      { return "absolute" }
func (AbsoluteFieldSpec) specKind() string { return "absolute_field" }
func (RelativeSpec) specKind() string      { return "relative" }
func (InvalidSpec) specKind() string       { return "invalid" }

type rawSpecObject struct {
	RemindAt      *string         `json:"remind_at"`
	RemindAtCamel *string         `json:"remindAt"`
	DaysBefore    json.RawMessage `json:"days_before"`
	DaysCamel     json.RawMessage `json:"daysBefore"`
	Time          *string         `json:"time"`
	TimeOfDay     *string         `json:"timeOfDay"`
	TimeOfDaySnk  *string         `json:"time_of_day"`
}

// ParseReminderSpec classifies a single JSON value. It never fails; input that
// matches no shape becomes InvalidSpec.
func ParseReminderSpec(raw json.RawMessage) ReminderSpec {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return InvalidSpec{Reason: "empty"}
	}

	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return InvalidSpec{Reason: "bad string"}
		}
		return AbsoluteSpec{At: s}
	case '{':
		var obj rawSpecObject
		if err := json.Unmarshal(raw, &obj); err != nil {
			return InvalidSpec{Reason: "bad object"}
		}
		if at := firstNonBlank(obj.RemindAt, obj.RemindAtCamel); at != "" {
			return AbsoluteFieldSpec{RemindAt: at}
		}
		days := obj.DaysBefore
		if len(days) == 0 {
			days = obj.DaysCamel
		}
		tod := firstNonBlank(obj.Time, obj.TimeOfDay, obj.TimeOfDaySnk)
		if len(days) == 0 || tod == "" {
			return InvalidSpec{Reason: "no remind_at or days_before+time"}
		}
		n, ok := parseDays(days)
		if !ok {
			return InvalidSpec{Reason: "days_before must be an integer"}
		}
		return RelativeSpec{DaysBefore: n, TimeOfDay: tod}
	}
	return InvalidSpec{Reason: "unsupported reminder value"}
}

// ReminderSpecs decodes a JSON array of mixed reminder specs.
type ReminderSpecs []ReminderSpec

func (s *ReminderSpecs) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*s = nil
		return nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		return Validationf("reminders must be an array")
	}
	out := make(ReminderSpecs, 0, len(items))
	for _, it := range items {
		out = append(out, ParseReminderSpec(it))
	}
	*s = out
	return nil
}

func parseDays(raw json.RawMessage) (int, bool) {
	var n int
	if err := json.Unmarshal(raw, &n); err == nil {
		return n, true
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if v, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
			return v, true
		}
	}
	return 0, false
}

func firstNonBlank(vals ...*string) string {
	for _, v := range vals {
		if v != nil && strings.TrimSpace(*v) != "" {
			return strings.TrimSpace(*v)
		}
	}
	return ""
}
