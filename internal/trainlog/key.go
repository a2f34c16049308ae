package trainlog

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

const (
	FirstWeek = 1
	LastWeek  = 16

	keyWeekPrefix = "w"
	keyValMarker  = "val"
	keySeparator  = "_"
)

// ErrDecode is returned (wrapped) for every key that does not follow the key grammar.
var ErrDecode = errors.New("decode key")

// Day is one of the active training days of the plan.
type Day string

const (
	Monday    Day = "Monday"
	Tuesday   Day = "Tuesday"
	Wednesday Day = "Wednesday"
	Thursday  Day = "Thursday"
	Saturday  Day = "Saturday"
)

// Days lists the training days in plan order.
var Days = []Day{Monday, Tuesday, Wednesday, Thursday, Saturday}

func (d Day) String() string {
	return string(d)
}

func (d Day) IsValid() bool {
	switch d {
	case Monday, Tuesday, Wednesday, Thursday, Saturday:
		return true
	default:
		return false
	}
}

// ParseDay accepts the day name in any letter case.
func ParseDay(s string) (Day, error) {
	for _, d := range Days {
		if strings.EqualFold(string(d), s) {
			return d, nil
		}
	}
	return "", fmt.Errorf("%w: unknown day %q", ErrInvalidDay, s)
}

// Kind tells whether a log entry is a completion flag or a free-form value.
type Kind int

const (
	KindCompletion Kind = iota
	KindValue
)

func (k Kind) String() string {
	switch k {
	case KindCompletion:
		return "completion"
	case KindValue:
		return "value"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Key is the composite identifier of a single loggable fact.
type Key struct {
	Week      int
	Day       Day
	TaskIndex int
	Kind      Kind
}

func ValidWeek(week int) bool {
	return week >= FirstWeek && week <= LastWeek
}

// String returns the flat storage key, same as EncodeKey.
func (k Key) String() string {
	return EncodeKey(k.Week, k.Day, k.TaskIndex, k.Kind)
}

// EncodeKey flattens the composite key into the storage/wire format:
//
//	w{week}_{Day}_{taskIndex}       completion
//	w{week}_val_{Day}_{taskIndex}   value
func EncodeKey(week int, day Day, taskIndex int, kind Kind) string {
	var sb strings.Builder
	sb.WriteString(keyWeekPrefix)
	sb.WriteString(strconv.Itoa(week))
	sb.WriteString(keySeparator)
	if kind == KindValue {
		sb.WriteString(keyValMarker)
		sb.WriteString(keySeparator)
	}
	sb.WriteString(string(day))
	sb.WriteString(keySeparator)
	sb.WriteString(strconv.Itoa(taskIndex))
	return sb.String()
}

// DecodeKey parses a flat storage key. Only canonical encodings are accepted,
// so EncodeKey(DecodeKey(s)) == s for every s that decodes.
func DecodeKey(s string) (Key, error) {
	parts := strings.Split(s, keySeparator)

	var key Key
	switch len(parts) {
	case 3:
		key.Kind = KindCompletion
	case 4:
		if parts[1] != keyValMarker {
			return Key{}, fmt.Errorf("%w: unknown kind marker %q in %q", ErrDecode, parts[1], s)
		}
		key.Kind = KindValue
		parts = []string{parts[0], parts[2], parts[3]}
	default:
		return Key{}, fmt.Errorf("%w: wrong arity in %q", ErrDecode, s)
	}

	weekPart, ok := strings.CutPrefix(parts[0], keyWeekPrefix)
	if !ok {
		return Key{}, fmt.Errorf("%w: missing week prefix in %q", ErrDecode, s)
	}
	week, err := parseCanonicalUint(weekPart)
	if err != nil {
		return Key{}, fmt.Errorf("%w: week in %q: %w", ErrDecode, s, err)
	}
	if !ValidWeek(week) {
		return Key{}, fmt.Errorf("%w: week %d out of range in %q", ErrDecode, week, s)
	}
	key.Week = week

	key.Day = Day(parts[1])
	if !key.Day.IsValid() {
		return Key{}, fmt.Errorf("%w: unknown day %q in %q", ErrDecode, parts[1], s)
	}

	taskIndex, err := parseCanonicalUint(parts[2])
	if err != nil {
		return Key{}, fmt.Errorf("%w: task index in %q: %w", ErrDecode, s, err)
	}
	key.TaskIndex = taskIndex

	return key, nil
}

// parseCanonicalUint accepts only plain decimal digits without leading zeros.
func parseCanonicalUint(s string) (int, error) {
	if s == "" {
		return 0, errors.New("empty number")
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, fmt.Errorf("not a number: %q", s)
		}
	}
	if len(s) > 1 && s[0] == '0' {
		return 0, fmt.Errorf("leading zero: %q", s)
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, err
	}
	return n, nil
}
