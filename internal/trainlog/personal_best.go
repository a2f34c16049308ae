package trainlog

import (
	"encoding/json"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// Exercise is one of the tracked exercises personal bests are derived for.
type Exercise string

const (
	Squat         Exercise = "squat"
	Deadlift      Exercise = "deadlift"
	Bench         Exercise = "bench"
	OverheadPress Exercise = "ohp"
	RecoveryRun   Exercise = "run5k"
)

// Exercises lists the tracked exercises in display order.
var Exercises = []Exercise{Squat, Deadlift, Bench, OverheadPress, RecoveryRun}

// Direction says whether a bigger or a smaller value is the better one.
type Direction int

const (
	HigherIsBetter Direction = iota
	LowerIsBetter
)

// ExerciseBinding ties an exercise to the (day, task index) its values are logged under.
type ExerciseBinding struct {
	Exercise  Exercise
	Label     string
	Unit      string
	Day       Day
	TaskIndex int
	Direction Direction
}

func DefaultBindings() []ExerciseBinding {
	return []ExerciseBinding{
		{Exercise: Squat, Label: "Squat", Unit: "kg", Day: Monday, TaskIndex: 0, Direction: HigherIsBetter},
		{Exercise: Deadlift, Label: "Deadlift", Unit: "kg", Day: Monday, TaskIndex: 1, Direction: HigherIsBetter},
		{Exercise: Bench, Label: "Bench", Unit: "kg", Day: Thursday, TaskIndex: 0, Direction: HigherIsBetter},
		{Exercise: OverheadPress, Label: "OH Press", Unit: "kg", Day: Thursday, TaskIndex: 2, Direction: HigherIsBetter},
		{Exercise: RecoveryRun, Label: "Fastest Recovery Run (5-7km)", Unit: "mins", Day: Tuesday, TaskIndex: 0, Direction: LowerIsBetter},
	}
}

// qualifies tells whether candidate beats best (found=false means nothing held yet).
func (b ExerciseBinding) qualifies(candidate float64, candidateWeek int, best PersonalBest) bool {
	switch b.Direction {
	case LowerIsBetter:
		// zero or negative times are logging mistakes
		if candidate <= 0 {
			return false
		}
		if !best.Found {
			return true
		}
		return candidate < best.Value || (candidate == best.Value && candidateWeek < best.Week)
	default:
		if !best.Found {
			return candidate > 0
		}
		return candidate > best.Value || (candidate == best.Value && candidateWeek < best.Week)
	}
}

// PersonalBest is the best qualifying value of an exercise and the week it was logged in.
// Found is false when nothing qualifying was logged yet.
type PersonalBest struct {
	Value float64
	Week  int
	Found bool
}

type personalBestJSON struct {
	Value *float64 `json:"value"`
	Week  *int     `json:"week"`
}

// MarshalJSON renders "no data" as nulls, never as 0 or infinity.
func (pb PersonalBest) MarshalJSON() ([]byte, error) {
	if !pb.Found {
		return json.Marshal(personalBestJSON{})
	}
	return json.Marshal(personalBestJSON{Value: &pb.Value, Week: &pb.Week})
}

func (pb PersonalBest) String() string {
	if !pb.Found {
		return "--"
	}
	return strconv.FormatFloat(pb.Value, 'f', -1, 64)
}

type PersonalBests map[Exercise]PersonalBest

// DerivePersonalBests scans the whole log and returns the best value per bound exercise.
// Undecodable keys, unbound tasks and non-numeric values are skipped. Equal values keep
// the earliest week.
func DerivePersonalBests(store *LogStore, bindings []ExerciseBinding) PersonalBests {
	pbs := make(PersonalBests, len(bindings))
	type slot struct {
		day       Day
		taskIndex int
	}
	bySlot := make(map[slot]ExerciseBinding, len(bindings))
	for _, b := range bindings {
		pbs[b.Exercise] = PersonalBest{}
		bySlot[slot{b.Day, b.TaskIndex}] = b
	}

	for rawKey, payload := range store.entries {
		key, err := DecodeKey(rawKey)
		if err != nil || key.Kind != KindValue {
			continue
		}
		binding, ok := bySlot[slot{key.Day, key.TaskIndex}]
		if !ok {
			continue
		}
		raw, ok := payload.(string)
		if !ok {
			continue
		}
		val, ok := ParseNumeric(raw)
		if !ok {
			continue
		}
		if binding.qualifies(val, key.Week, pbs[binding.Exercise]) {
			pbs[binding.Exercise] = PersonalBest{Value: val, Week: key.Week, Found: true}
		}
	}

	return pbs
}

var leadingNumberRegex = regexp.MustCompile(`^[+-]?(\d+\.?\d*|\.\d+)([eE][+-]?\d+)?`)

// ParseNumeric reads the leading decimal number of a logged value, so "80kg" reads as 80
// and "felt great" does not parse. Infinities and NaN are rejected.
func ParseNumeric(raw string) (float64, bool) {
	m := leadingNumberRegex.FindString(strings.TrimSpace(raw))
	if m == "" {
		return 0, false
	}
	val, err := strconv.ParseFloat(m, 64)
	if err != nil || math.IsInf(val, 0) || math.IsNaN(val) {
		return 0, false
	}
	return val, true
}
