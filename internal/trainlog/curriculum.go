package trainlog

import (
	"fmt"
	"strings"
)

const defaultLongRunKm = 5

// long run distances in km, index = week
var longRunDistancesKm = []int{0, 8, 10, 12, 6, 12, 14, 16, 8, 18, 21, 24, 12, 20, 15, 10, 5}

// LongRunDistanceKm returns the prescribed long run distance for the week.
func LongRunDistanceKm(week int) int {
	if week < 1 || week >= len(longRunDistancesKm) {
		return defaultLongRunKm
	}
	return longRunDistancesKm[week]
}

type Phase struct {
	Name      string `json:"name"`
	FirstWeek int    `json:"firstWeek"`
	LastWeek  int    `json:"lastWeek"`
}

var Phases = []Phase{
	{Name: "Adaptation", FirstWeek: 1, LastWeek: 4},
	{Name: "Strength", FirstWeek: 5, LastWeek: 8},
	{Name: "Peak", FirstWeek: 9, LastWeek: 12},
	{Name: "Maintenance", FirstWeek: 13, LastWeek: 16},
}

func PhaseOf(week int) (Phase, bool) {
	for _, p := range Phases {
		if week >= p.FirstWeek && week <= p.LastWeek {
			return p, true
		}
	}
	return Phase{}, false
}

type Task struct {
	Name            string `json:"name"`
	Subtext         string `json:"subtext,omitempty"`
	HasNumericInput bool   `json:"hasNumericInput"`
}

type DayPlan struct {
	Day   Day    `json:"day"`
	Title string `json:"title"`
	Tasks []Task `json:"tasks"`
}

type WeekPlan struct {
	Week      int       `json:"week"`
	Phase     Phase     `json:"phase"`
	LongRunKm int       `json:"longRunKm"`
	Days      []DayPlan `json:"days"`
}

// Curriculum is the read-only weekly training plan.
type Curriculum interface {
	Week(week int) (WeekPlan, error)
	Task(week int, day Day, taskIndex int) (Task, bool)
	Bindings() []ExerciseBinding
}

var _ Curriculum = (*StaticCurriculum)(nil)

// StaticCurriculum is the built-in 16 week plan. The task lists are the same for
// every week, only the long run distance changes.
type StaticCurriculum struct {
	days     []DayPlan
	bindings []ExerciseBinding
}

func NewStaticCurriculum() *StaticCurriculum {
	return &StaticCurriculum{
		days: []DayPlan{
			{
				Day:   Monday,
				Title: "Lower Body",
				Tasks: []Task{
					{Name: "Back Squats (3x8)", Subtext: "Input max weight (kg)", HasNumericInput: true},
					{Name: "Deadlifts (3x5)", Subtext: "Input max weight (kg)", HasNumericInput: true},
					{Name: "Walking Lunges (3x10)", Subtext: "Stability focus", HasNumericInput: true},
					{Name: "Plank & Abs", Subtext: "Core finishing"},
				},
			},
			{
				Day:   Tuesday,
				Title: "Easy Run",
				Tasks: []Task{
					{Name: "Recovery Run (5-7km)", Subtext: "Input time (min) for PB", HasNumericInput: true},
					{Name: "Mobility Work", Subtext: "Calves & Hips"},
				},
			},
			{
				Day:   Wednesday,
				Title: "The Long Run",
				Tasks: []Task{
					// name is filled in per week with the long run distance
					{Name: "Long Run: %dkm", Subtext: "Keep a steady rhythm", HasNumericInput: true},
					{Name: "Active Recovery", Subtext: "Walk/Stretch"},
				},
			},
			{
				Day:   Thursday,
				Title: "Upper Body",
				Tasks: []Task{
					{Name: "Bench Press (3x8)", Subtext: "Input weight (kg)", HasNumericInput: true},
					{Name: "Bent Over Rows (3x10)", Subtext: "Input weight (kg)", HasNumericInput: true},
					{Name: "Overhead Press (3x10)", Subtext: "Input weight (kg)", HasNumericInput: true},
					{Name: "Pull-ups (3xMax)", Subtext: "Lats", HasNumericInput: true},
				},
			},
			{
				Day:   Saturday,
				Title: "HIIT Hybrid",
				Tasks: []Task{
					{Name: "6 Rounds: 5m TM / 5m Exercises", Subtext: "Total 60 min session"},
					{Name: "Treadmill Speed", Subtext: "Target 10-12km/h+", HasNumericInput: true},
					{Name: "Bulletproof Circuit", Subtext: "KB/Pushups/Copenhagens"},
				},
			},
		},
		bindings: DefaultBindings(),
	}
}

func (c *StaticCurriculum) Week(week int) (WeekPlan, error) {
	if !ValidWeek(week) {
		return WeekPlan{}, fmt.Errorf("%w: %d", ErrInvalidWeek, week)
	}

	phase, _ := PhaseOf(week)
	plan := WeekPlan{
		Week:      week,
		Phase:     phase,
		LongRunKm: LongRunDistanceKm(week),
		Days:      make([]DayPlan, 0, len(c.days)),
	}
	for _, d := range c.days {
		dayPlan := DayPlan{
			Day:   d.Day,
			Title: d.Title,
			Tasks: make([]Task, 0, len(d.Tasks)),
		}
		for _, t := range d.Tasks {
			dayPlan.Tasks = append(dayPlan.Tasks, c.weekTask(week, t))
		}
		plan.Days = append(plan.Days, dayPlan)
	}
	return plan, nil
}

func (c *StaticCurriculum) Task(week int, day Day, taskIndex int) (Task, bool) {
	if !ValidWeek(week) || taskIndex < 0 {
		return Task{}, false
	}
	for _, d := range c.days {
		if d.Day != day {
			continue
		}
		if taskIndex >= len(d.Tasks) {
			return Task{}, false
		}
		return c.weekTask(week, d.Tasks[taskIndex]), true
	}
	return Task{}, false
}

func (c *StaticCurriculum) Bindings() []ExerciseBinding {
	return c.bindings
}

func (c *StaticCurriculum) weekTask(week int, t Task) Task {
	if strings.Contains(t.Name, "%d") {
		t.Name = fmt.Sprintf(t.Name, LongRunDistanceKm(week))
	}
	return t
}
