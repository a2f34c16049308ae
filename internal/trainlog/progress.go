package trainlog

import "fmt"

type TaskProgress struct {
	Index int    `json:"index"`
	Task  Task   `json:"task"`
	Done  bool   `json:"done"`
	Value string `json:"value,omitempty"`
}

type DayProgress struct {
	Day   Day            `json:"day"`
	Title string         `json:"title"`
	Tasks []TaskProgress `json:"tasks"`
	Done  int            `json:"done"`
	Total int            `json:"total"`
}

type WeekProgress struct {
	Week      int           `json:"week"`
	Phase     Phase         `json:"phase"`
	LongRunKm int           `json:"longRunKm"`
	Days      []DayProgress `json:"days"`
	Done      int           `json:"done"`
	Total     int           `json:"total"`
	Percent   float64       `json:"percent"`
}

// BuildWeekProgress reconstructs the completion state of one week from the log.
func BuildWeekProgress(store *LogStore, curriculum Curriculum, week int) (*WeekProgress, error) {
	plan, err := curriculum.Week(week)
	if err != nil {
		return nil, fmt.Errorf("week plan: %w", err)
	}

	progress := &WeekProgress{
		Week:      plan.Week,
		Phase:     plan.Phase,
		LongRunKm: plan.LongRunKm,
		Days:      make([]DayProgress, 0, len(plan.Days)),
	}

	for _, dayPlan := range plan.Days {
		dp := DayProgress{
			Day:   dayPlan.Day,
			Title: dayPlan.Title,
			Tasks: make([]TaskProgress, 0, len(dayPlan.Tasks)),
			Total: len(dayPlan.Tasks),
		}
		for i, task := range dayPlan.Tasks {
			tp := TaskProgress{
				Index: i,
				Task:  task,
				Done:  store.Completion(week, dayPlan.Day, i),
			}
			if task.HasNumericInput {
				tp.Value = store.Value(week, dayPlan.Day, i)
			}
			if tp.Done {
				dp.Done++
			}
			dp.Tasks = append(dp.Tasks, tp)
		}
		progress.Done += dp.Done
		progress.Total += dp.Total
		progress.Days = append(progress.Days, dp)
	}

	if progress.Total > 0 {
		p := float64(progress.Done) / float64(progress.Total) * 100
		// leave only 2 decimals
		progress.Percent = float64(int(p*100)) / 100
	}

	return progress, nil
}
