package core

const (
	MoodHappy    Mood = "happy"
	MoodThinking Mood = "thinking"
)

type Mood string

// Insight is the one-line assistant message shown above the dashboard.
type Insight struct {
	Message string `json:"message"`
	Mood    Mood   `json:"mood"`
}

// Dashboard is everything the dashboard page renders. Company is nil when no
// company exists yet, in which case every metric is zero.
type Dashboard struct {
	Company        *Company              `json:"company"`
	Transactions   []Transaction         `json:"transactions"`
	Entities       []Entity              `json:"entities"`
	Metrics        DashboardMetrics      `json:"metrics"`
	RunningBalance []RunningBalanceEntry `json:"runningBalance"`
	Insight        Insight               `json:"insight"`
}

// Empty reports whether the dashboard has no company to show.
func (d Dashboard) Empty() bool { return d.Company == nil }
