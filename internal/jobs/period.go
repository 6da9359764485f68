package jobs

import "time"

// PeriodKeyer maps a trigger instant to the run-ledger period a posting
// belongs to. A job posts at most once per user and period.
type PeriodKeyer interface {
	Key(now time.Time) string
}

// MonthlyPeriod keys by calendar month, so a salary is credited once per month
// even if the job is re-triggered or the salary day is edited.
type MonthlyPeriod struct{}

func (MonthlyPeriod) Key(now time.Time) string { return now.UTC().Format("2006-01") }

// DailyPeriod keys by calendar day.
type DailyPeriod struct{}

func (DailyPeriod) Key(now time.Time) string { return now.UTC().Format("2006-01-02") }

var periodKeyers = map[string]PeriodKeyer{
	SalaryJobName: MonthlyPeriod{},
	NeedsJobName:  DailyPeriod{},
}

// PeriodFor returns the keyer registered for job, defaulting to DailyPeriod.
func PeriodFor(job string) PeriodKeyer {
	if k, ok := periodKeyers[job]; ok {
		return k
	}
	return DailyPeriod{}
}
