package common

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// cronParser accepts standard 5-field cron expressions, evaluated in UTC.
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// ValidateCron checks a 5-field cron expression.
func ValidateCron(expression string) error {
	if expression == "" {
		return fmt.Errorf("cron expression is empty")
	}
	if _, err := cronParser.Parse(expression); err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", expression, err)
	}
	return nil
}

// NextCronRun returns the next UTC fire time of the expression after t.
func NextCronRun(expression string, t time.Time) (time.Time, error) {
	schedule, err := cronParser.Parse(expression)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid cron expression %q: %w", expression, err)
	}
	return schedule.Next(t.UTC()), nil
}

// NextCronRuns returns up to n upcoming UTC fire times after t.
func NextCronRuns(expression string, t time.Time, n int) ([]time.Time, error) {
	schedule, err := cronParser.Parse(expression)
	if err != nil {
		return nil, fmt.Errorf("invalid cron expression %q: %w", expression, err)
	}

	runs := make([]time.Time, 0, n)
	next := t.UTC()
	for i := 0; i < n; i++ {
		next = schedule.Next(next)
		if next.IsZero() {
			break
		}
		runs = append(runs, next)
	}
	return runs, nil
}
