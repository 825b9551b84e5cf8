// Package ranking picks the task to work on next.
//
// Two strategies are provided:
// NextBest is a strict lexicographic pick (priority, then deadline) and
// Recommend maximizes a blended score that rewards imminent deadlines and
// penalizes overdue ones. Both are pure: they never modify the tasks they
// are given.
package ranking

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/GoCodeAlone/smarttodo/task"
)

var (
	// ErrNoEligibleTasks is returned by NextBest when nothing is pending.
	ErrNoEligibleTasks = errors.New("no pending tasks")

	// ErrNothingToRecommend is returned by Recommend when nothing is pending.
	// Callers map it to a different status than ErrNoEligibleTasks.
	ErrNothingToRecommend = errors.New("no tasks to recommend")
)

// DeadlineWindow is the number of days before a deadline during which
// Recommend adds a proximity bonus.
const DeadlineWindow = 10

// Eligible returns the tasks whose status allows ranking, in input order.
func Eligible(tasks []*task.Task) []*task.Task {
	out := make([]*task.Task, 0, len(tasks))
	for _, t := range tasks {
		if t != nil && t.Status.Eligible() {
			out = append(out, t)
		}
	}
	return out
}

// Order returns the eligible tasks sorted by descending priority score, then
// ascending deadline with missing deadlines last. Equal keys keep their
// input order.
func Order(tasks []*task.Task) []*task.Task {
	out := Eligible(tasks)
	slices.SortStableFunc(out, compareNextBest)
	return out
}

// NextBest returns the first task of Order.
func NextBest(tasks []*task.Task) (*task.Task, error) {
	ordered := Order(tasks)
	if len(ordered) == 0 {
		return nil, ErrNoEligibleTasks
	}
	return ordered[0], nil
}

func compareNextBest(a, b *task.Task) int {
	if c := cmp.Compare(b.PriorityScore, a.PriorityScore); c != 0 {
		return c
	}
	return compareDeadline(a.Deadline, b.Deadline)
}

// compareDeadline orders nil after every real deadline.
func compareDeadline(a, b *time.Time) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return 1
	case b == nil:
		return -1
	}
	return a.Compare(*b)
}

// DaysLeft is the number of calendar days from now's date to the deadline's
// date, both taken in now's location. Time of day is ignored.
func DaysLeft(deadline, now time.Time) int {
	d := deadline.In(now.Location())
	due := time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC)
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	return int(due.Sub(today) / (24 * time.Hour))
}

// Score is the Recommend score of t at now.
func Score(t *task.Task, now time.Time) float64 {
	score := t.PriorityScore
	if t.Deadline == nil {
		return score
	}
	days := DaysLeft(*t.Deadline, now)
	if days < 0 {
		return score + float64(days)
	}
	return score + float64(max(0, DeadlineWindow-days))
}

// Recommend returns the eligible task with the highest Score. On ties the
// earliest task in input order wins.
func Recommend(tasks []*task.Task, now time.Time) (*task.Task, error) {
	var best *task.Task
	var bestScore float64
	for _, t := range Eligible(tasks) {
		s := Score(t, now)
		if best == nil || s > bestScore {
			best, bestScore = t, s
		}
	}
	if best == nil {
		return nil, ErrNothingToRecommend
	}
	return best, nil
}

// Lister is the part of task.Store the Ranker reads.
type Lister interface {
	ListTasks(ctx context.Context, filter task.Filter) ([]*task.Task, error)
}

// Ranker fetches a fresh snapshot of eligible tasks and applies a strategy.
type Ranker struct {
	Store Lister
	// Now defaults to time.Now.
	Now func() time.Time
	// Location is where "today" is evaluated. Defaults to UTC.
	Location *time.Location
}

// NextBest applies the NextBest strategy to the current eligible tasks.
func (r *Ranker) NextBest(ctx context.Context) (*task.Task, error) {
	tasks, err := r.eligible(ctx)
	if err != nil {
		return nil, err
	}
	return NextBest(tasks)
}

// Recommend applies the Recommend strategy to the current eligible tasks.
func (r *Ranker) Recommend(ctx context.Context) (*task.Task, error) {
	tasks, err := r.eligible(ctx)
	if err != nil {
		return nil, err
	}
	return Recommend(tasks, r.now())
}

// eligible lists pending and in-progress tasks oldest first, which is the
// iteration order both strategies break ties with.
func (r *Ranker) eligible(ctx context.Context) ([]*task.Task, error) {
	tasks, err := r.Store.ListTasks(ctx, task.Filter{Statuses: task.EligibleStatuses(), Oldest: true})
	if err != nil {
		return nil, fmt.Errorf("ranking: list eligible tasks: %w", err)
	}
	return tasks, nil
}

func (r *Ranker) now() time.Time {
	now := time.Now
	if r.Now != nil {
		now = r.Now
	}
	loc := r.Location
	if loc == nil {
		loc = time.UTC
	}
	return now().In(loc)
}
