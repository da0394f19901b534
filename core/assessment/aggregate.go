package assessment

import (
	"fmt"
	"math"
	"strconv"
	"time"
)

// Score bands for teacher-facing results views.
const (
	BandExcellent    = "excellent"
	BandGood         = "good"
	BandAverage      = "average"
	BandBelowAverage = "below-average"
	BandPoor         = "poor"
	BandNeutral      = "neutral"
)

// Average is a mean score carrying the "N/A" sentinel: zero contributing
// results is distinct from a true average of 0.
type Average struct {
	Value float64
	Valid bool
}

func NewAverage(total float64, count int) Average {
	if count == 0 {
		return Average{}
	}
	return Average{Value: total / float64(count), Valid: true}
}

// MarshalJSON renders a valid Average as a 1-decimal string and an invalid
// one as "N/A", matching the results view contract.
func (a Average) MarshalJSON() ([]byte, error) {
	return []byte(strconv.Quote(a.String())), nil
}

func (a Average) String() string {
	if !a.Valid {
		return "N/A"
	}
	return strconv.FormatFloat(a.Value, 'f', 1, 64)
}

// Display renders "7.5/10" style score-out-of-max strings.
func (a Average) Display(maxScore float64) string {
	return fmt.Sprintf("%s/%s", a.String(), strconv.FormatFloat(maxScore, 'f', -1, 64))
}

// Band buckets a score against its maximum into a display band.
// Neutral covers the N/A case (absent score or absent/zero max).
func Band(a Average, maxScore float64) string {
	if !a.Valid || a.Value == 0 || maxScore == 0 {
		return BandNeutral
	}
	percentage := a.Value / maxScore * 100
	switch {
	case percentage >= 80:
		return BandExcellent
	case percentage >= 70:
		return BandGood
	case percentage >= 60:
		return BandAverage
	case percentage >= 50:
		return BandBelowAverage
	default:
		return BandPoor
	}
}

// CompletionPercentage is the share of group students with a submitted
// response, rounded to the nearest integer; 0 for an empty group.
func CompletionPercentage(responsesCount, studentsCount int) int {
	if studentsCount == 0 {
		return 0
	}
	return int(math.Round(float64(responsesCount) / float64(studentsCount) * 100))
}

// IsCompleted reports whether an assessment is done from the teacher's
// perspective: past due, or fully submitted.
func IsCompleted(now, dueDate time.Time, responsesCount, studentsCount int) bool {
	return dueDate.Before(now) || (studentsCount > 0 && responsesCount == studentsCount)
}

// CompletionDate is the timestamp shown on teacher lists: the latest
// submission when everyone submitted, the due date when overdue, else nil.
func CompletionDate(now, dueDate time.Time, lastSubmittedAt *time.Time, responsesCount, studentsCount int) *time.Time {
	if studentsCount > 0 && responsesCount == studentsCount && lastSubmittedAt != nil {
		return lastSubmittedAt
	}
	if dueDate.Before(now) {
		return &dueDate
	}
	return nil
}

// EvaluateeAverages pools the submitted scores per evaluated peer,
// preserving first-seen order.
func EvaluateeAverages(scores []ScoreEntry) []EvaluateeAverage {
	type acc struct {
		total float64
		count int
	}
	order := make([]string, 0, len(scores))
	sums := make(map[string]*acc, len(scores))
	for _, s := range scores {
		a, ok := sums[s.StudentID]
		if !ok {
			a = &acc{}
			sums[s.StudentID] = a
			order = append(order, s.StudentID)
		}
		a.total += *s.Score
		a.count++
	}

	avgs := make([]EvaluateeAverage, 0, len(order))
	for _, id := range order {
		a := sums[id]
		avgs = append(avgs, EvaluateeAverage{StudentID: id, Average: a.total / float64(a.count)})
	}
	return avgs
}
