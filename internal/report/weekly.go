// Package report builds the weekly operational statistics: intake volume,
// examiner throughput and the decision breakdown over a seven-day window.
package report

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"sort"
	"text/tabwriter"
	"time"
)

// ExaminerCount is one examiner's completed-request tally.
type ExaminerCount struct {
	Examiner  string
	Completed int
}

// WeeklyStats is one week of operational numbers. Completed counts cover
// requests decided in the window regardless of when they were submitted.
type WeeklyStats struct {
	WeekStart time.Time
	WeekEnd   time.Time

	Submitted int
	Completed int

	Approved    int
	Conditional int
	Rejected    int

	PriorityCompleted int

	ByExaminer []ExaminerCount
}

// PriorityShare is the fraction of completed requests that were priority.
func (s *WeeklyStats) PriorityShare() float64 {
	if s.Completed == 0 {
		return 0
	}
	return float64(s.PriorityCompleted) / float64(s.Completed)
}

// Collect runs the weekly queries for the seven days ending at weekEnd.
func Collect(ctx context.Context, db *sql.DB, weekEnd time.Time) (*WeeklyStats, error) {
	stats := &WeeklyStats{
		WeekStart: weekEnd.AddDate(0, 0, -7),
		WeekEnd:   weekEnd,
	}

	err := db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM requests WHERE submitted_date >= $1 AND submitted_date < $2`,
		stats.WeekStart, stats.WeekEnd,
	).Scan(&stats.Submitted)
	if err != nil {
		return nil, fmt.Errorf("count submitted: %w", err)
	}

	rows, err := db.QueryContext(ctx, `
		SELECT state_cd, COUNT(*), COUNT(*) FILTER (WHERE priority)
		FROM requests
		WHERE state_cd IN ('APPROVED', 'CONDITIONAL', 'REJECTED')
		  AND last_update >= $1 AND last_update < $2
		GROUP BY state_cd
	`, stats.WeekStart, stats.WeekEnd)
	if err != nil {
		return nil, fmt.Errorf("count decisions: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			state           string
			total, priority int
		)
		if err := rows.Scan(&state, &total, &priority); err != nil {
			return nil, fmt.Errorf("scan decision counts: %w", err)
		}
		stats.Completed += total
		stats.PriorityCompleted += priority
		switch state {
		case "APPROVED":
			stats.Approved = total
		case "CONDITIONAL":
			stats.Conditional = total
		case "REJECTED":
			stats.Rejected = total
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("count decisions: %w", err)
	}

	exRows, err := db.QueryContext(ctx, `
		SELECT active_user, COUNT(*)
		FROM requests
		WHERE state_cd IN ('APPROVED', 'CONDITIONAL', 'REJECTED')
		  AND last_update >= $1 AND last_update < $2
		  AND active_user <> ''
		GROUP BY active_user
		ORDER BY COUNT(*) DESC, active_user ASC
	`, stats.WeekStart, stats.WeekEnd)
	if err != nil {
		return nil, fmt.Errorf("count per examiner: %w", err)
	}
	defer exRows.Close()
	for exRows.Next() {
		var ec ExaminerCount
		if err := exRows.Scan(&ec.Examiner, &ec.Completed); err != nil {
			return nil, fmt.Errorf("scan examiner counts: %w", err)
		}
		stats.ByExaminer = append(stats.ByExaminer, ec)
	}
	if err := exRows.Err(); err != nil {
		return nil, fmt.Errorf("count per examiner: %w", err)
	}

	return stats, nil
}

// Render writes the report as aligned text.
func (s *WeeklyStats) Render(w io.Writer) error {
	fmt.Fprintf(w, "Name request weekly report\n")
	fmt.Fprintf(w, "Week %s to %s\n\n",
		s.WeekStart.Format("2006-01-02"), s.WeekEnd.Format("2006-01-02"))

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "Submitted\t%d\n", s.Submitted)
	fmt.Fprintf(tw, "Completed\t%d\n", s.Completed)
	fmt.Fprintf(tw, "  Approved\t%d\n", s.Approved)
	fmt.Fprintf(tw, "  Conditional\t%d\n", s.Conditional)
	fmt.Fprintf(tw, "  Rejected\t%d\n", s.Rejected)
	fmt.Fprintf(tw, "Priority share\t%.1f%%\n", s.PriorityShare()*100)
	if err := tw.Flush(); err != nil {
		return err
	}

	if len(s.ByExaminer) == 0 {
		return nil
	}
	fmt.Fprintf(w, "\nCompleted by examiner\n")
	byEx := make([]ExaminerCount, len(s.ByExaminer))
	copy(byEx, s.ByExaminer)
	sort.SliceStable(byEx, func(i, j int) bool {
		if byEx[i].Completed != byEx[j].Completed {
			return byEx[i].Completed > byEx[j].Completed
		}
		return byEx[i].Examiner < byEx[j].Examiner
	})
	tw = tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, ec := range byEx {
		fmt.Fprintf(tw, "%s\t%d\n", ec.Examiner, ec.Completed)
	}
	return tw.Flush()
}
