//go:build integration

package report_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	nrmodels "namereg/internal/namerequest/models"
	nrstore "namereg/internal/namerequest/store"
	"namereg/internal/report"
	"namereg/pkg/testutil/containers"
)

func TestCollectWeekly(t *testing.T) {
	pg := containers.GetManager().GetPostgres(t)
	ctx := context.Background()
	require.NoError(t, pg.TruncateTables(ctx, "requests"))

	st := nrstore.NewPostgres(pg.DB)
	weekEnd := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	inWeek := weekEnd.AddDate(0, 0, -3)

	seed := func(nr string, state nrmodels.State, examiner string, priority bool, submitted time.Time) {
		created, err := st.Create(ctx, &nrmodels.Request{
			NRNum:         nr,
			State:         nrmodels.StateDraft,
			SubmittedDate: submitted,
			Priority:      priority,
		})
		require.NoError(t, err)
		created.State = state
		created.ActiveUser = examiner
		created.LastUpdate = inWeek
		_, err = st.Update(ctx, created)
		require.NoError(t, err)
	}

	seed("NR 0000001", nrmodels.StateApproved, "examiner1", true, inWeek)
	seed("NR 0000002", nrmodels.StateApproved, "examiner1", false, inWeek)
	seed("NR 0000003", nrmodels.StateRejected, "examiner2", false, inWeek)
	// Submitted in the week but not decided.
	seed("NR 0000004", nrmodels.StateDraft, "", false, inWeek)
	// Decided long before the window.
	seed("NR 0000005", nrmodels.StateApproved, "examiner1", false, weekEnd.AddDate(0, 0, -30))

	stats, err := report.Collect(ctx, pg.DB, weekEnd)
	require.NoError(t, err)

	assert.Equal(t, 4, stats.Submitted)
	assert.Equal(t, 3, stats.Completed)
	assert.Equal(t, 2, stats.Approved)
	assert.Equal(t, 1, stats.Rejected)
	assert.Equal(t, 1, stats.PriorityCompleted)
	require.Len(t, stats.ByExaminer, 2)
	assert.Equal(t, "examiner1", stats.ByExaminer[0].Examiner)
	assert.Equal(t, 2, stats.ByExaminer[0].Completed)
}
