package runs

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCheckCleanupEligible(t *testing.T) {
	now := time.Now()
	tests := []struct {
		name          string
		run           Run
		acceptPartial bool
		eligible      bool
	}{
		{name: "success", run: Run{Outcome: OutcomeSuccess}, eligible: true},
		{name: "partial without acceptance", run: Run{Outcome: OutcomePartial}, eligible: false},
		{name: "partial accepted now", run: Run{Outcome: OutcomePartial}, acceptPartial: true, eligible: true},
		{name: "partial acknowledged earlier", run: Run{Outcome: OutcomePartial, AcknowledgedAt: &now}, eligible: true},
		{name: "failed even when accepted", run: Run{Outcome: OutcomeFailed}, acceptPartial: true, eligible: false},
		{name: "dry run success", run: Run{Outcome: OutcomeSuccess, DryRun: true}, eligible: false},
		{name: "already cleaned", run: Run{Outcome: OutcomeSuccess, CleanedAt: &now}, eligible: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.run.RunID = "r1"
			err := CheckCleanupEligible(&tt.run, tt.acceptPartial)
			if tt.eligible {
				require.NoError(t, err)
				return
			}
			var ne *NotEligibleError
			require.True(t, errors.As(err, &ne), "should be NotEligibleError, got %v", err)
			require.Equal(t, "r1", ne.RunID)
		})
	}
}

func TestCheckCleanupHistory(t *testing.T) {
	now := time.Now()
	history := []*Run{
		{ID: 4, RunID: "r4", Outcome: OutcomeSuccess},
		{ID: 3, RunID: "r3", Outcome: OutcomePartial, DryRun: true},
		{ID: 2, RunID: "r2", Outcome: OutcomePartial},
		{ID: 1, RunID: "r1", Outcome: OutcomeFailed},
		{ID: 0, RunID: "r0", Outcome: OutcomePartial, AcknowledgedAt: &now},
	}

	_, err := CheckCleanupHistory(history, false)
	var ne *NotEligibleError
	require.ErrorAs(t, err, &ne)
	require.Equal(t, "r1", ne.RunID, "oldest outstanding run is named")
	require.Contains(t, ne.Reason, "2 earlier run(s)")

	accepted, err := CheckCleanupHistory(history, true)
	require.NoError(t, err)
	ids := make([]string, 0, len(accepted))
	for _, r := range accepted {
		ids = append(ids, r.RunID)
	}
	require.Equal(t, []string{"r1", "r2"}, ids)

	accepted, err = CheckCleanupHistory(history[:1], false)
	require.NoError(t, err)
	require.Empty(t, accepted)
}
