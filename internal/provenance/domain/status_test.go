package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestJobStatus_CanTransitionTo(t *testing.T) {
	all := []JobStatus{JobQueued, JobRunning, JobSuccess, JobError}
	allowed := map[[2]JobStatus]bool{
		{JobQueued, JobRunning}:  true,
		{JobRunning, JobSuccess}: true,
		{JobRunning, JobError}:   true,
	}
	for _, from := range all {
		for _, to := range all {
			want := allowed[[2]JobStatus{from, to}]
			require.Equal(t, want, from.CanTransitionTo(to), "%s -> %s", from, to)
		}
	}
}

func TestJobStatus_TerminalNeverFlips(t *testing.T) {
	require.False(t, JobSuccess.CanTransitionTo(JobError))
	require.False(t, JobError.CanTransitionTo(JobSuccess))
	require.True(t, JobSuccess.IsTerminal())
	require.False(t, JobRunning.IsTerminal())
}

func TestProcessingJob_TransitionTo(t *testing.T) {
	j := NewProcessingJob(1, nil, JobRunning, 0, time.Now())

	err := j.TransitionTo(JobError, 0)
	require.ErrorIs(t, err, ErrMissingLogRef)
	require.Equal(t, JobRunning, j.Status(), "failed transition must not change state")

	require.NoError(t, j.TransitionTo(JobError, 9))
	require.Equal(t, JobError, j.Status())
	require.Equal(t, int64(9), j.LogID())

	err = j.TransitionTo(JobSuccess, 0)
	var cv *ConstraintViolation
	require.True(t, errors.As(err, &cv))
	require.ErrorIs(t, err, ErrInvalidTransition)
}

func TestArtifact_Parents(t *testing.T) {
	a := NewDerivedArtifact("BIOM", 3, "rarefied_table", []int64{5, 2, 5}, VisibilitySandbox, nil, time.Now())
	require.Equal(t, []int64{2, 5}, a.Parents(), "parents are sorted and deduplicated")
	require.True(t, a.HasParent(5))
	require.False(t, a.IsRoot())

	a.AddParent(1)
	require.Equal(t, []int64{1, 2, 5}, a.Parents())

	root := NewArtifact("BIOM", VisibilitySandbox, nil, time.Now())
	require.True(t, root.IsRoot())
	require.Empty(t, root.Parents())
}

func TestVisibility_IsValid(t *testing.T) {
	require.True(t, VisibilitySandbox.IsValid())
	require.False(t, Visibility("hidden").IsValid())
}

func TestIsNotFound(t *testing.T) {
	require.True(t, IsNotFound(&NotFoundError{Entity: "artifact", ID: 1}))
	require.False(t, IsNotFound(ErrCycleDetected))
}
