package stats_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/postwave/post-gateway/internal/stats"
)

func TestAggregatorLifecycle(t *testing.T) {
	a := stats.NewAggregator()

	for i := 0; i < 4; i++ {
		a.RecordCreated("twitter")
	}
	a.RecordPosted("twitter")
	a.RecordPosted("twitter")
	a.RecordFailed("twitter")
	a.RecordCancelled("twitter")

	s := a.Channel("twitter")
	require.EqualValues(t, 4, s.Total)
	require.EqualValues(t, 2, s.Successful)
	require.EqualValues(t, 1, s.Failed)
	require.EqualValues(t, 0, s.Pending)
	require.InDelta(t, 2.0/3.0, s.SuccessRate, 1e-9)
}

func TestAggregatorNoOutcomesYet(t *testing.T) {
	a := stats.NewAggregator()
	a.RecordCreated("linkedin")

	s := a.Channel("linkedin")
	require.EqualValues(t, 1, s.Pending)
	require.Zero(t, s.SuccessRate, "no completed posts means no rate")
}

func TestAggregatorAllSorted(t *testing.T) {
	a := stats.NewAggregator()
	a.RecordCreated("twitter")
	a.RecordCreated("linkedin")
	a.RecordCreated("facebook")

	all := a.All()
	require.Len(t, all, 3)
	require.Equal(t, "facebook", all[0].Channel)
	require.Equal(t, "linkedin", all[1].Channel)
	require.Equal(t, "twitter", all[2].Channel)
}
