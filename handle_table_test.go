package smbc

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestHandleTableLimit(t *testing.T) {
	ht := newHandleTable(2, nil)

	require.NoError(t, ht.reserve())
	require.NoError(t, ht.reserve())

	// pending reservations count against the limit
	require.ErrorIs(t, ht.reserve(), ErrTooManyOpenFiles)

	ht.release()
	require.NoError(t, ht.reserve())

	ht.commit(&handle{id: 1, name: "a"})
	ht.commit(&handle{id: 2, name: "b"})
	require.Equal(t, 2, ht.len())
	require.ErrorIs(t, ht.reserve(), ErrTooManyOpenFiles)

	require.True(t, ht.remove(1))
	require.False(t, ht.remove(1))
	require.Equal(t, 1, ht.len())
	require.NoError(t, ht.reserve())
}

func TestHandleTableUnlimited(t *testing.T) {
	ht := newHandleTable(0, nil)

	for i := range 100 {
		require.NoError(t, ht.reserve())
		ht.commit(&handle{id: HandleID(i + 1)})
	}
	require.Equal(t, 100, ht.len())
}

func TestHandleTableDrain(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	ht := newHandleTable(0, m)

	for _, h := range []*handle{
		{id: 7, name: "late"},
		{id: 3, name: "early"},
		{id: 5, name: "middle"},
	} {
		require.NoError(t, ht.reserve())
		ht.commit(h)
	}
	require.Equal(t, 3.0, testutil.ToFloat64(m.OpenHandles))

	hs := ht.drain()
	require.Len(t, hs, 3)

	var names []string
	for _, h := range hs {
		require.True(t, h.closed.Load())
		names = append(names, h.name)
	}
	require.Equal(t, []string{"early", "middle", "late"}, names)

	require.Zero(t, ht.len())
	require.Equal(t, 0.0, testutil.ToFloat64(m.OpenHandles))
	require.Empty(t, ht.drain())
	require.False(t, ht.remove(3))
}
