package seed

import (
	"math"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sample(s *Stream, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = s.Float64()
	}
	return out
}

func TestStreamDeterministic(t *testing.T) {
	t.Parallel()

	c := NewController(42)
	a := sample(c.Stream("acme.com", StreamFunnel), 16)
	b := sample(NewController(42).Stream("acme.com", StreamFunnel), 16)
	assert.Equal(t, a, b)
}

func TestStreamsAreIndependent(t *testing.T) {
	t.Parallel()

	c := NewController(42)
	entry := sample(c.Stream("acme.com", StreamEntry), 8)
	funnel := sample(c.Stream("acme.com", StreamFunnel), 8)
	other := sample(c.Stream("globex.com", StreamEntry), 8)
	reseeded := sample(NewController(43).Stream("acme.com", StreamEntry), 8)

	assert.NotEqual(t, entry, funnel)
	assert.NotEqual(t, entry, other)
	assert.NotEqual(t, entry, reseeded)
}

func TestDrawCountDoesNotLeakAcrossStreams(t *testing.T) {
	t.Parallel()

	c := NewController(7)

	set := c.Streams("acme.com")
	sample(set.Entry, 1000)
	afterHeavyUse := sample(set.Funnel, 4)

	fresh := sample(c.Stream("acme.com", StreamFunnel), 4)
	assert.Equal(t, fresh, afterHeavyUse)
}

func TestDrawsCounter(t *testing.T) {
	t.Parallel()

	s := NewController(1).Stream("k", StreamProfile)
	assert.Equal(t, 0, s.Draws())
	s.Float64()
	s.IntRange(1, 5)
	s.Normal(0, 1)
	assert.Equal(t, 4, s.Draws())
}

func TestIntRange(t *testing.T) {
	t.Parallel()

	s := NewController(3).Stream("k", StreamFunnel)
	seen := map[int]bool{}
	for i := 0; i < 2000; i++ {
		n := s.IntRange(1, 5)
		require.GreaterOrEqual(t, n, 1)
		require.LessOrEqual(t, n, 5)
		seen[n] = true
	}
	assert.Len(t, seen, 5)

	before := s.Draws()
	assert.Equal(t, 9, s.IntRange(9, 9))
	assert.Equal(t, before+1, s.Draws())
}

func TestNormalMoments(t *testing.T) {
	t.Parallel()

	s := NewController(11).Stream("k", StreamFunnel)
	const n = 20000
	var sum, sumSq float64
	for i := 0; i < n; i++ {
		x := s.Normal(2, 0.5)
		sum += x
		sumSq += x * x
	}
	mean := sum / n
	variance := sumSq/n - mean*mean
	assert.InDelta(t, 2.0, mean, 0.02)
	assert.InDelta(t, 0.25, variance, 0.02)
}

func TestLogNormalPositive(t *testing.T) {
	t.Parallel()

	s := NewController(5).Stream("k", StreamFunnel)
	for i := 0; i < 1000; i++ {
		assert.Greater(t, s.LogNormal(2.5, 0.5), 0.0)
	}
}

func TestBetaMeanAndBounds(t *testing.T) {
	t.Parallel()

	s := NewController(9).Stream("k", StreamRevenue)
	const n = 20000
	var sum float64
	for i := 0; i < n; i++ {
		x := s.Beta(2.2, 2.2)
		require.GreaterOrEqual(t, x, 0.0)
		require.LessOrEqual(t, x, 1.0)
		sum += x
	}
	assert.InDelta(t, 0.5, sum/n, 0.01)
}

func TestGammaMean(t *testing.T) {
	t.Parallel()

	s := NewController(13).Stream("k", StreamRevenue)
	for _, shape := range []float64{0.5, 2.2, 9} {
		const n = 20000
		var sum float64
		for i := 0; i < n; i++ {
			sum += s.Gamma(shape)
		}
		assert.InDelta(t, shape, sum/n, shape*0.05, "shape %g", shape)
	}
	assert.Zero(t, s.Gamma(0))
}

func TestChoice(t *testing.T) {
	t.Parallel()

	s := NewController(17).Stream("k", StreamRevenue)
	counts := make([]int, 3)
	const n = 10000
	for i := 0; i < n; i++ {
		counts[s.Choice([]float64{0.3, 0, 0.7})]++
	}
	assert.Zero(t, counts[1])
	assert.InDelta(t, 0.3, float64(counts[0])/n, 0.03)
	assert.InDelta(t, 0.7, float64(counts[2])/n, 0.03)

	assert.Equal(t, -1, s.Choice(nil))
	assert.Equal(t, -1, s.Choice([]float64{0, -1}))
}

func TestBernoulliExtremes(t *testing.T) {
	t.Parallel()

	s := NewController(19).Stream("k", StreamEntry)
	for i := 0; i < 100; i++ {
		assert.False(t, s.Bernoulli(0))
		assert.True(t, s.Bernoulli(1))
	}
}

func TestUniformRange(t *testing.T) {
	t.Parallel()

	s := NewController(23).Stream("k", StreamProfile)
	for i := 0; i < 1000; i++ {
		x := s.Uniform(10, 20)
		assert.GreaterOrEqual(t, x, 10.0)
		assert.Less(t, x, 20.0)
		assert.False(t, math.IsNaN(x))
	}
}

func TestIDDeterministic(t *testing.T) {
	t.Parallel()

	c := NewController(42)
	id := c.ID("acme.com", "deal")
	assert.Equal(t, id, NewController(42).ID("acme.com", "deal"))
	assert.NotEqual(t, id, c.ID("acme.com", "billing"))
	assert.NotEqual(t, id, NewController(41).ID("acme.com", "deal"))

	parsed, err := uuid.Parse(id)
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(5), parsed.Version())
}
