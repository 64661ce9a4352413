package simerr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
)

func TestConfigurationError(t *testing.T) {
	cause := errors.New("no entry")
	err := NewConfigurationError("funnel", "stages.proposal.leakage", cause)

	assert.Contains(t, err.Error(), "funnel")
	assert.Contains(t, err.Error(), "stages.proposal.leakage")
	assert.Contains(t, err.Error(), "no entry")
	assert.ErrorIs(t, err, cause)
	assert.True(t, IsConfiguration(err))
	assert.False(t, IsPrecondition(err))
	assert.False(t, IsRange(err))
}

func TestConfigurationError_NoCause(t *testing.T) {
	err := NewConfigurationError("features", "size_band", nil)
	assert.Equal(t, `features: configuration missing for "size_band"`, err.Error())
	assert.Nil(t, err.Unwrap())
}

func TestIsConfiguration_Wrapped(t *testing.T) {
	base := NewConfigurationError("features", "industry", nil)

	assert.True(t, IsConfiguration(fmt.Errorf("extract: %w", base)))
	assert.True(t, IsConfiguration(eris.Wrap(base, "engine: process company")))
}

func TestPreconditionError(t *testing.T) {
	err := NewPreconditionError("revenue.Model", "deal outcome is lost, want won")

	assert.Equal(t, "revenue.Model: precondition violated: deal outcome is lost, want won", err.Error())
	assert.True(t, IsPrecondition(eris.Wrap(err, "engine")))
	assert.False(t, IsConfiguration(err))
}

func TestRangeError(t *testing.T) {
	err := &RangeError{Field: "probability.create.base_rate", Value: 1.4, Min: 0, Max: 1}

	assert.Equal(t, "config: probability.create.base_rate = 1.4 outside [0, 1]", err.Error())
	assert.True(t, IsRange(fmt.Errorf("validate: %w", err)))
}

func TestNilErrors(t *testing.T) {
	assert.False(t, IsConfiguration(nil))
	assert.False(t, IsPrecondition(nil))
	assert.False(t, IsRange(nil))
}
