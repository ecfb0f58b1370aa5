package resilience

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrapNilReturnsNil(t *testing.T) {
	assert.Nil(t, Wrap(ArchiveIO, "op", nil))
}

func TestWrapPreservesCauseForErrorsIs(t *testing.T) {
	cause := errors.New("boom")
	wrapped := Wrap(ModuleLoad, "module.load", cause)

	require.Error(t, wrapped)
	assert.True(t, errors.Is(wrapped, cause))
}

func TestKindOfExtractsKind(t *testing.T) {
	wrapped := Wrap(ConfigLoad, "main_config.load", errors.New("bad json"))

	kind, ok := KindOf(wrapped)
	require.True(t, ok)
	assert.Equal(t, ConfigLoad, kind)
}

func TestKindOfFalseForPlainError(t *testing.T) {
	_, ok := KindOf(errors.New("plain"))
	assert.False(t, ok)
}

func TestKindOfSeesThroughExtraWrapping(t *testing.T) {
	inner := Wrap(FilterError, "filter.compile", errors.New("bad regex"))
	outer := errors.New("context: " + inner.Error())

	_, ok := KindOf(outer)
	assert.False(t, ok, "a re-stringified error loses its Kind, unlike one wrapped with %w")

	rewrapped := fmt.Errorf("context: %w", inner)
	kind, ok := KindOf(rewrapped)
	require.True(t, ok)
	assert.Equal(t, FilterError, kind)
}
