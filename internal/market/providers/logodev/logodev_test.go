package logodev

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookup(t *testing.T) {
	s := New(Config{Token: "pk_test"})
	u, err := s.Lookup(t.Context(), "BRK.B")
	require.NoError(t, err)
	assert.Equal(t, "https://img.logo.dev/ticker/BRK-B?retina=true&token=pk_test", u)
}

func TestLookup_NoToken(t *testing.T) {
	_, err := New(Config{}).Lookup(t.Context(), "AAPL")
	assert.ErrorIs(t, err, ErrNotFound)
}
