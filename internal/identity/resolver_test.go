package identity

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValidCallSid(t *testing.T) {
	valid := "CA" + strings.Repeat("0", 31) + "1"
	require.True(t, ValidCallSid(valid))

	require.False(t, ValidCallSid(""))
	require.False(t, ValidCallSid("CA123"))
	require.False(t, ValidCallSid("RE"+strings.Repeat("0", 32)))
	require.False(t, ValidCallSid("CA"+strings.Repeat("G", 32)))
	require.False(t, ValidCallSid("ca"+strings.Repeat("0", 32)))
	require.False(t, ValidCallSid("CA"+strings.Repeat("0", 33)))
}
