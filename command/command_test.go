package command

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseRoundTrip(t *testing.T) {
	for _, v := range All() {
		require.Equal(t, v, Parse(v.String()))
	}
	require.Equal(t, Unknown, Parse("bogus"))
}

func TestForbiddenIsSticky(t *testing.T) {
	m := NewEnableMap()
	m.Set(Syslog, Forbidden)
	m.Set(Syslog, Enabled)
	require.Equal(t, Forbidden, m[Syslog])
}

func TestFreezeUnset(t *testing.T) {
	m := NewEnableMap()
	m.Set(Open, Desired)
	m.FreezeUnset()
	require.Equal(t, Desired, m[Open])
	require.Equal(t, Forbidden, m[Close])
}

func TestRequiredUnsatisfied(t *testing.T) {
	m := NewEnableMap()
	m.Set(Syslog, Required)
	m.Set(Open, Enabled)
	req := m.RequiredUnsatisfied()
	require.Equal(t, []Verb{Syslog}, req)
}
