package peerauth

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWildcardSuffixMatch(t *testing.T) {
	p, err := Compile("*.example.com")
	require.NoError(t, err)

	require.True(t, p.Match("host.example.com"))
	// Fewer components than the pattern: no match.
	require.False(t, p.Match("example.com"))
	// More components than the pattern ("*" absorbs exactly one label, not
	// a recursive suffix): no match.
	require.False(t, p.Match("a.b.example.com"))
}

func TestWildcardPrefixAndSuffixLiteral(t *testing.T) {
	p, err := Compile("host*.example.com")
	require.NoError(t, err)
	require.True(t, p.Match("host1.example.com"))
	require.False(t, p.Match("other.example.com"))

	p2, err := Compile("*host.example.com")
	require.NoError(t, err)
	require.True(t, p2.Match("myhost.example.com"))
	require.False(t, p2.Match("hostmine.example.com"))
}

func TestWildcardEmptyComponent(t *testing.T) {
	p, err := Compile("example.com.")
	require.NoError(t, err)
	require.True(t, p.Match("example.com."))
	require.False(t, p.Match("example.com"))
}

func TestWildcardBareStar(t *testing.T) {
	p, err := Compile("*.example.com")
	require.NoError(t, err)
	require.True(t, p.Match("anything.example.com"))
}

func TestWildcardInvalidPlacement(t *testing.T) {
	_, err := Compile("ho*st.example.com")
	require.Error(t, err)
	_, err = Compile("**.example.com")
	require.Error(t, err)
}

func TestMatchAny(t *testing.T) {
	patterns, err := CompileAll([]string{"mail.example.com", "*.internal.example.com"})
	require.NoError(t, err)
	require.True(t, MatchAny(patterns, "mail.example.com"))
	require.True(t, MatchAny(patterns, "db.internal.example.com"))
	require.False(t, MatchAny(patterns, "db.other.example.com"))
}
