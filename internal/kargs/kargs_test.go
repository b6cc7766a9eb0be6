package kargs

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseToStringRoundTrip(t *testing.T) {
	cases := []string{
		"",
		"quiet",
		"root=/dev/sda1 rw",
		"key= other=value bare",
		"test=a test=b test=a",
	}
	for _, c := range cases {
		m := Parse(c)
		got := m.String()
		require.Equal(t, Parse(c).Entries(), Parse(got).Entries(), "round trip mismatch for %q", c)
	}
}

func TestBareVsEmptyValueDistinct(t *testing.T) {
	m := Parse("foo bar=")
	entries := m.Entries()
	require.Len(t, entries, 2)
	require.Equal(t, Entry{Key: "foo", Value: "", HasValue: false}, entries[0])
	require.Equal(t, Entry{Key: "bar", Value: "", HasValue: true}, entries[1])
	require.Equal(t, "foo bar=", m.String())
}

func TestReplaceScenarioS5(t *testing.T) {
	m := Parse("single_key=test test=a test=b")

	require.NoError(t, m.Replace("single_key=new"))
	require.Equal(t, "single_key=new test=a test=b", m.String())

	err := m.Replace("test=new")
	require.Error(t, err)

	require.NoError(t, m.Replace("test=a=new"))
	require.Equal(t, "single_key=new test=new test=b", m.String())
}

func TestAppendDeleteNoOp(t *testing.T) {
	for _, arg := range []string{"newkey", "newkey=value", "newkey="} {
		m := Parse("existing=1 other")
		before := append([]Entry{}, m.Entries()...)
		m.Append(arg)
		require.NoError(t, m.Delete(arg))
		require.Equal(t, before, m.Entries())
	}
}

func TestDeleteAmbiguous(t *testing.T) {
	m := Parse("test=a test=b")
	err := m.Delete("test")
	require.Error(t, err)
}

func TestDeleteBareKey(t *testing.T) {
	m := Parse("quiet root=/dev/sda1")
	require.NoError(t, m.Delete("quiet"))
	require.Equal(t, "root=/dev/sda1", m.String())
}

func TestAppendIfMissing(t *testing.T) {
	m := Parse("a=1")
	m.AppendIfMissing("a=1")
	require.Equal(t, "a=1", m.String())
	m.AppendIfMissing("a=2")
	require.Equal(t, "a=1 a=2", m.String())
}

func TestGetLastValue(t *testing.T) {
	m := Parse("test=a test=b")
	v, ok := m.Get("test")
	require.True(t, ok)
	require.Equal(t, "b", v)

	_, ok = m.Get("missing")
	require.False(t, ok)
}

func TestReplaceOrAppend(t *testing.T) {
	m := Parse("a=1")
	m.ReplaceOrAppend("a=2")
	require.Equal(t, "a=2", m.String())

	m2 := Parse("")
	m2.ReplaceOrAppend("b=1")
	require.Equal(t, "b=1", m2.String())
}
