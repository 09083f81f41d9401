package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPropsSetGet(t *testing.T) {
	p := NewProps()

	old, existed, err := p.Set("/NetCom/default/Port/", "3366")
	require.NoError(t, err)
	assert.False(t, existed)
	assert.Empty(t, old)

	v, ok := p.Get("NetCom/default/Port")
	assert.True(t, ok)
	assert.Equal(t, "3366", v)

	old, existed, err = p.Set("NetCom/default/Port", "3367")
	require.NoError(t, err)
	assert.True(t, existed)
	assert.Equal(t, "3366", old)

	assert.Equal(t, "fallback", p.GetOr("Aux/missing", "fallback"))
}

func TestPropsInvalidKeys(t *testing.T) {
	p := NewProps()
	for _, key := range []string{"", "/", "a//b"} {
		_, _, err := p.Set(key, "v")
		assert.Error(t, err, "key %q", key)
	}
	assert.Equal(t, 0, p.Len())
}

func TestPropsNamespace(t *testing.T) {
	p, err := PropsFromMap(map[string]string{
		"NetCom/default/Port": "3366",
		"NetCom/default/Type": "plain",
		"Aux/rack":            "r1",
	})
	require.NoError(t, err)

	ns := p.Namespace("NetCom/default")
	assert.Equal(t, map[string]string{"Port": "3366", "Type": "plain"}, ns)
	assert.Equal(t, []string{"Aux/rack", "NetCom/default/Port", "NetCom/default/Type"}, p.Keys())
}

func TestPropsReplaceIsAllOrNothing(t *testing.T) {
	p, err := PropsFromMap(map[string]string{"Aux/a": "1"})
	require.NoError(t, err)

	err = p.Replace(map[string]string{"Aux/b": "2", "bad//key": "3"})
	assert.Error(t, err)
	assert.True(t, p.Equal(map[string]string{"Aux/a": "1"}))
}

func TestEqualPropsNilAndEmpty(t *testing.T) {
	assert.True(t, EqualProps(nil, map[string]string{}))
	assert.False(t, EqualProps(nil, map[string]string{"a": "b"}))
}

func TestFlags(t *testing.T) {
	f := FlagDelete.With(FlagDiskless)
	assert.True(t, f.IsSet(FlagDelete))
	assert.True(t, f.IsSet(FlagDelete|FlagDiskless))
	assert.False(t, f.Without(FlagDelete).IsSet(FlagDelete))
	assert.Equal(t, "DELETE|DISKLESS", f.String())

	parsed, err := ParseFlags([]string{"delete", "DISKLESS"})
	require.NoError(t, err)
	assert.Equal(t, f, parsed)

	_, err = ParseFlags([]string{"bogus"})
	assert.Error(t, err)
}
