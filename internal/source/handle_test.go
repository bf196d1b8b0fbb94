package source

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandleString(t *testing.T) {
	tests := []struct {
		handle Handle
		want   string
	}{
		{TypeHandle("com.acme.Foo"), "com.acme.Foo"},
		{MethodHandle("com.acme.Foo", "bar"), "com.acme.Foo#bar"},
		{FieldHandle("com.acme.Foo", "baz"), "com.acme.Foo.baz"},
		{DescriptorHandle("web.xml", "com.acme.App"), "web.xml!com.acme.App"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.handle.String())
		})
	}
}

func TestParseHandle(t *testing.T) {
	h, err := ParseHandle("com.acme.Foo#bar")
	require.NoError(t, err)
	assert.Equal(t, MethodHandle("com.acme.Foo", "bar"), h)

	h, err = ParseHandle(" com.acme.Foo ")
	require.NoError(t, err)
	assert.Equal(t, TypeHandle("com.acme.Foo"), h)

	h, err = ParseHandle("web.xml!com.acme.App")
	require.NoError(t, err)
	assert.Equal(t, DescriptorElement, h.Element)

	for _, bad := range []string{"", "#bar", "com.acme.Foo#", "!x", "web.xml!"} {
		_, err := ParseHandle(bad)
		assert.Error(t, err, bad)
	}
}

func TestHandleSimpleName(t *testing.T) {
	assert.Equal(t, "Foo", TypeHandle("com.acme.Foo").SimpleName())
	assert.Equal(t, "Foo", TypeHandle("Foo").SimpleName())
	assert.Equal(t, "bar", MethodHandle("com.acme.Foo", "bar").SimpleName())
	assert.Equal(t, TypeHandle("com.acme.Foo"), FieldHandle("com.acme.Foo", "x").DeclaringType())
	assert.True(t, Handle{}.IsZero())
}

func TestHandleMarshalText(t *testing.T) {
	text, err := MethodHandle("a.B", "c").MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "a.B#c", string(text))
}
