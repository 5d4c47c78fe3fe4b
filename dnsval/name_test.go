package dnsval

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"example.com", "example.com."},
		{"Example.COM.", "example.com."},
		{"  example.com  ", "example.com."},
		{".", "."},
		{"", "."},
		{"a..b.com", "a.b.com."},
	}

	for _, c := range cases {
		assert.Equal(t, c.want, Normalize(c.in), c.in)
	}
}

func TestNormalize_idempotent(t *testing.T) {
	for _, in := range []string{"example.com", "a.b.example.com.", "."} {
		once := Normalize(in)
		twice := Normalize(once)
		assert.Equal(t, once, twice, in)
	}
}

func TestParentDomain(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"example.com.", "com."},
		{"a.b.example.com.", "b.example.com."},
		{"com.", "."},
		{".", "."},
	}

	for _, c := range cases {
		assert.Equal(t, c.want, ParentDomain(c.in), c.in)
	}
}

func TestIsSuperdomain(t *testing.T) {
	assert.True(t, IsSuperdomain("a.example.com.", "example.com.", false))
	assert.True(t, IsSuperdomain("example.com.", ".", false))
	assert.False(t, IsSuperdomain("example.com.", "example.com.", false))
	assert.True(t, IsSuperdomain("example.com.", "example.com.", true))
	assert.False(t, IsSuperdomain("notexample.com.", "example.com.", true))
}

func TestClosestSuperdomain(t *testing.T) {
	candidates := []string{".", "com.", "example.com."}

	got := ClosestSuperdomain("a.b.example.com.", candidates, true)
	assert.Equal(t, "example.com.", got)

	got = ClosestSuperdomain("example.com.", candidates, true)
	assert.Equal(t, "example.com.", got)

	got = ClosestSuperdomain("org.", candidates, true)
	assert.Equal(t, ".", got)

	got = ClosestSuperdomain("x.y.z.", nil, true)
	assert.Equal(t, "", got)
}
