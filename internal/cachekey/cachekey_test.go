package cachekey

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFingerprintIsDeterministic(t *testing.T) {
	a := Fingerprint(http.MethodGet, "http://example.com/x")
	b := Fingerprint(http.MethodGet, "http://example.com/x")
	assert.Equal(t, a, b)
	assert.Len(t, a, 64)
}

func TestFingerprintDistinguishesMethodAndURL(t *testing.T) {
	get := Fingerprint(http.MethodGet, "http://example.com/x")
	post := Fingerprint(http.MethodPost, "http://example.com/x")
	other := Fingerprint(http.MethodGet, "http://example.com/y")

	assert.NotEqual(t, get, post)
	assert.NotEqual(t, get, other)
}

func TestBodyFileName(t *testing.T) {
	fp := Fingerprint(http.MethodGet, "http://example.com/x")
	assert.Equal(t, fp+".data", BodyFileName(fp))
}
