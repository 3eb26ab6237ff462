package headercodec

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRoundTrip(t *testing.T) {
	h := make(http.Header)
	h.Set("X-My-Header-Name", "foo")
	h.Set("X-My-Header-Name1", "bar")
	h.Set("X-My-Header-Name2", "123")

	encoded := Encode(h)
	decoded := Decode(encoded)

	assert.Equal(t, "foo", decoded.Get("x-my-header-name"))
	assert.Equal(t, "foo", decoded.Get("X-MY-HEADER-NAME"))
	assert.True(t, decoded.Get("x-my-header-name") != "")
}

func TestEncodeCommaJoinsMultiValue(t *testing.T) {
	h := make(http.Header)
	h.Add("Set-Cookie", "a=1")
	h.Add("Set-Cookie", "b=2")

	encoded := Encode(h)
	decoded := Decode(encoded)
	assert.Equal(t, "a=1, b=2", decoded.Get("Set-Cookie"))
}

func TestDecodeMalformedYieldsEmpty(t *testing.T) {
	decoded := Decode("not json")
	assert.Empty(t, decoded)

	decoded = Decode("[1,2,3]")
	assert.Empty(t, decoded)

	decoded = Decode("")
	assert.Empty(t, decoded)
}

func TestDecodeEmptyObjectIsValid(t *testing.T) {
	decoded := Decode("{}")
	assert.NotNil(t, decoded)
	assert.Empty(t, decoded)
}
