package harlog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBodyTextRoundTrip(t *testing.T) {
	raw := make([]byte, 256)
	for i := range raw {
		raw[i] = byte(i)
	}

	text := EncodeBodyText(raw)
	back, err := DecodeBodyText(text)
	require.NoError(t, err)
	assert.Equal(t, raw, back)
}

func TestDecodeBodyTextEmpty(t *testing.T) {
	body, err := DecodeBodyText("")
	require.NoError(t, err)
	assert.Nil(t, body)
}

func TestDecodeBodyTextRejectsNonLatin1(t *testing.T) {
	_, err := DecodeBodyText("audio 世界")
	assert.Error(t, err)
}

func TestEncodeBodyTextEmpty(t *testing.T) {
	assert.Equal(t, "", EncodeBodyText(nil))
}
