package ids

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewGeneratesValidDistinctIDs(t *testing.T) {
	a := New()
	b := New()
	assert.NotEqual(t, a, b)
	assert.Len(t, a, 26)
	assert.True(t, Valid(a))
}

func TestCIDIsStableForIdenticalContent(t *testing.T) {
	blob := []byte("hello world")
	assert.Equal(t, CID(blob), CID(append([]byte(nil), blob...)))
	assert.NotEqual(t, CID(blob), CID([]byte("hello world!")))
}

func TestValidRejectsOutOfAlphabetCharacters(t *testing.T) {
	assert.False(t, Valid(""))
	assert.False(t, Valid("Has-Upper-And-Dash"))
	assert.False(t, Valid("contains1andzero0"))
	assert.True(t, Valid("abc234xyz"))
}
