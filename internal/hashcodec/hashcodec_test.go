package hashcodec

import (
	"crypto/sha256"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/blake2b"
)

func allCodecs() []Codec {
	return []Codec{SHA256{}, BLAKE2b{}, XORFold{}}
}

func TestSHA256MatchesStdlib(t *testing.T) {
	data := []byte("credential")
	assert.Equal(t, Hash(sha256.Sum256(data)), SHA256{}.Hash(data))
}

func TestBLAKE2bMatchesReference(t *testing.T) {
	data := []byte("credential")
	assert.Equal(t, Hash(blake2b.Sum256(data)), BLAKE2b{}.Hash(data))
}

func TestCombineIsHashOfConcatenation(t *testing.T) {
	for _, c := range allCodecs() {
		t.Run(c.Name(), func(t *testing.T) {
			l := c.Hash([]byte("left"))
			r := c.Hash([]byte("right"))

			concat := append(append([]byte{}, l[:]...), r[:]...)
			assert.Equal(t, c.Hash(concat), c.Combine(l, r))
		})
	}
}

func TestCombineIsNotCommutative(t *testing.T) {
	for _, c := range allCodecs() {
		t.Run(c.Name(), func(t *testing.T) {
			l := c.Hash([]byte("alpha"))
			r := c.Hash([]byte("beta"))
			assert.NotEqual(t, c.Combine(l, r), c.Combine(r, l))
		})
	}
}

func TestXORFoldDeterministic(t *testing.T) {
	a := XORFold{}.Hash([]byte("the same input"))
	b := XORFold{}.Hash([]byte("the same input"))
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, XORFold{}.Hash([]byte("the same inpuT")))
}

func TestXORFoldEmpty(t *testing.T) {
	assert.True(t, XORFold{}.Hash(nil).IsZero())
}

func TestByName(t *testing.T) {
	tests := []struct {
		name     string
		expected string
		hasError bool
	}{
		{"", AlgorithmSHA256, false},
		{"sha256", AlgorithmSHA256, false},
		{"SHA-256", AlgorithmSHA256, false},
		{"blake2b", AlgorithmBLAKE2b, false},
		{"xorfold", AlgorithmXORFold, false},
		{"md5", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := ByName(tt.name)
			if tt.hasError {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, c.Name())
		})
	}
}

func TestParseHash(t *testing.T) {
	h := SHA256{}.Hash([]byte("x"))

	parsed, err := ParseHash(h.String())
	require.NoError(t, err)
	assert.Equal(t, h, parsed)

	_, err = ParseHash("zz")
	assert.ErrorIs(t, err, ErrInvalidHash)

	_, err = ParseHash("abcd")
	assert.ErrorIs(t, err, ErrInvalidHash)
}

func TestHashJSON(t *testing.T) {
	h := SHA256{}.Hash([]byte("json"))

	data, err := json.Marshal(struct {
		Root Hash `json:"root"`
	}{h})
	require.NoError(t, err)
	assert.Contains(t, string(data), h.String())

	var out struct {
		Root Hash `json:"root"`
	}
	require.NoError(t, json.Unmarshal(data, &out))
	assert.Equal(t, h, out.Root)
}

func TestFromBytes(t *testing.T) {
	_, err := FromBytes(make([]byte, 31))
	assert.ErrorIs(t, err, ErrInvalidHash)

	b := make([]byte, Size)
	b[0] = 7
	h, err := FromBytes(b)
	require.NoError(t, err)
	assert.Equal(t, byte(7), h[0])
}
