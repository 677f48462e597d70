package wcproto

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSealOpen(t *testing.T) {
	key, err := RandomBytes(KeySize)
	require.NoError(t, err)
	for _, plain := range []string{"", "x", strings.Repeat("a", 16), `{"id":1,"jsonrpc":"2.0","result":"  padded  "}`} {
		p, err := Seal([]byte(plain), key)
		require.NoError(t, err)
		got, err := Open(p, key)
		require.NoError(t, err)
		assert.Equal(t, plain, string(got))
	}
}

func TestOpenRejectsTampering(t *testing.T) {
	key, _ := RandomBytes(KeySize)
	other, _ := RandomBytes(KeySize)
	p, err := Seal([]byte("hello"), key)
	require.NoError(t, err)

	_, err = Open(p, other)
	assert.Error(t, err)

	bad := *p
	bad.Hmac = strings.Repeat("0", len(p.Hmac))
	_, err = Open(&bad, key)
	assert.Error(t, err)

	parsed, err := ParsePayload(p.Marshal())
	require.NoError(t, err)
	assert.Equal(t, *p, *parsed)
}

func TestUnpad(t *testing.T) {
	_, err := pkcs7Unpad([]byte{1, 2, 3, 0}, 16)
	assert.Error(t, err)
	_, err = pkcs7Unpad([]byte{1, 2, 2, 3}, 16)
	assert.Error(t, err)
	got, err := pkcs7Unpad([]byte{9, 2, 2}, 16)
	require.NoError(t, err)
	assert.Equal(t, []byte{9}, got)
}

func TestBridgeURLs(t *testing.T) {
	assert.True(t, strings.HasSuffix(RandomBridgeURL(), ".bridge.walletconnect.org"))
	assert.Equal(t, "wss://a.bridge.walletconnect.org?protocol=wc&version=1&env=crowdfund", WebSocketURL("https://a.bridge.walletconnect.org"))
	assert.Equal(t, "ws://localhost:9000?protocol=wc&version=1&env=crowdfund", WebSocketURL("http://localhost:9000"))
	assert.Equal(t, "walletconnect.org", ExtractRootDomain("https://a.bridge.walletconnect.org"))
	assert.Equal(t, "wc:topic@1?bridge=https%3A%2F%2Fb.org&key=0102", URI("topic", "https://b.org", []byte{1, 2}))
}
