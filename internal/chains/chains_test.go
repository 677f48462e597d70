package chains

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLookup(t *testing.T) {
	assert.Equal(t, "hardhat", Lookup(31337).Name)
	assert.Equal(t, "0x7a69", Lookup(31337).IDHex())
	assert.Equal(t, "chain-999", Lookup(999).Name)
}

func TestTxURL(t *testing.T) {
	assert.Equal(t, "https://etherscan.io/tx/0xab", Lookup(1).TxURL("0xab"))
	assert.Empty(t, Lookup(31337).TxURL("0xab"))
}
