package chains

import "fmt"

type Blockchain struct {
	ID       int64
	Name     string
	Symbol   string
	Explorer string
}

// IDHex returns the EIP-155 chain id in the 0x-prefixed form wallets report.
func (b *Blockchain) IDHex() string {
	return fmt.Sprintf("0x%x", b.ID)
}

var (
	Array = []*Blockchain{
		{ID: 1, Name: "eth", Symbol: "ETH", Explorer: "https://etherscan.io"},
		{ID: 11155111, Name: "sepolia", Symbol: "ETH", Explorer: "https://sepolia.etherscan.io"},
		{ID: 17000, Name: "holesky", Symbol: "ETH", Explorer: "https://holesky.etherscan.io"},
		{ID: 137, Name: "polygon", Symbol: "POL", Explorer: "https://polygonscan.com"},
		{ID: 56, Name: "bsc", Symbol: "BNB", Explorer: "https://bscscan.com"},
		{ID: 43114, Name: "avalanche", Symbol: "AVAX", Explorer: "https://snowtrace.io"},
		{ID: 31337, Name: "hardhat", Symbol: "ETH"},
		{ID: 1337, Name: "ganache", Symbol: "ETH"},
	}

	Mapping = func() map[int64]*Blockchain {
		m := make(map[int64]*Blockchain, len(Array))
		for _, c := range Array {
			m[c.ID] = c
		}
		return m
	}()
)

// Lookup returns the known chain for id, or a placeholder named after the id.
func Lookup(id int64) *Blockchain {
	if c, ok := Mapping[id]; ok {
		return c
	}
	return &Blockchain{ID: id, Name: fmt.Sprintf("chain-%d", id), Symbol: "ETH"}
}

// TxURL links a transaction hash on the chain explorer; empty for local chains.
func (b *Blockchain) TxURL(hash string) string {
	if b.Explorer == "" {
		return ""
	}
	return b.Explorer + "/tx/" + hash
}
