// Package metadata resolves the address and interface description of the
// deployed contract from the metadata endpoint.
package metadata

import (
	"context"
	"encoding/json"
	"io"
	"io/ioutil"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/tidwall/gjson"
	"moff.io/crowdfund/pkg/errors"
	"moff.io/crowdfund/pkg/log"
)

// Contract is the connection metadata of one deployed contract.
type Contract struct {
	Address common.Address
	ABI     abi.ABI
	// RawABI is the normalized JSON array the ABI was parsed from.
	RawABI json.RawMessage
}

// Fetcher resolves contract metadata.
type Fetcher interface {
	Fetch(ctx context.Context) (*Contract, error)
}

type client struct {
	url        string
	httpClient *http.Client
}

const (
	defaultTimeout = time.Second * 10
	// metadata documents are small, anything larger is not a metadata response
	maxBodyBytes = 4 << 20
)

// NewClient returns a Fetcher that issues GET url. A non-positive timeout
// falls back to ten seconds.
func NewClient(url string, timeout time.Duration) Fetcher {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &client{
		url:        url,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (c *client) Fetch(ctx context.Context) (*Contract, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, errors.WithKind(errors.KindMetadataUnavailable, err, "create metadata request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.WithKind(errors.KindMetadataUnavailable, err, "request contract metadata")
	}
	defer resp.Body.Close()

	b, err := ioutil.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, errors.WithKind(errors.KindMetadataUnavailable, err, "read contract metadata")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, errors.NewKind(errors.KindMetadataUnavailable,
			"metadata endpoint answered "+resp.Status+": "+truncate(string(b), 256))
	}
	contract, err := Decode(b)
	if err != nil {
		return nil, err
	}
	log.Debugf("metadata - resolved contract %s with %d methods", contract.Address.Hex(), len(contract.ABI.Methods))
	return contract, nil
}

// Decode validates a `{contractAddress, contractABI}` document. contractABI may
// be an ABI array, a JSON string holding one, or a compiler artifact with an
// `abi` field. Missing, empty or malformed fields are KindMetadataUnavailable.
func Decode(body []byte) (*Contract, error) {
	if !gjson.ValidBytes(body) {
		return nil, errors.NewKind(errors.KindMetadataUnavailable, "metadata response is not valid JSON")
	}
	doc := gjson.ParseBytes(body)

	address := strings.TrimSpace(doc.Get("contractAddress").String())
	if address == "" {
		return nil, errors.NewKind(errors.KindMetadataUnavailable, "contract address not available")
	}
	if !common.IsHexAddress(address) {
		return nil, errors.NewKind(errors.KindMetadataUnavailable, "contract address "+address+" is malformed")
	}
	addr := common.HexToAddress(address)
	if addr == (common.Address{}) {
		return nil, errors.NewKind(errors.KindMetadataUnavailable, "contract address is the zero address")
	}

	raw, err := rawABI(doc.Get("contractABI"))
	if err != nil {
		return nil, err
	}
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		return nil, errors.WithKind(errors.KindMetadataUnavailable, err, "contract ABI is malformed")
	}
	if len(parsed.Methods) == 0 {
		return nil, errors.NewKind(errors.KindMetadataUnavailable, "contract ABI declares no methods")
	}
	return &Contract{
		Address: addr,
		ABI:     parsed,
		RawABI:  json.RawMessage(raw),
	}, nil
}

func rawABI(field gjson.Result) (string, error) {
	if field.Type == gjson.String {
		field = gjson.Parse(field.String())
	}
	if field.IsObject() {
		field = field.Get("abi")
	}
	if !field.IsArray() {
		return "", errors.NewKind(errors.KindMetadataUnavailable, "contract ABI not available")
	}
	if len(field.Array()) == 0 {
		return "", errors.NewKind(errors.KindMetadataUnavailable, "contract ABI is empty")
	}
	return field.Raw, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
