package contract

import (
	"context"

	"github.com/ethereum/go-ethereum/ethclient"
	"moff.io/crowdfund/pkg/errors"
	"moff.io/crowdfund/pkg/log"
)

// Dial connects to the chain node at rawurl and checks it serves chainID.
func Dial(ctx context.Context, rawurl string, chainID int64) (*ethclient.Client, error) {
	client, err := ethclient.DialContext(ctx, rawurl)
	if err != nil {
		return nil, errors.WithKind(errors.KindProviderUnavailable, err, "dial "+rawurl)
	}
	id, err := client.ChainID(ctx)
	if err != nil {
		client.Close()
		return nil, errors.WithKind(errors.KindProviderUnavailable, err, "read chain id")
	}
	if chainID != 0 && id.Int64() != chainID {
		client.Close()
		return nil, errors.NewKind(errors.KindProviderUnavailable,
			"node at "+rawurl+" serves chain "+id.String()+", configured for another chain")
	}
	log.Infof("Chain node %s connected, chain id %s", rawurl, id)
	return client, nil
}
