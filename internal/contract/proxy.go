// Package contract binds the crowdfunding contract described by fetched
// metadata to a signing identity and exposes it as a campaign.Contract.
package contract

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"moff.io/crowdfund/internal/campaign"
	"moff.io/crowdfund/internal/metadata"
	"moff.io/crowdfund/pkg/errors"
)

const (
	methodLaunch      = "launch"
	methodPledge      = "pledge"
	methodCount       = "count"
	methodGetCampaign = "getCampaign"
	eventLaunch       = "Launch"
)

var requiredMethods = []string{methodLaunch, methodPledge, methodCount, methodGetCampaign}

// Backend is what a bound proxy needs from the chain; *ethclient.Client
// satisfies it.
type Backend interface {
	bind.ContractBackend
	bind.DeployBackend
}

// Proxy is immutable once built and safe for concurrent reads.
type Proxy struct {
	address common.Address
	abi     abi.ABI
	bound   *bind.BoundContract
	backend bind.DeployBackend
	signer  *bind.TransactOpts
}

// Binder builds proxies on one backend.
type Binder struct {
	backend Backend
}

func NewBinder(backend Backend) *Binder {
	return &Binder{backend: backend}
}

// Bind returns a proxy for c signed by signer. The ABI must describe every
// method the campaign workflows call.
func (b *Binder) Bind(c *metadata.Contract, signer *bind.TransactOpts) (campaign.Contract, error) {
	return NewProxy(c, signer, b.backend, b.backend, b.backend)
}

func NewProxy(c *metadata.Contract, signer *bind.TransactOpts, caller bind.ContractCaller, transactor bind.ContractTransactor, deploy bind.DeployBackend) (*Proxy, error) {
	if c == nil {
		return nil, errors.NewKind(errors.KindMetadataUnavailable, "no contract metadata")
	}
	if signer == nil {
		return nil, errors.NewKind(errors.KindProviderUnavailable, "no signing handle")
	}
	for _, name := range requiredMethods {
		if _, ok := c.ABI.Methods[name]; !ok {
			return nil, errors.NewKind(errors.KindMetadataUnavailable, fmt.Sprintf("contract interface has no %s method", name))
		}
	}
	return &Proxy{
		address: c.Address,
		abi:     c.ABI,
		bound:   bind.NewBoundContract(c.Address, c.ABI, caller, transactor, nil),
		backend: deploy,
		signer:  signer,
	}, nil
}

func (p *Proxy) Address() common.Address { return p.address }

// Account is the identity the proxy signs with.
func (p *Proxy) Account() common.Address { return p.signer.From }

func (p *Proxy) Launch(ctx context.Context, goal *big.Int, durationSeconds uint64, name string) (campaign.PendingTx, error) {
	args, err := p.pack(methodLaunch, goal, durationSeconds, name)
	if err != nil {
		return nil, err
	}
	return p.transact(ctx, nil, methodLaunch, args...)
}

func (p *Proxy) Pledge(ctx context.Context, id uint64, amount *big.Int) (campaign.PendingTx, error) {
	args, err := p.pack(methodPledge, id)
	if err != nil {
		return nil, err
	}
	return p.transact(ctx, amount, methodPledge, args...)
}

func (p *Proxy) Count(ctx context.Context) (uint64, error) {
	out, err := p.call(ctx, methodCount)
	if err != nil {
		return 0, err
	}
	if len(out) == 0 {
		return 0, errors.Errorf("%s returned nothing", methodCount)
	}
	return toUint64(out[0])
}

func (p *Proxy) GetCampaign(ctx context.Context, id uint64) (*campaign.Campaign, error) {
	args, err := p.pack(methodGetCampaign, id)
	if err != nil {
		return nil, err
	}
	out, err := p.call(ctx, methodGetCampaign, args...)
	if err != nil {
		return nil, err
	}
	fields, err := outputFields(p.abi.Methods[methodGetCampaign].Outputs, out)
	if err != nil {
		return nil, errors.Wrapf(err, "decode campaign %d", id)
	}
	return campaignFrom(id, fields)
}

// LaunchedID reads the id from the first Launch event this contract emitted
// in receipt.
func (p *Proxy) LaunchedID(receipt *types.Receipt) (uint64, bool) {
	if receipt == nil {
		return 0, false
	}
	event, ok := p.abi.Events[eventLaunch]
	if !ok {
		return 0, false
	}
	for _, l := range receipt.Logs {
		if l == nil || l.Address != p.address || len(l.Topics) == 0 || l.Topics[0] != event.ID {
			continue
		}
		fields, err := eventFields(event, l)
		if err != nil {
			continue
		}
		id, err := toUint64(fields["id"])
		if err != nil || id == 0 {
			continue
		}
		return id, true
	}
	return 0, false
}

func (p *Proxy) call(ctx context.Context, method string, args ...interface{}) ([]interface{}, error) {
	var out []interface{}
	opts := &bind.CallOpts{Context: ctx, From: p.signer.From}
	if err := p.bound.Call(opts, &out, method, args...); err != nil {
		return nil, errors.Wrapf(err, "call %s", method)
	}
	return out, nil
}

func (p *Proxy) transact(ctx context.Context, value *big.Int, method string, args ...interface{}) (campaign.PendingTx, error) {
	opts := *p.signer
	opts.Context = ctx
	opts.Value = value
	tx, err := p.bound.Transact(&opts, method, args...)
	if err != nil {
		return nil, errors.Wrapf(err, "send %s", method)
	}
	return &pendingTx{tx: tx, backend: p.backend, method: method}, nil
}

// pack coerces Go values to the Go types the ABI encoder expects for method.
func (p *Proxy) pack(method string, values ...interface{}) ([]interface{}, error) {
	m := p.abi.Methods[method]
	if len(m.Inputs) != len(values) {
		return nil, errors.NewKind(errors.KindMetadataUnavailable,
			fmt.Sprintf("%s takes %d arguments, expected %d", method, len(m.Inputs), len(values)))
	}
	args := make([]interface{}, len(values))
	for i, v := range values {
		arg, err := coerce(m.Inputs[i].Type, v)
		if err != nil {
			return nil, errors.WithKind(errors.KindInvalidInput, err, fmt.Sprintf("%s argument %d", method, i))
		}
		args[i] = arg
	}
	return args, nil
}

type pendingTx struct {
	tx      *types.Transaction
	backend bind.DeployBackend
	method  string
}

func (t *pendingTx) Hash() common.Hash { return t.tx.Hash() }

func (t *pendingTx) AwaitConfirmation(ctx context.Context) (*types.Receipt, error) {
	receipt, err := bind.WaitMined(ctx, t.backend, t.tx)
	if err != nil {
		return nil, errors.Wrapf(err, "wait %s %s", t.method, t.tx.Hash().Hex())
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return receipt, errors.Errorf("%s %s reverted in block %v", t.method, t.tx.Hash().Hex(), receipt.BlockNumber)
	}
	return receipt, nil
}

func campaignFrom(id uint64, f map[string]interface{}) (*campaign.Campaign, error) {
	c := &campaign.Campaign{ID: id}
	var err error
	if c.Creator, err = toAddress(f["creator"]); err != nil {
		return nil, errors.Wrap(err, "creator")
	}
	if c.Goal, err = toBigInt(f["goal"]); err != nil {
		return nil, errors.Wrap(err, "goal")
	}
	if c.Pledged, err = toBigInt(f["pledged"]); err != nil {
		return nil, errors.Wrap(err, "pledged")
	}
	start, err := toUint64(f["startAt"])
	if err != nil {
		return nil, errors.Wrap(err, "startAt")
	}
	end, err := toUint64(f["endAt"])
	if err != nil {
		return nil, errors.Wrap(err, "endAt")
	}
	c.StartAt, c.EndAt = time.Unix(int64(start), 0), time.Unix(int64(end), 0)
	c.Claimed, _ = f["claimed"].(bool)
	c.Name, _ = f["name"].(string)
	return c, nil
}
