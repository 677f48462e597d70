// Package campaign holds the campaign read model and the launch, pledge and
// list workflows driven against a connected crowdfunding contract.
package campaign

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Campaign is a read model of one on-chain campaign. The contract stays the
// source of truth; a Campaign may be stale until the next listing.
type Campaign struct {
	ID      uint64
	Name    string
	Goal    *big.Int
	Pledged *big.Int
	Creator common.Address
	StartAt time.Time
	EndAt   time.Time
	Claimed bool
}

// Duration is the funding window of the campaign.
func (c *Campaign) Duration() time.Duration {
	return c.EndAt.Sub(c.StartAt)
}

// Open reports whether pledges are accepted at now.
func (c *Campaign) Open(now time.Time) bool {
	return !now.Before(c.StartAt) && now.Before(c.EndAt)
}

func (c *Campaign) GoalReached() bool {
	return c.Goal != nil && c.Pledged != nil && c.Pledged.Cmp(c.Goal) >= 0
}

// Clone returns a deep copy, amounts included.
func (c *Campaign) Clone() *Campaign {
	cp := *c
	if c.Goal != nil {
		cp.Goal = new(big.Int).Set(c.Goal)
	}
	if c.Pledged != nil {
		cp.Pledged = new(big.Int).Set(c.Pledged)
	}
	return &cp
}

// PendingTx is a submitted transaction that has not been awaited yet.
type PendingTx interface {
	Hash() common.Hash
	// AwaitConfirmation blocks until the transaction is mined. A reverted
	// transaction is an error.
	AwaitConfirmation(ctx context.Context) (*types.Receipt, error)
}

// Contract is the crowdfunding contract surface the workflows need.
type Contract interface {
	Launch(ctx context.Context, goal *big.Int, durationSeconds uint64, name string) (PendingTx, error)
	Pledge(ctx context.Context, id uint64, amount *big.Int) (PendingTx, error)
	Count(ctx context.Context) (uint64, error)
	GetCampaign(ctx context.Context, id uint64) (*Campaign, error)
	// LaunchedID extracts the identifier assigned by a confirmed launch, when
	// the receipt carries the launch event.
	LaunchedID(receipt *types.Receipt) (uint64, bool)
}
