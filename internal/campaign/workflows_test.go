package campaign

import (
	"context"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"moff.io/crowdfund/internal/databus"
	"moff.io/crowdfund/pkg/errors"
)

type fakeTx struct {
	hash    common.Hash
	err     error
	release chan struct{}
}

func (t *fakeTx) Hash() common.Hash { return t.hash }

func (t *fakeTx) AwaitConfirmation(ctx context.Context) (*types.Receipt, error) {
	if t.release != nil {
		select {
		case <-t.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if t.err != nil {
		return nil, t.err
	}
	return &types.Receipt{TxHash: t.hash, Status: types.ReceiptStatusSuccessful}, nil
}

// fakeContract keeps campaigns in memory, ids 1-based.
type fakeContract struct {
	mu        sync.Mutex
	campaigns []*Campaign
	creator   common.Address

	launches   int
	pledges    int
	readFailAt uint64
	submitErr  error
	confirmErr error
	release    chan struct{}
	launchedID uint64
}

func (f *fakeContract) tx() *fakeTx {
	return &fakeTx{hash: common.BytesToHash([]byte{byte(f.launches + f.pledges)}), err: f.confirmErr, release: f.release}
}

func (f *fakeContract) Launch(_ context.Context, goal *big.Int, seconds uint64, name string) (PendingTx, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.submitErr != nil {
		return nil, f.submitErr
	}
	f.launches++
	if f.confirmErr == nil {
		start := time.Unix(1700000000, 0)
		f.campaigns = append(f.campaigns, &Campaign{
			ID:      uint64(len(f.campaigns) + 1),
			Name:    name,
			Goal:    new(big.Int).Set(goal),
			Pledged: new(big.Int),
			Creator: f.creator,
			StartAt: start,
			EndAt:   start.Add(time.Duration(seconds) * time.Second),
		})
	}
	return f.tx(), nil
}

func (f *fakeContract) Pledge(_ context.Context, id uint64, amount *big.Int) (PendingTx, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.submitErr != nil {
		return nil, f.submitErr
	}
	f.pledges++
	if f.confirmErr == nil {
		c := f.campaigns[id-1]
		c.Pledged = new(big.Int).Add(c.Pledged, amount)
	}
	return f.tx(), nil
}

func (f *fakeContract) Count(context.Context) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return uint64(len(f.campaigns)), nil
}

func (f *fakeContract) GetCampaign(_ context.Context, id uint64) (*Campaign, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.readFailAt != 0 && id == f.readFailAt {
		return nil, errors.New("execution reverted")
	}
	if id == 0 || id > uint64(len(f.campaigns)) {
		return nil, errors.Errorf("campaign %d not found", id)
	}
	return f.campaigns[id-1].Clone(), nil
}

func (f *fakeContract) LaunchedID(*types.Receipt) (uint64, bool) {
	return f.launchedID, f.launchedID != 0
}

func seeded(names ...string) *fakeContract {
	f := &fakeContract{creator: common.HexToAddress("0x00000000000000000000000000000000000000c1")}
	for i, name := range names {
		f.campaigns = append(f.campaigns, &Campaign{
			ID:      uint64(i + 1),
			Name:    name,
			Goal:    big.NewInt(int64(i + 1)),
			Pledged: new(big.Int),
			Creator: f.creator,
		})
	}
	return f
}

func TestListCampaigns(t *testing.T) {
	tests := []struct {
		name  string
		names []string
	}{
		{"empty", nil},
		{"three", []string{"a", "b", "c"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := NewWorkflows()
			list, err := w.ListCampaigns(context.Background(), seeded(tt.names...))
			require.NoError(t, err)
			require.Len(t, list, len(tt.names))
			for i, c := range list {
				assert.Equal(t, uint64(i+1), c.ID)
				assert.Equal(t, tt.names[i], c.Name)
			}
			assert.Len(t, w.Campaigns(), len(tt.names))
		})
	}
}

func TestListCampaignsAbortsOnSingleFailure(t *testing.T) {
	w := NewWorkflows()
	f := seeded("a", "b", "c")
	_, err := w.ListCampaigns(context.Background(), f)
	require.NoError(t, err)

	f.campaigns = append(f.campaigns, &Campaign{ID: 4, Name: "d", Goal: big.NewInt(4), Pledged: new(big.Int)})
	f.readFailAt = 2
	list, err := w.ListCampaigns(context.Background(), f)
	assert.Nil(t, list)
	assert.True(t, errors.IsKind(err, errors.KindUnknown))
	assert.Contains(t, err.Error(), "execution reverted")
	assert.Len(t, w.Campaigns(), 3)
}

func TestListCampaignsHonorsCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewWorkflows().ListCampaigns(ctx, seeded("a"))
	assert.Error(t, err)
}

func TestPledgeWithoutCampaigns(t *testing.T) {
	f := seeded()
	err := NewWorkflows().PledgeToCampaign(context.Background(), f, 1, big.NewInt(1))
	assert.True(t, errors.IsKind(err, errors.KindNoCampaigns))
	assert.Zero(t, f.pledges)
}

func TestPledgeValidation(t *testing.T) {
	tests := []struct {
		name   string
		id     uint64
		amount *big.Int
		kind   errors.Kind
	}{
		{"zero amount", 1, big.NewInt(0), errors.KindInvalidInput},
		{"nil amount", 1, nil, errors.KindInvalidInput},
		{"id zero", 0, big.NewInt(1), errors.KindInvalidInput},
		{"id past count", 3, big.NewInt(1), errors.KindInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := seeded("a", "b")
			err := NewWorkflows().PledgeToCampaign(context.Background(), f, tt.id, tt.amount)
			assert.True(t, errors.IsKind(err, tt.kind), "got %v", err)
			assert.Zero(t, f.pledges)
		})
	}
}

func TestPledgeLeavesReadModelAlone(t *testing.T) {
	w := NewWorkflows()
	f := seeded("a")
	_, err := w.ListCampaigns(context.Background(), f)
	require.NoError(t, err)

	require.NoError(t, w.PledgeToCampaign(context.Background(), f, 1, big.NewInt(7)))
	assert.Equal(t, 1, f.pledges)
	assert.Equal(t, int64(7), f.campaigns[0].Pledged.Int64())
	assert.Equal(t, int64(0), w.Campaigns()[0].Pledged.Int64())
}

func TestPledgeConfirmationFailure(t *testing.T) {
	f := seeded("a")
	f.confirmErr = errors.New("transaction reverted")
	err := NewWorkflows().PledgeToCampaign(context.Background(), f, 1, big.NewInt(1))
	assert.True(t, errors.IsKind(err, errors.KindTransactionFailed))
	assert.Contains(t, err.Error(), "transaction reverted")
}

func TestLaunchAppendsReadBack(t *testing.T) {
	w := NewWorkflows()
	f := seeded("a", "b")
	_, err := w.ListCampaigns(context.Background(), f)
	require.NoError(t, err)

	c, err := w.LaunchCampaign(context.Background(), f, big.NewInt(1), 2592000*time.Second, "X")
	require.NoError(t, err)
	assert.Equal(t, uint64(3), c.ID)
	assert.Equal(t, "X", c.Name)
	assert.Equal(t, 30*24*time.Hour, c.Duration())

	local := w.Campaigns()
	require.Len(t, local, 3)
	assert.Equal(t, "X", local[2].Name)
	assert.Equal(t, uint64(3), local[2].ID)
}

func TestLaunchUsesEventID(t *testing.T) {
	f := seeded("a", "b")
	f.launchedID = 1
	c, err := NewWorkflows().LaunchCampaign(context.Background(), f, big.NewInt(1), time.Hour, "X")
	require.NoError(t, err)
	assert.Equal(t, "a", c.Name)
}

func TestLaunchValidation(t *testing.T) {
	tests := []struct {
		name     string
		goal     *big.Int
		duration time.Duration
	}{
		{"zero goal", big.NewInt(0), time.Hour},
		{"negative goal", big.NewInt(-1), time.Hour},
		{"zero duration", big.NewInt(1), 0},
		{"sub second duration", big.NewInt(1), time.Millisecond},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := seeded()
			_, err := NewWorkflows().LaunchCampaign(context.Background(), f, tt.goal, tt.duration, "X")
			assert.True(t, errors.IsKind(err, errors.KindInvalidInput))
			assert.Zero(t, f.launches)
		})
	}
}

func TestLaunchFailureKeepsReadModel(t *testing.T) {
	tests := []struct {
		name   string
		submit error
		commit error
	}{
		{"submit", errors.New("insufficient funds"), nil},
		{"confirm", nil, errors.New("transaction reverted")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := NewWorkflows()
			f := seeded("a")
			_, err := w.ListCampaigns(context.Background(), f)
			require.NoError(t, err)

			f.submitErr, f.confirmErr = tt.submit, tt.commit
			_, err = w.LaunchCampaign(context.Background(), f, big.NewInt(1), time.Hour, "X")
			assert.True(t, errors.IsKind(err, errors.KindTransactionFailed))
			assert.Len(t, w.Campaigns(), 1)
		})
	}
}

func TestWorkflowsRequireContract(t *testing.T) {
	w := NewWorkflows()
	_, err := w.ListCampaigns(context.Background(), nil)
	assert.True(t, errors.IsKind(err, errors.KindProviderUnavailable))
	_, err = w.LaunchCampaign(context.Background(), nil, big.NewInt(1), time.Hour, "X")
	assert.True(t, errors.IsKind(err, errors.KindProviderUnavailable))
	err = w.PledgeToCampaign(context.Background(), nil, 1, big.NewInt(1))
	assert.True(t, errors.IsKind(err, errors.KindProviderUnavailable))
}

func TestSecondPledgeWhileBusy(t *testing.T) {
	w := NewWorkflows()
	f := seeded("a")
	f.release = make(chan struct{})

	done := make(chan error, 1)
	go func() { done <- w.PledgeToCampaign(context.Background(), f, 1, big.NewInt(1)) }()

	require.Eventually(t, func() bool {
		f.mu.Lock()
		defer f.mu.Unlock()
		return f.pledges == 1
	}, time.Second, time.Millisecond)

	err := w.PledgeToCampaign(context.Background(), f, 1, big.NewInt(1))
	assert.True(t, errors.IsKind(err, errors.KindBusy))

	// other workflows keep their own flag
	_, err = w.ListCampaigns(context.Background(), f)
	assert.NoError(t, err)

	close(f.release)
	require.NoError(t, <-done)
	assert.Equal(t, 1, f.pledges)

	require.NoError(t, w.PledgeToCampaign(context.Background(), f, 1, big.NewInt(1)))
	assert.Equal(t, 2, f.pledges)
}

type recordingPublisher struct {
	events []databus.Event
}

func (p *recordingPublisher) Publish(e databus.Event) error {
	p.events = append(p.events, e)
	return nil
}

func TestWorkflowsPublishEvents(t *testing.T) {
	pub := &recordingPublisher{}
	w := NewWorkflows(WithPublisher(pub, "campaigns"), WithReadRate(1000))
	f := seeded()

	_, err := w.LaunchCampaign(context.Background(), f, big.NewInt(5), time.Hour, "X")
	require.NoError(t, err)
	require.NoError(t, w.PledgeToCampaign(context.Background(), f, 1, big.NewInt(2)))

	require.Len(t, pub.events, 2)
	launched := pub.events[0].(*Event)
	assert.Equal(t, EventLaunched, launched.Type)
	assert.Equal(t, "campaigns", launched.Topic())
	assert.Equal(t, "1", launched.Key())
	assert.Equal(t, "5", launched.AmountWei)

	pledged := pub.events[1].(*Event)
	assert.Equal(t, EventPledged, pledged.Type)
	assert.Equal(t, "2", pledged.AmountWei)
	assert.Contains(t, string(pledged.Serialize()), `"type":"campaign.pledged"`)
}
