package campaign

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"go.uber.org/atomic"
	"go.uber.org/ratelimit"
	"moff.io/crowdfund/pkg/errors"
	"moff.io/crowdfund/pkg/log"
)

// Workflows runs the launch, pledge and list pipelines. Each pipeline has its
// own busy flag: a second trigger while one is running fails with KindBusy
// and never reaches the contract.
type Workflows struct {
	launching atomic.Bool
	pledging  atomic.Bool
	listing   atomic.Bool

	mu        sync.RWMutex
	campaigns []*Campaign

	limiter   ratelimit.Limiter
	publisher Publisher
	topic     string
	now       func() time.Time
}

type Option func(*Workflows)

// WithReadRate caps the per-campaign reads issued by ListCampaigns.
func WithReadRate(perSecond int) Option {
	return func(w *Workflows) {
		if perSecond > 0 {
			w.limiter = ratelimit.New(perSecond)
		}
	}
}

// WithPublisher publishes launched and pledged events to topic.
func WithPublisher(p Publisher, topic string) Option {
	return func(w *Workflows) {
		w.publisher = p
		w.topic = topic
	}
}

func NewWorkflows(opts ...Option) *Workflows {
	w := &Workflows{
		limiter: ratelimit.NewUnlimited(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Campaigns returns a copy of the local read model.
func (w *Workflows) Campaigns() []*Campaign {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return cloneAll(w.campaigns)
}

var errNoContract = errors.NewKind(errors.KindProviderUnavailable, "contract not available, connect a wallet first")

// LaunchCampaign submits a new campaign, waits for confirmation and appends
// the record read back from the contract to the local read model.
func (w *Workflows) LaunchCampaign(ctx context.Context, proxy Contract, goal *big.Int, duration time.Duration, name string) (*Campaign, error) {
	if proxy == nil {
		return nil, errNoContract
	}
	if goal == nil || goal.Sign() <= 0 {
		return nil, errors.NewKind(errors.KindInvalidInput, "goal must be greater than zero")
	}
	seconds := int64(duration / time.Second)
	if seconds <= 0 {
		return nil, errors.NewKind(errors.KindInvalidInput, "duration must be at least one second")
	}
	if !w.launching.CAS(false, true) {
		return nil, errors.NewKind(errors.KindBusy, "a launch is already in progress")
	}
	defer w.launching.Store(false)

	tx, err := proxy.Launch(ctx, goal, uint64(seconds), name)
	if err != nil {
		return nil, errors.WithKind(errors.KindTransactionFailed, err, "submit launch")
	}
	log.Infof("campaign - launch submitted in %s", tx.Hash().Hex())
	receipt, err := tx.AwaitConfirmation(ctx)
	if err != nil {
		return nil, errors.WithKind(errors.KindTransactionFailed, err, "confirm launch "+tx.Hash().Hex())
	}

	id, ok := proxy.LaunchedID(receipt)
	if !ok {
		// no launch event in the receipt, the newest id is the count
		if id, err = proxy.Count(ctx); err != nil {
			return nil, errors.Classify(err, "read campaign count after launch")
		}
	}
	c, err := proxy.GetCampaign(ctx, id)
	if err != nil {
		return nil, errors.Classify(err, fmt.Sprintf("read launched campaign %d", id))
	}

	w.mu.Lock()
	w.campaigns = append(w.campaigns, c.Clone())
	w.mu.Unlock()
	log.Infof("campaign - launched #%d %q with goal %s", c.ID, c.Name, FormatEther(c.Goal))

	w.publish(&Event{
		Type:       EventLaunched,
		CampaignID: c.ID,
		Name:       c.Name,
		Creator:    c.Creator.Hex(),
		AmountWei:  c.Goal.String(),
		TxHash:     tx.Hash().Hex(),
	})
	return c, nil
}

// PledgeToCampaign attaches amount to campaign id and waits for confirmation.
// The local read model is not refreshed; callers list again to see totals.
func (w *Workflows) PledgeToCampaign(ctx context.Context, proxy Contract, id uint64, amount *big.Int) error {
	if proxy == nil {
		return errNoContract
	}
	if amount == nil || amount.Sign() <= 0 {
		return errors.NewKind(errors.KindInvalidInput, "pledge amount must be greater than zero")
	}
	if !w.pledging.CAS(false, true) {
		return errors.NewKind(errors.KindBusy, "a pledge is already in progress")
	}
	defer w.pledging.Store(false)

	count, err := proxy.Count(ctx)
	if err != nil {
		return errors.Classify(err, "read campaign count")
	}
	if count == 0 {
		return errors.NewKind(errors.KindNoCampaigns, "no campaigns available to pledge to")
	}
	if id == 0 || id > count {
		return errors.NewKind(errors.KindInvalidInput, fmt.Sprintf("campaign %d does not exist, ids range over 1..%d", id, count))
	}

	tx, err := proxy.Pledge(ctx, id, amount)
	if err != nil {
		return errors.WithKind(errors.KindTransactionFailed, err, fmt.Sprintf("submit pledge to campaign %d", id))
	}
	log.Infof("campaign - pledge to #%d submitted in %s", id, tx.Hash().Hex())
	if _, err := tx.AwaitConfirmation(ctx); err != nil {
		return errors.WithKind(errors.KindTransactionFailed, err, "confirm pledge "+tx.Hash().Hex())
	}
	log.Infof("campaign - pledged %s to #%d", FormatEther(amount), id)

	w.publish(&Event{
		Type:       EventPledged,
		CampaignID: id,
		AmountWei:  amount.String(),
		TxHash:     tx.Hash().Hex(),
	})
	return nil
}

// ListCampaigns reads every campaign in 1..count and replaces the local read
// model. Any failed read aborts the listing and leaves the model untouched.
func (w *Workflows) ListCampaigns(ctx context.Context, proxy Contract) ([]*Campaign, error) {
	if proxy == nil {
		return nil, errNoContract
	}
	if !w.listing.CAS(false, true) {
		return nil, errors.NewKind(errors.KindBusy, "a listing is already in progress")
	}
	defer w.listing.Store(false)

	count, err := proxy.Count(ctx)
	if err != nil {
		return nil, errors.Classify(err, "read campaign count")
	}
	list := make([]*Campaign, 0, count)
	for id := uint64(1); id <= count; id++ {
		if err := ctx.Err(); err != nil {
			return nil, errors.Classify(err, "list campaigns")
		}
		w.limiter.Take()
		c, err := proxy.GetCampaign(ctx, id)
		if err != nil {
			return nil, errors.Classify(err, fmt.Sprintf("read campaign %d", id))
		}
		list = append(list, c)
	}

	w.mu.Lock()
	w.campaigns = cloneAll(list)
	w.mu.Unlock()
	log.Debugf("campaign - listed %d campaigns", len(list))
	return list, nil
}

func (w *Workflows) publish(e *Event) {
	if w.publisher == nil {
		return
	}
	e.topic = w.topic
	e.At = w.now()
	if err := w.publisher.Publish(e); err != nil {
		log.Warnf("campaign - publish %s for #%d: %v", e.Type, e.CampaignID, err)
	}
}

func cloneAll(in []*Campaign) []*Campaign {
	out := make([]*Campaign, len(in))
	for i, c := range in {
		out[i] = c.Clone()
	}
	return out
}
