// Package session supervises the single connection between the application
// and a wallet provider, and hands out the contract proxy bound to the
// connected account.
package session

import (
	"context"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"go.uber.org/atomic"
	"moff.io/crowdfund/internal/campaign"
	"moff.io/crowdfund/internal/metadata"
	"moff.io/crowdfund/internal/wallet"
	"moff.io/crowdfund/pkg/errors"
	"moff.io/crowdfund/pkg/log"
)

// Binder builds the contract proxy for fetched metadata and a signer.
type Binder interface {
	Bind(c *metadata.Contract, signer *bind.TransactOpts) (campaign.Contract, error)
}

type BinderFunc func(c *metadata.Contract, signer *bind.TransactOpts) (campaign.Contract, error)

func (f BinderFunc) Bind(c *metadata.Contract, signer *bind.TransactOpts) (campaign.Contract, error) {
	return f(c, signer)
}

// flight is one connection attempt; waiters block on done.
type flight struct {
	done chan struct{}
	once sync.Once
	err  error
}

func newFlight() *flight { return &flight{done: make(chan struct{})} }

func (f *flight) finish(err error) {
	f.once.Do(func() {
		f.err = err
		close(f.done)
	})
}

type bound struct {
	account  string
	signer   *bind.TransactOpts
	contract *metadata.Contract
	proxy    campaign.Contract
}

// Controller owns the session state. All mutations go through its methods.
type Controller struct {
	provider wallet.Provider
	fetcher  metadata.Fetcher
	binder   Binder

	mu      sync.Mutex
	phase   Phase
	current *bound
	lastErr error
	flight  *flight
	// epoch changes whenever an in-flight attempt is overtaken.
	epoch  uint64
	closed bool

	subscribed  atomic.Bool
	unsubscribe func()
	events      chan []string
	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	closeOnce   sync.Once
}

func New(provider wallet.Provider, fetcher metadata.Fetcher, binder Binder) *Controller {
	ctx, cancel := context.WithCancel(context.Background())
	return &Controller{
		provider: provider,
		fetcher:  fetcher,
		binder:   binder,
		phase:    PhaseDisconnected,
		events:   make(chan []string, 16),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Initialize connects the session, prompting the wallet for authorization
// when no account is authorized yet. While connected it does nothing; while
// connecting it waits for the attempt in flight and returns nil.
func (c *Controller) Initialize(ctx context.Context) error {
	return c.initialize(ctx, true)
}

// Resume connects without prompting, and only when the wallet already has
// an authorized account.
func (c *Controller) Resume(ctx context.Context) error {
	if c.provider == nil || !c.provider.Available() {
		return nil
	}
	accounts, err := c.provider.AuthorizedAccounts(ctx)
	if err != nil {
		return wallet.Classify(err, "read authorized accounts")
	}
	if len(accounts) == 0 {
		log.Debug("session - nothing to resume")
		return nil
	}
	return c.initialize(ctx, false)
}

func (c *Controller) initialize(ctx context.Context, interactive bool) error {
	c.mu.Lock()
	switch c.phase {
	case PhaseConnected:
		c.mu.Unlock()
		return nil
	case PhaseConnecting:
		f := c.flight
		c.mu.Unlock()
		select {
		case <-f.done:
			return nil
		case <-ctx.Done():
			return errors.Classify(ctx.Err(), "wait for connection")
		}
	}
	if c.closed {
		c.mu.Unlock()
		return errors.NewKind(errors.KindProviderUnavailable, "session controller closed")
	}
	epoch, f := c.beginLocked()
	c.mu.Unlock()

	b, err := c.establish(ctx, interactive, "")
	return c.commit(epoch, f, b, err, false)
}

// OnAccountsChanged reacts to the account list reported by the provider.
// An empty list disconnects; a different first account reconnects as that
// account without prompting. Events arriving while connecting are evaluated
// once the attempt in flight has settled.
func (c *Controller) OnAccountsChanged(ctx context.Context, accounts []string) error {
	for {
		c.mu.Lock()
		if c.phase != PhaseConnecting {
			break
		}
		f := c.flight
		c.mu.Unlock()
		select {
		case <-f.done:
		case <-ctx.Done():
			return errors.Classify(ctx.Err(), "wait for connection")
		}
	}

	if len(accounts) == 0 {
		if c.phase == PhaseDisconnected && c.current == nil {
			c.mu.Unlock()
			return nil
		}
		c.epoch++
		c.resetLocked(PhaseDisconnected, nil)
		c.mu.Unlock()
		log.Info("session - wallet reports no accounts, disconnected")
		return nil
	}
	if c.phase == PhaseConnected && strings.EqualFold(c.current.account, accounts[0]) {
		c.mu.Unlock()
		return nil
	}
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	previous := ""
	if c.current != nil {
		previous = c.current.account
	}
	epoch, f := c.beginLocked()
	c.mu.Unlock()
	log.Infof("session - account changed from %q to %q, reconnecting", previous, accounts[0])

	b, err := c.establish(ctx, false, accounts[0])
	return c.commit(epoch, f, b, err, true)
}

// Disconnect drops the session and any attempt in flight. Calling it while
// disconnected does nothing.
func (c *Controller) Disconnect() {
	c.mu.Lock()
	if c.phase == PhaseDisconnected {
		c.mu.Unlock()
		return
	}
	f := c.flight
	c.epoch++
	c.resetLocked(PhaseDisconnected, nil)
	c.mu.Unlock()
	if f != nil {
		f.finish(errCanceled())
	}
	log.Info("session - disconnected")
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := State{Phase: c.phase, Err: c.lastErr}
	if c.phase == PhaseConnected && c.current != nil {
		s.Account = c.current.account
		s.Contract = c.current.contract
	}
	return s
}

// ContractProxy returns the proxy bound to the connected account. It never
// blocks and returns false unless connected.
func (c *Controller) ContractProxy() (campaign.Contract, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.phase != PhaseConnected || c.current == nil {
		return nil, false
	}
	return c.current.proxy, true
}

// Close removes the provider subscription, stops reacting to account changes
// and disconnects.
func (c *Controller) Close() {
	c.closeOnce.Do(func() {
		c.cancel()
		c.mu.Lock()
		c.closed = true
		unsubscribe := c.unsubscribe
		c.unsubscribe = nil
		c.mu.Unlock()
		if unsubscribe != nil {
			unsubscribe()
		}
		c.wg.Wait()
		c.Disconnect()
	})
}

// beginLocked enters PhaseConnecting with a fresh flight, overtaking any
// previous attempt.
func (c *Controller) beginLocked() (uint64, *flight) {
	if c.flight != nil {
		c.flight.finish(errCanceled())
	}
	c.epoch++
	f := newFlight()
	c.resetLocked(PhaseConnecting, nil)
	c.flight = f
	log.Debugf("session - phase %s (epoch %d)", PhaseConnecting, c.epoch)
	return c.epoch, f
}

func (c *Controller) resetLocked(phase Phase, err error) {
	c.phase = phase
	c.current = nil
	c.flight = nil
	c.lastErr = err
}

// establish runs the connection steps in order. Nothing is committed here.
func (c *Controller) establish(ctx context.Context, interactive bool, prefer string) (*bound, error) {
	if c.provider == nil || !c.provider.Available() {
		return nil, errors.NewKind(errors.KindProviderUnavailable, "no wallet provider found, install or configure a wallet")
	}
	accounts, err := c.provider.AuthorizedAccounts(ctx)
	if err != nil {
		return nil, wallet.Classify(err, "read authorized accounts")
	}
	if len(accounts) == 0 {
		if !interactive {
			return nil, errors.NewKind(errors.KindUserRejected, "no authorized account")
		}
		log.Debug("session - requesting wallet authorization")
		if accounts, err = c.provider.RequestAuthorization(ctx); err != nil {
			return nil, wallet.Classify(err, "request wallet authorization")
		}
		if len(accounts) == 0 {
			return nil, errors.NewKind(errors.KindUserRejected, "wallet authorized no account")
		}
	}
	account := accounts[0]
	for _, a := range accounts {
		if prefer != "" && strings.EqualFold(a, prefer) {
			account = a
		}
	}

	signer, err := c.provider.SigningHandle(ctx, account)
	if err != nil {
		return nil, wallet.Classify(err, "get signing handle for "+account)
	}
	contract, err := c.fetcher.Fetch(ctx)
	if err != nil {
		if errors.KindOf(err) == errors.KindUnknown {
			err = errors.WithKind(errors.KindMetadataUnavailable, err, "fetch contract metadata")
		}
		return nil, err
	}
	if contract == nil {
		return nil, errors.NewKind(errors.KindMetadataUnavailable, "empty contract metadata")
	}
	proxy, err := c.binder.Bind(contract, signer)
	if err != nil {
		return nil, errors.Classify(err, "bind contract")
	}
	return &bound{account: account, signer: signer, contract: contract, proxy: proxy}, nil
}

// commit publishes the outcome of attempt epoch in one step. Outcomes of
// overtaken attempts are dropped.
func (c *Controller) commit(epoch uint64, f *flight, b *bound, err error, background bool) error {
	c.mu.Lock()
	if c.epoch != epoch {
		c.mu.Unlock()
		log.Debugf("session - dropped outcome of overtaken attempt %d", epoch)
		return errCanceled()
	}
	if err != nil {
		phase := PhaseDisconnected
		if background && !errors.KindOf(err).Recoverable() {
			phase = PhaseError
		}
		c.resetLocked(phase, err)
		c.mu.Unlock()
		f.finish(err)
		log.Warnf("session - connection failed [%s], phase %s: %v", errors.KindOf(err), phase, err)
		return err
	}
	c.phase = PhaseConnected
	c.current = b
	c.flight = nil
	c.lastErr = nil
	c.mu.Unlock()
	f.finish(nil)
	log.Infof("session - connected as %s to contract %s", b.account, b.contract.Address.Hex())

	c.subscribeOnce()
	return nil
}

// subscribeOnce installs the provider subscription on the first successful
// connection. Events are queued to a single reaction loop.
func (c *Controller) subscribeOnce() {
	if !c.subscribed.CAS(false, true) {
		return
	}
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.wg.Add(1)
	go c.loop()
	c.mu.Unlock()

	unsubscribe := c.provider.Subscribe(func(accounts []string) {
		select {
		case c.events <- accounts:
		case <-c.ctx.Done():
		}
	})
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		unsubscribe()
		return
	}
	c.unsubscribe = unsubscribe
	c.mu.Unlock()
	log.Debug("session - subscribed to account changes")
}

func (c *Controller) loop() {
	defer c.wg.Done()
	for {
		select {
		case <-c.ctx.Done():
			return
		case accounts := <-c.events:
			if err := c.OnAccountsChanged(c.ctx, accounts); err != nil && !errors.IsKind(err, errors.KindCanceled) {
				log.Warnf("session - account change to %v: %v", accounts, err)
			}
		}
	}
}

func errCanceled() error {
	return errors.NewKind(errors.KindCanceled, "connection attempt overtaken by disconnect or account change")
}
