package wallet

import (
	"context"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/event"
	"go.uber.org/atomic"
	"moff.io/crowdfund/pkg/errors"
	"moff.io/crowdfund/pkg/log"
)

// Prompt asks the user for the passphrase of account. Returning
// ErrPromptDeclined means the user refused.
type Prompt func(ctx context.Context, account accounts.Account) (string, error)

var ErrPromptDeclined = errors.NewKind(errors.KindUserRejected, "passphrase prompt declined")

// KeystoreProvider authorizes accounts of a local keystore by unlocking them
// with a prompted passphrase.
type KeystoreProvider struct {
	ks        *keystore.KeyStore
	chainID   *big.Int
	prompt    Prompt
	preferred common.Address

	requesting atomic.Bool

	mu         sync.RWMutex
	authorized map[common.Address]bool

	listeners Listeners
	sub       event.Subscription
	closeOnce sync.Once
	done      chan struct{}
}

type KeystoreOption func(*KeystoreProvider)

// WithPreferredAccount picks which keystore account RequestAuthorization
// unlocks. Without it the first account is used.
func WithPreferredAccount(hex string) KeystoreOption {
	return func(p *KeystoreProvider) {
		if common.IsHexAddress(hex) {
			p.preferred = common.HexToAddress(hex)
		}
	}
}

// OpenKeystore opens the keystore directory with standard scrypt parameters.
func OpenKeystore(dir string, chainID *big.Int, prompt Prompt, opts ...KeystoreOption) *KeystoreProvider {
	ks := keystore.NewKeyStore(dir, keystore.StandardScryptN, keystore.StandardScryptP)
	return NewKeystoreProvider(ks, chainID, prompt, opts...)
}

func NewKeystoreProvider(ks *keystore.KeyStore, chainID *big.Int, prompt Prompt, opts ...KeystoreOption) *KeystoreProvider {
	p := &KeystoreProvider{
		ks:         ks,
		chainID:    chainID,
		prompt:     prompt,
		authorized: make(map[common.Address]bool),
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	events := make(chan accounts.WalletEvent, 8)
	p.sub = ks.Subscribe(events)
	go p.watch(events)
	return p
}

func (p *KeystoreProvider) Available() bool {
	return p.ks != nil && len(p.ks.Accounts()) > 0
}

func (p *KeystoreProvider) AuthorizedAccounts(context.Context) ([]string, error) {
	if !p.Available() {
		return nil, errors.NewKind(errors.KindProviderUnavailable, "keystore has no accounts")
	}
	return p.authorizedList(), nil
}

func (p *KeystoreProvider) RequestAuthorization(ctx context.Context) ([]string, error) {
	if !p.Available() {
		return nil, errors.NewKind(errors.KindProviderUnavailable, "keystore has no accounts")
	}
	if !p.requesting.CAS(false, true) {
		return nil, errors.NewKind(errors.KindAuthorizationPending, "an authorization request is already pending")
	}
	defer p.requesting.Store(false)

	acct, err := p.pick()
	if err != nil {
		return nil, err
	}
	if p.prompt == nil {
		return nil, errors.NewKind(errors.KindProviderUnavailable, "no passphrase prompt configured")
	}
	pass, err := p.prompt(ctx, acct)
	if err != nil {
		return nil, Classify(err, "passphrase prompt")
	}
	if err := p.ks.Unlock(acct, pass); err != nil {
		if errors.Is(err, keystore.ErrDecrypt) {
			return nil, errors.WithKind(errors.KindUserRejected, err, "unlock "+acct.Address.Hex())
		}
		return nil, errors.Classify(err, "unlock "+acct.Address.Hex())
	}

	p.mu.Lock()
	p.authorized[acct.Address] = true
	p.mu.Unlock()
	log.Infof("wallet - account %s authorized", acct.Address.Hex())
	return p.authorizedList(), nil
}

func (p *KeystoreProvider) SigningHandle(_ context.Context, account string) (*bind.TransactOpts, error) {
	if !common.IsHexAddress(account) {
		return nil, errors.NewKind(errors.KindInvalidInput, "not an account address: "+account)
	}
	addr := common.HexToAddress(account)
	p.mu.RLock()
	ok := p.authorized[addr]
	p.mu.RUnlock()
	if !ok {
		return nil, errors.NewKind(errors.KindUserRejected, "account "+addr.Hex()+" is not authorized")
	}
	opts, err := bind.NewKeyStoreTransactorWithChainID(p.ks, accounts.Account{Address: addr}, p.chainID)
	if err != nil {
		return nil, errors.Classify(err, "keystore transactor")
	}
	return opts, nil
}

func (p *KeystoreProvider) Subscribe(fn func([]string)) func() {
	return p.listeners.Add(fn)
}

// Revoke withdraws the authorization of account and tells subscribers.
func (p *KeystoreProvider) Revoke(account string) {
	addr := common.HexToAddress(account)
	p.mu.Lock()
	_, ok := p.authorized[addr]
	delete(p.authorized, addr)
	p.mu.Unlock()
	if !ok {
		return
	}
	_ = p.ks.Lock(addr)
	log.Infof("wallet - account %s revoked", addr.Hex())
	p.listeners.Notify(p.authorizedList())
}

func (p *KeystoreProvider) Close() {
	p.closeOnce.Do(func() {
		p.sub.Unsubscribe()
		close(p.done)
	})
}

// watch drops authorizations of accounts removed from the keystore.
func (p *KeystoreProvider) watch(events chan accounts.WalletEvent) {
	for {
		select {
		case <-p.done:
			return
		case err, ok := <-p.sub.Err():
			if ok && err != nil {
				log.Warnf("wallet - keystore subscription: %v", err)
			}
			return
		case ev := <-events:
			if ev.Kind != accounts.WalletDropped {
				continue
			}
			changed := false
			p.mu.Lock()
			for _, a := range ev.Wallet.Accounts() {
				if p.authorized[a.Address] {
					delete(p.authorized, a.Address)
					changed = true
				}
			}
			p.mu.Unlock()
			if changed {
				p.listeners.Notify(p.authorizedList())
			}
		}
	}
}

func (p *KeystoreProvider) pick() (accounts.Account, error) {
	all := p.ks.Accounts()
	if p.preferred != (common.Address{}) {
		for _, a := range all {
			if a.Address == p.preferred {
				return a, nil
			}
		}
		return accounts.Account{}, errors.NewKind(errors.KindProviderUnavailable,
			"account "+p.preferred.Hex()+" not found in keystore")
	}
	return all[0], nil
}

func (p *KeystoreProvider) authorizedList() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	var out []string
	for _, a := range p.ks.Accounts() {
		if p.authorized[a.Address] {
			out = append(out, a.Address.Hex())
		}
	}
	return out
}
