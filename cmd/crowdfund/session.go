package main

import (
	"context"
	"math/big"
	"os"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/pterm/pterm"
	"moff.io/crowdfund/internal/campaign"
	"moff.io/crowdfund/internal/config"
	"moff.io/crowdfund/internal/contract"
	"moff.io/crowdfund/internal/databus"
	"moff.io/crowdfund/internal/metadata"
	"moff.io/crowdfund/internal/session"
	"moff.io/crowdfund/internal/wallet"
	"moff.io/crowdfund/internal/walletconnect"
	"moff.io/crowdfund/pkg/errors"
	"moff.io/crowdfund/pkg/log"
)

type closer interface {
	Close()
}

// app is the wired set of components one command works with.
type app struct {
	conf      *config.Configuration
	client    *ethclient.Client
	provider  wallet.Provider
	ctrl      *session.Controller
	workflows *campaign.Workflows
	bus       *databus.DataBus
}

func newProvider(conf *config.Configuration) (wallet.Provider, error) {
	chainID := big.NewInt(conf.Chain.ChainID)
	w := conf.Wallet
	switch w.Kind {
	case config.WalletWalletConnect:
		opts := []walletconnect.Option{walletconnect.WithDisplay(displayQRCode(w.QRCodeFile))}
		if w.BridgeURL != "" {
			opts = append(opts, walletconnect.WithBridge(w.BridgeURL))
		}
		return walletconnect.NewProvider(chainID, opts...)
	default:
		var opts []wallet.KeystoreOption
		if w.Account != "" {
			opts = append(opts, wallet.WithPreferredAccount(w.Account))
		}
		return wallet.OpenKeystore(w.KeystoreDir, chainID, wallet.TerminalPrompt(w.PassphraseEnv, os.Stderr), opts...), nil
	}
}

func displayQRCode(path string) walletconnect.DisplayQRCodeFn {
	write := walletconnect.WriteQRCodeFile(path)
	return func(uri string, png []byte) error {
		if err := write(uri, png); err != nil {
			return err
		}
		pterm.Info.Printfln("Scan %s with your wallet, or pair with:\n%s", path, uri)
		return nil
	}
}

// openApp dials the chain and builds the session without connecting it.
func openApp(ctx context.Context, conf *config.Configuration) (*app, error) {
	client, err := contract.Dial(ctx, conf.Chain.RPCURL, conf.Chain.ChainID)
	if err != nil {
		return nil, err
	}
	provider, err := newProvider(conf)
	if err != nil {
		client.Close()
		return nil, err
	}
	a := &app{conf: conf, client: client, provider: provider}
	fetcher := metadata.NewClient(conf.Metadata.URL, conf.Metadata.Timeout)
	a.ctrl = session.New(provider, fetcher, contract.NewBinder(client))

	opts := []campaign.Option{campaign.WithReadRate(conf.Campaigns.ReadsPerSecond)}
	if bus, err := databus.InitDataBus(conf.KafkaServer); err != nil {
		log.Warnf("campaign events will not be published: %v", err)
	} else if bus != nil {
		a.bus = bus
		opts = append(opts, campaign.WithPublisher(bus, conf.Campaigns.EventTopic))
	}
	a.workflows = campaign.NewWorkflows(opts...)
	return a, nil
}

// connect initializes the session and returns the contract bound to it.
func (a *app) connect(ctx context.Context) (campaign.Contract, error) {
	spinner, _ := pterm.DefaultSpinner.Start("Connecting wallet")
	if err := a.ctrl.Initialize(ctx); err != nil {
		spinner.Fail(describe(err))
		return nil, err
	}
	proxy, ok := a.ctrl.ContractProxy()
	if !ok {
		st := a.ctrl.State()
		spinner.Fail("wallet session is " + st.Phase.String())
		if st.Err != nil {
			return nil, st.Err
		}
		return nil, errors.NewKind(errors.KindProviderUnavailable, "wallet session not connected")
	}
	st := a.ctrl.State()
	spinner.Success("Connected as " + st.Account + " to " + st.Contract.Address.Hex())
	return proxy, nil
}

func (a *app) Close() {
	a.ctrl.Close()
	if c, ok := a.provider.(closer); ok {
		c.Close()
	}
	if a.bus != nil {
		if err := a.bus.Close(); err != nil {
			log.Warnf("close databus: %v", err)
		}
	}
	a.client.Close()
}

// describe turns an error into the message shown to the user.
func describe(err error) string {
	switch errors.KindOf(err) {
	case errors.KindProviderUnavailable:
		return "No wallet available: " + err.Error()
	case errors.KindUserRejected:
		return "Request rejected in the wallet"
	case errors.KindAuthorizationPending:
		return "An authorization request is already open in the wallet"
	case errors.KindMetadataUnavailable:
		return "Contract details unavailable: " + err.Error()
	case errors.KindInvalidInput:
		return "Invalid input: " + err.Error()
	case errors.KindNoCampaigns:
		return "No campaigns yet"
	case errors.KindTransactionFailed:
		return "Transaction failed: " + err.Error()
	case errors.KindBusy:
		return "Another operation of this kind is in progress"
	case errors.KindCanceled:
		return "Canceled"
	default:
		return err.Error()
	}
}
