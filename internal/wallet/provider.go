// Package wallet defines the wallet capability a session connects through and
// a provider backed by a local encrypted keystore.
package wallet

import (
	"context"
	stderrors "errors"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/rpc"
	"moff.io/crowdfund/pkg/errors"
)

// Provider is the wallet capability handed to a session.
type Provider interface {
	// Available reports whether a wallet is present at all.
	Available() bool
	// AuthorizedAccounts lists accounts already authorized, never prompting.
	AuthorizedAccounts(ctx context.Context) ([]string, error)
	// RequestAuthorization asks the user to authorize an account and may block
	// until they answer.
	RequestAuthorization(ctx context.Context) ([]string, error)
	// SigningHandle returns transaction options signing as account.
	SigningHandle(ctx context.Context, account string) (*bind.TransactOpts, error)
	// Subscribe registers fn for account changes. Events are delivered one
	// at a time, in order.
	Subscribe(fn func(accounts []string)) (unsubscribe func())
}

// EIP-1193 provider error codes.
const (
	CodeUserRejected  = 4001
	CodeUnauthorized  = 4100
	CodeUnsupported   = 4200
	CodeDisconnected  = 4900
	CodeChainMismatch = 4901
	CodeRequestQueued = -32002
)

// Classify maps a provider failure onto the session error kinds. Errors
// already carrying a kind pass through.
func Classify(err error, msg string) error {
	if err == nil {
		return nil
	}
	if errors.KindOf(err) != errors.KindUnknown {
		return err
	}
	if stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded) {
		return errors.Classify(err, msg)
	}
	var rpcErr rpc.Error
	if stderrors.As(err, &rpcErr) {
		switch rpcErr.ErrorCode() {
		case CodeUserRejected, CodeUnauthorized:
			return errors.WithKind(errors.KindUserRejected, err, msg)
		case CodeRequestQueued:
			return errors.WithKind(errors.KindAuthorizationPending, err, msg)
		case CodeUnsupported, CodeDisconnected, CodeChainMismatch:
			return errors.WithKind(errors.KindProviderUnavailable, err, msg)
		}
	}
	lower := strings.ToLower(err.Error())
	switch {
	case strings.Contains(lower, "user rejected"), strings.Contains(lower, "user denied"):
		return errors.WithKind(errors.KindUserRejected, err, msg)
	case strings.Contains(lower, "already pending"):
		return errors.WithKind(errors.KindAuthorizationPending, err, msg)
	}
	return errors.Classify(err, msg)
}
