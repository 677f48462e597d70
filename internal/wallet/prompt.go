package wallet

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"golang.org/x/term"
	"moff.io/crowdfund/pkg/errors"
)

// TerminalPrompt reads the passphrase from the environment variable envName
// when set, otherwise from the controlling terminal with echo disabled.
// An empty answer declines.
func TerminalPrompt(envName string, out io.Writer) Prompt {
	return func(ctx context.Context, account accounts.Account) (string, error) {
		if envName != "" {
			if pass, ok := os.LookupEnv(envName); ok {
				return pass, nil
			}
		}
		fd := int(os.Stdin.Fd())
		if !term.IsTerminal(fd) {
			return "", errors.NewKind(errors.KindProviderUnavailable, "no terminal to prompt for a passphrase, set "+envName)
		}
		fmt.Fprintf(out, "Passphrase for %s: ", account.Address.Hex())
		type answer struct {
			pass []byte
			err  error
		}
		ch := make(chan answer, 1)
		go func() {
			pass, err := term.ReadPassword(fd)
			ch <- answer{pass, err}
		}()
		select {
		case <-ctx.Done():
			fmt.Fprintln(out)
			return "", ctx.Err()
		case a := <-ch:
			fmt.Fprintln(out)
			if a.err != nil {
				return "", errors.Wrap(a.err, "read passphrase")
			}
			pass := strings.TrimRight(string(a.pass), "\r\n")
			if pass == "" {
				return "", ErrPromptDeclined
			}
			return pass, nil
		}
	}
}
