package campaign

import (
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/params"
	"moff.io/crowdfund/pkg/errors"
)

const etherDecimals = 18

// ParseEther converts a decimal ether amount such as "0.1" into wei.
func ParseEther(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, errors.NewKind(errors.KindInvalidInput, "empty amount")
	}
	r, ok := new(big.Rat).SetString(s)
	if !ok {
		return nil, errors.NewKind(errors.KindInvalidInput, "amount "+s+" is not a decimal number")
	}
	if frac := strings.SplitN(s, ".", 2); len(frac) == 2 && len(frac[1]) > etherDecimals {
		return nil, errors.NewKind(errors.KindInvalidInput, "amount "+s+" has more than 18 decimals")
	}
	r.Mul(r, new(big.Rat).SetInt(big.NewInt(params.Ether)))
	if !r.IsInt() {
		return nil, errors.NewKind(errors.KindInvalidInput, "amount "+s+" is not a whole number of wei")
	}
	return new(big.Int).Set(r.Num()), nil
}

// FormatEther renders wei as a decimal ether amount without trailing zeros.
func FormatEther(wei *big.Int) string {
	if wei == nil {
		return "0"
	}
	neg := wei.Sign() < 0
	abs := new(big.Int).Abs(wei)
	unit := big.NewInt(params.Ether)
	whole, frac := new(big.Int).QuoRem(abs, unit, new(big.Int))

	out := whole.String()
	if frac.Sign() != 0 {
		digits := frac.String()
		digits = strings.Repeat("0", etherDecimals-len(digits)) + digits
		out += "." + strings.TrimRight(digits, "0")
	}
	if neg {
		out = "-" + out
	}
	return out
}
