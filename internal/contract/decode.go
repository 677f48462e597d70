package contract

import (
	"math"
	"math/big"
	"reflect"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"moff.io/crowdfund/pkg/errors"
)

// coerce converts an integer argument to the Go type abi packs for t:
// native unsigned types up to 64 bits and *big.Int above.
func coerce(t abi.Type, v interface{}) (interface{}, error) {
	if t.T != abi.UintTy && t.T != abi.IntTy {
		return v, nil
	}
	var n *big.Int
	switch x := v.(type) {
	case uint64:
		n = new(big.Int).SetUint64(x)
	case *big.Int:
		if x == nil {
			return nil, errors.New("nil integer")
		}
		n = x
	default:
		return v, nil
	}
	if n.Sign() < 0 && t.T == abi.UintTy {
		return nil, errors.Errorf("%s cannot hold negative %s", t.String(), n)
	}
	bits := t.Size
	if t.T == abi.IntTy {
		bits--
	}
	if n.BitLen() > bits {
		return nil, errors.Errorf("%s overflows %s", n, t.String())
	}
	if t.Size > 64 {
		return new(big.Int).Set(n), nil
	}
	if t.T == abi.IntTy {
		i := n.Int64()
		switch t.Size {
		case 8:
			return int8(i), nil
		case 16:
			return int16(i), nil
		case 32:
			return int32(i), nil
		default:
			return i, nil
		}
	}
	u := n.Uint64()
	switch t.Size {
	case 8:
		return uint8(u), nil
	case 16:
		return uint16(u), nil
	case 32:
		return uint32(u), nil
	default:
		return u, nil
	}
}

// outputFields names unpacked values. A single tuple output is flattened into
// its components, so both struct getters and flat getters read the same way.
func outputFields(outputs abi.Arguments, values []interface{}) (map[string]interface{}, error) {
	if len(values) != len(outputs) {
		return nil, errors.Errorf("got %d values for %d outputs", len(values), len(outputs))
	}
	fields := make(map[string]interface{}, len(outputs))
	if len(outputs) == 1 && outputs[0].Type.T == abi.TupleTy {
		rv := reflect.Indirect(reflect.ValueOf(values[0]))
		if rv.Kind() != reflect.Struct {
			return nil, errors.Errorf("tuple decoded as %s", rv.Kind())
		}
		for _, name := range outputs[0].Type.TupleRawNames {
			f := rv.FieldByName(abi.ToCamelCase(name))
			if f.IsValid() {
				fields[name] = f.Interface()
			}
		}
		return fields, nil
	}
	for i, out := range outputs {
		fields[out.Name] = values[i]
	}
	return fields, nil
}

func eventFields(event abi.Event, l *types.Log) (map[string]interface{}, error) {
	fields := make(map[string]interface{})
	if len(l.Data) > 0 {
		if err := event.Inputs.UnpackIntoMap(fields, l.Data); err != nil {
			return nil, err
		}
	}
	var indexed abi.Arguments
	for _, in := range event.Inputs {
		if in.Indexed {
			indexed = append(indexed, in)
		}
	}
	if err := abi.ParseTopicsIntoMap(fields, indexed, l.Topics[1:]); err != nil {
		return nil, err
	}
	return fields, nil
}

func toBigInt(v interface{}) (*big.Int, error) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return new(big.Int).SetUint64(rv.Uint()), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return big.NewInt(rv.Int()), nil
	}
	if n, ok := v.(*big.Int); ok && n != nil {
		return new(big.Int).Set(n), nil
	}
	return nil, errors.Errorf("unexpected integer type %T", v)
}

func toUint64(v interface{}) (uint64, error) {
	n, err := toBigInt(v)
	if err != nil {
		return 0, err
	}
	if n.Sign() < 0 || n.BitLen() > 64 {
		return 0, errors.Errorf("%s out of range", n)
	}
	if n.Uint64() > math.MaxInt64 {
		return 0, errors.Errorf("%s too large", n)
	}
	return n.Uint64(), nil
}

func toAddress(v interface{}) (common.Address, error) {
	switch a := v.(type) {
	case common.Address:
		return a, nil
	case *common.Address:
		if a != nil {
			return *a, nil
		}
	}
	return common.Address{}, errors.Errorf("unexpected address type %T", v)
}
