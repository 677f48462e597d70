package http

import (
	"context"
	"encoding/json"
	"io/ioutil"

	"github.com/tidwall/gjson"
	"gorm.io/gorm"
	"moff.io/crowdfund/internal/config"
	"moff.io/crowdfund/internal/database"
	"moff.io/crowdfund/pkg/errors"
)

// ContractResponse is the body of GET /api/contracts.
type ContractResponse struct {
	ContractAddress string          `json:"contractAddress"`
	ContractABI     json.RawMessage `json:"contractABI"`
}

// Complete reports whether both fields carry something.
func (r *ContractResponse) Complete() bool {
	return r.ContractAddress != "" && len(r.ContractABI) > 0 && string(r.ContractABI) != "null"
}

// Source yields the contract the endpoint advertises.
type Source interface {
	Contract(ctx context.Context) (*ContractResponse, error)
}

type staticSource struct {
	resp ContractResponse
}

// NewStaticSource serves address with the ABI read from abiPath, a bare ABI
// array or a compiler artifact with an "abi" field.
func NewStaticSource(address, abiPath string) (Source, error) {
	s := &staticSource{resp: ContractResponse{ContractAddress: address}}
	if abiPath == "" {
		return s, nil
	}
	dat, err := ioutil.ReadFile(abiPath)
	if err != nil {
		return nil, errors.Wrap(err, "read contract abi file")
	}
	abi, err := extractABI(dat)
	if err != nil {
		return nil, errors.Wrapf(err, "parse %s", abiPath)
	}
	s.resp.ContractABI = abi
	return s, nil
}

func (s *staticSource) Contract(context.Context) (*ContractResponse, error) {
	resp := s.resp
	return &resp, nil
}

func extractABI(dat []byte) (json.RawMessage, error) {
	if !gjson.ValidBytes(dat) {
		return nil, errors.New("invalid json")
	}
	root := gjson.ParseBytes(dat)
	switch {
	case root.IsArray():
		return json.RawMessage(root.Raw), nil
	case root.IsObject() && root.Get("abi").IsArray():
		return json.RawMessage(root.Get("abi").Raw), nil
	default:
		return nil, errors.New("neither an abi array nor an artifact with an abi field")
	}
}

type registrySource struct {
	db      *gorm.DB
	name    string
	chainID int64
}

// NewRegistrySource serves the latest deployment of name recorded in postgres.
func NewRegistrySource(db *gorm.DB, name string, chainID int64) Source {
	return &registrySource{db: db, name: name, chainID: chainID}
}

func (s *registrySource) Contract(ctx context.Context) (*ContractResponse, error) {
	d, err := database.LatestDeployment(ctx, s.db, s.name, s.chainID)
	if err != nil {
		return nil, err
	}
	if d == nil {
		return &ContractResponse{}, nil
	}
	raw, err := d.RawABI()
	if err != nil {
		return nil, err
	}
	return &ContractResponse{ContractAddress: d.Address, ContractABI: raw}, nil
}

// SourceFromConfig picks the registry when enabled, the static contract otherwise.
func SourceFromConfig(conf *config.Configuration, db *gorm.DB) (Source, error) {
	if conf.MetadataServer.Registry {
		if db == nil {
			return nil, errors.New("registry source needs postgres")
		}
		return NewRegistrySource(db, conf.MetadataServer.ContractName, conf.Chain.ChainID), nil
	}
	return NewStaticSource(conf.MetadataServer.ContractAddress, conf.MetadataServer.ABIPath)
}
