package database

import (
	"context"
	"encoding/json"
	"time"

	"gorm.io/gorm"
	"moff.io/crowdfund/pkg/errors"
)

// ContractDeployment records one deployment of a named contract on a chain.
type ContractDeployment struct {
	ID        uint64 `gorm:"primaryKey"`
	Name      string `gorm:"index:idx_deployment_name_chain"`
	ChainID   int64  `gorm:"index:idx_deployment_name_chain"`
	Address   string
	ABI       JSONBArray `gorm:"type:jsonb"`
	TxHash    string     `gorm:"uniqueIndex"`
	CreatedAt time.Time
}

// RawABI returns the stored ABI as JSON.
func (d *ContractDeployment) RawABI() (json.RawMessage, error) {
	b, err := json.Marshal(d.ABI)
	if err != nil {
		return nil, errors.Wrap(err, "marshal stored abi")
	}
	return b, nil
}

// NewContractDeployment parses rawABI, which must be a JSON array.
func NewContractDeployment(name string, chainID int64, address, txHash string, rawABI []byte) (*ContractDeployment, error) {
	var abi JSONBArray
	if err := json.Unmarshal(rawABI, &abi); err != nil {
		return nil, errors.Wrap(err, "abi must be a json array")
	}
	return &ContractDeployment{Name: name, ChainID: chainID, Address: address, TxHash: txHash, ABI: abi}, nil
}

// SaveDeployment inserts d. Recording the same deployment transaction twice
// is not an error.
func SaveDeployment(ctx context.Context, db *gorm.DB, d *ContractDeployment) error {
	err := db.WithContext(ctx).Create(d).Error
	if IsDuplicateKeyErr(err) {
		return nil
	}
	if err != nil {
		return errors.WrapAndReport(err, "save contract deployment")
	}
	return nil
}

// LatestDeployment returns the newest deployment of name on chainID, or nil
// when none was recorded.
func LatestDeployment(ctx context.Context, db *gorm.DB, name string, chainID int64) (*ContractDeployment, error) {
	var d ContractDeployment
	err := db.WithContext(ctx).
		Where("name = ? AND chain_id = ?", name, chainID).
		Order("id desc").
		First(&d).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.WrapAndReport(err, "query latest contract deployment")
	}
	return &d, nil
}
