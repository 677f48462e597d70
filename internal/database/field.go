package database

import (
	"database/sql/driver"
	"encoding/json"

	"moff.io/crowdfund/pkg/errors"
)

// JSONBArray stores a JSON array, a contract ABI for instance, in a jsonb column.
type JSONBArray []interface{}

func (j JSONBArray) Value() (driver.Value, error) {
	if j == nil {
		return "[]", nil
	}
	valueString, err := json.Marshal(j)
	return string(valueString), err
}

func (j *JSONBArray) Scan(value interface{}) error {
	var raw []byte
	switch v := value.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	case nil:
		*j = nil
		return nil
	default:
		return errors.Errorf("scan %T into jsonb array", value)
	}
	return json.Unmarshal(raw, j)
}
