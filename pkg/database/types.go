package database

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
)

// StringArray stores a list of strings as a JSON text column, which keeps
// the same representation on postgres, mysql and sqlite.
type StringArray []string

// Scan implements sql.Scanner.
func (a *StringArray) Scan(value interface{}) error {
	var data []byte
	switch v := value.(type) {
	case nil:
		*a = nil
		return nil
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return errors.New("StringArray: unsupported scan type")
	}

	if len(data) == 0 {
		*a = StringArray{}
		return nil
	}
	return json.Unmarshal(data, (*[]string)(a))
}

// Value implements driver.Valuer.
func (a StringArray) Value() (driver.Value, error) {
	if a == nil {
		return nil, nil
	}
	data, err := json.Marshal([]string(a))
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// GormDataType returns the GORM data type hint.
func (StringArray) GormDataType() string {
	return "text"
}
