// Package models holds the persisted records shared by the repository
// adapters and the migrations.
package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/karloscodes/cartridge/sqlite"
	"gorm.io/gorm"
)

// JSON is a custom type for handling JSON data
type JSON []byte

// Scan scan value into Jsonb, implements sql.Scanner interface
func (j *JSON) Scan(value interface{}) error {
	var bytes []byte
	switch v := value.(type) {
	case nil:
		*j = nil
		return nil
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return errors.New(fmt.Sprint("Failed to unmarshal JSON value:", value))
	}

	result := json.RawMessage{}
	err := json.Unmarshal(bytes, &result)
	*j = JSON(result)
	return err
}

// Value return json value, implement driver.Valuer interface
func (j JSON) Value() (driver.Value, error) {
	if len(j) == 0 {
		return nil, nil
	}
	return string(j), nil
}

// MarshalJSON implements the json.Marshaler interface
func (j JSON) MarshalJSON() ([]byte, error) {
	if j == nil {
		return []byte("null"), nil
	}
	return j, nil
}

// UnmarshalJSON implements the json.Unmarshaler interface
func (j *JSON) UnmarshalJSON(data []byte) error {
	if j == nil {
		return fmt.Errorf("JSON: UnmarshalJSON on nil pointer")
	}
	*j = append((*j)[0:0], data...)
	return nil
}

// Domain is a tracked site. Rows are created once and never changed.
type Domain struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Domain    string    `gorm:"uniqueIndex;not null" json:"domain"`
	CreatedAt time.Time `json:"createdAt"`
}

// User is one fingerprint's relationship to a domain.
type User struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	Fingerprint string    `gorm:"uniqueIndex;not null" json:"fingerprint"`
	Domain      string    `gorm:"index;not null;default:''" json:"domain"`
	IP          string    `json:"ip"`
	CreatedAt   time.Time `json:"createdAt"`
	LastSeen    time.Time `gorm:"index" json:"lastSeen"`
}

// Detail is the device and network profile of a (fingerprint, ip) pairing.
type Detail struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	Fingerprint    string    `gorm:"uniqueIndex:idx_details_identity;not null" json:"fingerprint"`
	IP             string    `gorm:"uniqueIndex:idx_details_identity;not null" json:"ip"`
	OS             string    `gorm:"not null;default:''" json:"os"`
	BrowserName    string    `gorm:"not null;default:''" json:"browserName"`
	BrowserVersion string    `gorm:"not null;default:''" json:"browserVersion"`
	Timezone       string    `gorm:"not null;default:''" json:"timezone"`
	Language       string    `gorm:"not null;default:''" json:"language"`
	Referrer       string    `gorm:"not null;default:''" json:"referrer"`
	Location       JSON      `json:"location"`
	CreatedAt      time.Time `json:"createdAt"`
	LastSeen       time.Time `json:"lastSeen"`
	Notes          string    `gorm:"not null;default:''" json:"notes"`
}

// Event is one durable client action.
type Event struct {
	ID             string    `gorm:"primaryKey;size:26" json:"id"`
	Domain         string    `gorm:"index:idx_events_domain_timestamp;not null" json:"domain"`
	Fingerprint    string    `gorm:"index;not null" json:"fingerprint"`
	Type           string    `gorm:"not null" json:"type"`
	TypeData       JSON      `json:"typeData"`
	URL            string    `json:"url"`
	Referrer       string    `json:"referrer"`
	IP             string    `json:"ip"`
	UserAgent      string    `json:"userAgent"`
	BrowserName    string    `json:"browserName"`
	BrowserVersion string    `json:"browserVersion"`
	OS             string    `json:"os"`
	OSVersion      string    `json:"osVersion"`
	Device         string    `json:"device"`
	Bot            bool      `json:"bot"`
	Timezone       string    `json:"timezone"`
	Language       string    `json:"language"`
	Location       JSON      `json:"location"`
	Timestamp      time.Time `gorm:"index:idx_events_domain_timestamp;index;not null" json:"timestamp"`
}

// All lists every model for migration.
func All() []any {
	return []any{
		&Domain{},
		&User{},
		&Detail{},
		&Event{},
	}
}

// PerformWrite executes a write transaction with retry logic for SQLite busy errors.
// This is a wrapper that delegates to cartridge's sqlite.PerformWrite implementation.
func PerformWrite(logger *slog.Logger, dbConn *gorm.DB, f func(tx *gorm.DB) error) error {
	return sqlite.PerformWrite(logger, dbConn, f)
}
