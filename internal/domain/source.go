package domain

import (
	"fmt"
	"time"
)

// SourceType represents the origin kind of a knowledge source
type SourceType string

const (
	SourceTypeNote      SourceType = "note"
	SourceTypeFile      SourceType = "file"
	SourceTypeConnector SourceType = "connector"
)

// SourceStatus represents the ingestion state machine of a knowledge source
type SourceStatus string

const (
	SourceStatusPending  SourceStatus = "pending"
	SourceStatusSyncing  SourceStatus = "syncing"
	SourceStatusReady    SourceStatus = "ready"
	SourceStatusError    SourceStatus = "error"
	SourceStatusDisabled SourceStatus = "disabled"
)

// StorageStrategy selects where chunk ciphertext lives
type StorageStrategy string

const (
	// StorageManaged keeps ciphertext inline in the chunk row.
	StorageManaged StorageStrategy = "managed"
	// StorageExternal hands ciphertext to a blob backend and keeps only a key.
	StorageExternal StorageStrategy = "external"
)

// RetentionPolicy determines whether chunks expire for eventual purge
type RetentionPolicy string

const (
	RetentionIndefinite RetentionPolicy = "indefinite"
	RetentionRolling90  RetentionPolicy = "rolling-90-day"
	RetentionManual     RetentionPolicy = "manual"
)

// RollingRetentionWindow is the expiry horizon of the rolling policy.
const RollingRetentionWindow = 90 * 24 * time.Hour

// SharedTenantID is the sentinel tenant used to key encryption for sources
// that are not scoped to a single tenant.
const SharedTenantID = "shared"

// KnowledgeSource represents a logical origin of ingested knowledge.
// TenantID is empty for shared (tenant-agnostic) sources.
type KnowledgeSource struct {
	ID              string
	TenantID        string
	Name            string
	Type            SourceType
	Provider        string
	Status          SourceStatus
	StorageStrategy StorageStrategy
	RetentionPolicy RetentionPolicy
	Configuration   map[string]string
	LastSyncedAt    *time.Time
	LastError       string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// EncryptionTenant returns the tenant id used for key derivation: the
// source's tenant, or the shared sentinel when the source is tenant-agnostic.
func (s *KnowledgeSource) EncryptionTenant() string {
	if s.TenantID == "" {
		return SharedTenantID
	}
	return s.TenantID
}

// RetentionExpiry computes the expiry for chunks ingested at the given time
// under the source's retention policy. Nil means no automatic expiry.
func (s *KnowledgeSource) RetentionExpiry(now time.Time) *time.Time {
	if s.RetentionPolicy == RetentionRolling90 {
		t := now.Add(RollingRetentionWindow)
		return &t
	}
	return nil
}

// ValidateSource validates a KnowledgeSource instance
func ValidateSource(s *KnowledgeSource) error {
	if s == nil {
		return fmt.Errorf("knowledge source cannot be nil")
	}

	if s.ID == "" {
		return fmt.Errorf("knowledge source ID: %w", ErrMissingRequiredField)
	}

	if s.Name == "" {
		return fmt.Errorf("knowledge source Name: %w", ErrMissingRequiredField)
	}

	if !isValidSourceType(s.Type) {
		return fmt.Errorf("knowledge source Type %q: %w", s.Type, ErrInvalidSourceType)
	}

	if !isValidSourceStatus(s.Status) {
		return fmt.Errorf("knowledge source Status %q: %w", s.Status, ErrInvalidSourceStatus)
	}

	if !IsValidStorageStrategy(s.StorageStrategy) {
		return fmt.Errorf("knowledge source StorageStrategy %q: %w", s.StorageStrategy, ErrInvalidStorageStrategy)
	}

	if !IsValidRetentionPolicy(s.RetentionPolicy) {
		return fmt.Errorf("knowledge source RetentionPolicy %q: %w", s.RetentionPolicy, ErrInvalidRetentionPolicy)
	}

	return nil
}

func isValidSourceType(t SourceType) bool {
	switch t {
	case SourceTypeNote, SourceTypeFile, SourceTypeConnector:
		return true
	}
	return false
}

func isValidSourceStatus(s SourceStatus) bool {
	switch s {
	case SourceStatusPending, SourceStatusSyncing, SourceStatusReady,
		SourceStatusError, SourceStatusDisabled:
		return true
	}
	return false
}

// IsValidStorageStrategy checks if a StorageStrategy is valid
func IsValidStorageStrategy(s StorageStrategy) bool {
	switch s {
	case StorageManaged, StorageExternal:
		return true
	}
	return false
}

// IsValidRetentionPolicy checks if a RetentionPolicy is valid
func IsValidRetentionPolicy(p RetentionPolicy) bool {
	switch p {
	case RetentionIndefinite, RetentionRolling90, RetentionManual:
		return true
	}
	return false
}
