package model

import "time"

// Transfer is the persisted record of one ingest or one download of a
// digital object. Ownership fields are set once at creation and never
// change; everything reachable through the update operations of the store
// also bumps LastUpdate.
type Transfer struct {
	ID         int64  `json:"id"`
	TransferID string `json:"transfer_id" gorm:"uniqueIndex"`
	Kind       Kind   `json:"kind" gorm:"index"`

	ObjectID      string `json:"object_id" gorm:"index"`
	AccessPointID string `json:"access_point_id"`

	OwnerID string `json:"owner_id" gorm:"index"`
	GroupID string `json:"group_id"`

	Status       Status `json:"status"`
	ErrorMessage string `json:"error_message,omitempty"`

	ClientAccessURL string `json:"client_access_url,omitempty"`
	StagingURL      string `json:"staging_url,omitempty"`
	// StorageURL is only meaningful for ingests; it points at the final
	// archive location the staged data is moved to.
	StorageURL string `json:"storage_url,omitempty"`

	// Active is non-nil exactly while the record is in a non-final state.
	// Together with the unique index this realizes the at-most-one-active
	// invariant in the database rather than in application code: terminal
	// rows carry NULL and never collide.
	Active *bool `json:"-" gorm:"uniqueIndex:idx_one_active_transfer"`
	// The remaining columns of idx_one_active_transfer.
	KindKey        Kind   `json:"-" gorm:"column:kind_key;uniqueIndex:idx_one_active_transfer"`
	ObjectKey      string `json:"-" gorm:"column:object_key;uniqueIndex:idx_one_active_transfer"`
	AccessPointKey string `json:"-" gorm:"column:access_point_key;uniqueIndex:idx_one_active_transfer"`
	OwnerKey       string `json:"-" gorm:"column:owner_key;uniqueIndex:idx_one_active_transfer"`

	Processors []StagingProcessor `json:"processors,omitempty" gorm:"many2many:transfer_processors"`

	LastUpdate time.Time  `json:"last_update"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

func (Transfer) TableName() string {
	return "transfers"
}

// IsExpired reports whether the record may be removed by the next cleanup
// pass. A record without an explicit expiry falls back to LastUpdate plus
// the default lifetime.
func (t *Transfer) IsExpired(defaultLifetime time.Duration) bool {
	return time.Now().After(t.EffectiveDeadline(defaultLifetime))
}

// EffectiveDeadline is ExpiresAt when set, LastUpdate plus defaultLifetime
// otherwise.
func (t *Transfer) EffectiveDeadline(defaultLifetime time.Duration) time.Time {
	if t.ExpiresAt == nil {
		return t.LastUpdate.Add(defaultLifetime)
	}
	return *t.ExpiresAt
}

// SyncActiveKeys aligns the uniqueness columns with the current status.
// Stores call this before persisting a status change. Download uniqueness
// is scoped to the owning user and access point, so two users may each hold
// an active download of the same object; ingest uniqueness ignores both and
// stays one record per object across all users.
func (t *Transfer) SyncActiveKeys() {
	if t.Status.IsFinalState(t.Kind) {
		t.Active = nil
		t.KindKey = ""
		t.ObjectKey = ""
		t.AccessPointKey = ""
		t.OwnerKey = ""
		return
	}

	active := true
	t.Active = &active
	t.KindKey = t.Kind
	t.ObjectKey = t.ObjectID
	if t.Kind == KindDownload {
		t.AccessPointKey = t.AccessPointID
		t.OwnerKey = t.OwnerID
	} else {
		t.AccessPointKey = ""
		t.OwnerKey = ""
	}
}
