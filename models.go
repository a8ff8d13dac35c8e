package accounts

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// LicenseType is the license a user registered under
type LicenseType string

const (
	LicenseAcademic             LicenseType = "ACADEMIC"
	LicenseCommercial           LicenseType = "COMMERCIAL"
	LicenseResearchInCommercial LicenseType = "RESEARCH_IN_COMMERCIAL"
	LicenseHospital             LicenseType = "HOSPITAL"
)

// LicenseTypes lists every accepted license
var LicenseTypes = []LicenseType{
	LicenseAcademic,
	LicenseCommercial,
	LicenseResearchInCommercial,
	LicenseHospital,
}

// Valid reports whether l is a known license
func (l LicenseType) Valid() bool {
	for _, known := range LicenseTypes {
		if l == known {
			return true
		}
	}
	return false
}

const (
	AuthorityAdmin       = "ROLE_ADMIN"
	AuthorityUser        = "ROLE_USER"
	AuthorityAPI         = "ROLE_API"
	AuthorityPremiumUser = "ROLE_PREMIUM_USER"
)

// KnownAuthorities is the set of authorities that can be granted
var KnownAuthorities = []string{
	AuthorityAdmin,
	AuthorityUser,
	AuthorityAPI,
	AuthorityPremiumUser,
}

// User is the account model
type User struct {
	bun.BaseModel `bun:"table:users,alias:usr"`
	ID            uuid.UUID   `bun:"id,pk,type:uuid" json:"id"`
	Login         string      `bun:"login,notnull,unique" json:"login"`
	Email         string      `bun:"email,notnull,unique" json:"email"`
	PasswordHash  string      `bun:"password_hash,notnull" json:"-"`
	FirstName     string      `bun:"first_name" json:"first_name,omitempty"`
	LastName      string      `bun:"last_name" json:"last_name,omitempty"`
	ImageURL      string      `bun:"image_url" json:"image_url,omitempty"`
	LangKey       string      `bun:"lang_key,notnull" json:"lang_key"`
	Activated     bool        `bun:"activated,notnull" json:"activated"`
	ActivationKey *string     `bun:"activation_key,nullzero" json:"-"`
	ResetKey      *string     `bun:"reset_key,nullzero" json:"-"`
	ResetDate     *time.Time  `bun:"reset_date,nullzero" json:"reset_date,omitempty"`
	Authorities   []string    `bun:"authorities" json:"authorities"`
	LicenseType   LicenseType `bun:"license_type,notnull" json:"license_type"`
	CreatedAt     time.Time   `bun:"created_at,notnull" json:"created_at"`
	UpdatedAt     time.Time   `bun:"updated_at,notnull" json:"updated_at"`
}

// HasAuthority reports whether the user holds the named authority
func (u *User) HasAuthority(authority string) bool {
	if u == nil {
		return false
	}
	for _, a := range u.Authorities {
		if a == authority {
			return true
		}
	}
	return false
}

// EmailDomain returns the lowercased part after the last "@"
func (u *User) EmailDomain() string {
	if u == nil {
		return ""
	}
	return emailDomain(u.Email)
}

func emailDomain(email string) string {
	at := strings.LastIndex(email, "@")
	if at < 0 {
		return ""
	}
	return strings.ToLower(email[at+1:])
}

// UserDetails holds profile data attached 1:1 to a user
type UserDetails struct {
	bun.BaseModel      `bun:"table:user_details,alias:ud"`
	ID                 uuid.UUID     `bun:"id,pk,type:uuid" json:"id"`
	UserID             uuid.UUID     `bun:"user_id,notnull,unique,type:uuid" json:"user_id"`
	JobTitle           string        `bun:"job_title" json:"job_title,omitempty"`
	Company            string        `bun:"company" json:"company,omitempty"`
	City               string        `bun:"city" json:"city,omitempty"`
	Country            string        `bun:"country" json:"country,omitempty"`
	Phone              string        `bun:"phone" json:"phone,omitempty"`
	TrialAccount       *TrialAccount `bun:"trial_account" json:"trial_account,omitempty"`
	TrialActivationKey *string       `bun:"trial_activation_key,nullzero" json:"-"`
}

// SetTrialAccount replaces the trial record and keeps the lookup column in sync
func (d *UserDetails) SetTrialAccount(trial *TrialAccount) {
	d.TrialAccount = trial
	d.syncTrialKey()
}

var _ bun.AfterScanRowHook = (*UserDetails)(nil)

// AfterScanRow restores the trial key, which is kept out of the JSON
// column and only stored in trial_activation_key.
func (d *UserDetails) AfterScanRow(context.Context) error {
	if d.TrialAccount != nil && d.TrialActivationKey != nil {
		d.TrialAccount.Activation.Key = *d.TrialActivationKey
	}
	return nil
}

func (d *UserDetails) syncTrialKey() {
	if d.TrialAccount == nil || d.TrialAccount.Activation.Key == "" {
		d.TrialActivationKey = nil
		return
	}
	key := d.TrialAccount.Activation.Key
	d.TrialActivationKey = &key
}

// TrialAccount records a trial activation and the accepted agreement
type TrialAccount struct {
	Activation       TrialActivation  `json:"activation"`
	LicenseAgreement LicenseAgreement `json:"license_agreement"`
}

// TrialActivation tracks when a trial was started and completed
type TrialActivation struct {
	InitiationDate time.Time  `json:"initiation_date"`
	Key            string     `json:"-"`
	ActivationDate *time.Time `json:"activation_date,omitempty"`
}

// LicenseAgreement is the agreement a trial user accepts
type LicenseAgreement struct {
	Name           string     `json:"name"`
	Version        string     `json:"version"`
	AcceptanceDate *time.Time `json:"acceptance_date,omitempty"`
}

// Token is an opaque API credential owned by a user
type Token struct {
	bun.BaseModel `bun:"table:tokens,alias:tok"`
	ID            uuid.UUID `bun:"id,pk,type:uuid" json:"id"`
	Value         uuid.UUID `bun:"value,notnull,unique,type:uuid" json:"token"`
	UserID        uuid.UUID `bun:"user_id,notnull,type:uuid" json:"user_id"`
	Expiration    time.Time `bun:"expiration,notnull" json:"expiration"`
	Renewable     bool      `bun:"renewable,notnull" json:"renewable"`
	UsageCount    int       `bun:"usage_count,notnull" json:"usage_count"`
	CreatedAt     time.Time `bun:"created_at,notnull" json:"created_at"`
}

// IsExpired reports whether the token is no longer valid at now
func (t *Token) IsExpired(now time.Time) bool {
	return !t.Expiration.After(now)
}

// IsTerminal reports whether the token can never be extended again
func (t *Token) IsTerminal(now time.Time) bool {
	return !t.Renewable && t.IsExpired(now)
}
