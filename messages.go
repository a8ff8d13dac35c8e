package accounts

import (
	"errors"
	"regexp"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/google/uuid"
)

const (
	PasswordMinLength = 4
	PasswordMaxLength = 100
)

var loginPattern = regexp.MustCompile(`^[_.@A-Za-z0-9-]+$`)

// ProfileFields are the optional profile values shared by every message
type ProfileFields struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	ImageURL  string `json:"image_url"`
	LangKey   string `json:"lang_key"`
	JobTitle  string `json:"job_title"`
	Company   string `json:"company"`
	City      string `json:"city"`
	Country   string `json:"country"`
	Phone     string `json:"phone"`
}

func profileRules(pp *ProfileFields) []*validation.FieldRules {
	return []*validation.FieldRules{
		validation.Field(&pp.FirstName, validation.Length(0, 50)),
		validation.Field(&pp.LastName, validation.Length(0, 50)),
		validation.Field(&pp.ImageURL, validation.Length(0, 256)),
		validation.Field(&pp.LangKey, validation.Length(0, 10)),
		validation.Field(&pp.Country, validation.Length(0, 100)),
	}
}

// RegisterUserMessage is a self registration request
type RegisterUserMessage struct {
	Login       string      `json:"login"`
	Email       string      `json:"email"`
	Password    string      `json:"password"`
	LicenseType LicenseType `json:"license_type"`
	ProfileFields
}

func (e RegisterUserMessage) Type() string { return "account.register" }

// Validate implements validation.Validatable
func (e RegisterUserMessage) Validate() error {
	if err := validation.ValidateStruct(&e,
		validation.Field(&e.Login, validation.Required, validation.Length(1, 50), validation.Match(loginPattern)),
		validation.Field(&e.Email, validation.Required, validation.Length(5, 254), is.Email),
		validation.Field(&e.Password, validation.Required, validation.Length(PasswordMinLength, PasswordMaxLength)),
		validation.Field(&e.LicenseType, validation.Required, validation.By(validLicense)),
	); err != nil {
		return err
	}
	return validation.ValidateStruct(&e.ProfileFields, profileRules(&e.ProfileFields)...)
}

// CreateUserMessage is an administrative account creation request
type CreateUserMessage struct {
	Login          string      `json:"login"`
	Email          string      `json:"email"`
	LicenseType    LicenseType `json:"license_type"`
	Authorities    []string    `json:"authorities"`
	TokenValidDays *int        `json:"token_valid_days,omitempty"`
	TokenRenewable *bool       `json:"token_renewable,omitempty"`
	ProfileFields
}

func (e CreateUserMessage) Type() string { return "account.create" }

// Validate implements validation.Validatable
func (e CreateUserMessage) Validate() error {
	if err := validation.ValidateStruct(&e,
		validation.Field(&e.Login, validation.Required, validation.Length(1, 50), validation.Match(loginPattern)),
		validation.Field(&e.Email, validation.Required, validation.Length(5, 254), is.Email),
		validation.Field(&e.LicenseType, validation.Required, validation.By(validLicense)),
		validation.Field(&e.TokenValidDays, validation.Min(1)),
	); err != nil {
		return err
	}
	return validation.ValidateStruct(&e.ProfileFields, profileRules(&e.ProfileFields)...)
}

// UpdateUserMessage replaces the profile of an existing user
type UpdateUserMessage struct {
	ID          uuid.UUID   `json:"id"`
	Login       string      `json:"login"`
	Email       string      `json:"email"`
	Activated   bool        `json:"activated"`
	LicenseType LicenseType `json:"license_type"`
	Authorities []string    `json:"authorities"`
	ProfileFields
}

func (e UpdateUserMessage) Type() string { return "account.update" }

// Validate implements validation.Validatable
func (e UpdateUserMessage) Validate() error {
	if err := validation.ValidateStruct(&e,
		validation.Field(&e.Login, validation.Required, validation.Length(1, 50), validation.Match(loginPattern)),
		validation.Field(&e.Email, validation.Required, validation.Length(5, 254), is.Email),
		validation.Field(&e.LicenseType, validation.Required, validation.By(validLicense)),
	); err != nil {
		return err
	}
	return validation.ValidateStruct(&e.ProfileFields, profileRules(&e.ProfileFields)...)
}

// SaveAccountMessage is a self-service profile edit. Login, license and
// authorities are not editable by the owner.
type SaveAccountMessage struct {
	Email string `json:"email"`
	ProfileFields
}

func (e SaveAccountMessage) Type() string { return "account.save" }

// Validate implements validation.Validatable
func (e SaveAccountMessage) Validate() error {
	if err := validation.ValidateStruct(&e,
		validation.Field(&e.Email, validation.Required, validation.Length(5, 254), is.Email),
	); err != nil {
		return err
	}
	return validation.ValidateStruct(&e.ProfileFields, profileRules(&e.ProfileFields)...)
}

// ValidatePassword checks the accepted password length
func ValidatePassword(password string) error {
	return validation.Validate(password, validation.Required, validation.Length(PasswordMinLength, PasswordMaxLength))
}

func validLicense(value any) error {
	var l LicenseType
	switch v := value.(type) {
	case LicenseType:
		l = v
	case string:
		l = LicenseType(v)
	}
	if !l.Valid() {
		return errors.New("must be a known license type")
	}
	return nil
}

// resolveAuthorities keeps the known authorities of names, deduplicated
func resolveAuthorities(names []string) []string {
	out := make([]string, 0, len(names))
	seen := map[string]bool{}
	for _, name := range names {
		if seen[name] {
			continue
		}
		for _, known := range KnownAuthorities {
			if name == known {
				out = append(out, name)
				seen[name] = true
				break
			}
		}
	}
	return out
}
