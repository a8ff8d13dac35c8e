package accounts

import (
	"strings"
	"time"
)

const (
	DefaultLanguage              = "en"
	DefaultPhoneRegion           = "US"
	DefaultTrialPeriodDays       = 90
	DefaultRenewalWindow         = 180 * 24 * time.Hour
	DefaultTokenLifetime         = 180 * 24 * time.Hour
	HalfYear                     = 365 * 24 * time.Hour / 2
	DefaultRetentionWindow       = 30 * 24 * time.Hour
	DefaultTrialAgreementName    = "Trial License Agreement"
	DefaultTrialAgreementVersion = "v1"
)

// Decision is the outcome of the domain approval policy
type Decision string

const (
	DecisionAutoApprove           Decision = "auto_approve"
	DecisionAutoCorrectToAcademic Decision = "auto_correct_to_academic"
	DecisionManualReview          Decision = "manual_review"
)

// ClarificationReason explains why a manual review needs a license clarification
type ClarificationReason string

const (
	ClarifyNone                 ClarificationReason = ""
	ClarifyAcademicForProfit    ClarificationReason = "academic_for_profit_domain"
	ClarifyAcademicNonInstitute ClarificationReason = "academic_non_institute_domain"
)

// ReviewFlags annotate a manual review notice
type ReviewFlags struct {
	TrialActivated bool
	TrialInitiated bool
	Clarification  ClarificationReason
	Embargoed      bool
}

// Policy holds the tunables of the account lifecycle
type Policy struct {
	// ApprovalDomains are organisational email domains that are approved
	// without manual review.
	ApprovalDomains         []string
	ForProfitDomainSuffixes []string
	FreeEmailDomains        []string
	EmbargoedCountries      []string
	DefaultLanguage         string
	DefaultPhoneRegion      string
	TrialPeriodDays         int
	RenewalWindow           time.Duration
	DefaultTokenLifetime    time.Duration
	RegularTokenWindow      time.Duration
	RetentionWindow         time.Duration
	TrialAgreementName      string
	TrialAgreementVersion   string
}

// DefaultPolicy returns a policy with no whitelisted domains
func DefaultPolicy() Policy {
	return Policy{
		ForProfitDomainSuffixes: []string{".com"},
		FreeEmailDomains: []string{
			"gmail.com", "googlemail.com", "yahoo.com", "hotmail.com",
			"outlook.com", "live.com", "qq.com", "163.com", "icloud.com",
		},
		DefaultLanguage:       DefaultLanguage,
		DefaultPhoneRegion:    DefaultPhoneRegion,
		TrialPeriodDays:       DefaultTrialPeriodDays,
		RenewalWindow:         DefaultRenewalWindow,
		DefaultTokenLifetime:  DefaultTokenLifetime,
		RegularTokenWindow:    HalfYear,
		RetentionWindow:       DefaultRetentionWindow,
		TrialAgreementName:    DefaultTrialAgreementName,
		TrialAgreementVersion: DefaultTrialAgreementVersion,
	}
}

func (p Policy) withDefaults() Policy {
	def := DefaultPolicy()
	if p.ForProfitDomainSuffixes == nil {
		p.ForProfitDomainSuffixes = def.ForProfitDomainSuffixes
	}
	if p.FreeEmailDomains == nil {
		p.FreeEmailDomains = def.FreeEmailDomains
	}
	if p.DefaultLanguage == "" {
		p.DefaultLanguage = def.DefaultLanguage
	}
	if p.DefaultPhoneRegion == "" {
		p.DefaultPhoneRegion = def.DefaultPhoneRegion
	}
	if p.TrialPeriodDays <= 0 {
		p.TrialPeriodDays = def.TrialPeriodDays
	}
	if p.RenewalWindow <= 0 {
		p.RenewalWindow = def.RenewalWindow
	}
	if p.DefaultTokenLifetime <= 0 {
		p.DefaultTokenLifetime = def.DefaultTokenLifetime
	}
	if p.RegularTokenWindow <= 0 {
		p.RegularTokenWindow = def.RegularTokenWindow
	}
	if p.RetentionWindow <= 0 {
		p.RetentionWindow = def.RetentionWindow
	}
	if p.TrialAgreementName == "" {
		p.TrialAgreementName = def.TrialAgreementName
	}
	if p.TrialAgreementVersion == "" {
		p.TrialAgreementVersion = def.TrialAgreementVersion
	}
	return p
}

// TrialPeriod is the lifetime of a trial token
func (p Policy) TrialPeriod() time.Duration {
	return time.Duration(p.TrialPeriodDays) * 24 * time.Hour
}

// Classify decides how an account that just verified its email is handled.
// Only whitelisted domains are approved automatically; academic users keep
// their license, other licenses are corrected to academic.
func Classify(license LicenseType, domain string, whitelist []string) Decision {
	if !containsDomain(whitelist, domain) {
		return DecisionManualReview
	}
	if license == LicenseAcademic {
		return DecisionAutoApprove
	}
	return DecisionAutoCorrectToAcademic
}

// Clarification returns the reason an academic registration looks suspicious
func (p Policy) Clarification(license LicenseType, domain string) ClarificationReason {
	if license != LicenseAcademic {
		return ClarifyNone
	}
	domain = strings.ToLower(domain)
	if containsDomain(p.FreeEmailDomains, domain) {
		return ClarifyAcademicNonInstitute
	}
	for _, suffix := range p.ForProfitDomainSuffixes {
		if suffix != "" && strings.HasSuffix(domain, strings.ToLower(suffix)) {
			return ClarifyAcademicForProfit
		}
	}
	return ClarifyNone
}

// IsEmbargoed reports whether country is on the embargo list
func (p Policy) IsEmbargoed(country string) bool {
	country = strings.TrimSpace(country)
	if country == "" {
		return false
	}
	for _, c := range p.EmbargoedCountries {
		if strings.EqualFold(c, country) {
			return true
		}
	}
	return false
}

func containsDomain(list []string, domain string) bool {
	domain = strings.ToLower(strings.TrimSpace(domain))
	if domain == "" {
		return false
	}
	for _, d := range list {
		if strings.ToLower(strings.TrimSpace(d)) == domain {
			return true
		}
	}
	return false
}
