package model

import (
	"strings"
	"time"
)

// SizeBand is the ordinal company size classification.
type SizeBand string

const (
	SizeMicro      SizeBand = "micro"
	SizeSmall      SizeBand = "small"
	SizeMid        SizeBand = "mid"
	SizeEnterprise SizeBand = "enterprise"
)

// SizeBands lists every band in ascending order.
var SizeBands = []SizeBand{SizeMicro, SizeSmall, SizeMid, SizeEnterprise}

// Rank returns the ordinal position of the band, or -1 if unknown.
func (b SizeBand) Rank() int {
	for i, s := range SizeBands {
		if s == b {
			return i
		}
	}
	return -1
}

// Valid reports whether b is a known band.
func (b SizeBand) Valid() bool { return b.Rank() >= 0 }

// ICPFit is the ordinal ideal-customer-profile tier.
type ICPFit string

const (
	ICPNone     ICPFit = "none"
	ICPWeak     ICPFit = "weak"
	ICPModerate ICPFit = "moderate"
	ICPStrong   ICPFit = "strong"
)

// ICPFits lists every tier from worst to best fit.
var ICPFits = []ICPFit{ICPNone, ICPWeak, ICPModerate, ICPStrong}

// Rank returns the ordinal position of the tier, or -1 if unknown.
func (f ICPFit) Rank() int {
	for i, t := range ICPFits {
		if t == f {
			return i
		}
	}
	return -1
}

// Valid reports whether f is a known tier.
func (f ICPFit) Valid() bool { return f.Rank() >= 0 }

// TechTag is a detected healthcare technology rail.
type TechTag string

const (
	TechX12           TechTag = "x12"
	TechFHIR          TechTag = "fhir_hl7"
	TechClearinghouse TechTag = "clearinghouse"
	TechNoneDetected  TechTag = "none_detected"
)

// TechBoost is the discrete technology signal derived from tech tags.
type TechBoost string

const (
	TechBoostNone   TechBoost = "none"
	TechBoostMedium TechBoost = "medium"
	TechBoostHigh   TechBoost = "high"
)

// TechBoosts lists every boost level from weakest to strongest.
var TechBoosts = []TechBoost{TechBoostNone, TechBoostMedium, TechBoostHigh}

// Enrichment is the cached output of the AI enrichment step for one company.
type Enrichment struct {
	ICPFit          string    `json:"icp_fit"`
	ICPConfidence   float64   `json:"icp_confidence"`
	TechTags        []TechTag `json:"tech_tags,omitempty"`
	StackConfidence float64   `json:"tech_stack_confidence"`
}

// HasTag reports whether the enrichment carries the given tech tag.
func (e *Enrichment) HasTag(tag TechTag) bool {
	if e == nil {
		return false
	}
	for _, t := range e.TechTags {
		if t == tag {
			return true
		}
	}
	return false
}

// Company is one account to simulate. It is immutable once enrichment has
// been attached.
type Company struct {
	ID            string      `json:"id"`
	Name          string      `json:"name"`
	Domain        string      `json:"domain"`
	Industry      string      `json:"industry,omitempty"`
	EmployeeBand  string      `json:"employee_band"`
	Country       string      `json:"country,omitempty"`
	ReferenceDate time.Time   `json:"reference_date"`
	PriorCustomer bool        `json:"prior_customer"`
	Enrichment    *Enrichment `json:"enrichment,omitempty"`
}

// Label returns the most human-friendly identifier for log lines.
func (c Company) Label() string {
	switch {
	case strings.TrimSpace(c.Domain) != "":
		return c.Domain
	case strings.TrimSpace(c.Name) != "":
		return c.Name
	default:
		return c.ID
	}
}
