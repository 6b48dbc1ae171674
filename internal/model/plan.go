package model

import (
	"strconv"

	"github.com/rotisserie/eris"
)

// PlanClass is the pricing structure of a plan.
type PlanClass string

const (
	PlanFixed    PlanClass = "fixed"
	PlanVariable PlanClass = "variable"
	PlanPrepaid  PlanClass = "prepaid"
)

// Tier is a standard monthly consumption level in kWh.
type Tier int

const (
	Tier500  Tier = 500
	Tier1000 Tier = 1000
	Tier2000 Tier = 2000
)

// ParseTier converts "500", "1000" or "2000" into a Tier.
func ParseTier(s string) (Tier, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, eris.Errorf("unknown tier: %q (valid: 500, 1000, 2000)", s)
	}
	switch Tier(n) {
	case Tier500, Tier1000, Tier2000:
		return Tier(n), nil
	default:
		return 0, eris.Errorf("unknown tier: %q (valid: 500, 1000, 2000)", s)
	}
}

// String returns the tier as "1000 kWh".
func (t Tier) String() string {
	return strconv.Itoa(int(t)) + " kWh"
}

// Rates holds all-in prices in cents per kWh at the three standard tiers.
type Rates struct {
	Rate500  float64 `json:"rate_500"`
	Rate1000 float64 `json:"rate_1000"`
	Rate2000 float64 `json:"rate_2000"`
}

// At returns the rate for the given tier. Unknown tiers read as 1000 kWh.
func (r Rates) At(t Tier) float64 {
	switch t {
	case Tier500:
		return r.Rate500
	case Tier2000:
		return r.Rate2000
	default:
		return r.Rate1000
	}
}

// DocumentRefs are the regulatory documents published for a plan.
type DocumentRefs struct {
	FactsLabel     string `json:"facts_label,omitempty"`
	TermsOfService string `json:"terms_of_service,omitempty"`
	YourRights     string `json:"your_rights,omitempty"`
}

// Fills reports whether r carries a document that o lacks.
func (r DocumentRefs) Fills(o DocumentRefs) bool {
	return (r.FactsLabel != "" && o.FactsLabel == "") ||
		(r.TermsOfService != "" && o.TermsOfService == "") ||
		(r.YourRights != "" && o.YourRights == "")
}

// Empty reports whether no document is referenced.
func (r DocumentRefs) Empty() bool {
	return r.FactsLabel == "" && r.TermsOfService == "" && r.YourRights == ""
}

// Fees are plan fees in dollars.
type Fees struct {
	BaseMonthly float64 `json:"base_monthly"`
	EarlyExit   float64 `json:"early_exit"`
}

// SourceRecord is one plan offering observed during a collection run.
type SourceRecord struct {
	ProviderName         string       `json:"provider_name"`
	ProviderKey          string       `json:"provider_key,omitempty"`
	PlanName             string       `json:"plan_name"`
	Class                PlanClass    `json:"class"`
	ContractMonths       int          `json:"contract_months"` // 0 = open-ended
	Rates                Rates        `json:"rates"`
	RenewablePct         float64      `json:"renewable_pct"`
	Fees                 Fees         `json:"fees"`
	Features             []string     `json:"features,omitempty"`
	Documents            DocumentRefs `json:"documents"`
	Provenance           Provenance   `json:"provenance"`
	RequiresVerification bool         `json:"requires_verification"`
	RegionID             string       `json:"region_id,omitempty"`
}
