// Package estimate generates plausible plan records for regions the live source could not serve.
package estimate

import (
	"math"
	"math/rand/v2"
	"strconv"
	"strings"
	"sync"

	"github.com/rotisserie/eris"

	"github.com/sells-group/plansync/internal/model"
)

// archetype is a plan shape offered by most retail providers.
type archetype struct {
	label        string
	months       int
	class        model.PlanClass
	baseRate     float64 // cents per kWh at 1000 kWh
	renewablePct float64
	baseFee      float64 // dollars per month
	exitPerMonth float64 // early-exit dollars per contract month
}

var archetypes = []archetype{
	{label: "Saver", months: 12, class: model.PlanFixed, baseRate: 13.4, baseFee: 4.95, exitPerMonth: 12.5},
	{label: "Green", months: 12, class: model.PlanFixed, baseRate: 14.2, renewablePct: 100, baseFee: 4.95, exitPerMonth: 12.5},
	{label: "Secure", months: 24, class: model.PlanFixed, baseRate: 12.9, baseFee: 9.95, exitPerMonth: 8},
	{label: "Flex", months: 0, class: model.PlanVariable, baseRate: 16.8, baseFee: 2.95},
	{label: "Eco", months: 36, class: model.PlanFixed, baseRate: 12.6, renewablePct: 100, baseFee: 9.95, exitPerMonth: 6},
}

// Perturbation bounds the random offset applied to an archetype's base rate, in cents.
const Perturbation = 0.6

// Estimator builds estimated SourceRecords per provider. It is safe for concurrent use.
type Estimator struct {
	providers []string

	mu  sync.Mutex
	rng *rand.Rand
}

// New creates an Estimator over the given providers. A nil rng draws from an unseeded source.
func New(providers []string, rng *rand.Rand) *Estimator {
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	cleaned := make([]string, 0, len(providers))
	for _, p := range providers {
		if p = strings.TrimSpace(p); p != "" {
			cleaned = append(cleaned, p)
		}
	}
	return &Estimator{providers: cleaned, rng: rng}
}

// NewSeeded creates an Estimator whose output is reproducible for a given seed.
func NewSeeded(providers []string, seed uint64) *Estimator {
	return New(providers, rand.New(rand.NewPCG(seed, seed)))
}

// Estimate returns one record per provider and archetype for the region.
// Every record is tagged estimated and requires verification.
func (e *Estimator) Estimate(region model.Region) ([]model.SourceRecord, error) {
	if strings.TrimSpace(region.ID) == "" {
		return nil, eris.New("estimate: region id is required")
	}
	if len(e.providers) == 0 {
		return nil, eris.Errorf("estimate: no providers configured for region %s", region.ID)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	records := make([]model.SourceRecord, 0, len(e.providers)*len(archetypes))
	for _, provider := range e.providers {
		for _, a := range archetypes {
			records = append(records, e.build(provider, a, region.ID))
		}
	}
	return records, nil
}

func (e *Estimator) build(provider string, a archetype, regionID string) model.SourceRecord {
	rate := a.baseRate + (e.rng.Float64()*2-1)*Perturbation

	rec := model.SourceRecord{
		ProviderName:   provider,
		PlanName:       planName(a),
		Class:          a.class,
		ContractMonths: a.months,
		Rates:          DeriveTiers(rate, a.baseFee),
		RenewablePct:   a.renewablePct,
		Fees: model.Fees{
			BaseMonthly: a.baseFee,
			EarlyExit:   float64(a.months) * a.exitPerMonth,
		},
		Provenance:           model.ProvenanceEstimated,
		RequiresVerification: true,
		RegionID:             regionID,
	}
	if a.renewablePct >= 100 {
		rec.Features = []string{"100% renewable"}
	}
	return rec
}

// DeriveTiers spreads a fixed monthly fee over the three usage tiers around
// the 1000 kWh all-in rate: lower usage pays more per kWh, higher usage less.
func DeriveTiers(rate1000, baseFee float64) model.Rates {
	feeCents := baseFee * 100
	energy := rate1000 - feeCents/1000
	return model.Rates{
		Rate500:  round2(energy + feeCents/500),
		Rate1000: round2(rate1000),
		Rate2000: round2(energy + feeCents/2000),
	}
}

func planName(a archetype) string {
	if a.months == 0 {
		return a.label
	}
	return a.label + " " + strconv.Itoa(a.months)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
