package collect

import (
	"bytes"
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/plansync/internal/fetcher"
	"github.com/sells-group/plansync/internal/model"
)

// envelopeKey is the field holding the offer list when the payload is wrapped.
const envelopeKey = "data"

// offer is one plan as published by the source. Prices are cents per kWh;
// values below 1 are read as dollars.
type offer struct {
	CompanyName    string  `json:"company_name"`
	CompanyID      string  `json:"company_id"`
	PlanName       string  `json:"plan_name"`
	RateType       string  `json:"rate_type"`
	Prepaid        bool    `json:"prepaid"`
	TermValue      int     `json:"term_value"`
	PriceKwh500    float64 `json:"price_kwh500"`
	PriceKwh1000   float64 `json:"price_kwh1000"`
	PriceKwh2000   float64 `json:"price_kwh2000"`
	RenewablePct   float64 `json:"renewable_pct"`
	BaseFee        float64 `json:"base_fee"`
	CancelFee      float64 `json:"cancel_fee"`
	FactSheet      string  `json:"fact_sheet"`
	TermsURL       string  `json:"terms_of_service"`
	YracURL        string  `json:"yrac_url"`
	TimeOfUse      bool    `json:"timeofuse"`
	MinimumUsage   bool    `json:"minimum_usage"`
	NewCustomer    bool    `json:"new_customer"`
	Promotion      bool    `json:"promotion"`
	TDUCompanyName string  `json:"tdu_company_name"`
}

// ParseOffers decodes a payload and converts the offers that belong to the
// region's utility into SourceRecords. Offers missing a provider, a plan
// name or the 1000 kWh price are dropped.
func ParseOffers(ctx context.Context, body []byte, region model.Region) ([]model.SourceRecord, error) {
	offers, err := fetcher.DecodeJSONList[offer](ctx, bytes.NewReader(body), envelopeKey)
	if err != nil {
		return nil, err
	}

	log := zap.L().With(zap.String("component", "collect.parse"), zap.String("region", region.ID))

	records := make([]model.SourceRecord, 0, len(offers))
	for _, o := range offers {
		if strings.TrimSpace(o.CompanyName) == "" || strings.TrimSpace(o.PlanName) == "" || o.PriceKwh1000 <= 0 {
			log.Debug("skipping incomplete offer", zap.String("plan", o.PlanName), zap.String("provider", o.CompanyName))
			continue
		}
		if !MatchesUtility(region.ExpectedUtilityLabel, o.TDUCompanyName) {
			log.Debug("skipping offer for other utility",
				zap.String("plan", o.PlanName),
				zap.String("utility", o.TDUCompanyName),
			)
			continue
		}
		rec := o.toRecord()
		rec.RegionID = region.ID
		records = append(records, rec)
	}
	return records, nil
}

// MatchesUtility reports whether an offer's utility label fits the region's
// expected label. Either side being blank matches.
func MatchesUtility(expected, actual string) bool {
	expected = strings.ToLower(strings.TrimSpace(expected))
	actual = strings.ToLower(strings.TrimSpace(actual))
	if expected == "" || actual == "" {
		return true
	}
	return strings.Contains(actual, expected) || strings.Contains(expected, actual)
}

func (o offer) toRecord() model.SourceRecord {
	return model.SourceRecord{
		ProviderName:   strings.TrimSpace(o.CompanyName),
		ProviderKey:    strings.TrimSpace(o.CompanyID),
		PlanName:       strings.TrimSpace(o.PlanName),
		Class:          o.class(),
		ContractMonths: max(o.TermValue, 0),
		Rates: model.Rates{
			Rate500:  toCents(o.PriceKwh500),
			Rate1000: toCents(o.PriceKwh1000),
			Rate2000: toCents(o.PriceKwh2000),
		},
		RenewablePct: o.RenewablePct,
		Fees: model.Fees{
			BaseMonthly: o.BaseFee,
			EarlyExit:   o.CancelFee,
		},
		Features: o.features(),
		Documents: model.DocumentRefs{
			FactsLabel:     strings.TrimSpace(o.FactSheet),
			TermsOfService: strings.TrimSpace(o.TermsURL),
			YourRights:     strings.TrimSpace(o.YracURL),
		},
	}
}

func (o offer) class() model.PlanClass {
	if o.Prepaid {
		return model.PlanPrepaid
	}
	switch strings.ToLower(strings.TrimSpace(o.RateType)) {
	case "variable", "indexed":
		return model.PlanVariable
	case "prepaid":
		return model.PlanPrepaid
	default:
		return model.PlanFixed
	}
}

func (o offer) features() []string {
	var f []string
	if o.RenewablePct >= 100 {
		f = append(f, "100% renewable")
	}
	if o.TimeOfUse {
		f = append(f, "time of use")
	}
	if o.MinimumUsage {
		f = append(f, "minimum usage charge")
	}
	if o.NewCustomer {
		f = append(f, "new customers only")
	}
	if o.Promotion {
		f = append(f, "promotion")
	}
	return f
}

func toCents(v float64) float64 {
	if v > 0 && v < 1 {
		return v * 100
	}
	return v
}
