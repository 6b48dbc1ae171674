package model

// Region is one sampling point used to query the external source.
type Region struct {
	ID                   string `json:"id" yaml:"id"`
	DisplayName          string `json:"display_name" yaml:"display_name"`
	ExpectedUtilityLabel string `json:"expected_utility_label" yaml:"expected_utility_label"`
}
