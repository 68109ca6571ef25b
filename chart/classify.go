package chart

import "strings"

// keywordRule maps a keyword set to the chart type it implies.
type keywordRule struct {
	keywords  []string
	chartType string
}

// titleRules is the fixed classification table, evaluated in order so that a
// title matching several rules always classifies the same way. Rules are
// data, not branches; editing the table is the only way behavior changes.
var titleRules = []keywordRule{
	{keywords: []string{"trend", "timeseries", "growth"}, chartType: "line"},
	{keywords: []string{"distribution", "hist", "density"}, chartType: "hist"},
	{keywords: []string{"share", "comparison", "rank", "top"}, chartType: "bar"},
	{keywords: []string{"correlation", "relationship", "scatter"}, chartType: "scatter"},
}

// defaultChartType is the universal fallback when no keyword matches.
const defaultChartType = "bar"

// ClassifyTitle infers a chart type from a slide or section title alone. The
// first rule with any keyword appearing as a substring of the lowercased
// title wins; otherwise the result is "bar". It never fails.
func ClassifyTitle(title string) string {
	lowered := strings.ToLower(title)
	for _, rule := range titleRules {
		for _, kw := range rule.keywords {
			if strings.Contains(lowered, kw) {
				return rule.chartType
			}
		}
	}
	return defaultChartType
}
