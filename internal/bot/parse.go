package bot

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"property_agent/internal/model"
)

const setPriceUsage = "Usage: /setprice <min> <max>\nExample: /setprice 500000 1500000"

// ParsePriceArgs parses "<min> <max>" rand amounts. Thousands separators
// (commas) are accepted; the bounds must satisfy min <= max.
func ParsePriceArgs(args string) (float64, float64, error) {
	parts := strings.Fields(args)
	if len(parts) != 2 {
		return 0, 0, errors.New(setPriceUsage)
	}

	minPrice, err := parsePrice(parts[0])
	if err != nil {
		return 0, 0, err
	}
	maxPrice, err := parsePrice(parts[1])
	if err != nil {
		return 0, 0, err
	}

	pref := model.Preference{MinPrice: &minPrice, MaxPrice: &maxPrice}
	if err := pref.Validate(); err != nil {
		return 0, 0, err
	}
	return minPrice, maxPrice, nil
}

func parsePrice(s string) (float64, error) {
	v, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", ""), 64)
	if err != nil || v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("invalid price %q: use numeric values without the R symbol", s)
	}
	return v, nil
}

func joinKeywords(keywords []string) string {
	return strings.Join(keywords, ", ")
}
