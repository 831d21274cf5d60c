package normalizer

import (
	"macroind/internal/config"
	"macroind/internal/fetchers"
)

func indicatorsOf(specs []config.IndicatorSpec, key func(config.IndicatorSpec) string) map[string]Indicator {
	out := make(map[string]Indicator, len(specs))
	for _, s := range specs {
		code := key(s)
		out[code] = Indicator{Code: code, Name: s.Name, Multiplier: s.Scale()}
	}
	return out
}

// WorldBankMapping maps World Bank tables for the given indicators
func WorldBankMapping(specs []config.IndicatorSpec) IndicatorMapping {
	return IndicatorMapping{
		Columns: Columns{
			CountryCode:   fetchers.WorldBankColumnCountryCode,
			Country:       fetchers.WorldBankColumnCountry,
			IndicatorCode: fetchers.WorldBankColumnIndicator,
			Year:          fetchers.WorldBankColumnYear,
			Value:         fetchers.WorldBankColumnValue,
		},
		Indicators: indicatorsOf(specs, func(s config.IndicatorSpec) string { return s.Code }),
	}
}

// ILOMapping maps the table of one ILO series. Its filtered dimensions are
// kept and labelled through labels.
func ILOMapping(spec config.IndicatorSpec, labels map[string]string) IndicatorMapping {
	return IndicatorMapping{
		Columns: Columns{
			CountryCode:   fetchers.ILOColumnCountryCode,
			IndicatorCode: fetchers.ILOColumnIndicator,
			Year:          fetchers.ILOColumnYear,
			Value:         fetchers.ILOColumnValue,
			Dimensions:    spec.FilterKeys(),
		},
		Indicators:      indicatorsOf([]config.IndicatorSpec{spec}, config.IndicatorSpec.SeriesCode),
		DimensionLabels: labels,
	}
}

// IMFMapping maps IMF tables whose WEO codes were resolved by the fetcher
func IMFMapping(specs []config.IndicatorSpec) IndicatorMapping {
	return IndicatorMapping{
		Columns: Columns{
			CountryCode:   fetchers.IMFColumnCountryCode,
			IndicatorCode: fetchers.IMFColumnIndicator,
			Year:          fetchers.IMFColumnYear,
			Value:         fetchers.IMFColumnValue,
		},
		Indicators: indicatorsOf(specs, func(s config.IndicatorSpec) string { return s.Code }),
	}
}
