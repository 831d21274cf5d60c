package models

import (
	"bytes"
	"encoding/json"
	"strconv"
)

// WorldBankPage is the pagination header of a World Bank v2 API response
type WorldBankPage struct {
	Page    FlexInt `json:"page"`
	Pages   FlexInt `json:"pages"`
	PerPage FlexInt `json:"per_page"`
	Total   FlexInt `json:"total"`
}

// FlexInt decodes an integer sent either as a JSON number or a quoted string
type FlexInt int

func (n *FlexInt) UnmarshalJSON(b []byte) error {
	b = bytes.Trim(bytes.TrimSpace(b), `"`)
	if len(b) == 0 || string(b) == "null" {
		*n = 0
		return nil
	}
	v, err := strconv.Atoi(string(b))
	if err != nil {
		return err
	}
	*n = FlexInt(v)
	return nil
}

// WorldBankRecord is one observation of a World Bank v2 API response
type WorldBankRecord struct {
	Indicator struct {
		ID    string `json:"id"`
		Value string `json:"value"`
	} `json:"indicator"`
	Country struct {
		ID    string `json:"id"`
		Value string `json:"value"`
	} `json:"country"`
	CountryISO3Code string   `json:"countryiso3code"`
	Date            string   `json:"date"`
	Value           *float64 `json:"value"`
}

// WorldBankMessage is returned in place of the pagination header on API errors
type WorldBankMessage struct {
	Message []struct {
		ID    string `json:"id"`
		Key   string `json:"key"`
		Value string `json:"value"`
	} `json:"message"`
}

// SDMXMessage is an SDMX-JSON data message as returned by the ILO REST API.
// Version 1.0 wraps structure and dataSets in "data"; older responses carry them at top level.
type SDMXMessage struct {
	Data      *SDMXData      `json:"data"`
	Structure *SDMXStructure `json:"structure"`
	DataSets  []SDMXDataSet  `json:"dataSets"`
}

// SDMXData is the payload of an SDMX-JSON 1.0 message
type SDMXData struct {
	Structure *SDMXStructure `json:"structure"`
	DataSets  []SDMXDataSet  `json:"dataSets"`
}

// SDMXStructure describes how series and observation keys map to dimension values
type SDMXStructure struct {
	Dimensions struct {
		Series      []SDMXDimension `json:"series"`
		Observation []SDMXDimension `json:"observation"`
	} `json:"dimensions"`
}

// SDMXDimension is one dimension with its positional code list
type SDMXDimension struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Values []struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"values"`
}

// SDMXDataSet holds series keyed by "i:j:k" positions into the series dimensions
type SDMXDataSet struct {
	Series map[string]SDMXSeries `json:"series"`
}

// SDMXSeries holds observations keyed by position into the observation dimension.
// Each observation is an array whose first element is the value.
type SDMXSeries struct {
	Observations map[string][]json.RawMessage `json:"observations"`
}

// IMFCompactResponse is the envelope of an IMF SDMX_JSON CompactData response
type IMFCompactResponse struct {
	CompactData struct {
		DataSet struct {
			// Series is an object for a single series and an array otherwise
			Series json.RawMessage `json:"Series"`
		} `json:"DataSet"`
	} `json:"CompactData"`
}

// IMFSeries is one country/indicator series of a CompactData response
type IMFSeries struct {
	Freq      string          `json:"@FREQ"`
	RefArea   string          `json:"@REF_AREA"`
	Indicator string          `json:"@INDICATOR"`
	UnitMult  string          `json:"@UNIT_MULT"`
	Obs       json.RawMessage `json:"Obs"`
}

// IMFObservation is one period value of an IMF series
type IMFObservation struct {
	TimePeriod string `json:"@TIME_PERIOD"`
	ObsValue   string `json:"@OBS_VALUE"`
}
