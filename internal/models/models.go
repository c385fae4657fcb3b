package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/guregu/null"
)

// SentinelCoordinate marks a site whose location is unknown.
const SentinelCoordinate = -999

// Unknown backfills missing air-quality categories and pollutants.
const Unknown = "Unknown"

// Site represents a single entry of the get_SiteDetails feed.
type Site struct {
	ID        int     `json:"Site_Id"`
	Name      string  `json:"SiteName"`
	Region    string  `json:"Region"`
	Latitude  float64 `json:"Latitude"`
	Longitude float64 `json:"Longitude"`
}

// HasLocation reports whether the site can be placed on a map.
func (s Site) HasLocation() bool {
	return s.Latitude != SentinelCoordinate && s.Longitude != SentinelCoordinate
}

// Label is the "<id> - <name> - <region>" caption used by the dashboards.
func (s Site) Label() string {
	return fmt.Sprintf("%d - %s - %s", s.ID, s.Name, s.Region)
}

// Parameter is the nested parameter object of an upstream observation, also
// returned as-is by get_ParameterDetails.
type Parameter struct {
	ParameterCode        string `json:"ParameterCode"`
	ParameterDescription string `json:"ParameterDescription"`
	Units                string `json:"Units"`
	UnitsDescription     string `json:"UnitsDescription"`
	Category             string `json:"Category"`
	SubCategory          string `json:"SubCategory"`
	Frequency            string `json:"Frequency"`
}

// RawObservation models one element of the get_Observations payload.
type RawObservation struct {
	SiteID               int         `json:"Site_Id"`
	Parameter            Parameter   `json:"Parameter"`
	Date                 Date        `json:"Date"`
	Hour                 null.Int    `json:"Hour"`
	HourDescription      null.String `json:"HourDescription"`
	Value                null.Float  `json:"Value"`
	AirQualityCategory   null.String `json:"AirQualityCategory"`
	DeterminingPollutant null.String `json:"DeterminingPollutant"`
}

// Observation is a RawObservation with the parameter object unnested into
// top-level fields. The JSON form is the event wire format.
type Observation struct {
	SiteID               int         `json:"Site_Id"`
	Date                 Date        `json:"Date"`
	Hour                 null.Int    `json:"Hour"`
	HourDescription      null.String `json:"HourDescription"`
	Value                null.Float  `json:"Value"`
	AirQualityCategory   null.String `json:"AirQualityCategory"`
	DeterminingPollutant null.String `json:"DeterminingPollutant"`
	ParameterCode        string      `json:"ParameterCode"`
	ParameterDescription string      `json:"ParameterDescription"`
	Units                string      `json:"Units"`
	UnitsDescription     string      `json:"UnitsDescription"`
	Category             string      `json:"Category"`
	SubCategory          string      `json:"SubCategory"`
	Frequency            string      `json:"Frequency"`
}

// Flatten unnests the parameter object.
func (r RawObservation) Flatten() Observation {
	return Observation{
		SiteID:               r.SiteID,
		Date:                 r.Date,
		Hour:                 r.Hour,
		HourDescription:      r.HourDescription,
		Value:                r.Value,
		AirQualityCategory:   r.AirQualityCategory,
		DeterminingPollutant: r.DeterminingPollutant,
		ParameterCode:        r.Parameter.ParameterCode,
		ParameterDescription: r.Parameter.ParameterDescription,
		Units:                r.Parameter.Units,
		UnitsDescription:     r.Parameter.UnitsDescription,
		Category:             r.Parameter.Category,
		SubCategory:          r.Parameter.SubCategory,
		Frequency:            r.Parameter.Frequency,
	}
}

// ObservationRequest is the filter payload of a historical get_Observations call.
type ObservationRequest struct {
	Parameters    []string  `validate:"required,min=1,dive,required"`
	Sites         []int     `validate:"dive,gt=0"`
	StartDate     time.Time `validate:"required"`
	EndDate       time.Time `validate:"required,gtefield=StartDate"`
	Categories    []string  `validate:"dive,required"`
	SubCategories []string  `validate:"dive,required"`
}

// MarshalJSON renders the request in the upstream contract, dates as YYYY-MM-DD.
func (r ObservationRequest) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Parameters    []string `json:"Parameters"`
		Sites         []int    `json:"Sites"`
		StartDate     string   `json:"StartDate"`
		EndDate       string   `json:"EndDate"`
		Categories    []string `json:"Categories"`
		SubCategories []string `json:"SubCategories"`
	}{
		Parameters:    nonNil(r.Parameters),
		Sites:         nonNil(r.Sites),
		StartDate:     r.StartDate.Format(DateLayout),
		EndDate:       r.EndDate.Format(DateLayout),
		Categories:    nonNil(r.Categories),
		SubCategories: nonNil(r.SubCategories),
	})
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
