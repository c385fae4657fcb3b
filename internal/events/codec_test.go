package events

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/guregu/null"

	"github.com/aqwatch/aqms-pipeline/internal/models"
)

func TestRoundTrip(t *testing.T) {
	in := models.Observation{
		SiteID:               39,
		Date:                 models.NewDate(2024, time.May, 1),
		Hour:                 null.IntFrom(13),
		HourDescription:      null.StringFrom("1 pm - 2 pm"),
		Value:                null.FloatFrom(12.5),
		AirQualityCategory:   null.StringFrom("GOOD"),
		ParameterCode:        "PM2.5",
		ParameterDescription: "PM2.5",
		Units:                "µg/m³",
		Category:             "Averages",
		SubCategory:          "Hourly",
		Frequency:            "Hourly average",
	}
	payload, err := Encode(in)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if !strings.Contains(string(payload), `"Site_Id":39`) || !strings.Contains(string(payload), `"DeterminingPollutant":null`) {
		t.Errorf("unexpected payload: %s", payload)
	}

	out, err := Decode(payload)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !out.Date.Equal(in.Date.Time) {
		t.Errorf("date: %v vs %v", out.Date, in.Date)
	}
	out.Date = in.Date
	if out != in {
		t.Errorf("round trip mismatch:\n got  %+v\n want %+v", out, in)
	}
}

func TestDecode_LegacyNaN(t *testing.T) {
	payload := []byte(`{"Site_Id": 39, "Value": nan, "Hour": NaN, "AirQualityCategory": "nan", "HourDescription": "banana", "Date": "2024-01-01"}`)
	o, err := Decode(payload)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if o.Value.Valid || o.Hour.Valid {
		t.Errorf("bare nan should decode as null: value=%+v hour=%+v", o.Value, o.Hour)
	}
	if o.AirQualityCategory.String != "nan" || o.HourDescription.String != "banana" {
		t.Errorf("string contents must not be rewritten: %+v", o)
	}
}

func TestDecode_QuotedNonFiniteValueIsNull(t *testing.T) {
	for _, v := range []string{`"NaN"`, `"nan"`, `"Inf"`, `"-Infinity"`} {
		payload := []byte(`{"Site_Id": 39, "Value": ` + v + `, "Date": "2024-01-01"}`)
		o, err := Decode(payload)
		if err != nil {
			t.Fatalf("Decode(%s): %v", v, err)
		}
		if o.Value.Valid {
			t.Errorf("Value %s should decode as null, got %v", v, o.Value.Float64)
		}
		if _, err := Encode(o); err != nil {
			t.Errorf("re-encode after %s: %v", v, err)
		}
	}
}

func TestDecode_Errors(t *testing.T) {
	cases := map[string]string{
		"not json":        `Site_Id=39`,
		"truncated":       `{"Site_Id": 39, "Value": `,
		"missing site":    `{"Value": 3.2}`,
		"wrong type":      `{"Site_Id": "abc"}`,
		"trailing object": `{"Site_Id": 1}{"Site_Id": 2}`,
		"bad date":        `{"Site_Id": 1, "Date": "yesterday"}`,
	}
	for name, payload := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Decode([]byte(payload))
			var dErr *DecodeError
			if !errors.As(err, &dErr) {
				t.Fatalf("expected DecodeError, got %v", err)
			}
		})
	}
}

func TestRewriteNaN_EscapedQuotes(t *testing.T) {
	in := []byte(`{"a": "say \"nan\"", "b": nan}`)
	got := string(rewriteNaN(in))
	want := `{"a": "say \"nan\"", "b": null}`
	if got != want {
		t.Errorf("got %s, want %s", got, want)
	}
}
