package carrierhttp

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/BearBump/ShipBox/internal/integrations/carrier"
	"github.com/pkg/errors"
)

// Carrier timestamps without an offset are local to the carrier.
var carrierZone = time.FixedZone("IST", 5*3600+30*60)

var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"02-01-2006 15:04:05",
	"2006-01-02",
}

// flexID accepts ids sent either as JSON numbers or strings.
type flexID string

func (f *flexID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = flexID(n.String())
	return nil
}

type wireScan struct {
	CurrentStatus    carrier.RawStatus `json:"current_status"`
	StatusDate       string            `json:"status_date"`
	UpdatedTimeStamp string            `json:"updated_time_stamp"`
	CurrentLocation  string            `json:"current_location"`
	Destination      string            `json:"destination"`
}

type wireTrackingData struct {
	TrackStatus     carrier.RawStatus `json:"track_status"`
	ShipmentStatus  carrier.RawStatus `json:"shipment_status"`
	ShipmentTrack   []wireScan        `json:"shipment_track"`
	Error           string            `json:"error"`
	UpdatedAt       string            `json:"updated_at"`
	ConsigneeDetail *struct {
		City string `json:"city"`
	} `json:"consignee_detail"`
}

type wireEnvelope struct {
	TrackingData *wireTrackingData `json:"tracking_data"`
}

// decodeTracking accepts the payload either bare, keyed by shipment id, or
// wrapped in a one-element array, and returns the strict form.
func decodeTracking(b []byte, shipmentID string) (carrier.Tracking, error) {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '[' {
		var arr []json.RawMessage
		if err := json.Unmarshal(b, &arr); err != nil {
			return carrier.Tracking{}, errors.Wrap(err, "decode tracking")
		}
		if len(arr) == 0 {
			return carrier.Tracking{}, nil
		}
		b = arr[0]
	}

	var keyed map[string]json.RawMessage
	if err := json.Unmarshal(b, &keyed); err != nil {
		return carrier.Tracking{}, errors.Wrap(err, "decode tracking")
	}
	if inner, ok := keyed[shipmentID]; ok && shipmentID != "" {
		b = inner
	}

	var env wireEnvelope
	if err := json.Unmarshal(b, &env); err != nil {
		return carrier.Tracking{}, errors.Wrap(err, "decode tracking data")
	}
	if env.TrackingData == nil {
		return carrier.Tracking{}, nil
	}
	td := env.TrackingData

	out := carrier.Tracking{
		Found:          true,
		TrackStatus:    td.TrackStatus,
		ShipmentStatus: td.ShipmentStatus,
		Error:          td.Error,
		UpdatedAt:      parseTime(td.UpdatedAt),
	}
	if td.ConsigneeDetail != nil {
		out.City = td.ConsigneeDetail.City
	}
	for _, s := range td.ShipmentTrack {
		at := parseTime(s.StatusDate)
		if at == nil {
			at = parseTime(s.UpdatedTimeStamp)
		}
		loc := s.CurrentLocation
		if loc == "" {
			loc = s.Destination
		}
		out.Scans = append(out.Scans, carrier.ScanEvent{
			Status:   s.CurrentStatus,
			At:       at,
			Location: loc,
		})
	}
	return out, nil
}

func parseTime(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	if sec, err := strconv.ParseInt(s, 10, 64); err == nil && sec > 0 {
		t := time.Unix(sec, 0).UTC()
		return &t
	}
	for _, layout := range timeLayouts {
		if t, err := time.ParseInLocation(layout, s, carrierZone); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}
