package carrier

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// RawStatus is a carrier status as it came over the wire: either a numeric
// code or free text. The zero value means the carrier reported nothing.
type RawStatus struct {
	Code *int
	Text string
}

func StatusCode(c int) RawStatus { return RawStatus{Code: &c} }

func StatusText(s string) RawStatus { return RawStatus{Text: s} }

func (r RawStatus) IsEmpty() bool {
	return r.Code == nil && strings.TrimSpace(r.Text) == ""
}

// IsZeroCode reports a numeric 0, whether sent as 0 or "0".
func (r RawStatus) IsZeroCode() bool {
	if r.Code != nil {
		return *r.Code == 0
	}
	return strings.TrimSpace(r.Text) == "0"
}

func (r RawStatus) String() string {
	if r.Code != nil {
		return strconv.Itoa(*r.Code)
	}
	return r.Text
}

func (r *RawStatus) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	*r = RawStatus{}
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return errors.Wrap(err, "decode status string")
		}
		r.Text = s
		return nil
	}
	var f float64
	if err := json.Unmarshal(b, &f); err != nil {
		return errors.Wrap(err, "decode status code")
	}
	c := int(f)
	r.Code = &c
	return nil
}

func (r RawStatus) MarshalJSON() ([]byte, error) {
	if r.Code != nil {
		return json.Marshal(*r.Code)
	}
	if r.Text == "" {
		return []byte("null"), nil
	}
	return json.Marshal(r.Text)
}
