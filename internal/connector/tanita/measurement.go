package tanita

import (
	"encoding/json"
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"lifesync/internal/engine"
	"lifesync/internal/syncerr"
)

type statusResponse struct {
	BirthDate string `json:"birth_date"`
	Height    string `json:"height"`
	Sex       string `json:"sex"`
	Data      []Item `json:"data"`
}

// Item is one tag value as returned by the status API.
type Item struct {
	Date    string `json:"date"`
	KeyData string `json:"keydata"`
	Model   string `json:"model"`
	Tag     string `json:"tag"`
}

// Measurement is the set of tag values taken at one time.
type Measurement struct {
	MeasuredAt time.Time
	Model      string
	Values     map[string]decimal.Decimal
	// Invalid lists values that could not be parsed.
	Invalid []string
}

func (k Kind) tags() string {
	tags := make([]string, 0, len(k.Fields))
	for tag := range k.Fields {
		tags = append(tags, tag)
	}
	slices.Sort(tags)
	return strings.Join(tags, ",")
}

// Group merges items by measurement time, in order of first appearance.
// Tags not listed in k are ignored.
func Group(k Kind, items []Item) []Measurement {
	index := map[time.Time]int{}
	var out []Measurement
	for _, it := range items {
		field, ok := k.Fields[strings.ToUpper(it.Tag)]
		if !ok {
			continue
		}
		at, err := time.ParseInLocation(itemLayout, it.Date, jst)
		if err != nil {
			out = append(out, Measurement{Invalid: []string{"date " + it.Date}})
			continue
		}
		i, seen := index[at]
		if !seen {
			i = len(out)
			index[at] = i
			out = append(out, Measurement{MeasuredAt: at, Values: map[string]decimal.Decimal{}})
		}
		m := &out[i]
		if it.Model != "" && it.Model != "00000000" {
			m.Model = it.Model
		}
		v, err := decimal.NewFromString(strings.TrimSpace(it.KeyData))
		if err != nil {
			m.Invalid = append(m.Invalid, field+"="+it.KeyData)
			continue
		}
		m.Values[field] = v
	}
	return out
}

// Key is the UTC ISO-8601 measurement time.
func (m Measurement) Key() string {
	return m.MeasuredAt.UTC().Format("2006-01-02T15:04:05.000Z")
}

func TransformMeasurement(m Measurement) (*engine.Row, error) {
	if m.MeasuredAt.IsZero() {
		return nil, syncerr.Validation("measurement without time: %s", strings.Join(m.Invalid, ", "))
	}
	if len(m.Values) == 0 {
		return nil, syncerr.Validation("measurement %s has no valid values: %s", m.Key(), strings.Join(m.Invalid, ", "))
	}
	data := map[string]any{"measured_at": m.Key()}
	if m.Model != "" {
		data["model"] = m.Model
	}
	for field, v := range m.Values {
		data[field] = json.Number(v.String())
	}
	at := m.MeasuredAt.UTC()
	return &engine.Row{SourceID: m.Key(), Data: data, RecordAt: &at}, nil
}
