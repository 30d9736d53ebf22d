package models

import (
	"encoding/json"
	"fmt"
)

// IndicatorPoint is one windowed sample; values are truncated to integers.
type IndicatorPoint struct {
	Date  string `json:"date"`
	Value int64  `json:"value"`
}

// IndicatorValue holds either a latest scalar, a window of points, or
// nothing when the indicator is undefined for the series. Unavailable values
// serialise as "N/A".
type IndicatorValue struct {
	Latest      *float64
	Window      []IndicatorPoint
	Unavailable bool
}

func ScalarIndicator(v float64) IndicatorValue {
	return IndicatorValue{Latest: &v}
}

func WindowIndicator(points []IndicatorPoint) IndicatorValue {
	return IndicatorValue{Window: points}
}

func UnavailableIndicator() IndicatorValue {
	return IndicatorValue{Unavailable: true}
}

func (v IndicatorValue) IsWindow() bool {
	return v.Latest == nil && !v.Unavailable
}

func (v IndicatorValue) MarshalJSON() ([]byte, error) {
	if v.Unavailable {
		return json.Marshal(NotAvailable)
	}
	if v.Latest != nil {
		return json.Marshal(*v.Latest)
	}
	if v.Window == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(v.Window)
}

func (v *IndicatorValue) UnmarshalJSON(data []byte) error {
	var f float64
	if err := json.Unmarshal(data, &f); err == nil {
		*v = ScalarIndicator(f)
		return nil
	}
	var text string
	if err := json.Unmarshal(data, &text); err == nil {
		if text != NotAvailable {
			return fmt.Errorf("unexpected indicator value %q", text)
		}
		*v = UnavailableIndicator()
		return nil
	}
	var points []IndicatorPoint
	if err := json.Unmarshal(data, &points); err != nil {
		return err
	}
	*v = WindowIndicator(points)
	return nil
}

// IndicatorSet maps indicator name to its value.
type IndicatorSet map[string]IndicatorValue
