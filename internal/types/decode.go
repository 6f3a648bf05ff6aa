package types

import (
	"math"

	"github.com/tidwall/gjson"
)

// DecodeRemoteActivities leniently reads the "activities" value of a persisted document.
// Non-object entries are skipped, non-numeric targets and non-array actuals are reported
// as absent, and non-object achievement records are dropped. ok is false when the value
// is missing or not an array.
func DecodeRemoteActivities(value gjson.Result) (out []RemoteActivity, ok bool) {
	if !value.IsArray() {
		return nil, false
	}
	out = make([]RemoteActivity, 0)
	value.ForEach(func(_, item gjson.Result) bool {
		if !item.IsObject() {
			return true
		}
		id := item.Get("id")
		if id.Type != gjson.String {
			return true
		}
		ra := RemoteActivity{ID: id.String()}

		if t := item.Get("target"); t.Type == gjson.Number {
			n := int(math.Floor(t.Float()))
			ra.Target = &n
		}
		if actual := item.Get("actual"); actual.IsArray() {
			ra.Actual = make([]Achievement, 0)
			actual.ForEach(func(_, rec gjson.Result) bool {
				if !rec.IsObject() {
					return true
				}
				ra.Actual = append(ra.Actual, Achievement{
					ID:          rec.Get("id").String(),
					Date:        rec.Get("date").String(),
					Description: rec.Get("description").String(),
				})
				return true
			})
		}
		out = append(out, ra)
		return true
	})
	return out, true
}

// DecodeUserName returns the document's userName, or "" when absent or not a string.
func DecodeUserName(data []byte) string {
	v := gjson.GetBytes(data, "userName")
	if v.Type != gjson.String {
		return ""
	}
	return v.String()
}
