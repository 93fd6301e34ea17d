package registry

import (
	"bytes"
	"encoding/json"
	"strconv"
)

// Label is a categorical telemetry value. The registry sends these as
// strings or numbers depending on the game, so both decode to text.
// An empty Label means the value was null or absent.
type Label string

func (l *Label) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*l = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*l = Label(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	if f, err := n.Float64(); err == nil && f == float64(int64(f)) {
		*l = Label(strconv.FormatInt(int64(f), 10))
		return nil
	}
	*l = Label(n.String())
	return nil
}
