// human readable and writable types
// which can be used inside config file
package model

import (
	"encoding/json"
	"errors"
	"strings"
	"time"
)

// Duration accepts both Go ("90s", "1m30s") and ISO8601 ("PT90S") notation.
type Duration time.Duration

func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

func ParseDuration(s string) (Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, errors.New("empty duration")
	}
	if strings.HasPrefix(s, "P") {
		d, err := ParseISODuration(s)
		return Duration(d), err
	}
	d, err := time.ParseDuration(s)
	return Duration(d), err
}

func (d *Duration) UnmarshalText(text []byte) error {
	if d == nil {
		return errors.New("can't unmarshal to nil")
	}
	parsed, err := ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	return d.UnmarshalText([]byte(s))
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}
