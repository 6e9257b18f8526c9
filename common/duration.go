package common

import (
	"fmt"
	"time"
)

type Duration time.Duration

func (d *Duration) UnmarshalText(b []byte) error {
	dd, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}

	if dd < 0 {
		return fmt.Errorf("duration should be positive, but got %s", dd)
	}

	*d = Duration(dd)
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d Duration) String() string {
	return time.Duration(d).String()
}

// Or returns d, or def when d is unset.
func (d Duration) Or(def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return time.Duration(d)
}
