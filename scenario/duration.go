package scenario

import "time"

// Duration is a structured span of time used by scenario files and the
// defaults TOML. Components are additive; a zero value means zero duration.
type Duration struct {
	Hours        int `yaml:"hours" toml:"hours"`
	Minutes      int `yaml:"minutes" toml:"minutes"`
	Seconds      int `yaml:"seconds" toml:"seconds"`
	Milliseconds int `yaml:"milliseconds" toml:"milliseconds"`
	Microseconds int `yaml:"microseconds" toml:"microseconds"`
}

// ToDuration flattens the components into a time.Duration.
func (d Duration) ToDuration() time.Duration {
	return time.Duration(d.Hours)*time.Hour +
		time.Duration(d.Minutes)*time.Minute +
		time.Duration(d.Seconds)*time.Second +
		time.Duration(d.Milliseconds)*time.Millisecond +
		time.Duration(d.Microseconds)*time.Microsecond
}

// IsZero reports whether every component is zero.
func (d Duration) IsZero() bool {
	return d == Duration{}
}
