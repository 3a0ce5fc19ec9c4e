// pkg/config/threshold.go

package config

import (
	"fmt"
	"strconv"
	"strings"

	cerr "github.com/cockroachdb/errors"
)

// Threshold is a disk-space minimum, either a percentage of the filesystem
// ("15%") or an absolute byte quantity ("10GB", "512MiB").
type Threshold struct {
	Percent float64
	Bytes   uint64
	percent bool
}

// IsPercent reports which form the threshold was written in.
func (t Threshold) IsPercent() bool { return t.percent }

// MinBytes resolves the threshold against a filesystem size.
func (t Threshold) MinBytes(totalBytes uint64) uint64 {
	if t.percent {
		return uint64(float64(totalBytes) * t.Percent / 100.0)
	}
	return t.Bytes
}

func (t Threshold) String() string {
	if t.percent {
		return strconv.FormatFloat(t.Percent, 'f', -1, 64) + "%"
	}
	return fmt.Sprintf("%dB", t.Bytes)
}

// UnmarshalText parses "15%", "10GB", "512MiB", "1048576" (bytes).
func (t *Threshold) UnmarshalText(text []byte) error {
	parsed, err := ParseThreshold(string(text))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

var byteUnits = []struct {
	suffix string
	factor uint64
}{
	{"TIB", 1 << 40}, {"TB", 1e12}, {"T", 1 << 40},
	{"GIB", 1 << 30}, {"GB", 1e9}, {"G", 1 << 30},
	{"MIB", 1 << 20}, {"MB", 1e6}, {"M", 1 << 20},
	{"KIB", 1 << 10}, {"KB", 1e3}, {"K", 1 << 10},
	{"B", 1},
}

// ParseThreshold parses a threshold expression.
func ParseThreshold(s string) (Threshold, error) {
	raw := strings.TrimSpace(strings.ToUpper(s))
	if raw == "" {
		return Threshold{}, cerr.New("empty disk threshold")
	}

	if strings.HasSuffix(raw, "%") {
		v, err := strconv.ParseFloat(strings.TrimSuffix(raw, "%"), 64)
		if err != nil {
			return Threshold{}, cerr.Wrapf(err, "invalid percentage threshold %q", s)
		}
		if v <= 0 || v >= 100 {
			return Threshold{}, cerr.Newf("percentage threshold %q must be between 0 and 100", s)
		}
		return Threshold{Percent: v, percent: true}, nil
	}

	for _, unit := range byteUnits {
		if strings.HasSuffix(raw, unit.suffix) {
			num := strings.TrimSpace(strings.TrimSuffix(raw, unit.suffix))
			v, err := strconv.ParseFloat(num, 64)
			if err != nil {
				return Threshold{}, cerr.Wrapf(err, "invalid byte threshold %q", s)
			}
			if v <= 0 {
				return Threshold{}, cerr.Newf("byte threshold %q must be positive", s)
			}
			return Threshold{Bytes: uint64(v * float64(unit.factor))}, nil
		}
	}

	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return Threshold{}, cerr.Newf("cannot parse disk threshold %q (want e.g. \"15%%\" or \"10GB\")", s)
	}
	return Threshold{Bytes: v}, nil
}
