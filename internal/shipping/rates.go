package shipping

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

var (
	// ErrNoRate is returned when no band covers the requested carrier and weight.
	ErrNoRate = errors.New("no shipping rate for weight")
	// ErrInvalidRateTable is returned when a rate table is malformed.
	ErrInvalidRateTable = errors.New("invalid shipping rate table")
)

//go:embed default_rates.yaml
var defaultRates []byte

// Band prices every parcel up to MaxWeight grams (inclusive), tax excluded.
type Band struct {
	MaxWeight int
	Price     decimal.Decimal
}

// RateTable holds weight-banded prices per carrier.
type RateTable struct {
	carriers map[MethodKind][]Band
}

type rawBand struct {
	MaxWeight int    `yaml:"maxWeight"`
	Price     string `yaml:"price"`
}

// NewRateTable validates and builds a table. Bands must be sorted by ascending weight.
func NewRateTable(carriers map[MethodKind][]Band) (RateTable, error) {
	out := make(map[MethodKind][]Band, len(carriers))
	for kind, bands := range carriers {
		if kind != KindColissimo && kind != KindMondialRelay {
			return RateTable{}, fmt.Errorf("%w: %q is not a carrier", ErrInvalidRateTable, kind)
		}
		if len(bands) == 0 {
			return RateTable{}, fmt.Errorf("%w: %s has no bands", ErrInvalidRateTable, kind)
		}
		sorted := sort.SliceIsSorted(bands, func(i, j int) bool { return bands[i].MaxWeight < bands[j].MaxWeight })
		if !sorted {
			return RateTable{}, fmt.Errorf("%w: %s bands are not sorted", ErrInvalidRateTable, kind)
		}
		for i, b := range bands {
			if b.MaxWeight <= 0 || b.Price.IsNegative() {
				return RateTable{}, fmt.Errorf("%w: %s band %d", ErrInvalidRateTable, kind, i)
			}
			if i > 0 && bands[i-1].MaxWeight == b.MaxWeight {
				return RateTable{}, fmt.Errorf("%w: %s duplicate band %dg", ErrInvalidRateTable, kind, b.MaxWeight)
			}
		}
		out[kind] = append([]Band(nil), bands...)
	}
	return RateTable{carriers: out}, nil
}

// ParseRateTable decodes a YAML document keyed by carrier.
func ParseRateTable(data []byte) (RateTable, error) {
	var raw map[MethodKind][]rawBand
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return RateTable{}, fmt.Errorf("%w: %v", ErrInvalidRateTable, err)
	}
	carriers := make(map[MethodKind][]Band, len(raw))
	for kind, bands := range raw {
		for _, b := range bands {
			price, err := decimal.NewFromString(b.Price)
			if err != nil {
				return RateTable{}, fmt.Errorf("%w: %s price %q", ErrInvalidRateTable, kind, b.Price)
			}
			carriers[kind] = append(carriers[kind], Band{MaxWeight: b.MaxWeight, Price: price})
		}
	}
	return NewRateTable(carriers)
}

// LoadRateTable reads a YAML rate table from path, or the built-in table when path is empty.
func LoadRateTable(path string) (RateTable, error) {
	if path == "" {
		return ParseRateTable(defaultRates)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return RateTable{}, fmt.Errorf("read rate table: %w", err)
	}
	return ParseRateTable(data)
}

// Lookup returns the tax-excluded price of the first band whose MaxWeight covers weight.
func (t RateTable) Lookup(kind MethodKind, weight int) (decimal.Decimal, error) {
	bands, ok := t.carriers[kind]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: carrier %s not configured", ErrNoRate, kind)
	}
	i := sort.Search(len(bands), func(i int) bool { return bands[i].MaxWeight >= weight })
	if i == len(bands) {
		return decimal.Zero, fmt.Errorf("%w: %s %dg", ErrNoRate, kind, weight)
	}
	return bands[i].Price, nil
}
