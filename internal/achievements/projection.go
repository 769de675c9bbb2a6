package achievements

import (
	"cmp"
	"fmt"
	"slices"
	"strings"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

type SortBy string

const (
	SortByUnlock SortBy = "unlock"
	SortByName   SortBy = "name"
	SortByRarity SortBy = "rarity"
)

type SortOrder string

const (
	SortAsc  SortOrder = "asc"
	SortDesc SortOrder = "desc"
)

// Options controls Project. The zero value is not valid; start from DefaultOptions.
type Options struct {
	SortBy     SortBy
	SortOrder  SortOrder
	ShowHidden bool
	// RarityCeiling keeps only achievements with a known global percent at or
	// below it. 0 disables the filter.
	RarityCeiling float64
	UnlockedOnly  bool
	LockedOnly    bool
}

func DefaultOptions() Options {
	return Options{
		SortBy:    SortByUnlock,
		SortOrder: SortDesc,
	}
}

// WithUnlockedOnly toggles the unlocked filter. Enabling it clears LockedOnly.
func (o Options) WithUnlockedOnly(v bool) Options {
	o.UnlockedOnly = v
	if v {
		o.LockedOnly = false
	}
	return o
}

// WithLockedOnly toggles the locked filter. Enabling it clears UnlockedOnly.
func (o Options) WithLockedOnly(v bool) Options {
	o.LockedOnly = v
	if v {
		o.UnlockedOnly = false
	}
	return o
}

func (o Options) WithSort(by SortBy, order SortOrder) Options {
	o.SortBy = by
	o.SortOrder = order
	return o
}

func (o Options) WithShowHidden(v bool) Options {
	o.ShowHidden = v
	return o
}

func (o Options) WithRarityCeiling(v float64) Options {
	o.RarityCeiling = v
	return o
}

// Validate checks enumerated fields and ranges.
func (o Options) Validate() error {
	switch o.SortBy {
	case SortByUnlock, SortByName, SortByRarity:
	default:
		return fmt.Errorf("unknown sort field %q", o.SortBy)
	}
	switch o.SortOrder {
	case SortAsc, SortDesc:
	default:
		return fmt.Errorf("unknown sort order %q", o.SortOrder)
	}
	if o.RarityCeiling < 0 || o.RarityCeiling > 100 {
		return fmt.Errorf("rarity ceiling %.2f outside 0..100", o.RarityCeiling)
	}
	return nil
}

// ParseOptions builds validated Options from loosely typed input. Empty
// strings select the defaults.
func ParseOptions(sortBy, sortOrder string, showHidden bool, rarityCeiling float64, unlockedOnly, lockedOnly bool) (Options, error) {
	o := DefaultOptions()
	if sortBy != "" {
		o.SortBy = SortBy(strings.ToLower(sortBy))
	}
	if sortOrder != "" {
		o.SortOrder = SortOrder(strings.ToLower(sortOrder))
	}
	o.ShowHidden = showHidden
	o.RarityCeiling = rarityCeiling
	// Both flags set: unlocked wins, matching the toggle precedence in the UI.
	o = o.WithLockedOnly(lockedOnly).WithUnlockedOnly(unlockedOnly)
	if err := o.Validate(); err != nil {
		return Options{}, err
	}
	return o, nil
}

// Project filters and sorts items for display. The input slice is not modified.
func Project(items []Achievement, opts Options) []Achievement {
	out := make([]Achievement, 0, len(items))
	for _, a := range items {
		if !keep(a, opts) {
			continue
		}
		if a.Hidden && !a.Unlocked {
			a.Masked = true
			a.Description = ""
		} else {
			a.Masked = false
		}
		if !a.Unlocked {
			a.UnlockTime = 0
		}
		out = append(out, a)
	}

	slices.SortStableFunc(out, comparator(opts))
	return out
}

func keep(a Achievement, opts Options) bool {
	if opts.RarityCeiling > 0 {
		p, ok := a.KnownPercent()
		if !ok || p > opts.RarityCeiling {
			return false
		}
	}
	if !opts.ShowHidden && a.Hidden && !a.Unlocked {
		return false
	}
	switch {
	case opts.UnlockedOnly:
		return a.Unlocked
	case opts.LockedOnly:
		return !a.Unlocked
	}
	return true
}

func comparator(opts Options) func(a, b Achievement) int {
	flip := func(c int) int {
		if opts.SortOrder == SortDesc {
			return -c
		}
		return c
	}

	switch opts.SortBy {
	case SortByName:
		col := collate.New(language.English)
		return func(a, b Achievement) int {
			return flip(col.CompareString(a.DisplayName, b.DisplayName))
		}
	case SortByRarity:
		return func(a, b Achievement) int {
			return flip(cmp.Compare(a.Rarity(), b.Rarity()))
		}
	default:
		return func(a, b Achievement) int {
			if a.Unlocked != b.Unlocked {
				if a.Unlocked {
					return -1
				}
				return 1
			}
			if !a.Unlocked {
				return 0
			}
			ta, _ := a.EffectiveUnlockTime()
			tb, _ := b.EffectiveUnlockTime()
			return flip(cmp.Compare(ta, tb))
		}
	}
}
