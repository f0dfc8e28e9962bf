// Package activity shapes transaction records for presentation: date
// bucketing for the activity feed, pending-first ordering, and validation of
// order groups selected for cancellation.
package activity

import (
	"sort"
	"time"

	"github.com/tranvictor/txlifecycle"
)

// MonthFormatter renders a month label for display. sameYear is true when
// the transaction landed in the current year, in which case the year is
// omitted from the label.
type MonthFormatter func(t time.Time, sameYear bool) string

// englishMonth is the fallback when no localized formatter is configured or
// the configured one produces an empty label.
func englishMonth(t time.Time, sameYear bool) string {
	if sameYear {
		return t.Format("January")
	}
	return t.Format("January 2006")
}

// Buckets is the activity feed grouped for display. Pending-like records go
// into Pending regardless of age; the rest split into Today, Yesterday, and
// per-month groups. MonthKeys preserves first-seen month order so the feed
// renders newest months first without re-sorting map keys.
type Buckets struct {
	Pending   []txlifecycle.TransactionRecord
	Today     []txlifecycle.TransactionRecord
	Yesterday []txlifecycle.TransactionRecord
	MonthKeys []string
	ByMonth   map[string][]txlifecycle.TransactionRecord
}

// FormatTransactionsByDate buckets records relative to now, in now's
// location. Records with an unset timestamp are kept in Pending when
// pending-like and otherwise dropped from month grouping.
func FormatTransactionsByDate(records []txlifecycle.TransactionRecord, now time.Time, opts ...FormatOption) Buckets {
	cfg := formatConfig{month: englishMonth}
	for _, opt := range opts {
		opt(&cfg)
	}

	startOfToday := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	startOfYesterday := startOfToday.AddDate(0, 0, -1)
	startOfYear := time.Date(now.Year(), 1, 1, 0, 0, 0, 0, now.Location())

	out := Buckets{ByMonth: map[string][]txlifecycle.TransactionRecord{}}

	for _, rec := range records {
		if rec.Status.IsPendingLike() {
			out.Pending = append(out.Pending, rec)
			continue
		}

		added := rec.AddedTime
		if added.IsZero() || added.Unix() <= 0 {
			continue
		}
		added = added.In(now.Location())

		switch {
		case !added.Before(startOfToday):
			out.Today = append(out.Today, rec)
		case !added.Before(startOfYesterday):
			out.Yesterday = append(out.Yesterday, rec)
		default:
			key := cfg.month(added, !added.Before(startOfYear))
			if key == "" {
				key = englishMonth(added, !added.Before(startOfYear))
			}
			if _, seen := out.ByMonth[key]; !seen {
				out.MonthKeys = append(out.MonthKeys, key)
			}
			out.ByMonth[key] = append(out.ByMonth[key], rec)
		}
	}

	SortPending(out.Pending)
	return out
}

type formatConfig struct {
	month MonthFormatter
}

// FormatOption configures FormatTransactionsByDate.
type FormatOption func(*formatConfig)

// WithMonthFormatter installs a localized month label formatter. An empty
// label from the formatter falls back to the English format.
func WithMonthFormatter(f MonthFormatter) FormatOption {
	return func(cfg *formatConfig) {
		if f != nil {
			cfg.month = f
		}
	}
}

// SortPending orders pending records newest first: off-chain entries by
// added time descending, on-chain entries by nonce descending. Comparing an
// off-chain entry against an on-chain one, or any entry missing its nonce,
// leaves the left entry later in the list.
func SortPending(records []txlifecycle.TransactionRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		return pendingBefore(records[i], records[j])
	})
}

func pendingBefore(a, b txlifecycle.TransactionRecord) bool {
	if a.TypeInfo.IsOffChain && b.TypeInfo.IsOffChain {
		return a.AddedTime.After(b.AddedTime)
	}
	if a.TypeInfo.IsOffChain != b.TypeInfo.IsOffChain {
		return false
	}
	if a.Nonce == nil || b.Nonce == nil {
		return false
	}
	return *a.Nonce > *b.Nonce
}
