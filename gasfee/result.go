package gasfee

import (
	"math/big"
)

// GasFeeResult is the consumer-facing fee quote for one piece of a composite
// operation (for example the approval leg of an approval+swap). Value and
// DisplayValue are decimal strings in wei; nil means the quote is not known
// yet. Results from multiple legs merge associatively via MergeGasFeeResults.
type GasFeeResult struct {
	Value        *string
	DisplayValue *string
	Err          error
	IsLoading    bool
}

// MergeGasFeeResults combines fee quotes for the legs of a composite
// operation into one quote:
//
//   - IsLoading is true if any input is still loading.
//   - Err is the first non-nil error in input order.
//   - Value (resp. DisplayValue) is the big-integer sum of all inputs when
//     every input defines it, and nil as soon as any input leaves it nil.
//
// With no inputs it returns the empty, settled quote.
func MergeGasFeeResults(results ...GasFeeResult) GasFeeResult {
	merged := GasFeeResult{}

	valueSum := new(big.Int)
	displaySum := new(big.Int)
	valueDefined := true
	displayDefined := true

	for _, r := range results {
		if r.IsLoading {
			merged.IsLoading = true
		}
		if merged.Err == nil && r.Err != nil {
			merged.Err = r.Err
		}

		valueDefined = valueDefined && accumulate(valueSum, r.Value)
		displayDefined = displayDefined && accumulate(displaySum, r.DisplayValue)
	}

	if len(results) > 0 && valueDefined {
		merged.Value = stringPtr(valueSum.String())
	}
	if len(results) > 0 && displayDefined {
		merged.DisplayValue = stringPtr(displaySum.String())
	}
	return merged
}

// accumulate adds the decimal string s into sum, reporting whether s was
// defined and parseable.
func accumulate(sum *big.Int, s *string) bool {
	if s == nil {
		return false
	}
	v, ok := new(big.Int).SetString(*s, 10)
	if !ok {
		return false
	}
	sum.Add(sum, v)
	return true
}

// SumGasFees adds up a list of decimal-string fees, skipping nil entries.
// It returns nil when the list is empty. Unlike MergeGasFeeResults, a nil
// entry does not poison the sum; callers use this to total whatever partial
// quotes exist.
func SumGasFees(fees []*string) *string {
	if len(fees) == 0 {
		return nil
	}

	sum := new(big.Int)
	for _, fee := range fees {
		if fee == nil {
			continue
		}
		v, ok := new(big.Int).SetString(*fee, 10)
		if !ok {
			continue
		}
		sum.Add(sum, v)
	}
	return stringPtr(sum.String())
}

func stringPtr(s string) *string {
	return &s
}
