package enums

import "fmt"

// BillingCycle is the named recurrence period of a plan or subscription.
type BillingCycle string

const (
	BillingCycleMonthly    BillingCycle = "monthly"
	BillingCycleSemiannual BillingCycle = "semiannual"
	BillingCycleYearly     BillingCycle = "yearly"
)

var billingCycleMonths = map[BillingCycle]int{
	BillingCycleMonthly:    1,
	BillingCycleSemiannual: 6,
	BillingCycleYearly:     12,
}

// String implements fmt.Stringer.
func (b BillingCycle) String() string {
	return string(b)
}

// IsValid reports whether the value is known.
func (b BillingCycle) IsValid() bool {
	_, ok := billingCycleMonths[b]
	return ok
}

// Months returns the month count of the cycle, or zero when unknown.
func (b BillingCycle) Months() int {
	return billingCycleMonths[b]
}

// ParseBillingCycle converts raw input into a BillingCycle.
func ParseBillingCycle(value string) (BillingCycle, error) {
	cycle := BillingCycle(value)
	if !cycle.IsValid() {
		return "", fmt.Errorf("invalid billing cycle %q", value)
	}
	return cycle, nil
}

// BillingCycleForMonths maps a month count onto its named cycle.
func BillingCycleForMonths(months int) (BillingCycle, error) {
	for cycle, count := range billingCycleMonths {
		if count == months {
			return cycle, nil
		}
	}
	return "", fmt.Errorf("unsupported billing cycle of %d months", months)
}
