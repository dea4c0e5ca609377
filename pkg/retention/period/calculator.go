package period

import (
	"fmt"
	"strings"
	"time"

	"mercator-hq/saturn/pkg/retention"
)

// PreviewExpireDate computes the expiration date for n units after start.
func PreviewExpireDate(n int, unit retention.Unit, start time.Time) (time.Time, error) {
	p, err := New(n, unit)
	if err != nil {
		return time.Time{}, err
	}
	return p.AddTo(start), nil
}

// ValidateAllowedPeriod checks (n, unit) against the policy's allowed list.
// The match is semantic: "1 year" matches n=1, unit=years. An empty list
// accepts any positive period.
func ValidateAllowedPeriod(pol *retention.Policy, n int, unit retention.Unit) error {
	requested, err := New(n, unit)
	if err != nil {
		return err
	}
	if pol == nil || len(pol.AllowedRetentionPeriods) == 0 {
		return nil
	}

	for _, raw := range pol.AllowedRetentionPeriods {
		allowed, err := Parse(raw)
		if err != nil {
			// Stored lists are validated on write; skip anything unreadable.
			continue
		}
		if allowed.Equal(requested) {
			return nil
		}
	}

	return retention.NewValidationError("retention_period",
		fmt.Sprintf("%s is not allowed by policy %q (allowed: %s)",
			requested, pol.Name, strings.Join(pol.AllowedRetentionPeriods, ", ")))
}

// ValidateJustification fails when the policy requires a justification and
// none (or only whitespace) was given.
func ValidateJustification(pol *retention.Policy, justification string) error {
	if pol != nil && pol.RequireJustification && strings.TrimSpace(justification) == "" {
		return retention.NewValidationError("justification",
			fmt.Sprintf("policy %q requires a justification", pol.Name))
	}
	return nil
}

// ValidateAllowedList checks that every entry of an allowed-periods list is
// a non-empty, parseable period.
func ValidateAllowedList(periods []string) error {
	for i, raw := range periods {
		if strings.TrimSpace(raw) == "" {
			return retention.NewValidationError("allowed_retention_periods",
				fmt.Sprintf("entry %d is empty", i))
		}
		if _, err := Parse(raw); err != nil {
			return &retention.ValidationError{
				Field:   "allowed_retention_periods",
				Message: fmt.Sprintf("entry %d is invalid", i),
				Cause:   err,
			}
		}
	}
	return nil
}
