package domains

import (
	"context"
	"errors"
	"net"
	"sort"
	"strings"

	"github.com/angelmondragon/storefront-provisioner/pkg/db/models"
	"github.com/angelmondragon/storefront-provisioner/pkg/enums"
)

// checkRecord looks up one required record and classifies what came back.
// Lookup failures never surface as errors; they resolve to pending.
func checkRecord(ctx context.Context, resolver Resolver, want models.DNSRecord, lookup func(context.Context, func(context.Context) error) error) models.DNSRecordCheck {
	check := models.DNSRecordCheck{
		Type:     want.Type,
		Name:     want.Name,
		Expected: normalizeValue(want.Value),
		Status:   enums.DomainStatusPending,
	}

	var observed []string
	err := lookup(ctx, func(ctx context.Context) error {
		var err error
		observed, err = observe(ctx, resolver, want)
		return err
	})
	if err != nil {
		if !isNoAnswer(err) {
			check.Error = err.Error()
		}
		return check
	}
	check.Observed = observed
	if len(observed) == 0 {
		return check
	}
	if matches(want.Type, check.Expected, observed) {
		check.Status = enums.DomainStatusVerified
	} else {
		check.Status = enums.DomainStatusMisconfigured
	}
	return check
}

func observe(ctx context.Context, resolver Resolver, want models.DNSRecord) ([]string, error) {
	switch want.Type {
	case enums.DNSRecordTypeA:
		addrs, err := resolver.LookupIPAddr(ctx, want.Name)
		if err != nil {
			return nil, err
		}
		out := make([]string, 0, len(addrs))
		for _, a := range addrs {
			if v4 := a.IP.To4(); v4 != nil {
				out = append(out, v4.String())
			}
		}
		sort.Strings(out)
		return out, nil
	case enums.DNSRecordTypeCNAME:
		target, err := resolver.LookupCNAME(ctx, want.Name)
		if err != nil {
			return nil, err
		}
		target = normalizeValue(target)
		// LookupCNAME answers with the name itself when no CNAME exists
		if target == "" || target == normalizeValue(want.Name) {
			return nil, nil
		}
		return []string{target}, nil
	case enums.DNSRecordTypeTXT:
		values, err := resolver.LookupTXT(ctx, want.Name)
		if err != nil {
			return nil, err
		}
		out := make([]string, 0, len(values))
		for _, v := range values {
			out = append(out, strings.TrimSpace(v))
		}
		return out, nil
	default:
		return nil, nil
	}
}

// matches compares by exact value. Every A answer must be the expected
// address, since any other address would receive part of the traffic. TXT
// sets commonly hold unrelated values, so one exact match is enough there.
func matches(kind enums.DNSRecordType, expected string, observed []string) bool {
	switch kind {
	case enums.DNSRecordTypeTXT:
		for _, v := range observed {
			if v == expected {
				return true
			}
		}
		return false
	default:
		for _, v := range observed {
			if normalizeValue(v) != expected {
				return false
			}
		}
		return true
	}
}

// summarize folds per-record outcomes into the configuration status. One
// wrong answer makes the whole configuration misconfigured; otherwise any
// missing answer keeps it pending.
func summarize(checks []models.DNSRecordCheck) (enums.DomainStatus, *bool) {
	status := enums.DomainStatusVerified
	for _, c := range checks {
		switch c.Status {
		case enums.DomainStatusMisconfigured:
			wrong := false
			return enums.DomainStatusMisconfigured, &wrong
		case enums.DomainStatusPending:
			status = enums.DomainStatusPending
		}
	}
	if status == enums.DomainStatusPending || len(checks) == 0 {
		return enums.DomainStatusPending, nil
	}
	ok := true
	return enums.DomainStatusVerified, &ok
}

func normalizeValue(v string) string {
	return strings.TrimSuffix(strings.ToLower(strings.TrimSpace(v)), ".")
}

func isNoAnswer(err error) bool {
	var dnsErr *net.DNSError
	return errors.As(err, &dnsErr) && dnsErr.IsNotFound
}

func isTransientLookup(err error) bool {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return dnsErr.IsTimeout || dnsErr.IsTemporary
	}
	return errors.Is(err, context.DeadlineExceeded)
}

func net4(raw string) string {
	ip := net.ParseIP(raw)
	if ip == nil {
		return ""
	}
	v4 := ip.To4()
	if v4 == nil {
		return ""
	}
	return v4.String()
}
