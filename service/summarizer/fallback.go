package summarizer

import (
	"fmt"
	"strings"

	"github.com/brojonat/suilyzer/service/analysis"
	"github.com/brojonat/suilyzer/service/diagram"
)

const maxListedTransfers = 3

// FallbackSummary renders a templated explanation from the change-set alone.
// It never fails and never returns an empty string.
func FallbackSummary(cs *analysis.ChangeSet) string {
	var sb strings.Builder

	outcome := "succeeded"
	if cs.Status != "success" {
		outcome = "failed"
		if cs.StatusError != nil && *cs.StatusError != "" {
			outcome = "failed (" + *cs.StatusError + ")"
		}
	}
	fmt.Fprintf(&sb, "Transaction %s sent by %s %s.", diagram.TruncateAddress(cs.Digest), diagram.TruncateAddress(cs.Sender), outcome)

	var transfers []string
	for _, bc := range cs.BalanceChanges {
		if bc.Address == cs.Sender || !bc.Amount.IsPositive() {
			continue
		}
		transfers = append(transfers, fmt.Sprintf("%s received %s", diagram.TruncateAddress(bc.Address), bc.Display()))
	}
	if len(transfers) > maxListedTransfers {
		extra := len(transfers) - maxListedTransfers
		transfers = append(transfers[:maxListedTransfers], fmt.Sprintf("%d more", extra))
	}
	if len(transfers) > 0 {
		fmt.Fprintf(&sb, " %s.", joinClauses(transfers))
	}

	var objects []string
	for _, g := range []struct {
		kind analysis.ObjectKind
		verb string
	}{
		{analysis.ObjectCreated, "created"},
		{analysis.ObjectMutated, "modified"},
		{analysis.ObjectDeleted, "deleted"},
		{analysis.ObjectWrapped, "wrapped"},
	} {
		if n := len(cs.ByKind(g.kind)); n > 0 {
			objects = append(objects, fmt.Sprintf("%s %s", g.verb, plural(n, "object")))
		}
	}
	if len(objects) > 0 {
		fmt.Fprintf(&sb, " It %s.", joinClauses(objects))
	}

	var calls []string
	for _, p := range cs.Packages {
		switch {
		case p.Module != nil && p.Function != nil:
			calls = append(calls, fmt.Sprintf("%s::%s in package %s", *p.Module, *p.Function, diagram.TruncateAddress(p.PackageID)))
		case p.Module != nil:
			calls = append(calls, fmt.Sprintf("module %s in package %s", *p.Module, diagram.TruncateAddress(p.PackageID)))
		default:
			calls = append(calls, "package "+diagram.TruncateAddress(p.PackageID))
		}
	}
	if len(calls) > 0 {
		fmt.Fprintf(&sb, " It used %s.", joinClauses(calls))
	}

	fmt.Fprintf(&sb, " Gas used: %s SUI.", cs.GasUsed)
	return sb.String()
}

func joinClauses(items []string) string {
	switch len(items) {
	case 0:
		return ""
	case 1:
		return items[0]
	default:
		return strings.Join(items[:len(items)-1], ", ") + " and " + items[len(items)-1]
	}
}

func plural(n int, noun string) string {
	if n == 1 {
		return "1 " + noun
	}
	return fmt.Sprintf("%d %ss", n, noun)
}
