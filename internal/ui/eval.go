package ui

import (
	"fmt"

	"github.com/Aman-CERP/amanfind/internal/validation"
)

// Eval prints a suite run, one line per query and a summary.
func (r *ResultsRenderer) Eval(res *validation.Result) error {
	w := &errWriter{w: r.out}
	section := func(title string, results []validation.TestResult) {
		if len(results) == 0 {
			return
		}
		w.printf("%s\n", r.styles.Label.Render(title))
		for _, tr := range results {
			mark := r.styles.Success.Render("PASS")
			if !tr.Passed {
				mark = r.styles.Error.Render("FAIL")
			}
			detail := ""
			switch {
			case tr.Error != "":
				detail = tr.Error
			case tr.MatchedAt >= 0:
				detail = fmt.Sprintf("rank %d", tr.MatchedAt+1)
			case tr.Spec.Tier > 0:
				detail = "expected not found"
			}
			w.printf("  %s %-8s %s %s\n", mark, tr.Spec.ID, tr.Spec.Query, r.styles.Dim.Render(detail))
		}
	}
	section("Tier 1", res.Tier1)
	section("Tier 2", res.Tier2)
	section("Negative", res.Negative)

	w.printf("\ntier1 %d/%d  tier2 %d/%d  negative %d/%d  mrr %.3f\n",
		res.Tier1Pass, len(res.Tier1), res.Tier2Pass, len(res.Tier2),
		res.NegPass, len(res.Negative), res.MeanRecip)
	return w.err
}
