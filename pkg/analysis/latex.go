package analysis

import (
	"fmt"
	"strings"
)

var latexEscaper = strings.NewReplacer(
	`\`, `\textbackslash{}`,
	`&`, `\&`,
	`%`, `\%`,
	`$`, `\$`,
	`#`, `\#`,
	`_`, `\_`,
	`{`, `\{`,
	`}`, `\}`,
)

// LatexTable renders summaries as a booktabs tabular with one row per
// algorithm. The result has no trailing newline.
func LatexTable(summaries []Summary) string {
	lines := []string{
		`\begin{tabular}{lrrrr}`,
		`\toprule`,
		`Algorithm & Mean time (ms) & Median time (ms) & Mean relaxed & Median relaxed \\`,
		`\midrule`,
	}

	for _, s := range summaries {
		lines = append(lines, fmt.Sprintf(`%s & %.2f & %.2f & %.0f & %.0f \\`,
			latexEscaper.Replace(s.Label),
			s.MeanTimeMS,
			s.MedianTimeMS,
			s.MeanRelaxed,
			s.MedianRelaxed,
		))
	}

	lines = append(lines, `\bottomrule`, `\end{tabular}`)

	return strings.Join(lines, "\n")
}
