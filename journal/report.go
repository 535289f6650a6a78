package journal

import (
	"fmt"
	"io"
	"strings"
	"text/template"
	"time"
)

var orgFuncs = template.FuncMap{
	"mul100": func(x float64) float64 { return x * 100.0 },
	"join":   func(xs []string) string { return strings.Join(xs, ", ") },
	"orTime": func(t time.Time) time.Time {
		if t.IsZero() {
			return time.Now()
		}
		return t
	},
}

var orgTemplate = template.Must(template.New("run").Funcs(orgFuncs).Parse(OrgTemplate))

// WriteOrg renders r as an org-mode heading with a properties drawer.
func WriteOrg(w io.Writer, r Run) error {
	return orgTemplate.Execute(w, r)
}

const OrgTemplate = `* BACKTEST: {{if .Strategies}}{{join .Strategies}}{{else}}(strategies?){{end}}
:PROPERTIES:
:RUN_ID:      {{if .RunID}}{{.RunID}}{{else}}(run-id?){{end}}
:STRATEGIES:  {{join .Strategies}}
:INSTRUMENTS: {{join .Instruments}}
:DATASET:     {{if .Dataset}}{{.Dataset}}{{else}}(dataset?){{end}}
:START:       {{.Start.Format "2006-01-02T15:04:05Z07:00"}}
:END_TIME:    {{.End.Format "2006-01-02T15:04:05Z07:00"}}
:TICKS:       {{.Ticks}}
:ORDERS:      {{.Orders}}
:REJECTED:    {{.Rejected}}
:FILLS:       {{.Fills}}
:TRADES:      {{.Trades}}
:WINS:        {{.Wins}}
:LOSSES:      {{.Losses}}
:TOTAL_PNL:   {{printf "%.2f" .TotalPnL}}
:COMMISSION:  {{printf "%.2f" .Commission}}
:SLIPPAGE:    {{printf "%.2f" .Slippage}}
:MAX_DD:      {{printf "%.2f" .MaxDrawdown}}
:CREATED:     [{{(orTime .Created).Format "2006-01-02 Mon 15:04"}}]
:END:

** Performance Summary
- Realized P/L:     *{{printf "%.2f" .TotalPnL}}*
- Unrealized P/L:   *{{printf "%.2f" .UnrealizedPnL}}*
- Costs:            *{{printf "%.2f" .Commission}}* commission, *{{printf "%.2f" .Slippage}}* slippage
- Max Drawdown:     *{{printf "%.2f" .MaxDrawdown}}*
- Win Rate:         *{{printf "%.2f" (mul100 .WinRate)}}%*

** Trade Distribution
| Outcome | Count |
|---------+-------|
| Wins    | {{.Wins}} |
| Losses  | {{.Losses}} |
| Total   | {{.Trades}} |
{{- if .Config }}

** Configuration
#+begin_src yaml
{{printf "%s" .Config}}
#+end_src
{{- end }}
{{- if .Notes }}

** Observations
{{- range .Notes }}
- {{.}}
{{- end }}
{{- end }}
`

// PrintRun writes a plain-text summary of r.
func PrintRun(w io.Writer, r Run) {
	fmt.Fprintln(w, "==================================================")
	fmt.Fprintln(w, " Backtest Result")
	fmt.Fprintln(w, "==================================================")

	fmt.Fprintf(w, "Run ID:        %s\n", r.RunID)
	fmt.Fprintf(w, "Created:       %s\n", r.Created.Format(time.RFC3339))
	fmt.Fprintf(w, "Strategies:    %s\n", strings.Join(r.Strategies, ", "))
	fmt.Fprintf(w, "Instruments:   %s\n", strings.Join(r.Instruments, ", "))
	if r.Dataset != "" {
		fmt.Fprintf(w, "Dataset:       %s\n", r.Dataset)
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Period")
	fmt.Fprintln(w, "--------------------------------------------------")
	fmt.Fprintf(w, "Start:         %s\n", r.Start.Format(time.RFC3339))
	fmt.Fprintf(w, "End:           %s\n", r.End.Format(time.RFC3339))
	fmt.Fprintf(w, "Ticks:         %d\n", r.Ticks)

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Order Flow")
	fmt.Fprintln(w, "--------------------------------------------------")
	fmt.Fprintf(w, "Orders:        %d\n", r.Orders)
	fmt.Fprintf(w, "Rejected:      %d\n", r.Rejected)
	fmt.Fprintf(w, "Fills:         %d\n", r.Fills)

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Trade Statistics")
	fmt.Fprintln(w, "--------------------------------------------------")
	fmt.Fprintf(w, "Trades:        %d\n", r.Trades)
	fmt.Fprintf(w, "Wins:          %d\n", r.Wins)
	fmt.Fprintf(w, "Losses:        %d\n", r.Losses)
	fmt.Fprintf(w, "Win Rate:      %.2f%%\n", r.WinRate()*100)

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Performance")
	fmt.Fprintln(w, "--------------------------------------------------")
	fmt.Fprintf(w, "Realized P/L:  %.2f\n", r.TotalPnL)
	fmt.Fprintf(w, "Unrealized:    %.2f\n", r.UnrealizedPnL)
	fmt.Fprintf(w, "Commission:    %.2f\n", r.Commission)
	fmt.Fprintf(w, "Slippage:      %.2f\n", r.Slippage)
	if r.MaxDrawdown > 0 {
		fmt.Fprintf(w, "Max Drawdown:  %.2f\n", r.MaxDrawdown)
	}

	if len(r.Notes) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Observations")
		fmt.Fprintln(w, "--------------------------------------------------")
		for _, note := range r.Notes {
			fmt.Fprintf(w, "- %s\n", note)
		}
	}

	fmt.Fprintln(w)
}
