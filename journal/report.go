package journal

import (
	"bytes"
	"io"
	"os"
	"text/template"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rustyeddy/traderclient/broker"
)

// Report is a backtest summary rendered as an Org document.
type Report struct {
	Account   string
	Created   time.Time
	Start     time.Time
	End       time.Time
	Principal decimal.Decimal
	Metrics   broker.Metrics
	Curve     []broker.AssetSnapshot
	Fills     []FillRecord

	Notes []string
}

var reportFuncs = template.FuncMap{
	"pct":  func(x float64) float64 { return x * 100.0 },
	"date": func(t time.Time) string { return t.Format("2006-01-02") },
	"money": func(d decimal.Decimal) string {
		return d.StringFixed(2)
	},
	"orNow": func(t time.Time) time.Time {
		if t.IsZero() {
			return time.Now()
		}
		return t
	},
}

var reportTemplate = template.Must(template.New("report").Funcs(reportFuncs).Parse(ReportOrgTemplate))

// WriteOrg renders the report to w.
func (r *Report) WriteOrg(w io.Writer) error {
	return reportTemplate.Execute(w, r)
}

// WriteOrgFile renders the report into path.
func (r *Report) WriteOrgFile(path string) error {
	buf := new(bytes.Buffer)
	if err := r.WriteOrg(buf); err != nil {
		return err
	}
	return os.WriteFile(path, buf.Bytes(), 0o644)
}

const ReportOrgTemplate = `* BACKTEST: {{.Account}}
:PROPERTIES:
:ACCOUNT:     {{.Account}}
:START_DATE:  {{date .Start}}
:END_DATE:    {{date .End}}
:PRINCIPAL:   {{money .Principal}}
:NET_PL:      {{money .Metrics.TotalProfit}}
:RETURN_PCT:  {{printf "%.2f" (pct .Metrics.TotalProfitRate)}}
:TRADES:      {{.Metrics.TotalTx}}
:WIN_RATE:    {{printf "%.2f" (pct .Metrics.WinRate)}}
:SHARPE:      {{printf "%.3f" .Metrics.Sharpe}}
:MAX_DD_PCT:  {{printf "%.2f" (pct .Metrics.MaxDrawdown)}}
:CREATED:     [{{(orNow .Created).Format "2006-01-02 Mon 15:04"}}]
:END:

** Performance Summary
- Net P/L:       *{{money .Metrics.TotalProfit}}*
- Return:        *{{printf "%.2f" (pct .Metrics.TotalProfitRate)}}%*
- Annual return: *{{printf "%.2f" (pct .Metrics.AnnualReturn)}}%*
- Max Drawdown:  *{{printf "%.2f" (pct .Metrics.MaxDrawdown)}}%*
- Sortino:       *{{printf "%.3f" .Metrics.Sortino}}*
- Calmar:        *{{printf "%.3f" .Metrics.Calmar}}*
{{- with .Metrics.Baseline }}

** Baseline {{.Code}}
- Return:   *{{printf "%.2f" (pct .TotalProfitRate)}}%*
- Sharpe:   *{{printf "%.3f" .Sharpe}}*
- Win Rate: *{{printf "%.2f" (pct .WinRate)}}%*
{{- end }}
{{- if .Curve }}

** Assets
| Date | Assets |
|------+--------|
{{- range .Curve }}
| {{date .Date.Time}} | {{money .Assets}} |
{{- end }}
{{- end }}
{{- if .Fills }}

** Fills
| Time | Side | Security | Filled | Price |
|------+------+----------+--------+-------|
{{- range .Fills }}
| {{.Time.Format "2006-01-02 15:04"}} | {{.Side}} | {{.Security}} | {{.Filled}} | {{money .Price}} |
{{- end }}
{{- end }}
{{- if .Notes }}

** Notes
{{- range .Notes }}
- {{.}}
{{- end }}
{{- end }}
`
