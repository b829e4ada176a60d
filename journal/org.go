package journal

import (
	"fmt"
	"strings"
)

// FormatFillOrg renders a fill as an Org-mode entry. Structured facts go in a
// PROPERTIES drawer; the Notes heading is left for the reader.
func FormatFillOrg(r FillRecord) string {
	var b strings.Builder
	fmt.Fprintf(&b, "** %s %s %d @ %s (%s)\n", strings.ToUpper(r.Side.String()), r.Security, r.Filled, r.Price.StringFixed(2), shortID(r.ID))
	b.WriteString(":PROPERTIES:\n")
	fmt.Fprintf(&b, ":ID: %s\n", r.ID)
	fmt.Fprintf(&b, ":ACCOUNT: %s\n", r.Account)
	if r.TradeID != "" {
		fmt.Fprintf(&b, ":TRADE_ID: %s\n", r.TradeID)
	}
	if r.EntrustID != "" {
		fmt.Fprintf(&b, ":ENTRUST_ID: %s\n", r.EntrustID)
	}
	fmt.Fprintf(&b, ":SECURITY: %s\n", r.Security)
	fmt.Fprintf(&b, ":SIDE: %s\n", r.Side)
	fmt.Fprintf(&b, ":PRICE: %s\n", r.Price.StringFixed(4))
	fmt.Fprintf(&b, ":VOLUME: %d\n", r.Volume)
	fmt.Fprintf(&b, ":FILLED: %d\n", r.Filled)
	fmt.Fprintf(&b, ":AMOUNT: %s\n", r.Amount().StringFixed(2))
	fmt.Fprintf(&b, ":FEES: %s\n", r.Fees.StringFixed(2))
	fmt.Fprintf(&b, ":TIME: [%s]\n", r.Time.Format("2006-01-02 Mon 15:04:05"))
	b.WriteString(":END:\n")
	b.WriteString("\n*** Notes\n- \n")
	return b.String()
}

// FormatFillsOrg renders fills separated by blank lines.
func FormatFillsOrg(fills []FillRecord) string {
	var b strings.Builder
	for i, f := range fills {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(FormatFillOrg(f))
	}
	return b.String()
}

// FormatPositionsOrg renders a table of net positions.
func FormatPositionsOrg(ps []Position) string {
	var b strings.Builder
	b.WriteString("| Security | Shares | Cash | Fees |\n")
	b.WriteString("|----------+--------+------+------|\n")
	for _, p := range ps {
		fmt.Fprintf(&b, "| %s | %d | %s | %s |\n", p.Security, p.Shares, p.Cash.StringFixed(2), p.Fees.StringFixed(2))
	}
	return b.String()
}

func shortID(full string) string {
	if len(full) <= 8 {
		return full
	}
	return full[:8]
}
