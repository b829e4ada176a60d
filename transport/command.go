package transport

import "strings"

// Commands understood by the server. Each is one path segment under the base URL.
const (
	CmdInfo              = "info"
	CmdBalance           = "balance"
	CmdPositions         = "positions"
	CmdBuy               = "buy"
	CmdMarketBuy         = "market_buy"
	CmdSell              = "sell"
	CmdMarketSell        = "market_sell"
	CmdSellPercent       = "sell_percent"
	CmdSellAll           = "sell_all"
	CmdCancelEntrust     = "cancel_entrust"
	CmdCancelAllEntrusts = "cancel_all_entrusts"
	CmdTodayEntrusts     = "today_entrusts"
	CmdTodayTrades       = "today_trades"
	CmdTradesInRange     = "get_trades_in_range"
	CmdEntrustsInRange   = "get_entrusts_in_range"
	CmdMetrics           = "metrics"
	CmdBills             = "bills"
	CmdAssets            = "get_assets"
	CmdStartBacktest     = "start_backtest"
	CmdStopBacktest      = "stop_backtest"
	CmdAccounts          = "accounts"
)

var labels = map[string]string{
	CmdInfo:              "get account info",
	CmdBalance:           "get balance",
	CmdPositions:         "get positions",
	CmdBuy:               "buy",
	CmdMarketBuy:         "market buy",
	CmdSell:              "sell",
	CmdMarketSell:        "market sell",
	CmdSellPercent:       "sell by percent",
	CmdSellAll:           "sell all",
	CmdCancelEntrust:     "cancel entrust",
	CmdCancelAllEntrusts: "cancel all entrusts",
	CmdTodayEntrusts:     "get today's entrusts",
	CmdTodayTrades:       "get today's trades",
	CmdTradesInRange:     "get trades in range",
	CmdEntrustsInRange:   "get entrusts in range",
	CmdMetrics:           "get metrics",
	CmdBills:             "get bills",
	CmdAssets:            "get assets",
	CmdStartBacktest:     "start backtest",
	CmdStopBacktest:      "stop backtest",
	CmdAccounts:          "manage accounts",
}

// Label returns a human readable name for a command.
func Label(cmd string) string {
	if l, ok := labels[cmd]; ok {
		return l
	}
	return "unknown command"
}

// CommandFromPath returns the last non-empty segment of an URL path.
func CommandFromPath(path string) string {
	path = strings.TrimRight(path, "/")
	if i := strings.LastIndex(path, "/"); i >= 0 {
		return path[i+1:]
	}
	return path
}
