package domain

import "time"

// TradeRecord is one immutable row in the append-only trade history log.
// Exactly one row is written when a virtual position opens and exactly one
// more on each full or partial exit.
type TradeRecord struct {
	Timestamp      time.Time
	TokenID        string
	Side           OrderSide
	EntryPrice     float64
	ExitPrice      float64 // zero while the position is still open
	Size           float64
	HoldingSeconds float64
	PnL            float64
	PnLPct         float64
	Slippage       float64
}

// HistoryColumns is the fixed header of the trade history log, written once
// at file creation.
var HistoryColumns = []string{
	"timestamp",
	"token_id",
	"side",
	"entry_price",
	"exit_price",
	"size",
	"holding_time_seconds",
	"pnl",
	"pnl_pct",
	"slippage",
}
