package ledger

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/alanyoungcy/polytrader/internal/domain"
)

// CSVHistory implements domain.HistorySink as an append-only CSV file. The
// fixed column header is written exactly once, when the file is created.
type CSVHistory struct {
	path string
	mu   sync.Mutex
}

// NewCSVHistory opens (or creates) the history file at path.
func NewCSVHistory(path string) (*CSVHistory, error) {
	h := &CSVHistory{path: path}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := h.writeHeader(); err != nil {
			return nil, fmt.Errorf("ledger: create history %s: %w", path, err)
		}
	} else if err != nil {
		return nil, fmt.Errorf("ledger: stat history %s: %w", path, err)
	}
	return h, nil
}

func (h *CSVHistory) writeHeader() error {
	f, err := os.OpenFile(h.path, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(domain.HistoryColumns); err != nil {
		return err
	}
	w.Flush()
	return w.Error()
}

// Append writes one trade record as a CSV row and syncs it to disk before
// returning.
func (h *CSVHistory) Append(ctx context.Context, rec domain.TradeRecord) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	f, err := os.OpenFile(h.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("ledger: open history: %w", err)
	}
	defer f.Close()

	exitPrice := ""
	if rec.ExitPrice != 0 {
		exitPrice = formatFloat(rec.ExitPrice)
	}

	w := csv.NewWriter(f)
	row := []string{
		rec.Timestamp.Format(time.RFC3339),
		rec.TokenID,
		string(rec.Side),
		formatFloat(rec.EntryPrice),
		exitPrice,
		formatFloat(rec.Size),
		strconv.FormatFloat(rec.HoldingSeconds, 'f', 2, 64),
		formatFloat(rec.PnL),
		formatFloat(rec.PnLPct),
		formatFloat(rec.Slippage),
	}
	if err := w.Write(row); err != nil {
		return fmt.Errorf("ledger: write history row: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("ledger: flush history row: %w", err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("ledger: sync history: %w", err)
	}
	return nil
}

// Path returns the history file location (used by the archiver).
func (h *CSVHistory) Path() string {
	return h.path
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 6, 64)
}

// Compile-time interface check.
var _ domain.HistorySink = (*CSVHistory)(nil)
