// internal/ledger/ledger.go
package ledger

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ErrInvalidField is returned when a free-text trade field would break the
// unescaped CSV layout.
var ErrInvalidField = errors.New("trade field contains a delimiter")

// Summary aggregates the ledger.
type Summary struct {
	TotalTrades      int             `json:"total_trades"`
	SuccessfulTrades int             `json:"successful_trades"`
	TotalProfit      decimal.Decimal `json:"total_profit"`
	TotalLoss        decimal.Decimal `json:"total_loss"`
	WinRate          float64         `json:"win_rate"`
	Trades           []Trade         `json:"trades"`
}

// Ledger is the append-only list of completed trades.
type Ledger struct {
	mu     sync.RWMutex
	trades []Trade
	now    func() time.Time
}

// New creates an empty ledger.
func New() *Ledger {
	return &Ledger{now: time.Now}
}

// Add appends a trade. ID and timestamp are filled when missing and profit
// is always derived from the prices.
func (l *Ledger) Add(t Trade) (Trade, error) {
	t.TokenSymbol = strings.TrimSpace(t.TokenSymbol)
	if err := checkField("token symbol", t.TokenSymbol); err != nil {
		return Trade{}, err
	}
	if err := checkField("tx hash", t.TxHash); err != nil {
		return Trade{}, err
	}
	if err := checkField("id", t.ID); err != nil {
		return Trade{}, err
	}

	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.Timestamp.IsZero() {
		t.Timestamp = l.now()
	}
	t.Profit = ComputeProfit(t.BuyPrice, t.SellPrice, t.Amount)

	l.mu.Lock()
	l.trades = append(l.trades, t)
	l.mu.Unlock()
	return t, nil
}

func checkField(name, value string) error {
	if strings.ContainsAny(value, ",\"\r\n") {
		return fmt.Errorf("%s %q: %w", name, value, ErrInvalidField)
	}
	return nil
}

// Trades returns a copy of all recorded trades in insertion order.
func (l *Ledger) Trades() []Trade {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Trade, len(l.trades))
	copy(out, l.trades)
	return out
}

// Summary computes totals. A trade with profit >= 0 counts as successful;
// profit and loss totals partition the trades by sign.
func (l *Ledger) Summary() Summary {
	trades := l.Trades()
	s := Summary{
		TotalTrades: len(trades),
		TotalProfit: decimal.Zero,
		TotalLoss:   decimal.Zero,
		Trades:      trades,
	}
	for _, t := range trades {
		if t.Profit.Sign() >= 0 {
			s.SuccessfulTrades++
		}
		switch t.Profit.Sign() {
		case 1:
			s.TotalProfit = s.TotalProfit.Add(t.Profit)
		case -1:
			s.TotalLoss = s.TotalLoss.Add(t.Profit.Abs())
		}
	}
	if s.TotalTrades > 0 {
		s.WinRate = float64(s.SuccessfulTrades) / float64(s.TotalTrades) * 100
	}
	return s
}

// ExportCSV renders the header row followed by one row per trade,
// newline separated without a trailing newline.
func (l *Ledger) ExportCSV() (string, error) {
	var b strings.Builder
	if err := l.writeCSV(&b); err != nil {
		return "", err
	}
	return strings.TrimSuffix(b.String(), "\n"), nil
}

func (l *Ledger) writeCSV(w io.Writer) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(CSVHeaders()); err != nil {
		return fmt.Errorf("failed to write headers: %w", err)
	}
	for _, t := range l.Trades() {
		if err := writer.Write(t.ToCSV()); err != nil {
			return fmt.Errorf("failed to write trade %s: %w", t.ID, err)
		}
	}
	writer.Flush()
	return writer.Error()
}

// WriteCSVFile writes the export into dir under a timestamped name and
// returns the file path.
func (l *Ledger) WriteCSVFile(dir string) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}
	path := filepath.Join(dir, fmt.Sprintf("trades_%s.csv", l.now().Format("20060102_150405")))

	file, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	if err := l.writeCSV(file); err != nil {
		return "", err
	}
	return path, nil
}

// Clear drops all trades.
func (l *Ledger) Clear() {
	l.mu.Lock()
	l.trades = nil
	l.mu.Unlock()
}
