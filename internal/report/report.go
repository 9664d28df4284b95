// internal/report/report.go
package report

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/shopspring/decimal"

	"github.com/rovshanmuradov/base-sniper/internal/ledger"
	"github.com/rovshanmuradov/base-sniper/internal/logger"
	"github.com/rovshanmuradov/base-sniper/internal/metrics"
	"github.com/rovshanmuradov/base-sniper/internal/session"
	"github.com/rovshanmuradov/base-sniper/internal/sniper"
)

// Renderer formats engine state for the terminal.
type Renderer struct {
	styles Styles
}

// NewRenderer creates a renderer with the default palette.
func NewRenderer() *Renderer {
	return &Renderer{styles: DefaultStyles()}
}

func (r *Renderer) row(label, value string) string {
	return r.styles.Label.Render(fmt.Sprintf("%-14s", label)) + " " + r.styles.Value.Render(value)
}

func (r *Renderer) box(title string, rows []string) string {
	content := lipgloss.JoinVertical(lipgloss.Left,
		append([]string{r.styles.Title.Render(title)}, rows...)...)
	return r.styles.Box.Render(content)
}

func (r *Renderer) signed(d decimal.Decimal) string {
	text := d.StringFixed(6)
	switch d.Sign() {
	case 1:
		return r.styles.Positive.Render("+" + text)
	case -1:
		return r.styles.Negative.Render(text)
	}
	return r.styles.Value.Render(text)
}

// Session renders one session block.
func (r *Renderer) Session(s session.Session) string {
	rows := []string{
		r.row("ID", s.ID),
		r.row("Token", logger.ShortenAddress(s.TokenAddress)),
		r.row("Status", r.status(s.Status)),
		r.row("Amount", weiToETH(s.BuyAmount)+" ETH"),
		r.row("Slippage", fmt.Sprintf("%.2f%%", float64(s.SlippageBps)/100)),
	}
	if s.Venue != "" {
		rows = append(rows, r.row("Venue", s.Venue))
	}
	if s.Checks > 0 {
		rows = append(rows, r.row("Checks", fmt.Sprintf("%d", s.Checks)))
	}
	if s.TxHash != "" {
		rows = append(rows, r.row("Buy tx", logger.ShortenHash(s.TxHash)))
	}
	if !s.EntryPrice.IsZero() {
		rows = append(rows, r.row("Entry", s.EntryPrice.String()+" ETH"))
	}
	if !s.LastPrice.IsZero() {
		rows = append(rows, r.row("Last", s.LastPrice.String()+" ETH"))
	}
	if s.SellTxHash != "" {
		rows = append(rows, r.row("Sell tx", logger.ShortenHash(s.SellTxHash)))
	}
	if s.Error != "" {
		rows = append(rows, r.styles.Negative.Render(s.Error))
	}
	return r.box("Session", rows)
}

func (r *Renderer) status(st session.Status) string {
	switch st {
	case session.StatusActive:
		return r.styles.Positive.Render(string(st))
	case session.StatusMonitoring:
		return r.styles.Warning.Render(string(st))
	case session.StatusError:
		return r.styles.Negative.Render(string(st))
	}
	return string(st)
}

// PnL renders the ledger summary.
func (r *Renderer) PnL(s ledger.Summary) string {
	net := s.TotalProfit.Sub(s.TotalLoss)
	rows := []string{
		r.row("Trades", fmt.Sprintf("%d (%d won)", s.TotalTrades, s.SuccessfulTrades)),
		r.row("Win rate", fmt.Sprintf("%.1f%%", s.WinRate)),
		r.row("Profit", s.TotalProfit.StringFixed(6)+" ETH"),
		r.row("Loss", s.TotalLoss.StringFixed(6)+" ETH"),
		r.styles.Label.Render(fmt.Sprintf("%-14s", "Net")) + " " + r.signed(net) + " ETH",
	}
	return r.box("PnL", rows)
}

// Metrics renders execution statistics.
func (r *Renderer) Metrics(m metrics.Snapshot) string {
	gas := "-"
	if m.AvgGasUsed != nil && m.AvgGasUsed.Sign() > 0 {
		gas = m.AvgGasUsed.String()
	}
	rows := []string{
		r.row("Executions", fmt.Sprintf("%d (%d ok, %d failed)", m.TotalExecutions, m.Successful, m.Failed)),
		r.row("Success", fmt.Sprintf("%.1f%%", m.SuccessRate)),
		r.row("Avg time", m.AvgExecutionTime.String()),
		r.row("Avg gas", gas),
	}
	return r.box("Execution", rows)
}

// Diagnosis renders a connectivity and liquidity check.
func (r *Renderer) Diagnosis(d sniper.Diagnosis) string {
	rows := []string{r.row("Block", fmt.Sprintf("%d", d.BlockNumber))}
	if d.ChainID != nil {
		rows = append(rows, r.row("Chain ID", d.ChainID.String()))
	}
	if d.Signer != "" {
		rows = append(rows, r.row("Wallet", logger.ShortenAddress(d.Signer)))
		rows = append(rows, r.row("Balance", weiToETH(d.Balance)+" ETH"))
	} else {
		rows = append(rows, r.styles.Warning.Render("read-only: no private key configured"))
	}
	switch {
	case d.Liquidity.Exists:
		rows = append(rows, r.row("Liquidity", r.styles.Positive.Render(d.Liquidity.DexID)))
		rows = append(rows, r.row("Pair", logger.ShortenAddress(d.Liquidity.Pair.Hex())))
		rows = append(rows, r.row("Probe time", d.Liquidity.DetectionTime.String()))
	default:
		rows = append(rows, r.row("Liquidity", r.styles.Warning.Render("none")))
	}
	for _, e := range d.Errors {
		rows = append(rows, r.styles.Negative.Render(e))
	}
	return r.box("Diagnostics", rows)
}

// Lines renders journal entries, oldest first.
func (r *Renderer) Lines(entries []logger.Entry) string {
	var b strings.Builder
	for _, e := range entries {
		line := fmt.Sprintf("%s [%s] %s", e.Timestamp.Format("15:04:05"), e.Level, e.Message)
		switch e.Level {
		case logger.LevelSuccess:
			line = r.styles.Positive.Render(line)
		case logger.LevelWarning:
			line = r.styles.Warning.Render(line)
		case logger.LevelError:
			line = r.styles.Negative.Render(line)
		}
		b.WriteString(line)
		b.WriteByte('\n')
	}
	return b.String()
}

func weiToETH(wei *big.Int) string {
	if wei == nil {
		return "0"
	}
	return decimal.NewFromBigInt(wei, -18).String()
}
