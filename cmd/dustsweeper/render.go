package main

import (
	"fmt"
	"io"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/abbas-claw/dust-sweeper/internal/chains"
	"github.com/abbas-claw/dust-sweeper/internal/dust"
	"github.com/abbas-claw/dust-sweeper/internal/history"
	"github.com/abbas-claw/dust-sweeper/internal/sweep"
	"github.com/abbas-claw/dust-sweeper/internal/token"
)

const emptyWallet = "No tokens found. Your wallet might be empty on these chains."

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7D56F4"))
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888"))
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#04B575")).Bold(true)
	errStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF4672")).Bold(true)
	activeStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#F2C94C"))
	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
)

// printer serializes terminal output; discovery reports progress from
// several goroutines.
type printer struct {
	mu sync.Mutex
	w  io.Writer
}

func newPrinter(w io.Writer) *printer { return &printer{w: w} }

func (p *printer) line(format string, args ...any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.w, format+"\n", args...)
}

func (p *printer) scanning(_ uint64, chainName string) {
	p.line("%s", mutedStyle.Render(fmt.Sprintf("Scanning %s...", chainName)))
}

func (p *printer) chains(list []chains.Chain) {
	t := newTable("Chain ID", "Name", "Native", "RPC")
	for _, c := range list {
		t.Row(fmt.Sprint(c.ID), c.Name, c.Symbol, c.RPCURL)
	}
	p.line("%s", t.Render())
}

func (p *printer) result(res dust.Result, thresholdUSD float64) {
	if len(res.Dust) == 0 && len(res.Keepers) == 0 {
		p.line("%s", emptyWallet)
		return
	}
	p.line("%s", titleStyle.Render(fmt.Sprintf("Dust (< $%.2f or unpriced): %d", thresholdUSD, len(res.Dust))))
	if len(res.Dust) > 0 {
		p.line("%s", tokenTable(res.Dust))
	}
	p.line("Total dust value: %s", token.KnownUSD(dust.TotalUSD(res.Dust)))
	p.line("")
	p.line("%s", titleStyle.Render(fmt.Sprintf("Keeping: %d", len(res.Keepers))))
	if len(res.Keepers) > 0 {
		p.line("%s", tokenTable(res.Keepers))
	}
}

func (p *printer) status(st sweep.Status) {
	style := activeStyle
	switch st.State {
	case sweep.StateDone:
		style = okStyle
	case sweep.StateError:
		style = errStyle
	case sweep.StatePending:
		style = mutedStyle
	}
	msg := st.Message
	if st.TxHash != "" {
		msg += " " + mutedStyle.Render(st.TxHash)
	}
	p.line("%-8s %-10s %s %s", st.Symbol, st.ChainName, style.Render(fmt.Sprintf("[%s]", st.State)), msg)
}

func (p *printer) summary(snap []sweep.Status) {
	var done, failed int
	for _, st := range snap {
		switch st.State {
		case sweep.StateDone:
			done++
		case sweep.StateError:
			failed++
		}
	}
	p.line("%s", titleStyle.Render(fmt.Sprintf("Swept %d of %d tokens, %d failed", done, len(snap), failed)))
}

func (p *printer) history(entries []history.Entry) {
	if len(entries) == 0 {
		p.line("No sweeps recorded yet.")
		return
	}
	t := newTable("When", "Run", "Chain", "Symbol", "Amount", "State", "Message", "Tx")
	for _, e := range entries {
		t.Row(e.CreatedAt.Format("2006-01-02 15:04:05"), shortID(e.RunID), fmt.Sprint(e.ChainID),
			e.Symbol, e.Amount, e.State, e.Message, e.TxHash)
	}
	p.line("%s", t.Render())
}

func tokenTable(tokens []token.Token) string {
	t := newTable("Symbol", "Name", "Chain", "Balance", "USD", "Key")
	for _, tk := range tokens {
		t.Row(tk.Symbol, tk.Name, tk.ChainName, tk.BalanceFormatted, tk.USD.String(), tk.Key().String())
	}
	return t.Render()
}

func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(mutedStyle).
		Headers(headers...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})
}

func shortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}
