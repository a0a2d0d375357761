package notify

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/olekukonko/tablewriter"

	"github.com/alejandrodnm/pmbacktest/internal/domain"
	"github.com/alejandrodnm/pmbacktest/internal/ports"
)

const lastTradesShown = 10

var _ ports.Reporter = (*Console)(nil)

// Console implementa ports.Reporter imprimiendo tablas en texto.
type Console struct {
	out io.Writer
}

// NewConsole crea un reporter que escribe a stdout.
func NewConsole() *Console {
	return &Console{out: os.Stdout}
}

// NewConsoleWriter crea un reporter sobre un writer arbitrario (tests).
func NewConsoleWriter(w io.Writer) *Console {
	return &Console{out: w}
}

// Report imprime el resumen, las métricas y los últimos trades de un run.
func (c *Console) Report(_ context.Context, run domain.RunRecord) error {
	fmt.Fprintf(c.out, "\n=== BACKTEST %s | %s → %s ===\n",
		run.Strategy,
		run.Start.UTC().Format("2006-01-02 15:04"),
		run.End.UTC().Format("2006-01-02 15:04"),
	)
	if len(run.Markets) > 0 {
		fmt.Fprintf(c.out, "markets: %s\n", strings.Join(run.Markets, ", "))
	}

	c.printSummary(run)
	c.printMetrics(run.Metrics)
	c.printTrades(run.Trades)
	return nil
}

func (c *Console) printSummary(run domain.RunRecord) {
	table := tablewriter.NewWriter(c.out)
	table.Header("Initial", "Final", "Return", "Trades", "Won", "Lost", "Fees")
	table.Append(
		fmt.Sprintf("$%.2f", run.InitialCapital),
		fmt.Sprintf("$%.2f", run.FinalCapital),
		pct(run.TotalReturn),
		fmt.Sprintf("%d", run.TotalTrades),
		fmt.Sprintf("%d", run.WinningTrades),
		fmt.Sprintf("%d", run.LosingTrades),
		fmt.Sprintf("$%.2f", run.FeesPaid),
	)
	table.Render()
}

func (c *Console) printMetrics(m domain.PerformanceMetrics) {
	table := tablewriter.NewWriter(c.out)
	table.Header("Metric", "Value")
	rows := [][2]string{
		{"Total return", pct(m.TotalReturn)},
		{"Sharpe", fmt.Sprintf("%.2f", m.SharpeRatio)},
		{"Sortino", fmt.Sprintf("%.2f", m.SortinoRatio)},
		{"Max drawdown", pct(m.MaxDrawdown)},
		{"Calmar", fmt.Sprintf("%.2f", m.CalmarRatio)},
		{"Win rate", pct(m.WinRate)},
		{"Profit factor", fmt.Sprintf("%.2f", m.ProfitFactor)},
		{"Avg trade", fmt.Sprintf("$%.2f", m.AvgTrade)},
		{"Avg win", fmt.Sprintf("$%.2f", m.AvgWin)},
		{"Avg loss", fmt.Sprintf("$%.2f", m.AvgLoss)},
		{"Largest winner", fmt.Sprintf("$%.2f", m.LargestWinner)},
		{"Largest loser", fmt.Sprintf("$%.2f", m.LargestLoser)},
	}
	for _, r := range rows {
		table.Append(r[0], r[1])
	}
	table.Render()
}

// printTrades muestra solo los últimos trades cerrados.
func (c *Console) printTrades(trades []domain.ClosedTrade) {
	if len(trades) == 0 {
		fmt.Fprintln(c.out, "no closed trades")
		return
	}
	shown := trades
	if len(shown) > lastTradesShown {
		shown = shown[len(shown)-lastTradesShown:]
		fmt.Fprintf(c.out, "last %d of %d trades\n", lastTradesShown, len(trades))
	}

	table := tablewriter.NewWriter(c.out)
	table.Header("Exit", "Market", "Outcome", "Qty", "Entry", "Exit px", "PnL")
	for _, t := range shown {
		table.Append(
			t.ExitTime.UTC().Format("01-02 15:04"),
			compactName(t.MarketID, 18),
			string(t.Outcome),
			fmt.Sprintf("%.2f", t.Quantity),
			fmt.Sprintf("%.4f", t.Entry),
			fmt.Sprintf("%.4f", t.Price),
			fmt.Sprintf("%+.2f", t.PnL),
		)
	}
	table.Render()
}

// Runs imprime el listado de runs guardados.
func (c *Console) Runs(runs []domain.RunRecord) {
	if len(runs) == 0 {
		fmt.Fprintln(c.out, "no runs stored")
		return
	}
	table := tablewriter.NewWriter(c.out)
	table.Header("ID", "Created", "Strategy", "Markets", "Return", "Sharpe", "MaxDD", "Trades")
	for _, r := range runs {
		table.Append(
			compactName(r.ID, 8),
			r.CreatedAt.UTC().Format("2006-01-02 15:04"),
			r.Strategy,
			fmt.Sprintf("%d", len(r.Markets)),
			pct(r.TotalReturn),
			fmt.Sprintf("%.2f", r.Metrics.SharpeRatio),
			pct(r.Metrics.MaxDrawdown),
			fmt.Sprintf("%d", r.TotalTrades),
		)
	}
	table.Render()
}

// OrderBook imprime un ladder de asks (arriba) y bids (abajo).
func (c *Console) OrderBook(ob domain.OrderBook) {
	kind := "live"
	if ob.IsSynthetic {
		kind = "synthetic"
	}
	fmt.Fprintf(c.out, "\n%s book %s @ %s | mid %.4f spread %.4f\n",
		kind, compactName(ob.TokenID, 14), ob.Timestamp.UTC().Format("2006-01-02 15:04"),
		ob.Midpoint(), ob.Spread())

	table := tablewriter.NewWriter(c.out)
	table.Header("Side", "Price", "Size", "USDC")
	for i := len(ob.Asks) - 1; i >= 0; i-- {
		a := ob.Asks[i]
		table.Append("ask", fmt.Sprintf("%.4f", a.Price), fmt.Sprintf("%.2f", a.Size), fmt.Sprintf("%.2f", a.Price*a.Size))
	}
	for _, b := range ob.Bids {
		table.Append("bid", fmt.Sprintf("%.4f", b.Price), fmt.Sprintf("%.2f", b.Size), fmt.Sprintf("%.2f", b.Price*b.Size))
	}
	table.Render()
}

func pct(v float64) string {
	return fmt.Sprintf("%+.2f%%", v*100)
}

// compactName trunca s a max runas añadiendo "…".
func compactName(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-1]) + "…"
}
