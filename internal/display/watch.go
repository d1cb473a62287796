package display

import (
	"context"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/nais/gcp-cost/internal/billing"
	"github.com/nais/gcp-cost/internal/monitor"
)

const watchHelp = "[::b]r[::-] refresh  [::b]q[::-] quit"

// Source is what Watch reads from, usually a *monitor.Monitor.
type Source interface {
	Summary() monitor.Update
	Refresh(ctx context.Context) (billing.CostSummary, error)
	Subscribe(fn func(monitor.Update)) func()
}

// Watch is a terminal view with a one line status bar above the summary details.
type Watch struct {
	app     *tview.Application
	status  *tview.TextView
	details *tview.Table
	footer  *tview.TextView
	source  Source
}

func NewWatch(source Source, title string) *Watch {
	w := &Watch{
		app:     tview.NewApplication(),
		status:  tview.NewTextView().SetDynamicColors(true),
		details: tview.NewTable().SetBorders(false),
		footer:  tview.NewTextView().SetDynamicColors(true).SetTextAlign(tview.AlignCenter).SetText(watchHelp),
		source:  source,
	}
	w.details.SetBorder(true).SetTitle(" " + tview.Escape(title) + " ")

	layout := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(w.status, 1, 0, false).
		AddItem(w.details, 0, 1, true).
		AddItem(w.footer, 1, 0, false)
	w.app.SetRoot(layout, true)

	return w
}

// Run blocks until q is pressed or ctx is done.
func (w *Watch) Run(ctx context.Context) error {
	w.app.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		switch event.Rune() {
		case 'q':
			w.app.Stop()
			return nil
		case 'r':
			w.status.SetText("GCP [yellow]refreshing...[-]")
			go func() {
				// the result arrives through the subscription
				_, _ = w.source.Refresh(ctx)
			}()
			return nil
		}
		return event
	})

	unsubscribe := w.source.Subscribe(func(u monitor.Update) {
		w.app.QueueUpdateDraw(func() {
			w.render(u)
		})
	})
	defer unsubscribe()

	w.render(w.source.Summary())

	stopped := make(chan struct{})
	defer close(stopped)
	go func() {
		select {
		case <-ctx.Done():
			w.app.Stop()
		case <-stopped:
		}
	}()

	return w.app.Run()
}

func (w *Watch) render(u monitor.Update) {
	w.status.SetText(statusLine(u))

	w.details.Clear()
	if !u.HasSummary {
		return
	}
	for row, cells := range Rows(u.Summary) {
		w.details.SetCell(row, 0, tview.NewTableCell(cells[0]).SetTextColor(tcell.ColorGray))
		w.details.SetCell(row, 1, tview.NewTableCell(cells[1]).SetAlign(tview.AlignRight).SetExpansion(1))
	}
}

func statusLine(u monitor.Update) string {
	switch {
	case u.HasSummary && u.Err != nil:
		return "GCP " + StatusText(u.Summary) + " [red](" + tview.Escape(ErrorText(u.Err)) + ")[-]"
	case u.HasSummary:
		return "GCP [green]" + StatusText(u.Summary) + "[-]"
	case u.Err != nil:
		return "GCP [red]" + tview.Escape(ErrorText(u.Err)) + "[-]"
	default:
		return "GCP [yellow]loading...[-]"
	}
}
