package tui

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/pders01/bazaar/internal/product"
)

// Controller calls block on the network, so each runs inside a tea.Cmd and
// reports the resulting snapshot back to the update loop.

func (a *App) initialize() tea.Cmd {
	return func() tea.Msg {
		a.ctrl.Initialize(a.ctx)
		return stateMsg{state: a.ctrl.State()}
	}
}

func (a *App) refresh() tea.Cmd {
	return func() tea.Msg {
		a.ctrl.Refresh(a.ctx)
		return stateMsg{state: a.ctrl.State()}
	}
}

func (a *App) loadMore() tea.Cmd {
	return func() tea.Msg {
		a.ctrl.LoadMore(a.ctx)
		return pageLoadedMsg{state: a.ctrl.State()}
	}
}

// search hands the text to the controller, which debounces it. The snapshot
// returned carries the echoed query, or the restored feed for blank text.
func (a *App) search(text string) tea.Cmd {
	return func() tea.Msg {
		a.ctrl.Search(text)
		return stateMsg{state: a.ctrl.State()}
	}
}

func (a *App) submitSearch(text string) tea.Cmd {
	return func() tea.Msg {
		if err := a.ctrl.SubmitSearch(a.ctx, text); err != nil {
			return errorMsg{err: err}
		}
		return stateMsg{state: a.ctrl.State()}
	}
}

func (a *App) removeItem(p product.Product) tea.Cmd {
	return func() tea.Msg {
		err := a.ctrl.RemoveItem(a.ctx, p.ID)
		return itemRemovedMsg{product: p, state: a.ctrl.State(), err: err}
	}
}

func (a *App) openImage(url string) tea.Cmd {
	return func() tea.Msg {
		if err := a.launcher.Open(url); err != nil {
			return errorMsg{err: wrapErr("opening image", err)}
		}
		return nil
	}
}

func (a *App) renderDetail(p product.Product) tea.Cmd {
	return func() tea.Msg {
		r, err := a.getRenderer()
		if err != nil {
			return detailRenderedMsg{id: p.ID, content: "Error initializing renderer: " + err.Error()}
		}
		rendered, err := r.Render(a.detailMarkdown(p))
		if err != nil {
			return detailRenderedMsg{id: p.ID, content: fmt.Sprintf("Failed to render listing: %s\n\nPress Escape to go back.", err)}
		}
		return detailRenderedMsg{id: p.ID, content: rendered}
	}
}

func (a *App) detailMarkdown(p product.Product) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", p.Title)
	fmt.Fprintf(&b, "**%s**", formatPrice(p.Price, a.config.UI.Currency))
	if p.Location != "" {
		fmt.Fprintf(&b, " · %s", p.Location)
	}
	if posted := relativeTime(p.CreatedAt, a.now(), a.loc); posted != "" {
		fmt.Fprintf(&b, " · posted %s", posted)
	}
	b.WriteString("\n\n")
	if p.Highlighted {
		b.WriteString("⭐ *Highlighted listing*\n\n")
	}
	if p.UserID != "" {
		fmt.Fprintf(&b, "Seller: `%s`\n\n", p.UserID)
	}

	b.WriteString("---\n\n")
	if strings.TrimSpace(p.Description) != "" {
		b.WriteString(p.Description)
	} else {
		b.WriteString("*No description.*")
	}
	b.WriteString("\n\n")

	if len(p.Images) > 0 {
		b.WriteString("**Images:**\n")
		for _, url := range p.Images {
			fmt.Fprintf(&b, "- %s\n", url)
		}
	}
	return b.String()
}
