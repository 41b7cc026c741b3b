// Package tui is the terminal browse screen for marketplace listings.
package tui

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/samber/lo"

	"github.com/pders01/bazaar/internal/config"
	"github.com/pders01/bazaar/internal/debuglog"
	"github.com/pders01/bazaar/internal/feed"
	"github.com/pders01/bazaar/internal/media"
	"github.com/pders01/bazaar/internal/product"
)

// loadMoreThreshold is how close to the last row the cursor must be before
// the next page is requested.
const loadMoreThreshold = 1

type App struct {
	config     *config.Config
	ctrl       *feed.Controller
	launcher   *media.Launcher
	keyHandler *KeyHandler
	ctx        context.Context

	productList list.Model
	searchInput textinput.Model
	viewport    viewport.Model
	spinner     spinner.Model

	view         View
	previousView View
	state        feed.State
	current      *product.Product
	toDelete     *product.Product
	pendingMore  bool

	status     string
	statusKind StatusKind
	err        error

	width           int
	height          int
	glamourRenderer *glamour.TermRenderer
	rendererWidth   int
	loadingDetail   bool

	loc *time.Location
	now func() time.Time

	sendMu sync.Mutex
	send   func(tea.Msg)
}

func NewApp(ctx context.Context, svc product.Service, cfg *config.Config) *App {
	ApplyColors(cfg.UI.Colors)

	productList := list.New([]list.Item{}, list.NewDefaultDelegate(), 0, 0)
	productList.Title = "› listings"
	productList.SetShowStatusBar(false)
	productList.SetFilteringEnabled(false)
	productList.SetShowHelp(false)
	productList.KeyMap.Quit.SetEnabled(false)

	si := textinput.New()
	si.Placeholder = "Search listings…"
	si.CharLimit = 256

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(AccentColor)

	loc, err := time.LoadLocation(cfg.UI.TimeZone)
	if err != nil {
		debuglog.Warnf("unknown ui.time_zone %q, using local time", cfg.UI.TimeZone)
		loc = time.Local
	}

	app := &App{
		config:      cfg,
		launcher:    media.NewLauncher(&cfg.Media),
		ctx:         ctx,
		productList: productList,
		searchInput: si,
		viewport:    viewport.New(0, 0),
		spinner:     sp,
		view:        ViewBrowse,
		loc:         loc,
		now:         time.Now,
	}
	app.ctrl = feed.NewController(svc, feed.Options{
		PageSize:       cfg.Feed.PageSize,
		DebounceWindow: cfg.Feed.Debounce,
		FetchTimeout:   cfg.Feed.FetchTimeout,
		OnChange:       app.publish,
	})
	app.state = app.ctrl.State()
	app.keyHandler = NewKeyHandler(app, cfg)

	return app
}

// Run shows the browse screen until the user quits.
func Run(ctx context.Context, svc product.Service, cfg *config.Config) error {
	app := NewApp(ctx, svc, cfg)
	defer app.Close()

	p := tea.NewProgram(app, tea.WithAltScreen(), tea.WithContext(ctx))
	app.Attach(p.Send)
	_, err := p.Run()
	return err
}

// Attach routes controller change notifications into the running program.
func (a *App) Attach(send func(tea.Msg)) {
	a.sendMu.Lock()
	defer a.sendMu.Unlock()
	a.send = send
}

func (a *App) Close() {
	a.ctrl.Close()
}

// publish is the controller's OnChange hook. It runs on controller
// goroutines, never on the update loop.
func (a *App) publish(st feed.State) {
	a.sendMu.Lock()
	send := a.send
	a.sendMu.Unlock()
	if send != nil {
		send(stateMsg{state: st})
	}
}

func (a *App) getRenderer() (*glamour.TermRenderer, error) {
	wordWrapWidth := min((a.width*9)/10, 100)
	wordWrapWidth = max(wordWrapWidth, 40)
	if a.width < 50 {
		wordWrapWidth = max(a.width-4, 20)
	}

	if a.glamourRenderer == nil || abs(a.rendererWidth-wordWrapWidth) > 10 {
		r, err := glamour.NewTermRenderer(
			glamour.WithAutoStyle(),
			glamour.WithWordWrap(wordWrapWidth),
		)
		if err != nil {
			return nil, err
		}
		a.glamourRenderer = r
		a.rendererWidth = wordWrapWidth
	}

	return a.glamourRenderer, nil
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

func (a *App) Init() tea.Cmd {
	a.setStatus(MsgLoading, StatusInfo)
	return tea.Batch(a.initialize(), a.spinner.Tick)
}

func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.productList.SetSize(msg.Width, max(msg.Height-a.chromeHeight(), 3))
		a.viewport.Width = msg.Width
		a.viewport.Height = max(msg.Height-3, 1)
		a.searchInput.Width = max(msg.Width-8, 10)
		return a, nil

	case tea.KeyMsg:
		return a.keyHandler.HandleKey(msg)

	case spinner.TickMsg:
		var cmd tea.Cmd
		a.spinner, cmd = a.spinner.Update(msg)
		return a, cmd

	case stateMsg:
		a.applyState(msg.state)
		return a, nil

	case pageLoadedMsg:
		a.pendingMore = false
		a.applyState(msg.state)
		return a, nil

	case detailRenderedMsg:
		if a.view == ViewDetail && a.current != nil && a.current.ID == msg.id {
			a.viewport.SetContent(msg.content)
			a.viewport.GotoTop()
			a.loadingDetail = false
		}
		return a, nil

	case itemRemovedMsg:
		if msg.err != nil {
			a.err = msg.err
			a.setStatus(MsgDeleteFailed(msg.product.Title, msg.err), StatusError)
			a.view = a.previousView
			a.toDelete = nil
			return a, nil
		}
		a.err = nil
		a.toDelete = nil
		a.current = nil
		a.view = ViewBrowse
		a.setStatus(MsgDeleted, StatusSuccess)
		a.applyState(msg.state)
		return a, nil

	case errorMsg:
		a.err = msg.err
		a.setStatus(msg.err.Error(), StatusError)
		return a, nil
	}

	return a, nil
}

// applyState renders a controller snapshot unless a newer one is already
// shown. Snapshots arrive from several goroutines.
func (a *App) applyState(st feed.State) {
	if st.Version < a.state.Version {
		return
	}
	a.state = st

	items := lo.Map(st.DisplayedItems, func(p product.Product, _ int) list.Item {
		return productItem{product: p, app: a}
	})
	a.productList.SetItems(items)

	switch {
	case st.IsRefreshing:
		a.setStatus(MsgRefreshing, StatusInfo)
	case st.IsSearching:
		a.setStatus(MsgSearching, StatusInfo)
	case st.IsLoadingMore:
		a.setStatus(MsgLoadingMore, StatusInfo)
	case a.statusKind == StatusInfo:
		a.setStatus("", StatusInfo)
	}
}

// maybeLoadMore requests the next page once the cursor is near the end.
func (a *App) maybeLoadMore() tea.Cmd {
	n := len(a.productList.Items())
	if a.pendingMore || n == 0 || !a.state.HasMore || a.state.IsLoadingMore || a.state.IsSearching {
		return nil
	}
	if a.productList.Index() < n-1-loadMoreThreshold {
		return nil
	}
	a.pendingMore = true
	return a.loadMore()
}

func (a *App) setStatus(text string, kind StatusKind) {
	a.status = text
	a.statusKind = kind
}

// clearTransient drops the error and any non-progress status.
func (a *App) clearTransient() {
	a.err = nil
	if a.statusKind != StatusInfo {
		a.setStatus("", StatusInfo)
	}
}

func (a *App) selectedProduct() (product.Product, bool) {
	item, ok := a.productList.SelectedItem().(productItem)
	if !ok {
		return product.Product{}, false
	}
	return item.product, true
}

func (a *App) busy() bool {
	return a.state.Version == 0 || a.state.IsRefreshing || a.state.IsSearching || a.state.IsLoadingMore
}

// emptyMessage tells an empty catalog, an empty search and a failed load apart.
func (a *App) emptyMessage() string {
	switch {
	case a.state.Version == 0:
		return MsgLoading
	case a.state.IsSearching:
		return MsgSearching
	case a.state.FeedErr != nil && a.state.Searching():
		return MsgSearchFailed
	case a.state.FeedErr != nil:
		return MsgLoadFailed
	case a.state.Searching():
		return MsgNoResults
	default:
		return MsgNoProducts
	}
}

// chromeHeight is the number of rows around the product list on the browse
// screen: header, framed search input, highlighted strip, status bar.
func (a *App) chromeHeight() int {
	return 2 + 3 + 1 + 2
}

func (a *App) View() string {
	var content string

	switch a.view {
	case ViewBrowse:
		content = a.browseView()
	case ViewDetail:
		if a.loadingDetail {
			content = renderCentered(a.width, a.height-3, renderMuted("Loading listing…"))
		} else {
			content = a.viewport.View()
		}
	case ViewDeleteConfirm:
		content = a.deleteConfirmView()
	case ViewHelp:
		content = renderCentered(a.width, a.height-3, a.helpView())
	}

	return lipgloss.JoinVertical(lipgloss.Top, content, a.separator(), a.statusBar())
}

func (a *App) browseView() string {
	subtitle := fmt.Sprintf("%d listings", len(a.state.DisplayedItems))
	if a.state.Searching() {
		subtitle = MsgResultsCount(len(a.state.DisplayedItems), a.state.HasMore)
	}
	header := renderHeader(CompactLogo+" "+a.config.UI.Currency+" marketplace", subtitle, a.width)

	input := renderInputFrame(a.searchInput.View(), a.searchInput.Focused(), a.searchInput.Width)

	rows := []string{header, input}
	if strip := a.highlightedStrip(); strip != "" {
		rows = append(rows, strip)
	}

	listHeight := max(a.height-a.chromeHeight(), 3)
	if len(a.state.DisplayedItems) == 0 {
		message := a.emptyMessage()
		if a.busy() {
			message = a.spinner.View() + " " + message
		}
		if a.state.Version == 0 || (!a.state.Searching() && a.state.FeedErr == nil && !a.busy()) {
			message = GetCompactBanner(message)
		}
		rows = append(rows, renderCentered(a.width, listHeight, message))
	} else {
		rows = append(rows, a.productList.View())
	}

	return ContentWrapper(a.width, a.height-2).Render(lipgloss.JoinVertical(lipgloss.Top, rows...))
}

// highlightedStrip lists promoted products on one line. It is hidden while
// a search is active.
func (a *App) highlightedStrip() string {
	if a.state.Searching() || len(a.state.HighlightedItems) == 0 {
		return ""
	}
	titles := lo.Map(a.state.HighlightedItems, func(p product.Product, _ int) string {
		return p.Title
	})
	line := "★ " + strings.Join(titles, " · ")
	return HighlightStyle.Render(truncateEnd(line, max(a.width-2, 10)))
}

func (a *App) deleteConfirmView() string {
	title := "Unknown listing"
	if a.toDelete != nil && a.toDelete.Title != "" {
		title = a.toDelete.Title
	}

	modalWidth := (a.width * 4) / 5
	if modalWidth < 20 {
		modalWidth = max(a.width-4, 15)
	}
	title = truncateEnd(title, modalWidth-4)

	center := lipgloss.NewStyle().Width(modalWidth).Align(lipgloss.Center)
	return renderCentered(a.width, a.height-3, lipgloss.JoinVertical(
		lipgloss.Center,
		ErrorMessageStyle.Render("⚠ Delete Listing"),
		"",
		center.Inherit(ModalTextStyle).Render("Delete this listing?"),
		"",
		center.Inherit(ModalHighlightStyle).Render(title),
		"",
		center.Foreground(MutedColor).Render("This cannot be undone."),
		"",
		"",
		renderHelp("Enter: confirm • Esc: cancel"),
	))
}

func (a *App) helpView() string {
	rows := []string{TitleStyle.Render("› keys"), ""}
	for _, line := range a.keyHandler.AllBindings() {
		rows = append(rows, ModalTextStyle.Render(line))
	}
	rows = append(rows, "", renderHelp("Esc: back"))
	return lipgloss.JoinVertical(lipgloss.Left, rows...)
}

func (a *App) separator() string {
	return SeparatorStyle.Render(strings.Repeat("─", max(a.width-1, 0)))
}

func (a *App) statusBar() string {
	var text string
	switch {
	case a.err != nil:
		text = StatusErrorStyle.Render(truncateEnd("✗ "+a.err.Error(), max(a.width-2, 10)))
	case a.status != "":
		style := StatusInfoStyle
		switch a.statusKind {
		case StatusSuccess:
			style = StatusSuccessStyle
		case StatusWarn:
			style = StatusWarnStyle
		case StatusError:
			style = StatusErrorStyle
		}
		text = style.Render(a.status)
		if a.busy() {
			text = a.spinner.View() + " " + text
		}
	default:
		text = strings.Join(a.keyHandler.GetHelpForCurrentView(), " • ")
	}
	return StatusBarStyle.Width(a.width).Render(text)
}

type productItem struct {
	product product.Product
	app     *App
}

func (i productItem) Title() string {
	if i.product.Highlighted {
		return HighlightStyle.Render("★ " + i.product.Title)
	}
	return i.product.Title
}

func (i productItem) Description() string {
	parts := []string{PriceStyle.Render(formatPrice(i.product.Price, i.app.config.UI.Currency))}
	if i.product.Location != "" {
		parts = append(parts, i.product.Location)
	}
	if posted := relativeTime(i.product.CreatedAt, i.app.now(), i.app.loc); posted != "" {
		parts = append(parts, TimeStyle.Render(posted))
	}
	if desc := singleLine(i.product.Description); desc != "" {
		parts = append(parts, renderMuted(truncateEnd(desc, 40)))
	}
	return strings.Join(parts, " • ")
}

func (i productItem) FilterValue() string { return i.product.Title }

type stateMsg struct {
	state feed.State
}

type pageLoadedMsg struct {
	state feed.State
}

type detailRenderedMsg struct {
	id      int64
	content string
}

type itemRemovedMsg struct {
	product product.Product
	state   feed.State
	err     error
}

type errorMsg struct {
	err error
}
