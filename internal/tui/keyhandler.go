package tui

import (
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/pders01/bazaar/internal/config"
	"github.com/pders01/bazaar/internal/product"
)

type KeyHandler struct {
	app         *App
	config      *config.Config
	modifierKey string
	bindings    config.KeyBindings
}

func NewKeyHandler(app *App, cfg *config.Config) *KeyHandler {
	modifierKey := cfg.Keys.Modifier + "+"
	return &KeyHandler{app: app, config: cfg, modifierKey: modifierKey, bindings: cfg.Keys.Bindings}
}

func (kh *KeyHandler) HandleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()
	if key == "ctrl+c" {
		return kh.app, tea.Quit
	}
	kh.app.clearTransient()

	if kh.isInTextInputMode() {
		return kh.handleTextInputMode(msg)
	}

	if model, cmd, handled := kh.handleCustomKeys(key); handled {
		return model, cmd
	}

	return kh.delegateToCharm(msg)
}

func (kh *KeyHandler) isInTextInputMode() bool {
	return kh.app.view == ViewBrowse && kh.app.searchInput.Focused()
}

func (kh *KeyHandler) handleTextInputMode(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case kh.bindings.Back:
		kh.app.searchInput.Blur()
		if kh.app.searchInput.Value() != "" {
			kh.app.searchInput.Reset()
			return kh.app, kh.app.search("")
		}
		return kh.app, nil
	case "enter":
		kh.app.searchInput.Blur()
		return kh.app, kh.app.submitSearch(kh.app.searchInput.Value())
	case "tab", "down":
		kh.app.searchInput.Blur()
		return kh.app, nil
	default:
		return kh.delegateToTextInput(msg)
	}
}

// delegateToTextInput updates the search box and forwards the text to the
// controller whenever the query changes.
func (kh *KeyHandler) delegateToTextInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	prev := sanitizeSearchInput(kh.app.searchInput.Value())
	newSearchInput, cmd := kh.app.searchInput.Update(msg)
	kh.app.searchInput = newSearchInput

	next := sanitizeSearchInput(kh.app.searchInput.Value())
	if next != prev {
		return kh.app, tea.Batch(cmd, kh.app.search(next))
	}
	return kh.app, cmd
}

// handleCustomKeys handles only our custom action keys
func (kh *KeyHandler) handleCustomKeys(key string) (tea.Model, tea.Cmd, bool) {
	switch key {
	case kh.bindings.Quit:
		return kh.app, tea.Quit, true
	case kh.bindings.Back:
		model, cmd := kh.navigateBack()
		return model, cmd, true
	case kh.bindings.Help:
		if kh.app.view != ViewHelp {
			kh.app.previousView = kh.app.view
			kh.app.view = ViewHelp
		}
		return kh.app, nil, true
	case kh.modifierKey + kh.bindings.Refresh:
		kh.app.setStatus(MsgRefreshing, StatusInfo)
		return kh.app, kh.app.refresh(), true
	}

	switch kh.app.view {
	case ViewBrowse:
		return kh.handleBrowseCustomKeys(key)
	case ViewDetail:
		return kh.handleDetailCustomKeys(key)
	case ViewDeleteConfirm:
		return kh.handleDeleteConfirmKeys(key)
	default:
		return kh.app, nil, false
	}
}

func (kh *KeyHandler) handleBrowseCustomKeys(key string) (tea.Model, tea.Cmd, bool) {
	switch key {
	case kh.modifierKey + kh.bindings.Search, "/":
		kh.app.searchInput.Focus()
		return kh.app, nil, true
	case kh.modifierKey + kh.bindings.Delete:
		if p, ok := kh.app.selectedProduct(); ok {
			kh.confirmDelete(p)
		}
		return kh.app, nil, true
	}
	return kh.app, nil, false
}

func (kh *KeyHandler) handleDetailCustomKeys(key string) (tea.Model, tea.Cmd, bool) {
	switch key {
	case kh.bindings.Open, kh.modifierKey + kh.bindings.Open:
		if kh.app.current == nil {
			return kh.app, nil, true
		}
		url := kh.app.current.Thumbnail()
		if url == "" {
			kh.app.setStatus(MsgNoImage, StatusWarn)
			return kh.app, nil, true
		}
		return kh.app, kh.app.openImage(url), true
	case kh.modifierKey + kh.bindings.Delete:
		if kh.app.current != nil {
			kh.confirmDelete(*kh.app.current)
		}
		return kh.app, nil, true
	}
	return kh.app, nil, false
}

func (kh *KeyHandler) handleDeleteConfirmKeys(key string) (tea.Model, tea.Cmd, bool) {
	switch key {
	case "enter", "y":
		if kh.app.toDelete != nil {
			kh.app.setStatus(MsgDeleting, StatusInfo)
			return kh.app, kh.app.removeItem(*kh.app.toDelete), true
		}
		return kh.app, nil, true
	case "n":
		model, cmd := kh.navigateBack()
		return model, cmd, true
	}
	return kh.app, nil, true
}

func (kh *KeyHandler) confirmDelete(p product.Product) {
	kh.app.toDelete = &p
	kh.app.previousView = kh.app.view
	kh.app.view = ViewDeleteConfirm
}

// delegateToCharm lets Charm handle all keys we don't intercept
func (kh *KeyHandler) delegateToCharm(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch kh.app.view {
	case ViewBrowse:
		if msg.String() == "enter" {
			if p, ok := kh.app.selectedProduct(); ok {
				return kh.openDetail(p)
			}
			return kh.app, nil
		}
		kh.app.productList, cmd = kh.app.productList.Update(msg)
		return kh.app, tea.Batch(cmd, kh.app.maybeLoadMore())

	case ViewDetail:
		kh.app.viewport, cmd = kh.app.viewport.Update(msg)
		return kh.app, cmd

	default:
		return kh.app, nil
	}
}

func (kh *KeyHandler) openDetail(p product.Product) (tea.Model, tea.Cmd) {
	kh.app.current = &p
	kh.app.loadingDetail = true
	kh.app.view = ViewDetail
	return kh.app, kh.app.renderDetail(p)
}

// navigateBack implements smart back navigation
func (kh *KeyHandler) navigateBack() (tea.Model, tea.Cmd) {
	switch kh.app.view {
	case ViewDeleteConfirm, ViewHelp:
		kh.app.view = kh.app.previousView
		kh.app.toDelete = nil
		return kh.app, nil

	case ViewDetail:
		kh.app.view = ViewBrowse
		kh.app.current = nil
		return kh.app, nil

	case ViewBrowse:
		if kh.app.searchInput.Value() != "" || kh.app.state.Searching() {
			kh.app.searchInput.Reset()
			return kh.app, kh.app.search("")
		}
		return kh.app, nil

	default:
		return kh.app, nil
	}
}

// sanitizeSearchInput sanitizes and limits search input length
func sanitizeSearchInput(input string) string {
	input = strings.TrimSpace(input)

	if r := []rune(input); len(r) > 256 {
		input = string(r[:256])
	}

	input = strings.NewReplacer("\n", " ", "\r", " ", "\t", " ").Replace(input)
	return strings.Join(strings.Fields(input), " ")
}

// GetHelpForCurrentView returns only our custom help text (Charm handles the rest)
func (kh *KeyHandler) GetHelpForCurrentView() []string {
	m := kh.modifierKey
	switch kh.app.view {
	case ViewBrowse:
		if kh.app.searchInput.Focused() {
			return []string{"enter: search", "tab: results", kh.bindings.Back + ": clear"}
		}
		help := []string{"enter: view", m + kh.bindings.Search + ": search", m + kh.bindings.Refresh + ": refresh"}
		if len(kh.app.state.DisplayedItems) > 0 {
			help = append(help, m+kh.bindings.Delete+": delete")
		}
		return append(help, kh.bindings.Help+": keys")

	case ViewDetail:
		return []string{kh.bindings.Open + ": open image", m + kh.bindings.Delete + ": delete", kh.bindings.Back + ": back"}

	case ViewDeleteConfirm:
		return []string{"enter: confirm", kh.bindings.Back + ": cancel"}

	case ViewHelp:
		return []string{kh.bindings.Back + ": back"}

	default:
		return []string{}
	}
}

// AllBindings lists every key for the help screen.
func (kh *KeyHandler) AllBindings() []string {
	m := kh.modifierKey
	return []string{
		m + kh.bindings.Search + ", /   focus search",
		"enter       view listing / submit search",
		m + kh.bindings.Refresh + "      refresh feed",
		m + kh.bindings.Delete + "      delete listing",
		kh.bindings.Open + "           open image (detail)",
		kh.bindings.Back + "         back / clear search",
		kh.bindings.Quit + "           quit",
	}
}
