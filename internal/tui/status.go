package tui

import (
	"fmt"
	"strings"
)

// Canonical short status messages used across the app.
const (
	MsgLoading      = "Loading listings…"
	MsgRefreshing   = "Refreshing…"
	MsgSearching    = "Searching…"
	MsgLoadingMore  = "Loading more…"
	MsgDeleting     = "Deleting…"
	MsgDeleted      = "Listing deleted"
	MsgNoProducts   = "No products yet"
	MsgNoResults    = "No search results"
	MsgLoadFailed   = "Failed to load listings (ctrl+r to retry)"
	MsgSearchFailed = "Search failed (enter to retry)"
	MsgNoImage      = "This listing has no image"
)

func MsgResultsCount(n int, more bool) string {
	suffix := ""
	if more {
		suffix = "+"
	}
	if n == 1 && !more {
		return "1 result"
	}
	return fmt.Sprintf("%d%s results", n, suffix)
}

func MsgDeleteFailed(title string, err error) string {
	return fmt.Sprintf("Could not delete '%s': %v", strings.TrimSpace(title), err)
}
