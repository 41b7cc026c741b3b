package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/pders01/bazaar/internal/feed"
	"github.com/pders01/bazaar/internal/product"
)

var (
	listSearch      string
	listPage        int
	listHighlighted bool
	listMine        string
)

var (
	listTitleStyle = lipgloss.NewStyle().Bold(true)
	listPriceStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#4ADE80"))
	listMutedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#94A3B8"))
	listStarStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFE66D"))
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "Print one page of listings",
	Long: `Prints a page of the newest listings, or of the listings whose title
contains --search, one per line. Pages are numbered from 1. --mine prints
every listing owned by the given user id instead.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if listPage < 1 {
			return fmt.Errorf("--page must be at least 1, got %d", listPage)
		}
		if listMine != "" && (listSearch != "" || listHighlighted) {
			return fmt.Errorf("--mine cannot be combined with --search or --highlighted")
		}

		b, err := openBackend(cfg)
		if err != nil {
			return err
		}
		defer b.Close()

		if listMine != "" {
			owned, err := ownedListings(cmd, b, listMine)
			if err != nil {
				return err
			}
			printListings(cmd.OutOrStdout(), owned, cfg.UI.Currency)
			return nil
		}

		ctrl := newListController(b)
		defer ctrl.Close()

		items, err := listingPage(cmd, ctrl)
		if err != nil {
			return err
		}
		printListings(cmd.OutOrStdout(), items, cfg.UI.Currency)
		return nil
	},
}

func newListController(b *backend) *feed.Controller {
	return feed.NewController(b.svc, feed.Options{
		PageSize:       cfg.Feed.PageSize,
		DebounceWindow: cfg.Feed.Debounce,
		FetchTimeout:   cfg.Feed.FetchTimeout,
	})
}

// listingPage drives the controller the way the browser does: the first
// page, then LoadMore until the requested page is in.
func listingPage(cmd *cobra.Command, ctrl *feed.Controller) ([]product.Product, error) {
	ctx := cmd.Context()
	ctrl.Initialize(ctx)

	if listHighlighted {
		st := ctrl.State()
		if st.HighlightedErr != nil {
			return nil, st.HighlightedErr
		}
		return st.HighlightedItems, nil
	}

	if strings.TrimSpace(listSearch) != "" {
		if err := ctrl.SubmitSearch(ctx, listSearch); err != nil {
			return nil, err
		}
	}

	for page := 1; page < listPage; page++ {
		if !ctrl.State().HasMore {
			break
		}
		ctrl.LoadMore(ctx)
	}

	st := ctrl.State()
	if st.FeedErr != nil {
		return nil, st.FeedErr
	}
	size := ctrl.PageSize()
	from := (listPage - 1) * size
	if from >= len(st.DisplayedItems) {
		return nil, nil
	}
	return st.DisplayedItems[from:min(from+size, len(st.DisplayedItems))], nil
}

func ownedListings(cmd *cobra.Command, b *backend, userID string) ([]product.Product, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, fmt.Errorf("--mine needs a user id")
	}
	ctx := cmd.Context()
	if cfg.Feed.FetchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Feed.FetchTimeout)
		defer cancel()
	}
	return b.owners.ProductsByUser(ctx, userID)
}

func printListings(w io.Writer, items []product.Product, currency string) {
	if len(items) == 0 {
		fmt.Fprintln(w, listMutedStyle.Render("No listings"))
		return
	}
	for _, p := range items {
		star := " "
		if p.Highlighted {
			star = listStarStyle.Render("★")
		}
		line := fmt.Sprintf("%s %s  %s", star, listTitleStyle.Render(p.Title), listPriceStyle.Render(currency+humanize.CommafWithDigits(p.Price, 2)))
		if p.Location != "" {
			line += "  " + listMutedStyle.Render(p.Location)
		}
		fmt.Fprintf(w, "%s  %s\n", listMutedStyle.Render(fmt.Sprintf("#%d", p.ID)), line)
	}
}

func init() {
	rootCmd.AddCommand(listCmd)

	listCmd.Flags().StringVarP(&listSearch, "search", "s", "", "only listings whose title contains this text")
	listCmd.Flags().IntVarP(&listPage, "page", "p", 1, "page number")
	listCmd.Flags().BoolVar(&listHighlighted, "highlighted", false, "print the highlighted listings instead")
	listCmd.Flags().StringVar(&listMine, "mine", "", "print the listings owned by this user id")
}

