package catalog

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/microcosm-cc/bluemonday"
	"github.com/mmcdole/gofeed"
	"github.com/samber/lo"

	"github.com/pders01/bazaar/internal/product"
)

var (
	strictPolicy = bluemonday.StrictPolicy().AddSpaceWhenStrippingTag(true)

	// "฿1,200", "THB 950.50", "$15" at the start of a title
	leadingPrice = regexp.MustCompile(`^\s*(?:฿|THB|\$)\s*([0-9][0-9,]*(?:\.[0-9]+)?)`)
	// "1,200 ฿", "950 baht", "450 บาท"
	trailingCurrency = regexp.MustCompile(`(?i)^\s*([0-9][0-9,]*(?:\.[0-9]+)?)\s*(?:฿|thb|baht|บาท)`)
	priceNumber      = regexp.MustCompile(`[0-9][0-9,]*(?:\.[0-9]+)?`)
)

// itemToProduct maps one feed item to a listing. now stands in for a
// missing publish date.
func itemToProduct(item *gofeed.Item, now time.Time) *product.Product {
	title := plainText(item.Title)
	description := plainText(lo.Ternary(item.Description != "", item.Description, item.Content))

	p := &product.Product{
		Title:       title,
		Description: description,
		Price:       itemPrice(item, title),
		CreatedAt:   itemTime(item, now),
		Highlighted: isFeatured(item.Categories),
		Images:      extractImageURLs(item),
		SourceKey:   sourceKey(item),
	}
	if item.Author != nil {
		p.UserID = item.Author.Name
	}
	if loc := customValue(item, "location"); loc != "" {
		p.Location = plainText(loc)
	}
	return p
}

func sourceKey(item *gofeed.Item) string {
	if item.GUID != "" {
		return "guid:" + item.GUID
	}
	if item.Link != "" {
		return "link:" + item.Link
	}
	return ""
}

func itemTime(item *gofeed.Item, now time.Time) time.Time {
	if item.PublishedParsed != nil {
		return item.PublishedParsed.UTC()
	}
	if item.UpdatedParsed != nil {
		return item.UpdatedParsed.UTC()
	}
	return now.UTC()
}

func isFeatured(categories []string) bool {
	return lo.SomeBy(categories, func(c string) bool {
		return strings.Contains(strings.ToLower(c), "featured")
	})
}

// customValue reads an unnamespaced element or one from any extension
// namespace, for example <price> or <g:price>.
func customValue(item *gofeed.Item, name string) string {
	if v, ok := item.Custom[name]; ok && strings.TrimSpace(v) != "" {
		return v
	}
	for _, byName := range item.Extensions {
		for _, ext := range byName[name] {
			if strings.TrimSpace(ext.Value) != "" {
				return ext.Value
			}
		}
	}
	return ""
}

func itemPrice(item *gofeed.Item, title string) float64 {
	if raw := customValue(item, "price"); raw != "" {
		if price, ok := parsePrice(priceNumber.FindString(raw)); ok {
			return price
		}
	}
	for _, re := range []*regexp.Regexp{leadingPrice, trailingCurrency} {
		if m := re.FindStringSubmatch(title); m != nil {
			if price, ok := parsePrice(m[1]); ok {
				return price
			}
		}
	}
	return 0
}

func parsePrice(s string) (float64, bool) {
	s = strings.ReplaceAll(s, ",", "")
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v < 0 {
		return 0, false
	}
	return v, true
}

// plainText strips markup and collapses whitespace.
func plainText(s string) string {
	if !strings.Contains(s, "<") && !strings.Contains(s, "&") {
		return strings.Join(strings.Fields(s), " ")
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(strictPolicy.Sanitize(s)))
	if err != nil {
		return strings.Join(strings.Fields(s), " ")
	}
	return strings.Join(strings.Fields(doc.Text()), " ")
}

func extractImageURLs(item *gofeed.Item) []string {
	var urls []string

	for _, enclosure := range item.Enclosures {
		if enclosure.URL == "" {
			continue
		}
		if enclosure.Type == "" || strings.HasPrefix(enclosure.Type, "image/") {
			urls = append(urls, enclosure.URL)
		}
	}

	if item.Image != nil && item.Image.URL != "" {
		urls = append(urls, item.Image.URL)
	}

	for _, html := range []string{item.Content, item.Description} {
		urls = append(urls, findImagesInHTML(html)...)
	}

	return lo.Uniq(urls)
}

func findImagesInHTML(html string) []string {
	if !strings.Contains(html, "<img") {
		return nil
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil
	}
	var urls []string
	doc.Find("img[src]").Each(func(_ int, s *goquery.Selection) {
		if src, ok := s.Attr("src"); ok && strings.TrimSpace(src) != "" {
			urls = append(urls, strings.TrimSpace(src))
		}
	})
	return urls
}
