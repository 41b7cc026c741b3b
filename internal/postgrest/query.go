package postgrest

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

const productSelect = "*,product_images(image_url)"

var errBadContentRange = errors.New("malformed Content-Range")

func productQuery() url.Values {
	q := url.Values{}
	q.Set("select", productSelect)
	q.Set("order", "created_at.desc,id.desc")
	return q
}

// rangeHeader renders the inclusive item range for offset/limit.
func rangeHeader(offset, limit int) string {
	return fmt.Sprintf("%d-%d", offset, offset+limit-1)
}

// parseContentRange reads the total from "0-2/10", "*/10" or "0-2/*".
// An unknown total is reported as -1.
func parseContentRange(v string) (int, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return -1, nil
	}
	v = strings.TrimPrefix(v, "items ")
	slash := strings.LastIndexByte(v, '/')
	if slash < 0 {
		return 0, fmt.Errorf("%w: %q", errBadContentRange, v)
	}
	total := v[slash+1:]
	if total == "*" {
		return -1, nil
	}
	n, err := strconv.Atoi(total)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: %q", errBadContentRange, v)
	}
	return n, nil
}

var likeEscaper = strings.NewReplacer(
	`\`, `\\`,
	`%`, `\%`,
	`_`, `\_`,
	`*`, `\*`,
)

// ilikeContains builds the value of an ilike filter matching substring
// anywhere. LIKE metacharacters are escaped, and the value is quoted when it
// holds characters PostgREST reserves in filter syntax.
func ilikeContains(substring string) string {
	pattern := "*" + likeEscaper.Replace(substring) + "*"
	if strings.ContainsAny(pattern, `,.:()" `) {
		pattern = `"` + strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(pattern) + `"`
	}
	return "ilike." + pattern
}
