package server

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/loykin/braindump/internal/post"
)

func sanitizeBase(bp string) string {
	bp = strings.TrimSpace(bp)
	if bp == "" || bp == "/" {
		return ""
	}
	if !strings.HasPrefix(bp, "/") {
		bp = "/" + bp
	}
	bp = strings.TrimRight(bp, "/")
	return bp
}

// parseQuery reads page, limit, category and ascending. Only the literal
// "true" selects ascending order.
func parseQuery(c *gin.Context) (post.Query, error) {
	q := post.Query{
		Category:  c.Query("category"),
		Ascending: c.Query("ascending") == "true",
	}
	var err error
	if q.Page, err = intParam(c, "page", 0, post.MaxPage); err != nil {
		return q, err
	}
	if q.Limit, err = intParam(c, "limit", post.DefaultLimit, math.MaxInt); err != nil {
		return q, err
	}
	return q.WithDefaults(), nil
}

// intParam parses a non-negative integer query parameter no larger than max.
func intParam(c *gin.Context, name string, def, max int) (int, error) {
	s := strings.TrimSpace(c.Query(name))
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid %s: %q", name, s)
	}
	if n > max {
		return 0, fmt.Errorf("%s out of range: %q", name, s)
	}
	return n, nil
}

func writeJSON(c *gin.Context, code int, v any) {
	c.Header("Content-Type", "application/json")
	c.Status(code)
	_ = json.NewEncoder(c.Writer).Encode(v)
}
