package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/tracewell/discover-go/internal/service/keytransactions"
)

const defaultStatsPeriod = 14 * 24 * time.Hour

// projectID accepts a JSON number or a numeric string.
type projectID int64

func (p *projectID) UnmarshalJSON(raw []byte) error {
	raw = bytes.TrimSpace(raw)
	if len(raw) > 0 && raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return err
		}
		raw = []byte(strings.TrimSpace(s))
	}
	v, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil {
		return fmt.Errorf("project must be an integer id")
	}
	*p = projectID(v)
	return nil
}

var statsPeriodPattern = regexp.MustCompile(`^(\d+)([smhdw])$`)

// parseStatsPeriod understands "30m", "24h", "14d" and "2w".
func parseStatsPeriod(raw string) (time.Duration, error) {
	m := statsPeriodPattern.FindStringSubmatch(strings.TrimSpace(raw))
	if m == nil {
		return 0, fmt.Errorf("invalid statsPeriod %q", raw)
	}
	n, err := strconv.Atoi(m[1])
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid statsPeriod %q", raw)
	}
	unit := map[string]time.Duration{
		"s": time.Second,
		"m": time.Minute,
		"h": time.Hour,
		"d": 24 * time.Hour,
		"w": 7 * 24 * time.Hour,
	}[m[2]]
	return time.Duration(n) * unit, nil
}

// timeframe resolves statsPeriod, or start and end, into an absolute window
// ending no later than now. Relative windows are aligned to the minute.
func timeframe(statsPeriod, start, end string, now time.Time) (time.Time, time.Time, error) {
	now = now.UTC()
	statsPeriod = strings.TrimSpace(statsPeriod)
	start = strings.TrimSpace(start)
	end = strings.TrimSpace(end)

	if statsPeriod == "" && start == "" && end == "" {
		e := now.Truncate(time.Minute)
		return e.Add(-defaultStatsPeriod), e, nil
	}
	if statsPeriod != "" {
		d, err := parseStatsPeriod(statsPeriod)
		if err != nil {
			return time.Time{}, time.Time{}, &keytransactions.ValidationError{Detail: "Invalid statsPeriod"}
		}
		e := now.Truncate(time.Minute)
		return e.Add(-d), e, nil
	}
	if start == "" || end == "" {
		return time.Time{}, time.Time{}, &keytransactions.ValidationError{Detail: "start and end are both required"}
	}
	s, err := time.Parse(time.RFC3339, start)
	if err != nil {
		return time.Time{}, time.Time{}, &keytransactions.ValidationError{Detail: "Invalid start"}
	}
	e, err := time.Parse(time.RFC3339, end)
	if err != nil {
		return time.Time{}, time.Time{}, &keytransactions.ValidationError{Detail: "Invalid end"}
	}
	if !e.After(s) {
		return time.Time{}, time.Time{}, &keytransactions.ValidationError{Detail: "start must be before end"}
	}
	return s.UTC(), e.UTC(), nil
}

func parseProjectIDs(values []string) ([]int64, error) {
	ids := make([]int64, 0, len(values))
	for _, raw := range values {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, keytransactions.ErrInvalidProjects
		}
		ids = append(ids, id)
	}
	return selectProjects(ids)
}

// selectProjects returns nil for "all projects", which is also what -1 means.
func selectProjects(ids []int64) ([]int64, error) {
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if id == -1 {
			return nil, nil
		}
		if id <= 0 {
			return nil, keytransactions.ErrInvalidProjects
		}
		out = append(out, id)
	}
	return out, nil
}

func parseIntQuery(r *http.Request, key string, def int) int {
	v := strings.TrimSpace(r.URL.Query().Get(key))
	if v == "" {
		return def
	}
	parsed, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return parsed
}

func clampInt(v int, min int, max int) int {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

// cursor is the "value:offset:is_prev" paging token; value carries the page size.
type cursor struct {
	Value  int
	Offset int
	IsPrev bool
}

func (c cursor) String() string {
	prev := 0
	if c.IsPrev {
		prev = 1
	}
	return fmt.Sprintf("%d:%d:%d", c.Value, c.Offset, prev)
}

var errInvalidCursor = errors.New("invalid cursor")

func parseCursor(raw string) (cursor, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return cursor{}, nil
	}
	parts := strings.Split(raw, ":")
	if len(parts) != 3 {
		return cursor{}, errInvalidCursor
	}
	value, err := strconv.Atoi(parts[0])
	if err != nil {
		return cursor{}, errInvalidCursor
	}
	offset, err := strconv.Atoi(parts[1])
	if err != nil {
		return cursor{}, errInvalidCursor
	}
	isPrev, err := strconv.Atoi(parts[2])
	if err != nil || (isPrev != 0 && isPrev != 1) {
		return cursor{}, errInvalidCursor
	}
	if offset < 0 {
		offset = 0
	}
	return cursor{Value: value, Offset: offset, IsPrev: isPrev == 1}, nil
}

// linkHeader renders previous and next cursors for an offset page.
func linkHeader(r *http.Request, limit, offset int, hasMore bool) string {
	prev := cursor{Value: limit, Offset: offset - limit, IsPrev: true}
	next := cursor{Value: limit, Offset: offset + limit}
	return strings.Join([]string{
		linkEntry(r, "previous", prev, offset > 0),
		linkEntry(r, "next", next, hasMore),
	}, ", ")
}

func linkEntry(r *http.Request, rel string, c cursor, results bool) string {
	return fmt.Sprintf(`<%s>; rel="%s"; results="%t"; cursor="%s"`, pageURL(r, c), rel, results, c)
}

func pageURL(r *http.Request, c cursor) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := strings.TrimSpace(r.Header.Get("X-Forwarded-Proto")); proto == "http" || proto == "https" {
		scheme = proto
	}
	q := url.Values{}
	for k, v := range r.URL.Query() {
		if k == "cursor" {
			continue
		}
		q[k] = v
	}
	q.Set("cursor", c.String())
	u := url.URL{Scheme: scheme, Host: r.Host, Path: r.URL.Path, RawQuery: q.Encode()}
	return u.String()
}
