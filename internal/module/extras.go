// ============================================================================
// scancore Module Runtime - Supplemental bbot Features
// ============================================================================
//
// Package: internal/module
// File: extras.go
// Purpose: [EXPANSION] features present in original_source/bbot/modules/
//          base.py but dropped by the spec.md distillation: memory_usage,
//          is_spider_danger, log_table. Kept as optional helpers on the
//          inherited Module surface, not invoked by the runtime, the same
//          way require_api_key/ping are.
//
// ============================================================================

package module

import (
	"net/url"
	"reflect"
	"strconv"
	"strings"
)

// MemoryUsage returns an approximate in-memory size of the module, in
// bytes, via a depth-bounded reflective walk - the Go analogue of
// base.py's memory_usage property (get_size(self, max_depth=3, seen=...)).
// It is approximate: it sizes Go value headers, not OS-level allocator
// overhead, and stops descending after maxDepth levels to bound cost on
// cyclic or deeply nested structures.
func (m *Module) MemoryUsage() int64 {
	const maxDepth = 3
	seen := make(map[uintptr]bool)
	return reflectSize(reflect.ValueOf(m), maxDepth, seen)
}

func reflectSize(v reflect.Value, depth int, seen map[uintptr]bool) int64 {
	if !v.IsValid() {
		return 0
	}
	size := int64(v.Type().Size())
	if depth <= 0 {
		return size
	}

	switch v.Kind() {
	case reflect.Ptr, reflect.Interface:
		if v.IsNil() {
			return size
		}
		if v.Kind() == reflect.Ptr {
			addr := v.Pointer()
			if seen[addr] {
				return size
			}
			seen[addr] = true
		}
		return size + reflectSize(v.Elem(), depth-1, seen)
	case reflect.Struct:
		var total int64
		for i := 0; i < v.NumField(); i++ {
			total += reflectSize(v.Field(i), depth-1, seen)
		}
		return total
	case reflect.Slice, reflect.Array:
		var total int64
		n := v.Len()
		for i := 0; i < n; i++ {
			total += reflectSize(v.Index(i), depth-1, seen)
		}
		return total
	case reflect.Map:
		var total = size
		for _, key := range v.MapKeys() {
			total += reflectSize(key, depth-1, seen)
			total += reflectSize(v.MapIndex(key), depth-1, seen)
		}
		return total
	case reflect.String:
		return size + int64(v.Len())
	default:
		return size
	}
}

// intOption reads a module option as an int, defaulting when absent or of
// the wrong type. Options arrive as map[string]any from YAML, so both int
// and float64 encodings are accepted.
func (m *Module) intOption(key string, def int) int {
	if m.cfg.Options == nil {
		return def
	}
	switch v := m.cfg.Options[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	case string:
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

// urlDepth counts the non-empty path segments of rawURL, mirroring
// base.py's helpers.url_depth.
func urlDepth(rawURL string) int {
	u, err := url.Parse(rawURL)
	if err != nil {
		return 0
	}
	depth := 0
	for _, seg := range strings.Split(u.Path, "/") {
		if seg != "" {
			depth++
		}
	}
	return depth
}

// IsSpiderDanger reports whether crawling url, reached sourceSpiderDistance
// hops from the seed, would exceed the module's configured web_spider_depth
// or web_spider_distance budget - the Go analogue of base.py's
// is_spider_danger(source_event, url). The source event's own spider
// distance isn't part of types.Event (that's scan-orchestrator bookkeeping,
// out of scope per spec.md §1), so the caller passes it explicitly.
func (m *Module) IsSpiderDanger(sourceSpiderDistance int, rawURL string) bool {
	depth := urlDepth(rawURL)
	maxDepth := m.intOption("web_spider_depth", 1)
	maxDistance := m.intOption("web_spider_distance", 0)
	spiderDistance := sourceSpiderDistance + 1
	return depth > maxDepth || spiderDistance > maxDistance
}

// LogTable renders rows as tab-separated lines, logs them line by line
// through the module's own logger, and returns the rendered text - the Go
// analogue of base.py's log_table. Full column-width table formatting is
// out of scope (no such library is in the example pack; see DESIGN.md), so
// this stub joins cells with tabs rather than aligning columns.
func (m *Module) LogTable(rows [][]string) string {
	lines := make([]string, 0, len(rows))
	for _, row := range rows {
		lines = append(lines, strings.Join(row, "\t"))
	}
	table := strings.Join(lines, "\n")
	for _, line := range lines {
		m.log.Info(line)
	}
	return table
}
