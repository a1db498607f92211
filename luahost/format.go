package luahost

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	lua "github.com/yuin/gopher-lua"
)

// Format renders a Lua value the way the REPL prints it: sequences as
// [a b c], other tables as {:key value} with sorted keys, strings quoted.
func Format(v lua.LValue) string {
	var sb strings.Builder
	formatValue(&sb, v, map[*lua.LTable]bool{}, 0)
	return sb.String()
}

// FormatAll renders several values separated by tabs.
func FormatAll(vs []lua.LValue) string {
	parts := make([]string, len(vs))
	for i, v := range vs {
		parts[i] = Format(v)
	}
	return strings.Join(parts, "\t")
}

const maxFormatDepth = 16

func formatValue(sb *strings.Builder, v lua.LValue, seen map[*lua.LTable]bool, depth int) {
	switch v := v.(type) {
	case *lua.LNilType:
		sb.WriteString("nil")
	case lua.LBool:
		if v {
			sb.WriteString("true")
		} else {
			sb.WriteString("false")
		}
	case lua.LNumber:
		sb.WriteString(FormatNumber(float64(v)))
	case lua.LString:
		sb.WriteString(strconv.Quote(string(v)))
	case *lua.LTable:
		if seen[v] || depth >= maxFormatDepth {
			fmt.Fprintf(sb, "@%p", v)
			return
		}
		seen[v] = true
		defer delete(seen, v)
		formatTable(sb, v, seen, depth)
	default:
		sb.WriteString(v.String())
	}
}

func formatTable(sb *strings.Builder, t *lua.LTable, seen map[*lua.LTable]bool, depth int) {
	n := t.Len()
	count := 0
	t.ForEach(func(_, _ lua.LValue) { count++ })

	if n > 0 && count == n {
		sb.WriteByte('[')
		for i := 1; i <= n; i++ {
			if i > 1 {
				sb.WriteByte(' ')
			}
			formatValue(sb, t.RawGetInt(i), seen, depth+1)
		}
		sb.WriteByte(']')
		return
	}

	keys := make([]lua.LValue, 0, count)
	t.ForEach(func(k, _ lua.LValue) { keys = append(keys, k) })
	SortKeys(keys)

	sb.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			sb.WriteByte(' ')
		}
		if s, ok := k.(lua.LString); ok && isKeywordName(string(s)) {
			sb.WriteString(":" + string(s))
		} else {
			formatValue(sb, k, seen, depth+1)
		}
		sb.WriteByte(' ')
		formatValue(sb, t.RawGet(k), seen, depth+1)
	}
	sb.WriteByte('}')
}

// FormatNumber prints integral values without a fractional part.
func FormatNumber(f float64) string {
	switch {
	case math.IsInf(f, 1):
		return "math.huge"
	case math.IsInf(f, -1):
		return "-math.huge"
	case math.IsNaN(f):
		return "nan"
	case f == math.Trunc(f) && math.Abs(f) < 1e15:
		return strconv.FormatInt(int64(f), 10)
	}
	return strconv.FormatFloat(f, 'g', 14, 64)
}

// SortKeys orders table keys deterministically: numbers ascending, then
// strings, then booleans, then everything else by its printed form.
func SortKeys(keys []lua.LValue) {
	rank := func(v lua.LValue) int {
		switch v.(type) {
		case lua.LNumber:
			return 0
		case lua.LString:
			return 1
		case lua.LBool:
			return 2
		}
		return 3
	}
	sort.SliceStable(keys, func(i, j int) bool {
		ri, rj := rank(keys[i]), rank(keys[j])
		if ri != rj {
			return ri < rj
		}
		switch a := keys[i].(type) {
		case lua.LNumber:
			return a < keys[j].(lua.LNumber)
		case lua.LString:
			return a < keys[j].(lua.LString)
		case lua.LBool:
			return !bool(a) && bool(keys[j].(lua.LBool))
		}
		return keys[i].String() < keys[j].String()
	})
}

func isKeywordName(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r <= ' ' || strings.ContainsRune(`()[]{}";'`+"`,", r) {
			return false
		}
	}
	return true
}
