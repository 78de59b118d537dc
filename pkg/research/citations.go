package research

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
)

var (
	citationRe      = regexp.MustCompile(`\[(\d+)\]`)
	sourcesHeaderRe = regexp.MustCompile(`(?im)^#{1,6}\s*sources\s*$`)
	sourceLineRe    = regexp.MustCompile(`^(\s*(?:[-*]\s*)?)\[(\d+)\]`)
)

// NormalizeCitations renumbers inline [n] markers so they are sequential in
// order of first appearance and rewrites the Sources section to match.
// Numbers without a matching source line are left untouched and are never
// handed out to a real source. A report without a Sources section is returned
// unchanged.
func NormalizeCitations(report string) string {
	loc := sourcesHeaderRe.FindStringIndex(report)
	if loc == nil {
		return report
	}
	body, sources := report[:loc[0]], report[loc[0]:]

	lines := strings.Split(sources, "\n")
	known := map[int]int{} // source number -> line index
	for i, line := range lines {
		m := sourceLineRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		n, _ := strconv.Atoi(m[2])
		if _, dup := known[n]; !dup {
			known[n] = i
		}
	}
	if len(known) == 0 {
		return report
	}

	cited := citationRe.FindAllStringSubmatch(body, -1)
	reserved := map[int]bool{}
	for _, m := range cited {
		n, _ := strconv.Atoi(m[1])
		if _, ok := known[n]; !ok {
			reserved[n] = true
		}
	}

	mapping := map[int]int{}
	next := 1
	assign := func(n int) {
		for reserved[next] {
			next++
		}
		mapping[n] = next
		next++
	}
	for _, m := range cited {
		n, _ := strconv.Atoi(m[1])
		if _, ok := known[n]; !ok {
			continue
		}
		if _, seen := mapping[n]; !seen {
			assign(n)
		}
	}

	// Uncited sources keep their relative order after the cited ones.
	var uncited []int
	for n := range known {
		if _, ok := mapping[n]; !ok {
			uncited = append(uncited, n)
		}
	}
	sort.Ints(uncited)
	for _, n := range uncited {
		assign(n)
	}

	body = citationRe.ReplaceAllStringFunc(body, func(s string) string {
		n, _ := strconv.Atoi(s[1 : len(s)-1])
		if to, ok := mapping[n]; ok {
			return "[" + strconv.Itoa(to) + "]"
		}
		return s
	})

	// Rewrite and reorder the source lines by their new number.
	type entry struct {
		to   int
		line string
	}
	var entries []entry
	var firstIdx = -1
	keep := make([]bool, len(lines))
	for i := range lines {
		keep[i] = true
	}
	for n, idx := range known {
		m := sourceLineRe.FindStringSubmatch(lines[idx])
		rest := lines[idx][len(m[0]):]
		entries = append(entries, entry{to: mapping[n], line: m[1] + "[" + strconv.Itoa(mapping[n]) + "]" + rest})
		keep[idx] = false
		if firstIdx == -1 || idx < firstIdx {
			firstIdx = idx
		}
	}
	// Duplicate source lines for an already-seen number are dropped.
	for i, line := range lines {
		if !keep[i] {
			continue
		}
		if m := sourceLineRe.FindStringSubmatch(line); m != nil {
			n, _ := strconv.Atoi(m[2])
			if _, ok := known[n]; ok {
				keep[i] = false
			}
		}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].to < entries[j].to })

	out := make([]string, 0, len(lines))
	for i, line := range lines {
		if i == firstIdx {
			for _, e := range entries {
				out = append(out, e.line)
			}
		}
		if keep[i] {
			out = append(out, line)
		}
	}
	return body + strings.Join(out, "\n")
}
