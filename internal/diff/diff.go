// ABOUTME: Line diffs for refactoring previews: unified hunks with context and change stats
// ABOUTME: Trims the common prefix and suffix, then aligns the middle by longest common subsequence

package diff

import (
	"fmt"
	"strings"
)

// ContextLines is the number of unchanged lines kept around each hunk.
const ContextLines = 3

// maxAlignCells bounds the LCS table; larger middles are shown as one replacement.
const maxAlignCells = 4_000_000

type opKind byte

const (
	opEqual  opKind = ' '
	opDelete opKind = '-'
	opInsert opKind = '+'
)

type op struct {
	kind opKind
	text string
	// 0-based line numbers in the old and new files at this op.
	oldLine, newLine int
}

// Unified generates a unified diff with hunk headers and ContextLines of
// context. Identical contents produce an empty string.
func Unified(path, oldContent, newContent string) string {
	if oldContent == newContent {
		return ""
	}
	ops := lineOps(splitLines(oldContent), splitLines(newContent))

	var b strings.Builder
	fmt.Fprintf(&b, "--- a/%s\n", path)
	fmt.Fprintf(&b, "+++ b/%s\n", path)
	for _, h := range hunks(ops) {
		writeHunk(&b, ops[h[0]:h[1]])
	}
	return b.String()
}

// Stat counts inserted and deleted lines.
func Stat(oldContent, newContent string) (added, removed int) {
	if oldContent == newContent {
		return 0, 0
	}
	for _, o := range lineOps(splitLines(oldContent), splitLines(newContent)) {
		switch o.kind {
		case opInsert:
			added++
		case opDelete:
			removed++
		}
	}
	return added, removed
}

// splitLines splits after each newline; a missing final newline is marked
// the way diff(1) does.
func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	lines := strings.SplitAfter(s, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	} else {
		lines[len(lines)-1] += "\n\\ No newline at end of file\n"
	}
	return lines
}

func lineOps(a, b []string) []op {
	prefix := 0
	for prefix < len(a) && prefix < len(b) && a[prefix] == b[prefix] {
		prefix++
	}
	suffix := 0
	for suffix < len(a)-prefix && suffix < len(b)-prefix && a[len(a)-1-suffix] == b[len(b)-1-suffix] {
		suffix++
	}

	ops := make([]op, 0, len(a)+len(b))
	for i := range prefix {
		ops = append(ops, op{kind: opEqual, text: a[i], oldLine: i, newLine: i})
	}
	ops = append(ops, align(a[prefix:len(a)-suffix], b[prefix:len(b)-suffix], prefix, prefix)...)
	for k := suffix; k > 0; k-- {
		i, j := len(a)-k, len(b)-k
		ops = append(ops, op{kind: opEqual, text: a[i], oldLine: i, newLine: j})
	}
	return ops
}

// align diffs the differing middle of two files.
func align(a, b []string, oldBase, newBase int) []op {
	n, m := len(a), len(b)
	if n*m > maxAlignCells {
		ops := make([]op, 0, n+m)
		for i := range n {
			ops = append(ops, op{kind: opDelete, text: a[i], oldLine: oldBase + i, newLine: newBase})
		}
		for j := range m {
			ops = append(ops, op{kind: opInsert, text: b[j], oldLine: oldBase + n, newLine: newBase + j})
		}
		return ops
	}

	// lcs[i][j] is the LCS length of a[i:] and b[j:].
	lcs := make([][]int, n+1)
	for i := range lcs {
		lcs[i] = make([]int, m+1)
	}
	for i := n - 1; i >= 0; i-- {
		for j := m - 1; j >= 0; j-- {
			if a[i] == b[j] {
				lcs[i][j] = lcs[i+1][j+1] + 1
			} else {
				lcs[i][j] = max(lcs[i+1][j], lcs[i][j+1])
			}
		}
	}

	ops := make([]op, 0, n+m)
	i, j := 0, 0
	for i < n || j < m {
		switch {
		case i < n && j < m && a[i] == b[j]:
			ops = append(ops, op{kind: opEqual, text: a[i], oldLine: oldBase + i, newLine: newBase + j})
			i++
			j++
		case j < m && (i == n || lcs[i][j+1] > lcs[i+1][j]):
			ops = append(ops, op{kind: opInsert, text: b[j], oldLine: oldBase + i, newLine: newBase + j})
			j++
		default:
			ops = append(ops, op{kind: opDelete, text: a[i], oldLine: oldBase + i, newLine: newBase + j})
			i++
		}
	}
	return ops
}

// hunks returns [start, end) op ranges, each a change run padded with
// context; runs whose context would touch are merged.
func hunks(ops []op) [][2]int {
	var out [][2]int
	for i := 0; i < len(ops); {
		if ops[i].kind == opEqual {
			i++
			continue
		}
		start := max(0, i-ContextLines)
		end := i
		for end < len(ops) {
			if ops[end].kind != opEqual {
				end++
				continue
			}
			run := end
			for run < len(ops) && ops[run].kind == opEqual {
				run++
			}
			if run == len(ops) || run-end > 2*ContextLines {
				end = min(end+ContextLines, len(ops))
				break
			}
			end = run
		}
		out = append(out, [2]int{start, end})
		i = end
	}
	return out
}

func writeHunk(b *strings.Builder, ops []op) {
	var oldCount, newCount int
	for _, o := range ops {
		if o.kind != opInsert {
			oldCount++
		}
		if o.kind != opDelete {
			newCount++
		}
	}
	oldStart, newStart := ops[0].oldLine+1, ops[0].newLine+1
	if oldCount == 0 {
		oldStart--
	}
	if newCount == 0 {
		newStart--
	}
	fmt.Fprintf(b, "@@ -%s +%s @@\n", hunkRange(oldStart, oldCount), hunkRange(newStart, newCount))
	for _, o := range ops {
		b.WriteByte(byte(o.kind))
		b.WriteString(o.text)
	}
}

func hunkRange(start, count int) string {
	if count == 1 {
		return fmt.Sprintf("%d", start)
	}
	return fmt.Sprintf("%d,%d", start, count)
}
