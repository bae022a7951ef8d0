// ABOUTME: Parses command-line positions: a code-point offset or a 1-based LINE:COL pair
// ABOUTME: Columns count characters, and both forms resolve to the code-point offset rope expects

package main

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/mauromedda/pyrefactor-go/internal/edit"
)

type position struct {
	offset    int // code points; used when line is zero
	line, col int // 1-based
}

func parsePosition(s string) (position, error) {
	if lineStr, colStr, ok := strings.Cut(s, ":"); ok {
		line, err := strconv.Atoi(lineStr)
		if err != nil || line < 1 {
			return position{}, fmt.Errorf("invalid line in position %q", s)
		}
		col, err := strconv.Atoi(colStr)
		if err != nil || col < 1 {
			return position{}, fmt.Errorf("invalid column in position %q", s)
		}
		return position{line: line, col: col}, nil
	}
	offset, err := strconv.Atoi(s)
	if err != nil || offset < 0 {
		return position{}, fmt.Errorf("invalid position %q (want OFFSET or LINE:COL)", s)
	}
	return position{offset: offset}, nil
}

// resolve returns the code-point offset of p in content. Positions past the
// end of a line clamp to the line's end; lines past the end clamp to the end.
func (p position) resolve(content string) int {
	if p.line == 0 {
		return p.offset
	}
	start := edit.OffsetAt(content, edit.Position{Line: p.line - 1})
	line := content[start:]
	if i := strings.IndexByte(line, '\n'); i >= 0 {
		line = line[:i]
	}
	return utf8.RuneCountInString(content[:start]) + min(p.col-1, utf8.RuneCountInString(line))
}

func (p position) String() string {
	if p.line == 0 {
		return strconv.Itoa(p.offset)
	}
	return fmt.Sprintf("%d:%d", p.line, p.col)
}
