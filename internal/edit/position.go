// ABOUTME: Conversions between byte offsets, LSP positions (UTF-16 columns) and rope code-point offsets
// ABOUTME: Lines end at '\n'; a trailing '\r' counts as an ordinary character of its line

package edit

import (
	"strings"
	"unicode/utf16"
	"unicode/utf8"
)

// FullRange spans all of content, from the start to just past the last character.
func FullRange(content string) Range {
	line := strings.Count(content, "\n")
	last := content[strings.LastIndexByte(content, '\n')+1:]
	return Range{End: Position{Line: line, Character: utf16Len(last)}}
}

// PositionAt converts a byte offset into a Position. Offsets past the end
// clamp to the end; offsets inside a multi-byte character round down.
func PositionAt(content string, offset int) Position {
	offset = min(max(offset, 0), len(content))
	for offset > 0 && offset < len(content) && !utf8.RuneStart(content[offset]) {
		offset--
	}
	before := content[:offset]
	line := strings.Count(before, "\n")
	start := strings.LastIndexByte(before, '\n') + 1
	return Position{Line: line, Character: utf16Len(content[start:offset])}
}

// OffsetAt converts a Position into a byte offset. A line past the end
// yields len(content); a character past the line's end clamps to it.
func OffsetAt(content string, pos Position) int {
	if pos.Line < 0 {
		return 0
	}
	start := 0
	for range pos.Line {
		i := strings.IndexByte(content[start:], '\n')
		if i < 0 {
			return len(content)
		}
		start += i + 1
	}
	end := len(content)
	if i := strings.IndexByte(content[start:], '\n'); i >= 0 {
		end = start + i
	}

	units := 0
	for i, r := range content[start:end] {
		if units >= pos.Character {
			return start + i
		}
		units += utf16.RuneLen(r)
	}
	return end
}

// RuneOffset converts a Position into the code-point offset rope expects.
func RuneOffset(content string, pos Position) int {
	return utf8.RuneCountInString(content[:OffsetAt(content, pos)])
}

// ByteOffset converts a code-point offset into a byte offset, clamped to the content.
func ByteOffset(content string, runes int) int {
	if runes <= 0 {
		return 0
	}
	n := 0
	for i := range content {
		if n == runes {
			return i
		}
		n++
	}
	return len(content)
}

func utf16Len(s string) int {
	n := 0
	for _, r := range s {
		n += utf16.RuneLen(r)
	}
	return n
}
