package tui

import (
	"strings"
	"unicode"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"
)

type styledRune struct {
	s       string
	width   int
	isSpace bool
}

type segment struct {
	text  string
	style lipgloss.Style
}

func plain(text string) segment {
	return segment{text: text, style: textStyle}
}

func bold(text string) segment {
	return segment{text: text, style: emphasisStyle}
}

// paragraph flattens styled segments into runes ready for wrapping.
func paragraph(segments ...segment) []styledRune {
	var out []styledRune
	for _, seg := range segments {
		for _, r := range seg.text {
			out = append(out, styledRune{
				s:       seg.style.Render(string(r)),
				width:   runewidth.RuneWidth(r),
				isSpace: r == ' ',
			})
		}
	}
	return out
}

// buildRecallRunes renders the recall field as letter slots. Typed runes are
// shown upper-cased, empty slots as underscores, and the cursor underlines
// the next free slot.
func buildRecallRunes(input []rune, slots int, showCursor bool) []styledRune {
	n := slots
	if len(input) >= n {
		n = len(input) + 1
	}
	out := make([]styledRune, 0, n*2)
	for i := 0; i < n; i++ {
		if i > 0 {
			out = append(out, styledRune{s: " ", width: 1})
		}
		var item styledRune
		switch {
		case i < len(input):
			r := unicode.ToUpper(input[i])
			if unicode.IsSpace(r) {
				item = styledRune{s: pendingStyle.Render("·"), width: 1}
			} else {
				item = styledRune{s: inputStyle.Render(string(r)), width: runewidth.RuneWidth(r)}
			}
		case i == len(input) && showCursor:
			item = styledRune{s: cursorStyle.Render("_"), width: 1}
		default:
			item = styledRune{s: pendingStyle.Render("_"), width: 1}
		}
		out = append(out, item)
	}
	return out
}

func renderStyledRunes(runes []styledRune) string {
	var b strings.Builder
	for _, item := range runes {
		b.WriteString(item.s)
	}
	return b.String()
}

func runesWidth(runes []styledRune) int {
	total := 0
	for _, item := range runes {
		total += item.width
	}
	return total
}

// wrapParagraphs wraps each paragraph to width and separates them by a blank line.
func wrapParagraphs(paragraphs [][]styledRune, width int) string {
	parts := make([]string, len(paragraphs))
	for i, p := range paragraphs {
		parts[i] = wrapStyledRunes(p, width)
	}
	return strings.Join(parts, "\n\n")
}

// wrapStyledRunes fills lines greedily word by word. Words wider than the
// line are cut at the width boundary.
func wrapStyledRunes(runes []styledRune, width int) string {
	if width <= 0 {
		return renderStyledRunes(runes)
	}
	var lines []string
	var line []styledRune
	flush := func() {
		lines = append(lines, renderStyledRunes(line))
		line = nil
	}

	var sep *styledRune
	for start := 0; start <= len(runes); {
		end := start
		for end < len(runes) && !runes[end].isSpace {
			end++
		}
		word := runes[start:end]
		wordWidth := runesWidth(word)

		switch {
		case len(line) == 0:
		case sep != nil && runesWidth(line)+sep.width+wordWidth <= width:
			line = append(line, *sep)
		default:
			flush()
		}
		for wordWidth > width-runesWidth(line) && len(word) > 0 {
			cut := 0
			for used := runesWidth(line); cut < len(word) && used+word[cut].width <= width; cut++ {
				used += word[cut].width
			}
			if cut == 0 && len(line) == 0 {
				cut = 1
			}
			line = append(line, word[:cut]...)
			word = word[cut:]
			wordWidth = runesWidth(word)
			flush()
		}
		line = append(line, word...)

		if end == len(runes) {
			break
		}
		sep = &runes[end]
		start = end + 1
	}
	if len(line) > 0 || len(lines) == 0 {
		flush()
	}
	return strings.Join(lines, "\n")
}
