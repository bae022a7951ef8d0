// ABOUTME: Bubble Tea model for choosing one refactoring from a fuzzy-filterable list
// ABOUTME: Typing filters, arrows move, tab toggles the diff preview, enter chooses, esc cancels

package pick

import (
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/sahilm/fuzzy"

	"github.com/mauromedda/pyrefactor-go/internal/keybindings"
)

const (
	defaultListHeight = 10
	minListHeight     = 3
)

// Item is one choice in the picker.
type Item struct {
	Label   string
	Detail  string
	Preview string // unified diff shown below the list
}

type match struct {
	index   int
	matched []int
}

// labels adapts items to fuzzy.Source.
type labels []Item

func (l labels) String(i int) string { return l[i].Label }
func (l labels) Len() int            { return len(l) }

// Model is a filterable, scrollable list with a preview pane.
// It has value semantics like every tea.Model here.
type Model struct {
	title     string
	items     []Item
	visible   []match
	selected  int
	scrollOff int
	maxHeight int
	filter    string
	width     int
	height    int

	showPreview bool
	renderer    *previewRenderer
	keys        *keybindings.Manager

	chosen   int
	quitting bool
}

// NewModel creates a picker over items; nothing is chosen yet.
func NewModel(title string, items []Item) Model {
	m := Model{
		title:       title,
		items:       items,
		maxHeight:   defaultListHeight,
		showPreview: true,
		renderer:    newPreviewRenderer(),
		keys:        keybindings.Default(),
		chosen:      -1,
	}
	m.applyFilter()
	return m
}

// Init returns nil; no commands needed at startup.
func (m Model) Init() tea.Cmd {
	return nil
}

// Update handles key and window-size messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch m.keys.ActionFor(msg) {
		case keybindings.ActionCancel:
			m.quitting = true
			return m, tea.Quit
		case keybindings.ActionChoose:
			if len(m.visible) > 0 {
				m.chosen = m.visible[m.selected].index
				m.quitting = true
				return m, tea.Quit
			}
		case keybindings.ActionUp:
			m.moveUp()
		case keybindings.ActionDown:
			m.moveDown()
		case keybindings.ActionTogglePreview:
			m.showPreview = !m.showPreview
		case keybindings.ActionClearFilter:
			m = m.SetFilter("")
		default:
			m = m.editFilter(msg)
		}
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m = m.SetMaxHeight(max(minListHeight, min(defaultListHeight, msg.Height/3)))
	}
	return m, nil
}

// View renders the title, the filter line, the visible items and the
// preview of the selected item.
func (m Model) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render(m.title))
	b.WriteByte('\n')
	b.WriteString(filterStyle.Render("> " + m.filter))
	b.WriteByte('\n')

	if len(m.visible) == 0 {
		b.WriteString(emptyStyle.Render("  no matching refactorings"))
		b.WriteByte('\n')
	}
	end := min(m.scrollOff+m.maxHeight, len(m.visible))
	for i := m.scrollOff; i < end; i++ {
		b.WriteString(m.formatItem(m.visible[i], i == m.selected))
		b.WriteByte('\n')
	}

	if m.showPreview && len(m.visible) > 0 {
		item := m.items[m.visible[m.selected].index]
		if item.Preview != "" {
			b.WriteByte('\n')
			b.WriteString(m.renderer.Render(item.Preview, m.width))
			b.WriteByte('\n')
		}
	}

	b.WriteString(dimStyle.Render(m.keys.Help()))
	return b.String()
}

func (m Model) formatItem(v match, selected bool) string {
	item := m.items[v.index]
	label := item.Label
	detail := ""
	if item.Detail != "" {
		detail = "  " + item.Detail
	}
	if m.width > 0 {
		avail := m.width - 2
		label = truncate(label, avail)
		detail = truncate(detail, avail-visibleWidth(label))
	}

	// Matched indexes past a truncation point no longer exist in label.
	var kept []int
	for _, i := range v.matched {
		if i < len(label) {
			kept = append(kept, i)
		}
	}
	line := "  " + highlight(label, kept) + dimStyle.Render(detail)
	if selected {
		line = selectedStyle.Render("  " + label + detail)
	}
	return line
}

// editFilter applies an unbound key to the filter line.
func (m Model) editFilter(msg tea.KeyMsg) Model {
	switch msg.Type {
	case tea.KeyBackspace:
		if m.filter != "" {
			r := []rune(m.filter)
			return m.SetFilter(string(r[:len(r)-1]))
		}
	case tea.KeySpace:
		return m.SetFilter(m.filter + " ")
	case tea.KeyRunes:
		return m.SetFilter(m.filter + string(msg.Runes))
	}
	return m
}

// WithKeys replaces the default keybindings. Returns a new model.
func (m Model) WithKeys(keys *keybindings.Manager) Model {
	if keys != nil {
		m.keys = keys
	}
	return m
}

// SetFilter sets the fuzzy filter string and refilters. Returns a new model.
func (m Model) SetFilter(f string) Model {
	m.filter = f
	m.selected = 0
	m.scrollOff = 0
	m.applyFilter()
	return m
}

// SetMaxHeight limits the number of visible rows. Returns a new model.
func (m Model) SetMaxHeight(h int) Model {
	m.maxHeight = max(1, h)
	m.adjustScroll()
	return m
}

// Chosen returns the index of the chosen item, if one was chosen.
func (m Model) Chosen() (int, bool) {
	return m.chosen, m.chosen >= 0
}

// Visible returns the filtered items in display order.
func (m Model) Visible() []Item {
	out := make([]Item, len(m.visible))
	for i, v := range m.visible {
		out[i] = m.items[v.index]
	}
	return out
}

// Selected returns the index within the visible items.
func (m Model) Selected() int {
	return m.selected
}

func (m *Model) moveUp() {
	if m.selected > 0 {
		m.selected--
		m.adjustScroll()
	}
}

func (m *Model) moveDown() {
	if m.selected < len(m.visible)-1 {
		m.selected++
		m.adjustScroll()
	}
}

func (m *Model) adjustScroll() {
	if m.selected < m.scrollOff {
		m.scrollOff = m.selected
	}
	if m.selected >= m.scrollOff+m.maxHeight {
		m.scrollOff = m.selected - m.maxHeight + 1
	}
}

func (m *Model) applyFilter() {
	if strings.TrimSpace(m.filter) == "" {
		m.visible = make([]match, len(m.items))
		for i := range m.items {
			m.visible[i] = match{index: i}
		}
		return
	}

	results := fuzzy.FindFrom(m.filter, labels(m.items))
	m.visible = make([]match, len(results))
	for i, r := range results {
		m.visible[i] = match{index: r.Index, matched: r.MatchedIndexes}
	}
}
