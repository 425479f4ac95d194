package mindmap

import (
	"sync"
	"unicode/utf8"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/youruser/mmedit/internal/config"
)

// outlineCacheSize bounds the parsed outlines a View keeps, keyed by the
// markdown they were parsed from.
const outlineCacheSize = 16

// Theme selects the page and node colour scheme.
type Theme string

const (
	ThemeDark  Theme = "dark"
	ThemeLight Theme = "light"
)

// ParseTheme maps a stored preference to a Theme; anything but "light" is dark.
func ParseTheme(s string) Theme {
	if s == string(ThemeLight) {
		return ThemeLight
	}
	return ThemeDark
}

var palettes = map[Theme][]string{
	ThemeLight: {"#2D7DD2", "#E85D75", "#8E44AD", "#27AE60", "#E67E22", "#3498DB", "#9B59B6", "#1ABC9C"},
	ThemeDark:  {"#4ECDC4", "#FF6B6B", "#C9B1FF", "#FFE66D", "#95E1D3", "#F38181", "#A8E6CF", "#DDA0DD"},
}

// NodeColor returns the colour for a node at depth under theme.
func NodeColor(theme Theme, depth int) string {
	p := palettes[theme]
	if len(p) == 0 {
		p = palettes[ThemeDark]
	}
	if depth < 0 {
		depth = 0
	}
	return p[depth%len(p)]
}

// Renderer draws a mindmap. Implementations wrap the actual drawing library
// and must not fit on their own; View decides when fitting happens.
type Renderer interface {
	Draw(nodes []*Node, theme Theme)
	Fit()
}

// View is the render target for flattened markdown.
type View struct {
	mu       sync.Mutex
	renderer Renderer
	theme    Theme
	limits   config.Mindmap
	markdown string
	outlines *lru.Cache[string, []*Node]
	parses   int

	// autoFitEnabled is true until the first load has been fitted; after
	// that, redraws keep the user's zoom unless a fit is asked for.
	autoFitEnabled bool
}

func NewView(r Renderer, theme Theme) *View {
	// lru.New only fails for a non-positive size.
	outlines, _ := lru.New[string, []*Node](outlineCacheSize)
	return &View{
		renderer:       r,
		theme:          theme,
		limits:         config.DefaultMindmap(),
		outlines:       outlines,
		autoFitEnabled: true,
	}
}

// SetLimits applies display limits from the server config.
func (v *View) SetLimits(m config.Mindmap) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.limits = m.WithDefaults()
}

// Render replaces the drawn markdown. The map is fitted when fit is true or
// auto-fit is still enabled.
func (v *View) Render(markdown string, fit bool) {
	v.mu.Lock()
	v.markdown = markdown
	doFit := fit || v.autoFitEnabled
	nodes := v.build()
	theme := v.theme
	v.mu.Unlock()

	v.renderer.Draw(nodes, theme)
	if doFit {
		v.renderer.Fit()
	}
}

// Redraw draws the current markdown again without fitting.
func (v *View) Redraw() {
	v.mu.Lock()
	nodes := v.build()
	theme := v.theme
	v.mu.Unlock()

	v.renderer.Draw(nodes, theme)
}

// Fit fits the map to the viewport regardless of the auto-fit flag.
func (v *View) Fit() {
	v.renderer.Fit()
}

func (v *View) DisableAutoFit() {
	v.mu.Lock()
	v.autoFitEnabled = false
	v.mu.Unlock()
}

func (v *View) AutoFitEnabled() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.autoFitEnabled
}

func (v *View) Markdown() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.markdown
}

func (v *View) Theme() Theme {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.theme
}

// SetTheme switches theme and redraws when something is already drawn.
func (v *View) SetTheme(t Theme) {
	v.mu.Lock()
	v.theme = t
	drawn := v.markdown != ""
	v.mu.Unlock()

	if drawn {
		v.Redraw()
	}
}

// ToggleTheme flips between dark and light and returns the new theme.
func (v *View) ToggleTheme() Theme {
	next := ThemeLight
	if v.Theme() == ThemeLight {
		next = ThemeDark
	}
	v.SetTheme(next)
	return next
}

// build must be called with v.mu held. Redraws, theme changes and limit
// changes reuse the parsed outline; limits are applied to a copy.
func (v *View) build() []*Node {
	parsed, ok := v.outlines.Get(v.markdown)
	if !ok {
		parsed = Outline(v.markdown)
		v.parses++
		v.outlines.Add(v.markdown, parsed)
	}
	nodes := cloneNodes(parsed)
	for _, root := range nodes {
		root.Walk(v.applyLimits)
	}
	return nodes
}

func (v *View) applyLimits(n *Node) {
	n.Title = truncateRunes(n.Title, v.limits.MaxDescriptionLength)
	for i, l := range n.Lines {
		n.Lines[i] = truncateRunes(l, v.limits.MaxDescriptionLength)
	}

	limit := 0
	switch n.Depth {
	case 3:
		limit = v.limits.MaxFrItems
	case 4, 5:
		limit = v.limits.MaxDimensionItems
	}
	if limit > 0 && len(n.Lines) > limit {
		n.Lines = n.Lines[:limit]
	}
}

func cloneNodes(nodes []*Node) []*Node {
	if nodes == nil {
		return nil
	}
	out := make([]*Node, len(nodes))
	for i, n := range nodes {
		c := *n
		c.Lines = append([]string(nil), n.Lines...)
		c.Children = cloneNodes(n.Children)
		out[i] = &c
	}
	return out
}

func truncateRunes(s string, limit int) string {
	if limit <= 0 || utf8.RuneCountInString(s) <= limit {
		return s
	}
	r := []rune(s)
	return string(r[:limit]) + "…"
}
