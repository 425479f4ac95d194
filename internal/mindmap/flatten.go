// Package mindmap turns the module/requirement tree served by /api/tree into
// the single markdown document a mindmap is drawn from.
package mindmap

import "strings"

// LineBreak joins content lines inside a heading so a whole section stays in
// one mindmap node.
const LineBreak = "<br>"

const (
	RequirementsHeading = "功能需求"
	SpecsHeading        = "SPEC 連結"
)

// Tree is the body of GET /api/tree.
type Tree struct {
	Title   string   `json:"title"`
	Modules []Module `json:"modules"`
}

type Module struct {
	ID           string        `json:"id,omitempty"`
	Name         string        `json:"name"`
	Content      string        `json:"content,omitempty"`
	Requirements *Requirements `json:"requirements,omitempty"`
}

type Requirements struct {
	Content    string     `json:"content,omitempty"`
	Dimensions Dimensions `json:"dimensions"`
}

// Dimensions holds the four fixed requirement dimensions. Any may be nil.
type Dimensions struct {
	UIUX     *Dimension `json:"ui_ux,omitempty"`
	Frontend *Dimension `json:"frontend,omitempty"`
	Backend  *Dimension `json:"backend,omitempty"`
	AIData   *Dimension `json:"ai_data,omitempty"`
}

type Dimension struct {
	Content string `json:"content,omitempty"`
	Specs   *Specs `json:"specs,omitempty"`
}

type Specs struct {
	Content string `json:"content,omitempty"`
}

// DimensionKey names a dimension as it appears in the tree JSON.
type DimensionKey string

const (
	DimUIUX     DimensionKey = "ui_ux"
	DimFrontend DimensionKey = "frontend"
	DimBackend  DimensionKey = "backend"
	DimAIData   DimensionKey = "ai_data"
)

// DimensionOrder is the display order of dimensions under a module.
var DimensionOrder = []DimensionKey{DimUIUX, DimFrontend, DimBackend, DimAIData}

var dimensionNames = map[DimensionKey]string{
	DimUIUX:     "UI/UX",
	DimFrontend: "Frontend",
	DimBackend:  "Backend",
	DimAIData:   "AI & Data",
}

// DisplayName returns the heading text used for a dimension.
func (k DimensionKey) DisplayName() string {
	return dimensionNames[k]
}

// Get returns the dimension stored under key, or nil.
func (d Dimensions) Get(key DimensionKey) *Dimension {
	switch key {
	case DimUIUX:
		return d.UIUX
	case DimFrontend:
		return d.Frontend
	case DimBackend:
		return d.Backend
	case DimAIData:
		return d.AIData
	}
	return nil
}

// Flatten renders the tree as one markdown document:
//
//	# title
//	## module<br>content
//	### 功能需求<br>content
//	#### UI/UX<br>content
//	##### SPEC 連結<br>content      (backend only, under a backend heading)
//
// Every section is followed by a blank line. Flatten never fails; missing
// fields contribute nothing.
func Flatten(tree *Tree) string {
	var b strings.Builder

	var title string
	var modules []Module
	if tree != nil {
		title = tree.Title
		modules = tree.Modules
	}
	writeSection(&b, 1, title, "")

	for _, m := range modules {
		writeSection(&b, 2, m.Name, m.Content)

		req := m.Requirements
		if req == nil {
			continue
		}
		writeSection(&b, 3, RequirementsHeading, req.Content)

		for _, key := range DimensionOrder {
			dim := req.Dimensions.Get(key)
			if dim == nil {
				continue
			}
			if FlattenContent(dim.Content) == "" {
				continue
			}
			writeSection(&b, 4, key.DisplayName(), dim.Content)
			if key == DimBackend && dim.Specs != nil && FlattenContent(dim.Specs.Content) != "" {
				writeSection(&b, 5, SpecsHeading, dim.Specs.Content)
			}
		}
	}

	return b.String()
}

// FlattenContent trims every line, drops blank ones and joins the rest with
// LineBreak.
func FlattenContent(content string) string {
	if content == "" {
		return ""
	}
	lines := strings.Split(content, "\n")
	kept := lines[:0]
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line != "" {
			kept = append(kept, line)
		}
	}
	return strings.Join(kept, LineBreak)
}

func writeSection(b *strings.Builder, level int, title, content string) {
	b.WriteString(strings.Repeat("#", level))
	b.WriteByte(' ')
	b.WriteString(title)
	if inline := FlattenContent(content); inline != "" {
		b.WriteString(LineBreak)
		b.WriteString(inline)
	}
	b.WriteString("\n\n")
}
