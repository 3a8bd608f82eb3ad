// Package domain defines the core types of the site search: the searchable
// record produced by the index builder, the ephemeral query value, the
// grouped result set consumed by the presentation layer, and the persisted
// search log used for analytics.
package domain

import (
	"fmt"
	"strings"
)

// ContentType is the fine-grained kind of a searchable record.
type ContentType string

// The fixed set of content types the index builder emits.
const (
	TypeStaff         ContentType = "staff"
	TypePage          ContentType = "page"
	TypeResearch      ContentType = "research"
	TypeLab           ContentType = "lab"
	TypeLocation      ContentType = "location"
	TypeOrganization  ContentType = "organization"
	TypeMonitoring    ContentType = "monitoring"
	TypeNews          ContentType = "news"
	TypeBoard         ContentType = "board"
	TypeFAQ           ContentType = "faq"
	TypeInternProject ContentType = "intern_project"
	TypeInternYear    ContentType = "intern_year"
	TypeAnnualReport  ContentType = "annual_report"
	TypeFactsheet     ContentType = "factsheet"
)

var contentTypes = []ContentType{
	TypeStaff, TypePage, TypeResearch, TypeLab, TypeLocation, TypeOrganization,
	TypeMonitoring, TypeNews, TypeBoard, TypeFAQ, TypeInternProject,
	TypeInternYear, TypeAnnualReport, TypeFactsheet,
}

// ContentTypes returns the known content types in declaration order.
func ContentTypes() []ContentType {
	out := make([]ContentType, len(contentTypes))
	copy(out, contentTypes)
	return out
}

// Valid reports whether t is one of the known content types.
func (t ContentType) Valid() bool {
	for _, k := range contentTypes {
		if k == t {
			return true
		}
	}
	return false
}

// ParseContentType normalizes s and validates it against the known set.
func ParseContentType(s string) (ContentType, error) {
	t := ContentType(strings.ToLower(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", fmt.Errorf("unknown content type %q", s)
	}
	return t, nil
}

// DefaultStaticCategory is the category label given to static-page hits whose
// page metadata does not name one.
const DefaultStaticCategory = "Pages"

// SearchRecord is one searchable item. URL is the dedupe key within a result
// set. Content keeps its original casing so highlights can preserve it.
type SearchRecord struct {
	Title    string      `json:"title"`
	URL      string      `json:"url"`
	Content  string      `json:"content"`
	Type     ContentType `json:"type"`
	Category string      `json:"category"`

	Subtitle string `json:"subtitle,omitempty"`
	Image    string `json:"image,omitempty"`
	Address  string `json:"address,omitempty"`

	// Excerpt is set by sources that produce their own (the static index).
	// It is never part of the published custom index.
	Excerpt string `json:"-"`
}

// Valid reports whether the required fields are present.
func (r SearchRecord) Valid() bool {
	return strings.TrimSpace(r.Title) != "" && strings.TrimSpace(r.URL) != ""
}
