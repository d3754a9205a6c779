// Package catalog is the country and document-type metadata shipped with the
// binary.
package catalog

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	pstrings "kycflow/pkg/platform/strings"
)

//go:embed metadata.json
var embedded []byte

// Entry is one row of the metadata file.
type Entry struct {
	Country         string `json:"country"`
	CountryCode     string `json:"country_code"`
	Type            string `json:"type"`
	AlternativeText string `json:"alternative_text"`
}

type Country struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

type DocumentType struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

var typeLabels = map[string]string{
	"PP":      "Passport",
	"DL":      "Driving License",
	"NI":      "National ID",
	"AADHAAR": "Aadhaar",
}

// Catalog answers country and document-type lookups.
type Catalog struct {
	entries []Entry
}

// Default returns the embedded catalog.
func Default() (*Catalog, error) {
	return Parse(embedded)
}

func Parse(data []byte) (*Catalog, error) {
	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	return New(entries), nil
}

func New(entries []Entry) *Catalog {
	return &Catalog{entries: append([]Entry(nil), entries...)}
}

// Countries lists each country code once, sorted by name. When a code appears
// with several names the last one wins.
func (c *Catalog) Countries() []Country {
	names := make(map[string]string)
	for _, e := range c.entries {
		code := strings.TrimSpace(e.CountryCode)
		if code == "" {
			continue
		}
		names[code] = e.Country
	}
	out := make([]Country, 0, len(names))
	for code, name := range names {
		out = append(out, Country{Code: code, Name: name})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name == out[j].Name {
			return out[i].Code < out[j].Code
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// HasCountry reports whether the code is in the catalog.
func (c *Catalog) HasCountry(code string) bool {
	for _, e := range c.entries {
		if strings.EqualFold(e.CountryCode, strings.TrimSpace(code)) {
			return true
		}
	}
	return false
}

// DocumentTypes lists the document types of a country. Values fall back to
// the alternative text when the type is blank, and duplicates are removed
// ignoring case.
func (c *Catalog) DocumentTypes(countryCode string) []DocumentType {
	var values []string
	labels := make(map[string]string)
	for _, e := range c.entries {
		if e.CountryCode != countryCode {
			continue
		}
		value := strings.TrimSpace(e.Type)
		if value == "" {
			value = strings.TrimSpace(e.AlternativeText)
		}
		if value == "" {
			continue
		}
		label, ok := typeLabels[strings.ToUpper(value)]
		if !ok {
			label = e.AlternativeText
			if label == "" {
				label = value
			}
		}
		key := strings.ToLower(value)
		if _, seen := labels[key]; !seen {
			labels[key] = label
		}
		values = append(values, value)
	}

	unique := pstrings.DedupeFold(values)
	out := make([]DocumentType, 0, len(unique))
	for _, v := range unique {
		out = append(out, DocumentType{Value: v, Label: labels[strings.ToLower(v)]})
	}
	return out
}

// HasDocumentType reports whether the country offers the document type.
func (c *Catalog) HasDocumentType(countryCode, docType string) bool {
	values := make([]string, 0)
	for _, d := range c.DocumentTypes(countryCode) {
		values = append(values, d.Value)
	}
	return pstrings.ContainsFold(values, docType)
}
