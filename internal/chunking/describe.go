package chunking

import (
	"fmt"
	"strings"

	"hudhud/backend/internal/epigraph"
)

// Summarize flattens a record into the single passage embedded as its
// record-level vector, backing "records like this one" retrieval.
// Metadata leads so short records still embed to something useful.
func Summarize(e *epigraph.Epigraph) string {
	var parts []string

	if e.Title != "" {
		parts = append(parts, e.Title)
	}
	if e.Period != "" {
		parts = append(parts, "Period: "+e.Period)
	}
	if lang := e.Language(); lang != "" {
		parts = append(parts, "Language: "+lang)
	}
	if e.TextualTypology != "" {
		parts = append(parts, "Typology: "+e.TextualTypology)
	}
	for _, s := range e.Sites {
		if s.Name != "" {
			parts = append(parts, "Site: "+s.Name)
			break
		}
	}

	if t := CleanText(e.Text); t != "" {
		parts = append(parts, t)
	}
	for _, tr := range e.Translations {
		if t := CleanText(tr.Text); t != "" {
			parts = append(parts, t)
			break
		}
	}

	return strings.Join(parts, ". ")
}

// DescribeObject flattens a physical support record into one searchable
// paragraph. Empty fields are skipped so small records don't produce
// sentences like "Materials: .".
func DescribeObject(o *epigraph.Object) string {
	var parts []string

	if len(o.SupportTypes) > 0 {
		parts = append(parts, "Support: "+strings.Join(o.SupportTypes, ", "))
	}
	if len(o.Materials) > 0 {
		parts = append(parts, "Materials: "+strings.Join(o.Materials, ", "))
	}
	if o.Shape != "" {
		parts = append(parts, "Shape: "+o.Shape)
	}
	if desc := CleanText(o.Description); desc != "" {
		parts = append(parts, desc)
	}
	if len(o.Decorations) > 0 {
		parts = append(parts, "Decorations: "+strings.Join(o.Decorations, ", "))
	}

	for _, d := range o.Deposits {
		var loc []string
		for _, f := range []string{d.Institution, d.Repository, d.Settlement} {
			if f != "" {
				loc = append(loc, f)
			}
		}
		if d.IdentificationNumber != "" {
			loc = append(loc, "inv. "+d.IdentificationNumber)
		}
		if len(loc) > 0 {
			parts = append(parts, "Deposit: "+strings.Join(loc, ", "))
		}
	}

	for _, n := range o.Notes {
		if t := CleanText(n.Text); t != "" {
			parts = append(parts, t)
		}
	}
	if t := CleanText(o.SupportNotes); t != "" {
		parts = append(parts, "Support notes: "+t)
	}
	if t := CleanText(o.DepositNotes); t != "" {
		parts = append(parts, "Deposit notes: "+t)
	}

	return strings.Join(parts, ". ")
}

// FormatEditors renders editor entries as "Name (responsibility, date)"
// strings for chunk metadata.
func FormatEditors(editors []epigraph.Editor) []string {
	var out []string
	for _, ed := range editors {
		if ed.Name == "" {
			continue
		}
		var qual []string
		if ed.Responsibility != "" {
			qual = append(qual, ed.Responsibility)
		}
		if ed.Date != "" {
			qual = append(qual, ed.Date)
		}
		if len(qual) > 0 {
			out = append(out, fmt.Sprintf("%s (%s)", ed.Name, strings.Join(qual, ", ")))
		} else {
			out = append(out, ed.Name)
		}
	}
	return out
}

// FormatBibliography renders references preferring the short citation form,
// with page numbers when present.
func FormatBibliography(refs []epigraph.BibReference) []string {
	var out []string
	for _, r := range refs {
		ref := r.ReferenceShort
		if ref == "" {
			ref = r.Reference
		}
		if ref == "" {
			continue
		}
		if r.Page != "" {
			ref += ", p. " + r.Page
		}
		out = append(out, ref)
	}
	return out
}
