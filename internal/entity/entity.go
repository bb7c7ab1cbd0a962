// Package entity maps incoming source names to durable entities and their
// warehouse table names.
//
// An entity is a named kind of record (e.g. customer_profiles, loans). Every
// entity owns one intake table (raw*), one durable table (stg*), and is
// identified by a canonical snake_case base name derived from the source
// file name.
package entity

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
)

// Metadata columns carry provenance and are excluded from identity
// comparison and schema checks. They all share this prefix.
const MetadataPrefix = "_"

// Table name prefixes for the three table tiers.
const (
	RawPrefix     = "raw"
	DurablePrefix = "stg"
	ReportPrefix  = "rpt"
)

var (
	dateSuffixRe = regexp.MustCompile(`^(.+)_(\d{8})$`)
	separatorRe  = regexp.MustCompile(`[_\-\s]+`)
)

// UnresolvableError is returned when a source name yields no entity after
// normalization.
type UnresolvableError struct {
	Source string
}

func (e *UnresolvableError) Error() string {
	return fmt.Sprintf("cannot resolve entity from source name %q", e.Source)
}

// Name identifies a durable entity.
type Name struct {
	// Base is the canonical snake_case entity name, e.g. "customer_profiles".
	Base string
}

// Resolve derives an entity name and an optional 8-digit date suffix from a
// source file name. The transform is total and pure: strip the extension,
// strip a trailing _YYYYMMDD suffix, split the remainder on separators, and
// recombine lowercase tokens with underscores.
//
//	customer_profiles_20260202.csv -> ("customer_profiles", "20260202")
//	Loans.csv                      -> ("loans", "")
func Resolve(source string) (Name, string, error) {
	base := filepath.Base(source)
	stem := strings.TrimSuffix(base, filepath.Ext(base))

	fileDate := ""
	if m := dateSuffixRe.FindStringSubmatch(stem); m != nil {
		stem = m[1]
		fileDate = m[2]
	}

	tokens := separatorRe.Split(strings.ToLower(strings.TrimSpace(stem)), -1)
	kept := tokens[:0]
	for _, tok := range tokens {
		if tok != "" {
			kept = append(kept, tok)
		}
	}
	if len(kept) == 0 {
		return Name{}, "", &UnresolvableError{Source: source}
	}

	return Name{Base: strings.Join(kept, "_")}, fileDate, nil
}

// FromBase constructs a Name from an already-canonical base name.
func FromBase(base string) Name {
	return Name{Base: base}
}

// Pascal returns the PascalCase form of the base name used in table names,
// e.g. "customer_profiles" -> "CustomerProfiles".
func (n Name) Pascal() string {
	words := strings.Split(n.Base, "_")
	var sb strings.Builder
	for _, w := range words {
		if w == "" {
			continue
		}
		sb.WriteString(strings.ToUpper(w[:1]))
		sb.WriteString(w[1:])
	}
	return sb.String()
}

// RawTable returns the intake table name for this entity.
func (n Name) RawTable() string {
	return RawPrefix + n.Pascal()
}

// DurableTable returns the durable table name for this entity.
func (n Name) DurableTable() string {
	return DurablePrefix + n.Pascal()
}

func (n Name) String() string {
	return n.Base
}

// IsMetadataColumn reports whether a column carries row provenance rather
// than entity data.
func IsMetadataColumn(col string) bool {
	return strings.HasPrefix(col, MetadataPrefix)
}

// DataColumns filters metadata columns out of a column list, preserving order.
func DataColumns(cols []string) []string {
	out := make([]string, 0, len(cols))
	for _, c := range cols {
		if !IsMetadataColumn(c) {
			out = append(out, c)
		}
	}
	return out
}

// BaseFromRawTable recovers the entity base name from a raw table name,
// e.g. "rawCustomerProfiles" -> "customer_profiles". The inverse of
// RawTable for names produced by this package.
func BaseFromRawTable(table string) (Name, bool) {
	return baseFromPrefixed(table, RawPrefix)
}

// BaseFromDurableTable recovers the entity base name from a durable table
// name, e.g. "stgLoans" -> "loans".
func BaseFromDurableTable(table string) (Name, bool) {
	return baseFromPrefixed(table, DurablePrefix)
}

func baseFromPrefixed(table, prefix string) (Name, bool) {
	if !strings.HasPrefix(table, prefix) || len(table) == len(prefix) {
		return Name{}, false
	}
	pascal := table[len(prefix):]

	var words []string
	start := 0
	for i := 1; i < len(pascal); i++ {
		if pascal[i] >= 'A' && pascal[i] <= 'Z' {
			words = append(words, strings.ToLower(pascal[start:i]))
			start = i
		}
	}
	words = append(words, strings.ToLower(pascal[start:]))
	return Name{Base: strings.Join(words, "_")}, true
}
