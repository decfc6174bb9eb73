package bid

import (
	"strings"
)

// Category is one of the fixed document categories of a procurement call.
type Category string

const (
	CategoryLegal      Category = "habilitacao_juridica"
	CategoryFiscal     Category = "regularidade_fiscal"
	CategoryTechnical  Category = "qualificacao_tecnica"
	CategoryEconomic   Category = "qualificacao_economica"
	CategoryCommercial Category = "proposta_comercial"
	CategoryOther      Category = "outros"
)

// Categories lists every category in display order.
var Categories = []Category{
	CategoryLegal,
	CategoryFiscal,
	CategoryTechnical,
	CategoryEconomic,
	CategoryCommercial,
	CategoryOther,
}

var categoryAliases = map[string]Category{
	"legal-standing":          CategoryLegal,
	"fiscal-regularity":       CategoryFiscal,
	"technical-qualification": CategoryTechnical,
	"economic-qualification":  CategoryEconomic,
	"commercial-proposal":     CategoryCommercial,
	"other":                   CategoryOther,
}

var categoryTitles = map[Category]string{
	CategoryLegal:      "HABILITAÇÃO JURÍDICA",
	CategoryFiscal:     "REGULARIDADE FISCAL E TRABALHISTA",
	CategoryTechnical:  "QUALIFICAÇÃO TÉCNICA",
	CategoryEconomic:   "QUALIFICAÇÃO ECONÔMICO-FINANCEIRA",
	CategoryCommercial: "PROPOSTA COMERCIAL",
	CategoryOther:      "OUTROS",
}

// Valid reports whether c belongs to the fixed enumeration.
func (c Category) Valid() bool {
	_, ok := categoryTitles[c]
	return ok
}

// Title returns the heading used for c in rendered reports.
func (c Category) Title() string {
	if title, ok := categoryTitles[c]; ok {
		return title
	}
	return strings.ToUpper(string(c))
}

// ParseCategory accepts the category codes and the English glossary names.
// The second result is false when s names no known category.
func ParseCategory(s string) (Category, bool) {
	key := strings.ToLower(strings.TrimSpace(s))
	if key == "" {
		return "", false
	}

	if c := Category(strings.ReplaceAll(key, "-", "_")); c.Valid() {
		return c, true
	}

	if c, ok := categoryAliases[strings.ReplaceAll(key, "_", "-")]; ok {
		return c, true
	}

	return "", false
}
