// Package report renders a finished compliance report for people: a checklist grouped by
// category, a summary of the required actions and a JSON dump.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spigell/edital-checker/internal/bid"
	"github.com/spigell/edital-checker/internal/validity"
)

var statusLabels = map[bid.Status]string{
	bid.StatusOK:      "OK",
	bid.StatusExpired: "VENCIDO",
	bid.StatusMissing: "FALTANDO",
	bid.StatusWarning: "REVISAR",
}

// Checklist lists every item under its category heading, in category display order and
// requirement order within a category.
func Checklist(r *bid.Report) string {
	var b strings.Builder
	b.WriteString("CHECKLIST DE DOCUMENTOS\n")
	fmt.Fprintf(&b, "Data de referência: %s\n", validity.FormatLong(r.AsOf))

	groups := make(map[bid.Category][]bid.ComplianceItem)
	for _, item := range r.Items {
		groups[item.Requirement.Category] = append(groups[item.Requirement.Category], item)
	}

	for _, category := range bid.Categories {
		items := groups[category]
		if len(items) == 0 {
			continue
		}
		fmt.Fprintf(&b, "\n%s\n", category.Title())
		for _, item := range items {
			b.WriteString("  " + checklistLine(item) + "\n")
		}
	}
	return b.String()
}

func checklistLine(item bid.ComplianceItem) string {
	line := fmt.Sprintf("[%s] %s", statusLabels[item.Status], item.Requirement.Name)
	if !item.Requirement.IsMandatory {
		line += " (opcional)"
	}

	doc := item.MatchedDocument
	if doc == nil {
		return line + ": " + item.Explanation
	}

	line += ": " + doc.Filename
	if doc.ValidityDate != nil {
		line += ", válido até " + validity.FormatLong(*doc.ValidityDate)
	}
	if item.Status != bid.StatusOK {
		line += " (" + item.Explanation + ")"
	}
	return line
}

// Summary states the totals, the compliance rate and what has to be done before bidding.
func Summary(r *bid.Report) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Execução: %s\n", r.RunID)
	fmt.Fprintf(&b, "Requisitos: %d | OK: %d | Vencidos: %d | Faltando: %d | Revisar: %d\n",
		r.Counts.Total(), r.Counts.OK, r.Counts.Expired, r.Counts.Missing, r.Counts.Warning)
	fmt.Fprintf(&b, "Conformidade: %.1f%%\n", r.ComplianceRate())
	if r.Compliant() {
		b.WriteString("Situação: todos os documentos obrigatórios foram encontrados e estão válidos\n")
	} else {
		b.WriteString("Situação: pendências encontradas\n")
	}
	if r.Degraded {
		b.WriteString("Atenção: modelo indisponível durante a execução, resultados apenas por regras; revise com cuidado\n")
	}

	var actions []string
	for _, item := range r.Items {
		name := item.Requirement.Name
		switch item.Status {
		case bid.StatusMissing:
			if item.Requirement.IsMandatory {
				actions = append(actions, "Obter: "+name)
			} else {
				actions = append(actions, "Obter se aplicável: "+name)
			}
		case bid.StatusExpired:
			actions = append(actions, fmt.Sprintf("Renovar: %s (%s)", name, item.Explanation))
		case bid.StatusWarning:
			actions = append(actions, fmt.Sprintf("Revisar: %s (%s)", name, item.Explanation))
		}
	}
	if len(actions) > 0 {
		b.WriteString("\nAções necessárias:\n")
		for _, a := range actions {
			b.WriteString("  - " + a + "\n")
		}
	}

	if len(r.Unmatched) > 0 {
		b.WriteString("\nDocumentos não utilizados:\n")
		for _, doc := range r.Unmatched {
			fmt.Fprintf(&b, "  - %s (%s, %s)\n", doc.Filename, doc.DetectedType, doc.Category)
		}
	}

	if len(r.Notes) > 0 {
		b.WriteString("\nObservações:\n")
		for _, n := range r.Notes {
			b.WriteString("  - " + n.String() + "\n")
		}
	}
	return b.String()
}

// WriteJSON encodes r as indented JSON.
func WriteJSON(w io.Writer, r *bid.Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(r)
}

// WriteFile stores r as JSON at path.
func WriteFile(path string, r *bid.Report) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := WriteJSON(file, r); err != nil {
		file.Close()
		return fmt.Errorf("encode report: %w", err)
	}
	return file.Close()
}

// DumpToTmpFile stores r as JSON in a new temporary file and returns its name.
func DumpToTmpFile(r *bid.Report) (string, error) {
	file, err := os.CreateTemp("", "edital_report_*.json")
	if err != nil {
		return "", err
	}
	defer file.Close()

	if err := WriteJSON(file, r); err != nil {
		return "", fmt.Errorf("encode report: %w", err)
	}
	return file.Name(), nil
}
