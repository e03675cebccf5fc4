package workflow

import (
	"log/slog"
	"strings"

	"github.com/riskradar/riskradar/pkg/errkind"
	"github.com/riskradar/riskradar/pkg/inn"
	"github.com/riskradar/riskradar/pkg/models"
)

// intentTemplate is one built-in search intent. Templates marked needsINN
// are only planned when a valid INN was supplied.
type intentTemplate struct {
	category models.IntentCategory
	query    string // {client} and {inn} placeholders
	needsINN bool
}

// The five built-in intents, planned in this order. Queries are Russian
// because the upstream search providers index Russian sources.
var builtinIntents = []intentTemplate{
	{models.IntentReputation, "репутация компании {client} отзывы клиентов", false},
	{models.IntentLawsuits, "{client} ИНН {inn} судебные дела арбитраж", true},
	{models.IntentNews, "{client} новости последние события", false},
	{models.IntentNegative, "{client} проблемы скандалы жалобы", false},
	{models.IntentFinancial, "{client} ИНН {inn} финансовое состояние банкротство", true},
}

// Planner derives the search plan for a session. Deterministic: no LLM and
// no I/O.
type Planner struct {
	log *slog.Logger
}

// NewPlanner builds a planner.
func NewPlanner() *Planner {
	return &Planner{log: slog.With("component", "workflow.planner")}
}

// Plan expands the built-in intent templates plus one custom intent per
// non-empty line of the operator notes. An invalid INN is dropped with a
// warning rather than failing the session; INN-bound intents are then
// skipped.
func (p *Planner) Plan(clientName, companyINN, notes string) ([]models.SearchIntent, error) {
	clientName = strings.TrimSpace(clientName)
	if clientName == "" {
		return nil, errkind.New(errkind.InvalidInput, "client name is required")
	}

	companyINN = strings.TrimSpace(companyINN)
	if companyINN != "" && !inn.IsValid(companyINN) {
		p.log.Warn("ignoring invalid INN, planning name-only intents", "inn", companyINN)
		companyINN = ""
	}

	var plan []models.SearchIntent
	for _, tpl := range builtinIntents {
		if tpl.needsINN && companyINN == "" {
			continue
		}
		query := strings.ReplaceAll(tpl.query, "{client}", clientName)
		query = strings.ReplaceAll(query, "{inn}", companyINN)
		plan = append(plan, models.SearchIntent{Category: tpl.category, Query: query})
	}

	for _, line := range strings.Split(notes, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		plan = append(plan, models.SearchIntent{
			Category: models.IntentCustom,
			Query:    clientName + " " + line,
		})
	}

	return plan, nil
}
