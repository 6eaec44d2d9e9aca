package orchestrator

import (
	"fmt"
	"sort"
	"strings"

	"github.com/wealthops/wealthops-backend/internal/copilot"
)

const maxRowsInAnswer = 5

// compose turns the collected agent results into the final QueryResult.
// Composition is deterministic: each contributing agent adds a section to
// the answer and its own citations; agents that failed are noted once.
func compose(intent Intent, req copilot.QueryRequest, results []AgentResult) copilot.QueryResult {
	out := copilot.QueryResult{
		Citations:  []copilot.Citation{},
		AgentCalls: []string{},
	}

	var sections []string
	var degraded []string

	for _, res := range results {
		out.AgentCalls = append(out.AgentCalls, string(res.Agent)+"_agent")
		if res.Err != nil {
			degraded = append(degraded, string(res.Agent))
			continue
		}
		switch res.Agent {
		case AgentNL2SQL:
			if res.NL2SQL == nil {
				continue
			}
			sections = append(sections, sqlSection(intent, res.NL2SQL))
			out.SQLGenerated = res.NL2SQL.SQLQuery
			out.Citations = append(out.Citations, copilot.Citation{
				Source:      "sql:" + strings.Join(res.NL2SQL.TablesUsed, ","),
				Description: fmt.Sprintf("SQL query on %s", tableList(res.NL2SQL.TablesUsed)),
			})
		case AgentVector:
			if res.Vector == nil {
				continue
			}
			sections = append(sections, vectorSection(res.Vector))
			for _, hit := range res.Vector.Results {
				score := hit.Score
				out.Citations = append(out.Citations, copilot.Citation{
					Source:      "search:crm-notes:" + hit.ID,
					Description: truncate(hit.Text, 120),
					Confidence:  &score,
				})
			}
		case AgentAPI:
			if res.KPIs == nil {
				continue
			}
			sections = append(sections, kpiSection(res.KPIs))
			out.Citations = append(out.Citations, copilot.Citation{
				Source:      "api:plan-performance",
				Description: "Plan performance KPIs",
			})
		}
	}

	if len(sections) == 0 {
		out.Answer = "Sorry, I couldn't process your request at this time."
		return out
	}
	if len(degraded) > 0 {
		sections = append(sections, fmt.Sprintf(
			"Note: %s did not respond; this answer may be incomplete.",
			strings.Join(degraded, ", "),
		))
	}

	out.Answer = strings.Join(sections, "\n\n")
	return out
}

func sqlSection(intent Intent, resp *NL2SQLResponse) string {
	var b strings.Builder
	switch intent {
	case IntentTopCash:
		b.WriteString("Top cash balances:\n")
	case IntentRMD:
		b.WriteString("Upcoming required minimum distributions:\n")
	case IntentMissingBen:
		b.WriteString("Accounts with missing beneficiary information:\n")
	case IntentIRAReminder:
		b.WriteString("IRA contribution status:\n")
	default:
		b.WriteString(fmt.Sprintf("Found %d matching record(s):\n", resp.RowCount))
	}

	rows := resp.Results
	if len(rows) > maxRowsInAnswer {
		rows = rows[:maxRowsInAnswer]
	}
	for i, row := range rows {
		b.WriteString(fmt.Sprintf("%d. %s\n", i+1, formatRow(row)))
	}
	if resp.RowCount > maxRowsInAnswer {
		b.WriteString(fmt.Sprintf("...and %d more.\n", resp.RowCount-maxRowsInAnswer))
	}
	return strings.TrimRight(b.String(), "\n")
}

func vectorSection(resp *VectorSearchResponse) string {
	if len(resp.Results) == 0 {
		return "No matching CRM notes were found."
	}
	var b strings.Builder
	b.WriteString("Relevant CRM notes:\n")
	for i, hit := range resp.Results {
		b.WriteString(fmt.Sprintf("%d. %s\n", i+1, truncate(hit.Text, 160)))
	}
	return strings.TrimRight(b.String(), "\n")
}

func kpiSection(kpis map[string]any) string {
	keys := make([]string, 0, len(kpis))
	for k := range kpis {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString("Plan performance:\n")
	for _, k := range keys {
		b.WriteString(fmt.Sprintf("- %s: %v\n", k, kpis[k]))
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatRow(row map[string]any) string {
	keys := make([]string, 0, len(row))
	for k := range row {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, row[k]))
	}
	return strings.Join(parts, ", ")
}

func tableList(tables []string) string {
	if len(tables) == 0 {
		return "the household database"
	}
	return strings.Join(tables, ", ") + " tables"
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
