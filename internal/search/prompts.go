package search

import (
	"fmt"

	"github.com/joss/elf/internal/examples"
)

func filingQueryPrompt(task, deps, objective string, ex examples.Example) string {
	return fmt.Sprintf(`Generate a search query to be used in a semantic search of excerpts from public company SEC Filings based on the task, dependent task outputs, the objective.
Only return the search query. Do not include the company name or type of filing.
EXAMPLE TASK=%s
DEPENDENT_TASK_OUTPUT=%s
OBJECTIVE=%s
SEARCH_QUERY="%s"

TASK=%s
DEPENDENT_TASK_OUTPUT=%s
OBJECTIVE=%s
SEARCH_QUERY=
`, ex.Task, ex.DependentTaskOutput, ex.Objective, ex.SearchQuery, task, deps, objective)
}

func transcriptQueryPrompt(task, deps, objective string, ex examples.Example) string {
	return fmt.Sprintf(`Generate a search query to be used in a semantic search of excerpts from company conference call transcripts based on the task, dependent task outputs, the objective.
You don't need to search for the transcript itself. The query you return will be searched for in a database of excerpts from company call transcripts.
Only return the search query.
EXAMPLE TASK=%s
OBJECTIVE=%s
SEARCH_QUERY="%s"

Task: %s
Dependent tasks output: %s
Objective: %s
SEARCH_QUERY=
`, ex.Task, ex.Objective, ex.SearchQuery, task, deps, objective)
}

func symbolPrompt(task, objective string) string {
	return fmt.Sprintf(`Return the ticker symbol of the company that is the subject of the task and objective.
Only return the ticker symbol with no other commentary. If there is no such company, return none.
Task: %s
Objective: %s
`, task, objective)
}

func periodsPrompt(symbol, latest, task, objective string) string {
	return fmt.Sprintf(`Generate a list of financial reporting periods for %s based on the most recently reported period, task, and the objective.
If the task only refers to a single period, feel free to only return that period.
Your response must be a JSON object with the key timePeriods, whose value is a list of periods formatted like "Q1 2023".
Most Recently Reported Period: %s
Task: %s
Objective: %s
`, symbol, latest, task, objective)
}

func analystPrompt(results, task, language string) string {
	return fmt.Sprintf(`You are an expert analyst. Rewrite the following information as one report so that only facts directly relevant to the following Task remain.
You don't need to mention documents that didn't contain information. Only report on the information that was found.
Report must be answered in %s.
TASK=%s
INFORMATION=%s.
REPORT:`, language, task, results)
}
