package analysis

import (
	"fmt"
	"strings"
	"time"

	"chainalyzer/internal/domain/analysis"
	"chainalyzer/internal/domain/chain"
	"chainalyzer/internal/shared/utils/textutil"
)

// AgentInstructions is the standing system instruction for the summarization
// agent. The agent reads the uploaded chain documents through file search and
// must answer structured queries factually.
const AgentInstructions = `You are an expert field service analyst specializing in ticket chain analysis. Your primary task is to analyze JSON files containing ticket data for field service projects and extract useful insights.

For each ticket chain, you'll examine:
1. The relationships between tickets
2. Timeline of events across tickets
3. Material shortages and their impact
4. Revisits and their reasons
5. Phase completion status

When analyzing tickets:
- Pay close attention to post contents for mentions of material shortages, issues, or incomplete work
- Look for relationships between dispatch and turnup tickets
- Identify causes of revisits and whether they were billable
- Be factual and specific in your analyses
- Do not guess or make up any information - only report what is evident in the provided data
- Always respond in JSON format when asked to do so

Provide structured data that can be easily parsed programmatically when requested.`

// responseFormat is the numbered four-section shape both the overview and the
// consolidated report are requested in; the result store parses along these
// headers.
const responseFormat = `RESPONSE FORMAT:
1. TIMELINE OF EVENTS: (chronological list of what happened)
2. RELATIONSHIP MAP: (which dispatch tickets spawned which turnup tickets)
3. ANOMALIES AND ISSUES: (any problems or inconsistencies in the ticket relationships)
4. SERVICE SUMMARY: (overall description of the service history)`

// ChainOverviewPrompt builds the narrative chain-analysis request: tickets
// grouped by category with a truncated first-post excerpt each.
func ChainOverviewPrompt(snapshot *chain.ChainSnapshot, records map[string]*chain.TicketRecord, budget int) string {
	groups := snapshot.ByCategory()
	dispatchCount := len(groups[chain.CategoryDispatch])
	turnupCount := len(groups[chain.CategoryTurnup])
	excludedCount := snapshot.Count - dispatchCount - turnupCount

	var b strings.Builder
	fmt.Fprintf(&b, "I need you to analyze a set of field service tickets (%d dispatch tickets and %d turnup tickets) that are linked together in a chain with hash %s.\n\n",
		dispatchCount, turnupCount, snapshot.ChainHash)
	b.WriteString(`BACKGROUND:
In our field service system, we have two main types of tickets:
1. DISPATCH tickets - Initial records created when a service is requested
2. TURNUP tickets - Created when a technician is booked, containing the work details

Normally, there should be a 1:1 relationship between dispatch and turnup tickets, but for complex projects there can be multiple relationships that aren't properly tracked in the system.

GOAL:
Based on the information in these tickets, please:
1. Identify the actual relationships between these tickets
2. Determine the chronological order of events
3. Explain which dispatch tickets spawned which turnup tickets
4. Note any anomalies or issues with the ticket relationships
5. Provide a clear summary of the entire service history represented by these tickets
`)
	if excludedCount > 0 {
		fmt.Fprintf(&b, "\nNOTE: This chain has %d further related tickets (shipping, project management, other) included below for context.\n", excludedCount)
	}
	b.WriteString("\nTICKET DETAILS:\n")

	order := []struct {
		category chain.Category
		header   string
	}{
		{chain.CategoryDispatch, "DISPATCH TICKETS"},
		{chain.CategoryTurnup, "TURNUP TICKETS"},
		{chain.CategoryProjectManagement, "PROJECT MANAGEMENT TICKETS"},
		{chain.CategoryShipping, "SHIPPING TICKETS"},
		{chain.CategoryOther, "OTHER TICKETS"},
	}
	for _, group := range order {
		tickets := groups[group.category]
		if len(tickets) == 0 {
			continue
		}
		fmt.Fprintf(&b, "\n=== %s ===\n", group.header)
		for i, summary := range tickets {
			fmt.Fprintf(&b, "\n--- TICKET %d: ID %s ---\n", i+1, summary.TicketID)
			fmt.Fprintf(&b, "Subject: %s\n", summary.Subject)
			fmt.Fprintf(&b, "Type: %s\n", summary.TicketType)
			fmt.Fprintf(&b, "Status: %s\n", summary.Status)
			fmt.Fprintf(&b, "Department: %s\n", summary.Department)
			fmt.Fprintf(&b, "Creator: %s\n", summary.Creator)
			fmt.Fprintf(&b, "Created: %s\n", formatTime(summary.CreatedAt))
			fmt.Fprintf(&b, "Last Activity: %s\n", formatTime(summary.LastActivity))

			if rec, ok := records[summary.TicketID]; ok && len(rec.Posts) > 0 {
				first := rec.Posts[0]
				b.WriteString("First Post:\n")
				fmt.Fprintf(&b, "- %s by %s:\n  %s\n",
					first.Time.Format(time.DateTime), first.Author,
					textutil.Excerpt(first.Body, budget))
			}
		}
	}

	b.WriteString("\n" + responseFormat + "\n\nPlease analyze all the data in these tickets and explain the relationships between them.\n")
	return b.String()
}

// UnitPrompt builds the per-pair analysis request with a fixed JSON response
// shape. Free text is excerpted to the configured budget to bound request
// size.
func UnitPrompt(pair chain.TicketPair, budget int) string {
	var b strings.Builder
	switch pair.Type {
	case chain.PairTurnupWithDispatch:
		fmt.Fprintf(&b, "Analyze the service visit recorded in turnup ticket %s, which fulfils dispatch ticket %s.\n\n", pair.PrimaryID, pair.RelatedID)
	case chain.PairTurnupOnly:
		fmt.Fprintf(&b, "Analyze the service visit recorded in turnup ticket %s. No dispatch ticket could be linked to it; note that as an anomaly.\n\n", pair.PrimaryID)
	case chain.PairDispatchOnly:
		fmt.Fprintf(&b, "Analyze dispatch ticket %s. No turnup ticket was ever created for it; determine from the posts whether the visit happened at all.\n\n", pair.PrimaryID)
	}

	writeRecordSection(&b, "PRIMARY TICKET", pair.Primary, budget)
	if pair.Related != nil {
		writeRecordSection(&b, "RELATED DISPATCH", pair.Related, budget)
	}

	fmt.Fprintf(&b, `Respond with JSON only, in exactly this shape:
{
  "primary_ticket": "%s",
  "related_ticket": "%s",
  "visit_outcome": "<completed|partial|failed|unknown>",
  "issues_encountered": ["<one entry per distinct issue>"],
  "missing_information": ["<one entry per gap in the record>"],
  "summary": "<2-3 factual sentences>"
}
`, pair.PrimaryID, pair.RelatedID)
	return b.String()
}

// BatchPrompt builds one request covering a small batch of non-dispatch,
// non-turnup tickets.
func BatchPrompt(batch []*chain.TicketRecord, budget int) string {
	var b strings.Builder
	ids := make([]string, 0, len(batch))
	for _, rec := range batch {
		ids = append(ids, rec.ID)
	}
	fmt.Fprintf(&b, "Analyze the following %d supporting tickets (%s) from one service chain.\n\n", len(batch), strings.Join(ids, ", "))
	for _, rec := range batch {
		writeRecordSection(&b, "TICKET", rec, budget)
	}
	fmt.Fprintf(&b, `Respond with JSON only, in exactly this shape:
{
  "tickets": [%s],
  "issues_encountered": ["<one entry per distinct issue>"],
  "missing_information": ["<one entry per gap in the record>"],
  "summary": "<2-3 factual sentences>"
}
`, quoteJoin(ids))
	return b.String()
}

// FollowUpPrompt scopes one free-form caller question to the whole chain.
func FollowUpPrompt(chainHash, question string) string {
	return fmt.Sprintf("Regarding the ticket chain %s you have been analyzing: %s\n\nAnswer factually from the uploaded ticket data only.", chainHash, question)
}

// ConsolidatedPrompt builds the final cross-ticket report request, folding in
// the compiled issue index so the report reflects every analyzed unit.
func ConsolidatedPrompt(snapshot *chain.ChainSnapshot, index analysis.IssueIndex) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Produce the final consolidated report for ticket chain %s (%d tickets: %s).\n\n",
		snapshot.ChainHash, snapshot.Count, strings.Join(snapshot.TicketIDs(), ", "))

	if len(index.Buckets) > 0 {
		b.WriteString("Issues identified during per-ticket analysis, by category:\n")
		for _, bucket := range []analysis.IssueBucket{
			analysis.BucketScheduling, analysis.BucketTechnical, analysis.BucketCustomer,
			analysis.BucketEquipment, analysis.BucketOther,
		} {
			for _, issue := range index.Buckets[bucket] {
				fmt.Fprintf(&b, "- [%s] %s\n", bucket, issue)
			}
		}
		b.WriteString("\n")
	}
	if len(index.MissingInfo) > 0 {
		b.WriteString("Information flagged as missing:\n")
		for _, m := range index.MissingInfo {
			fmt.Fprintf(&b, "- %s\n", m)
		}
		b.WriteString("\n")
	}

	b.WriteString("Cover the chronological order of visits, the work actually performed, technical findings, the issue summary above, and recommended follow-up actions.\n\n")
	b.WriteString(responseFormat + "\n")
	return b.String()
}

func writeRecordSection(b *strings.Builder, header string, rec *chain.TicketRecord, budget int) {
	fmt.Fprintf(b, "=== %s %s ===\n", header, rec.ID)
	fmt.Fprintf(b, "Subject: %s\n", rec.Subject)
	fmt.Fprintf(b, "Status: %s | Department: %s | Type: %s\n", rec.Status, rec.Department, rec.TicketType)
	fmt.Fprintf(b, "Created: %s | Last Activity: %s | Closed: %s\n",
		formatTime(rec.CreatedAt), formatTime(rec.LastActivity), formatClosed(rec))
	if rec.Location != nil {
		fmt.Fprintf(b, "Site: %s, %s, %s (site %s)\n",
			rec.Location.Address, rec.Location.City, rec.Location.State, rec.Location.SiteNumber)
	}
	if rec.Turnup != nil {
		fmt.Fprintf(b, "Turnup task: technician %s, status %s", rec.Turnup.Technician, rec.Turnup.Status)
		if rec.Turnup.ServiceDate != nil {
			fmt.Fprintf(b, ", service date %s", rec.Turnup.ServiceDate.Format(time.DateOnly))
		}
		b.WriteString("\n")
		if rec.Turnup.WorkPerformed != "" {
			fmt.Fprintf(b, "Work performed: %s\n", textutil.Excerpt(rec.Turnup.WorkPerformed, budget))
		}
	}
	if rec.Dispatch != nil {
		fmt.Fprintf(b, "Dispatch task: customer %s, type %s, status %s\n",
			rec.Dispatch.Customer, rec.Dispatch.ServiceType, rec.Dispatch.Status)
	}

	for _, post := range rec.Posts {
		tag := ""
		if post.Synthetic {
			tag = " (synthesized)"
		}
		fmt.Fprintf(b, "Post %s by %s%s: %s\n",
			post.Time.Format(time.DateTime), post.Author, tag, textutil.Excerpt(post.Body, budget))
	}
	for _, note := range rec.Notes {
		fmt.Fprintf(b, "Note %s by %s: %s\n",
			note.Time.Format(time.DateTime), note.Author, textutil.Excerpt(note.Body, budget))
	}
	b.WriteString("\n")
}

func formatTime(t *time.Time) string {
	if t == nil {
		return "N/A"
	}
	return t.Format(time.DateTime)
}

func formatClosed(rec *chain.TicketRecord) string {
	if rec.ClosedAtSuspect {
		return "suspect (epoch-origin stamp)"
	}
	return formatTime(rec.ClosedAt)
}

func quoteJoin(ids []string) string {
	quoted := make([]string, 0, len(ids))
	for _, id := range ids {
		quoted = append(quoted, `"`+id+`"`)
	}
	return strings.Join(quoted, ", ")
}
