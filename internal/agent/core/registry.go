package core

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/osintlab/robin/internal/agent/telemetry"
	"github.com/osintlab/robin/session"
	"github.com/osintlab/robin/session/session_models"
	"github.com/osintlab/robin/tools/web_scrape"
	"github.com/osintlab/robin/tools/web_search"
)

const (
	maxDisplayResults  = 50
	maxDisplayChars    = 2000
	minMeaningfulChars = 50
)

// ToolRegistry executes the coordinator's investigation tools and formats
// their output for the reasoning context.
type ToolRegistry struct {
	searcher   *web_search.Aggregator
	scraper    *web_scrape.Scraper
	store      session.Store
	reportsDir string
	telemetry  *telemetry.Telemetry
	logger     *log.Logger
}

// NewToolRegistry wires the search and scrape pools into the tool surface.
func NewToolRegistry(searcher *web_search.Aggregator, scraper *web_scrape.Scraper, store session.Store, reportsDir string, tel *telemetry.Telemetry, logger *log.Logger) *ToolRegistry {
	if logger == nil {
		logger = log.New(log.Writer(), "[TOOLS] ", log.LstdFlags)
	}
	if reportsDir == "" {
		reportsDir = "reports"
	}
	return &ToolRegistry{
		searcher:   searcher,
		scraper:    scraper,
		store:      store,
		reportsDir: reportsDir,
		telemetry:  tel,
		logger:     logger,
	}
}

// Names returns the tool names the registry can execute.
func (r *ToolRegistry) Names() []string {
	return []string{ToolDarkwebSearch, ToolDarkwebScrape, ToolSaveReport}
}

// Execute runs one tool call. The returned string is tool output for the
// model context; tool failures that still produced usable guidance are
// returned as output, not error. invID scopes findings to the
// investigation being run.
func (r *ToolRegistry) Execute(ctx context.Context, invID, tool string, input map[string]any) (string, error) {
	switch tool {
	case ToolDarkwebSearch:
		return r.search(ctx, invID, input)
	case ToolDarkwebScrape:
		return r.scrape(ctx, invID, input)
	case ToolSaveReport:
		return r.saveReport(input)
	default:
		return "", fmt.Errorf("unknown tool %q; available tools: %s", tool, strings.Join(r.Names(), ", "))
	}
}

func (r *ToolRegistry) search(ctx context.Context, invID string, input map[string]any) (string, error) {
	query, _ := input["query"].(string)
	if strings.TrimSpace(query) == "" {
		return "", fmt.Errorf("darkweb_search requires a query")
	}

	results, failures, err := r.searcher.Search(ctx, query)
	if err != nil {
		return "", fmt.Errorf("search failed: %w; check proxy connectivity", err)
	}
	if r.telemetry != nil {
		seen := map[string]bool{}
		for _, res := range results {
			if !seen[res.Engine] {
				seen[res.Engine] = true
				r.telemetry.EngineQueried(res.Engine, true)
			}
		}
		for _, f := range failures {
			r.telemetry.EngineQueried(f.Engine, false)
		}
	}
	if len(results) == 0 {
		return "No results found. Try refining your search query or check proxy connectivity.", nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Found **%d** unique results from dark web search engines.\n\n", len(results))
	display := results
	if len(display) > maxDisplayResults {
		display = display[:maxDisplayResults]
	}
	for i, res := range display {
		title := res.Title
		if len(title) > 80 {
			title = title[:80] + "..."
		}
		fmt.Fprintf(&b, "%d. **%s**\n   URL: %s\n\n", i+1, title, res.URL)
	}
	if len(results) > maxDisplayResults {
		fmt.Fprintf(&b, "... and %d more results.\n\n", len(results)-maxDisplayResults)
	}
	if len(failures) > 0 {
		names := make([]string, 0, len(failures))
		for _, f := range failures {
			names = append(names, f.Engine)
		}
		fmt.Fprintf(&b, "(%d engine(s) failed or timed out: %s)\n\n", len(failures), strings.Join(names, ", "))
	}
	b.WriteString("**Next step**: Select the most relevant results and use `darkweb_scrape` with their URLs.")
	return b.String(), nil
}

func (r *ToolRegistry) scrape(ctx context.Context, invID string, input map[string]any) (string, error) {
	urls := stringSlice(input["urls"])
	if len(urls) == 0 {
		return "", fmt.Errorf("darkweb_scrape requires a non-empty urls list")
	}

	docs, err := r.scraper.Scrape(ctx, urls)
	if err != nil {
		return "", fmt.Errorf("scrape failed: %w", err)
	}
	if r.telemetry != nil {
		for _, doc := range docs {
			r.telemetry.Fetched(doc.Error == "")
		}
	}

	var b strings.Builder
	success := 0
	for _, doc := range docs {
		if doc.Error != "" {
			fmt.Fprintf(&b, "## Source: %s\n\n*[Fetch failed: %s]*\n\n---\n", doc.URL, doc.Error)
			continue
		}
		if len(doc.Content) < minMeaningfulChars {
			fmt.Fprintf(&b, "## Source: %s\n\n*[Minimal or no content extracted]*\n\n---\n", doc.URL)
			continue
		}
		success++
		r.recordFinding(ctx, invID, doc)
		content := doc.Content
		if len(content) > maxDisplayChars {
			content = content[:maxDisplayChars] + "..."
		}
		fmt.Fprintf(&b, "## Source: %s\n\n%s\n\n---\n", doc.URL, content)
	}

	header := fmt.Sprintf("Successfully scraped **%d/%d** pages.\n\n", success, len(urls))
	footer := "\n**Next step**: Analyze this content for intelligence artifacts, or delegate to specialist sub-agents."
	return header + b.String() + footer, nil
}

// recordFinding keeps the full (untruncated) scraped text in the session
// store so delegated specialists can retrieve it later.
func (r *ToolRegistry) recordFinding(ctx context.Context, invID string, doc web_scrape.Document) {
	if r.store == nil || invID == "" {
		return
	}
	finding := session_models.Finding{
		ID:      uuid.NewString(),
		URL:     doc.URL,
		Title:   doc.Title,
		Content: doc.Content,
		AddedAt: doc.FetchedAt,
	}
	if err := r.store.AddFinding(ctx, invID, finding); err != nil {
		r.logger.Printf("warn: recording finding for %s: %v", doc.URL, err)
	}
}

func (r *ToolRegistry) saveReport(input map[string]any) (string, error) {
	content, _ := input["content"].(string)
	if strings.TrimSpace(content) == "" {
		return "", fmt.Errorf("save_report requires non-empty content")
	}
	filename, _ := input["filename"].(string)
	if filename == "" {
		filename = fmt.Sprintf("robin_report_%s.md", time.Now().Format("2006-01-02_15-04-05"))
	}
	if !strings.HasSuffix(filename, ".md") {
		filename += ".md"
	}

	if err := os.MkdirAll(r.reportsDir, 0o755); err != nil {
		return "", fmt.Errorf("creating reports dir: %w", err)
	}
	path := filepath.Join(r.reportsDir, filepath.Base(filename))
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("writing report: %w", err)
	}
	r.logger.Printf("report saved to %s", path)
	return fmt.Sprintf("Report saved successfully to **%s**", path), nil
}

func stringSlice(v any) []string {
	switch vals := v.(type) {
	case []string:
		return vals
	case []any:
		out := make([]string, 0, len(vals))
		for _, item := range vals {
			if s, ok := item.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	case string:
		if vals == "" {
			return nil
		}
		return []string{vals}
	default:
		return nil
	}
}
