// Package research provides the web collaborators used by the research
// branch and by link ingestion.
//
// Tools:
//   - web_search: DuckDuckGo HTML search, results as title/body/url
//   - web_fetch: page text extraction with structured, generic and optional
//     headless-render stages
//   - cache: TTL cache shared by search and extraction
package research
