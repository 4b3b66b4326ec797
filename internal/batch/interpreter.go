package batch

import "regexp"

// commandPattern maps one natural-language phrasing to an {action, params}
// pair. Patterns are tried in order; the first match wins.
type commandPattern struct {
	re     *regexp.Regexp
	action string
	build  func(groups []string) map[string]any
}

// commandPatterns is the curated regex set spec.md §4.7 calls for,
// grounded on the worked example in spec.md §9: "list files in src/" →
// {action:"list_files", path:"src/"}, "read file src/main.rs" →
// {action:"read_file", path:"src/main.rs"}.
var commandPatterns = []commandPattern{
	{
		re:     regexp.MustCompile(`(?i)^list(?: the)? files?(?: in)? (.+)$`),
		action: "list_files",
		build:  func(g []string) map[string]any { return map[string]any{"path": g[1]} },
	},
	{
		re:     regexp.MustCompile(`(?i)^read(?: the)? file (.+)$`),
		action: "read_file",
		build:  func(g []string) map[string]any { return map[string]any{"path": g[1]} },
	},
	{
		re:     regexp.MustCompile(`(?i)^create(?: a)? file (?:called |named )?(\S+)$`),
		action: "create_file",
		build:  func(g []string) map[string]any { return map[string]any{"path": g[1]} },
	},
	{
		re:     regexp.MustCompile(`(?i)^write (.+) to (\S+)$`),
		action: "write_file",
		build:  func(g []string) map[string]any { return map[string]any{"path": g[2], "content": g[1]} },
	},
	{
		re:     regexp.MustCompile(`(?i)^search(?: for)? (.+) in (.+)$`),
		action: "search_files",
		build:  func(g []string) map[string]any { return map[string]any{"query": g[1], "path": g[2]} },
	},
	{
		re:     regexp.MustCompile(`(?i)^switch(?: to)? agent (\S+)$`),
		action: "switch_agent",
		build:  func(g []string) map[string]any { return map[string]any{"agent": g[1]} },
	},
}

// InterpretCommand resolves a natural-language command line into an
// {action, params} pair, spec.md §4.7's "run the natural-language
// interpreter → {action, params} and delegate to case 1".
func InterpretCommand(command string) (action string, params map[string]any, ok bool) {
	for _, pattern := range commandPatterns {
		if groups := pattern.re.FindStringSubmatch(command); groups != nil {
			return pattern.action, pattern.build(groups), true
		}
	}
	return "", nil, false
}
