package rfcplan

import (
	"fmt"
	"regexp"
	"strings"
)

// renderRFCMarkdown builds the sectioned markdown body spec.md §6's "RFC
// markdown format" describes: an H1 title, a metadata block, and the
// standard H2 sections.
func renderRFCMarkdown(sidecar RFCSidecar, opts CreateRFCOptions) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# RFC: %s\n\n", sidecar.Title)
	fmt.Fprintf(&b, "**RFC ID**: %s\n", sidecar.RFCID)
	fmt.Fprintf(&b, "**Status**: %s\n", sidecar.Status)
	fmt.Fprintf(&b, "**Created**: %s\n", sidecar.Created.Format("2006-01-02"))
	fmt.Fprintf(&b, "**Last Updated**: %s\n", sidecar.Updated.Format("2006-01-02"))
	fmt.Fprintf(&b, "**Author**: %s\n\n", sidecar.Author)

	section := func(title, body string) {
		fmt.Fprintf(&b, "## %s\n\n%s\n\n", title, strings.TrimSpace(body))
	}
	section("Summary", opts.Summary)
	section("Background", opts.Background)
	section("Requirements", opts.Requirements)
	section("Technical Considerations", opts.TechnicalConsiderations)
	section("Implementation Approach", opts.ImplementationApproach)
	section("Open Questions", opts.OpenQuestions)
	section("Acceptance Criteria", opts.AcceptanceCriteria)
	section("Related RFCs", opts.RelatedRFCs)
	section("Refinement History", "")

	return b.String()
}

var statusLinePattern = regexp.MustCompile(`(?m)^\*\*Status\*\*:\s*.*$`)

// withUpdatedStatus rewrites the markdown's "**Status**: ..." metadata
// line in place, the rewrite half of spec.md §4.8's state machine
// ("Transitions rewrite the Status field in the markdown").
func withUpdatedStatus(markdown string, status Status) string {
	return statusLinePattern.ReplaceAllString(markdown, "**Status**: "+string(status))
}
