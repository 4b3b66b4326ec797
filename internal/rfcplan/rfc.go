package rfcplan

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/haasonsaas/aiwhisperer/internal/errs"
)

// RFCStatusHistoryEntry is one transition in an RFC's status history,
// spec.md §6's sidecar "status_history[]".
type RFCStatusHistoryEntry struct {
	Timestamp time.Time `json:"timestamp"`
	From      Status    `json:"from"`
	To        Status    `json:"to"`
}

// RFCSidecar is an RFC document's JSON sidecar, spec.md §6's field list.
type RFCSidecar struct {
	RFCID         string                  `json:"rfc_id"`
	Filename      string                  `json:"filename"`
	ShortName     string                  `json:"short_name"`
	Title         string                  `json:"title"`
	Status        Status                  `json:"status"`
	Created       time.Time               `json:"created"`
	Updated       time.Time               `json:"updated"`
	Author        string                  `json:"author"`
	StatusHistory []RFCStatusHistoryEntry `json:"status_history"`
	DerivedPlans  []string                `json:"derived_plans"`
}

// RFC is a loaded RFC document: its sidecar metadata plus markdown body.
type RFC struct {
	Sidecar  RFCSidecar
	Markdown string
}

// CreateRFCOptions are the sectioned-body inputs for a new RFC.
type CreateRFCOptions struct {
	Title                   string
	ShortName               string
	Author                  string
	Summary                 string
	Background              string
	Requirements            string
	TechnicalConsiderations string
	ImplementationApproach  string
	OpenQuestions           string
	AcceptanceCriteria      string
	RelatedRFCs             string
}

var shortNamePattern = regexp.MustCompile(`^[a-z0-9]+(-[a-z0-9]+)*$`)

// CreateRFC allocates the smallest unused rfc_id for today's date,
// derives a disambiguated filename, renders the markdown body, and
// writes both files into rfc/in_progress (spec.md §4.8 "RFC id
// generation").
func (s *Store) CreateRFC(ctx context.Context, opts CreateRFCOptions) (*RFC, error) {
	if opts.Title == "" {
		return nil, errs.New(errs.KindInvalidConfiguration, "rfc title is required")
	}
	if !shortNamePattern.MatchString(opts.ShortName) {
		return nil, errs.New(errs.KindInvalidConfiguration, "short_name must be lowercase-hyphen")
	}

	now := time.Now()
	date := now.Format("2006-01-02")

	unlock := s.lock("rfc:create:" + date)
	defer unlock()

	rfcID, err := s.nextRFCID(date)
	if err != nil {
		return nil, err
	}
	filename, err := s.nextRFCFilename(opts.ShortName, date)
	if err != nil {
		return nil, err
	}

	sidecar := RFCSidecar{
		RFCID:     rfcID,
		Filename:  filename,
		ShortName: opts.ShortName,
		Title:     opts.Title,
		Status:    StatusInProgress,
		Created:   now,
		Updated:   now,
		Author:    opts.Author,
		StatusHistory: []RFCStatusHistoryEntry{
			{Timestamp: now, From: "", To: StatusInProgress},
		},
	}
	markdown := renderRFCMarkdown(sidecar, opts)

	if err := writeDocumentFiles(s.rfcDir(StatusInProgress), filename, markdown, sidecar); err != nil {
		return nil, err
	}
	return &RFC{Sidecar: sidecar, Markdown: markdown}, nil
}

// nextRFCID picks the smallest NNNN ≥ 1 such that RFC-<date>-NNNN is
// unused across both status folders.
func (s *Store) nextRFCID(date string) (string, error) {
	prefix := "RFC-" + date + "-"
	used := map[int]bool{}
	for _, status := range statuses {
		entries, err := os.ReadDir(s.rfcDir(status))
		if err != nil {
			continue
		}
		for _, entry := range entries {
			if !strings.HasSuffix(entry.Name(), ".json") {
				continue
			}
			data, err := os.ReadFile(filepath.Join(s.rfcDir(status), entry.Name()))
			if err != nil {
				continue
			}
			var sc RFCSidecar
			if json.Unmarshal(data, &sc) != nil {
				continue
			}
			if n, ok := strings.CutPrefix(sc.RFCID, prefix); ok {
				if idx, err := strconv.Atoi(n); err == nil {
					used[idx] = true
				}
			}
		}
	}
	for n := 1; ; n++ {
		if !used[n] {
			return fmt.Sprintf("%s%04d", prefix, n), nil
		}
	}
}

// nextRFCFilename derives short_name-date[-k].md, disambiguating against
// every filename already present in either status folder.
func (s *Store) nextRFCFilename(shortName, date string) (string, error) {
	base := shortName + "-" + date
	taken := map[string]bool{}
	for _, status := range statuses {
		entries, err := os.ReadDir(s.rfcDir(status))
		if err != nil {
			continue
		}
		for _, entry := range entries {
			if strings.HasSuffix(entry.Name(), ".md") {
				taken[strings.TrimSuffix(entry.Name(), ".md")] = true
			}
		}
	}
	if !taken[base] {
		return base + ".md", nil
	}
	for k := 2; ; k++ {
		candidate := fmt.Sprintf("%s-%d", base, k)
		if !taken[candidate] {
			return candidate + ".md", nil
		}
	}
}

func sidecarFilename(mdFilename string) string {
	return strings.TrimSuffix(mdFilename, filepath.Ext(mdFilename)) + ".json"
}

// writeDocumentFiles atomically writes a document's markdown and JSON
// sidecar into dir.
func writeDocumentFiles(dir, filename, markdown string, sidecar any) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errs.Wrap(errs.KindPermissionDenied, err, "create directory").WithFilePath(dir)
	}
	mdPath := filepath.Join(dir, filename)
	if err := atomicWriteFile(mdPath, []byte(markdown)); err != nil {
		return err
	}
	data, err := json.MarshalIndent(sidecar, "", "  ")
	if err != nil {
		return errs.Wrap(errs.KindJSONSerializationErr, err, "marshal sidecar")
	}
	return atomicWriteFile(filepath.Join(dir, sidecarFilename(filename)), data)
}

// loadRFCWithLocation scans both status folders for rfcID's sidecar,
// returning the loaded RFC alongside where it currently lives.
func (s *Store) loadRFCWithLocation(rfcID string) (*RFC, Status, string, error) {
	for _, status := range statuses {
		dir := s.rfcDir(status)
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, entry := range entries {
			if !strings.HasSuffix(entry.Name(), ".json") {
				continue
			}
			data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
			if err != nil {
				continue
			}
			var sc RFCSidecar
			if json.Unmarshal(data, &sc) != nil || sc.RFCID != rfcID {
				continue
			}
			mdData, err := os.ReadFile(filepath.Join(dir, sc.Filename))
			if err != nil {
				return nil, "", "", errs.Wrap(errs.KindFileNotFound, err, "read rfc markdown").WithFilePath(sc.Filename)
			}
			return &RFC{Sidecar: sc, Markdown: string(mdData)}, status, dir, nil
		}
	}
	return nil, "", "", errs.New(errs.KindFileNotFound, "rfc not found: "+rfcID)
}

// LoadRFC returns rfcID's current document, wherever its status folder
// places it.
func (s *Store) LoadRFC(rfcID string) (*RFC, error) {
	rfc, _, _, err := s.loadRFCWithLocation(rfcID)
	return rfc, err
}

// TransitionRFC moves rfcID between status folders, rewriting the
// markdown's Status field and appending a history entry, spec.md §4.8's
// RFC state machine. "to" is normalized through normalizeStatus so a
// caller-supplied "new" is accepted as an alias of "in_progress".
func (s *Store) TransitionRFC(ctx context.Context, rfcID string, to string) (*RFC, error) {
	target, err := normalizeStatus(to)
	if err != nil {
		return nil, err
	}

	unlock := s.lock("rfc:" + rfcID)
	defer unlock()

	rfc, from, currentDir, err := s.loadRFCWithLocation(rfcID)
	if err != nil {
		return nil, err
	}
	if from == target {
		return rfc, nil
	}

	now := time.Now()
	rfc.Sidecar.Status = target
	rfc.Sidecar.Updated = now
	rfc.Sidecar.StatusHistory = append(rfc.Sidecar.StatusHistory, RFCStatusHistoryEntry{Timestamp: now, From: from, To: target})
	rfc.Markdown = withUpdatedStatus(rfc.Markdown, target)

	targetDir := s.rfcDir(target)
	if err := writeDocumentFiles(targetDir, rfc.Sidecar.Filename, rfc.Markdown, rfc.Sidecar); err != nil {
		return nil, err
	}

	// Only remove the source copy once the target write has landed, so a
	// crash mid-move leaves the document readable in its old location
	// rather than gone from both.
	_ = os.Remove(filepath.Join(currentDir, rfc.Sidecar.Filename))
	_ = os.Remove(filepath.Join(currentDir, sidecarFilename(rfc.Sidecar.Filename)))

	return rfc, nil
}

// updateRFCSidecar re-reads rfcID, applies mutate to its sidecar, and
// writes it back in place (no folder move).
func (s *Store) updateRFCSidecar(rfcID string, mutate func(*RFCSidecar)) error {
	unlock := s.lock("rfc:" + rfcID)
	defer unlock()

	rfc, _, dir, err := s.loadRFCWithLocation(rfcID)
	if err != nil {
		return err
	}
	mutate(&rfc.Sidecar)
	rfc.Sidecar.Updated = time.Now()
	return writeDocumentFiles(dir, rfc.Sidecar.Filename, rfc.Markdown, rfc.Sidecar)
}

// RFCHash is the SHA-256 hex digest of an RFC's markdown content, spec.md
// §4.8's "rfc_hash = SHA-256(markdown)".
func RFCHash(markdown string) string {
	sum := sha256.Sum256([]byte(markdown))
	return hex.EncodeToString(sum[:])
}
