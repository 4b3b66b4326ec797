package rfcplan

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/haasonsaas/aiwhisperer/internal/errs"
)

// TDDPhase is one of the three red/green/refactor buckets a plan task
// belongs to, spec.md §6's task shape.
type TDDPhase string

const (
	PhaseRed      TDDPhase = "red"
	PhaseGreen    TDDPhase = "green"
	PhaseRefactor TDDPhase = "refactor"
)

// Task is a single unit of work inside a Plan.
type Task struct {
	Name               string   `json:"name"`
	Description        string   `json:"description"`
	AgentType          string   `json:"agent_type"`
	Dependencies       []string `json:"dependencies"`
	TDDPhase           TDDPhase `json:"tdd_phase"`
	ValidationCriteria []string `json:"validation_criteria"`
	Status             string   `json:"status,omitempty"`
}

// SourceRFCRef records which RFC a plan was generated from.
type SourceRFCRef struct {
	RFCID string `json:"rfc_id"`
	Title string `json:"title"`
}

// Plan is the TDD plan document derived from an RFC, spec.md §6's Plan
// JSON shape.
type Plan struct {
	PlanType           string                `json:"plan_type"`
	Title              string                `json:"title"`
	Description        string                `json:"description"`
	AgentType          string                `json:"agent_type"`
	TDDPhases          map[TDDPhase][]string `json:"tdd_phases"`
	Tasks              []Task                `json:"tasks"`
	ValidationCriteria []string              `json:"validation_criteria"`
	SourceRFC          SourceRFCRef          `json:"source_rfc"`
	Created            time.Time             `json:"created"`
	Updated            time.Time             `json:"updated"`
	RefinementHistory  []string              `json:"refinement_history"`
}

// SyncEntry is one hash-drift reconciliation, recorded in
// rfc_reference.json's "sync_history[]".
type SyncEntry struct {
	Timestamp       time.Time `json:"timestamp"`
	PreviousHash    string    `json:"previous_hash"`
	NewHash         string    `json:"new_hash"`
	ChangesDetected bool      `json:"changes_detected"`
}

// RFCReference is a plan's rfc_reference.json sidecar: the link a plan
// carries back to the RFC it was generated from, and the invariant that
// lets drift be detected (spec.md §4.8 core invariant).
type RFCReference struct {
	RFCID       string      `json:"rfc_id"`
	RFCHash     string      `json:"rfc_hash"`
	RFCPath     string      `json:"rfc_path"`
	LastSync    time.Time   `json:"last_sync"`
	SyncHistory []SyncEntry `json:"sync_history"`
}

// PreparedPlan is the bundle returned to the caller so an LLM can
// generate the actual plan JSON: the RFC content plus its current hash.
type PreparedPlan struct {
	PlanName string
	RFCID    string
	RFCHash  string
	Markdown string
}

// PreparePlan loads rfcID and returns the content an agent needs to
// generate a plan from it, spec.md §4.8's Plan "Prepare" operation. The
// generation step itself is the caller's responsibility — this package
// only prepares the inputs and later persists the result.
func (s *Store) PreparePlan(ctx context.Context, rfcID string) (*PreparedPlan, error) {
	rfc, err := s.LoadRFC(rfcID)
	if err != nil {
		return nil, err
	}
	planName := fmt.Sprintf("%s-plan-%s", rfc.Sidecar.ShortName, time.Now().Format("2006-01-02"))
	return &PreparedPlan{
		PlanName: planName,
		RFCID:    rfcID,
		RFCHash:  RFCHash(rfc.Markdown),
		Markdown: rfc.Markdown,
	}, nil
}

func (s *Store) planDocDir(status Status, planName string) string {
	return filepath.Join(s.planDir(status), planName)
}

// SaveGeneratedPlan validates and persists an LLM-generated plan under
// plans/in_progress/<planName>, writing the plan body and its
// rfc_reference.json sidecar, then records the plan against the source
// RFC's derived_plans (spec.md §4.8 Plan "Save").
func (s *Store) SaveGeneratedPlan(ctx context.Context, planName string, planJSON []byte, rfcID, rfcHash string) (*Plan, error) {
	if err := validatePlanJSON(planJSON); err != nil {
		return nil, err
	}
	var plan Plan
	if err := json.Unmarshal(planJSON, &plan); err != nil {
		return nil, errs.Wrap(errs.KindJSONSerializationErr, err, "unmarshal generated plan")
	}

	unlock := s.lock("plan:" + planName)
	defer unlock()

	now := time.Now()
	plan.Created = now
	plan.Updated = now
	plan.SourceRFC.RFCID = rfcID

	rfc, status, _, err := s.loadRFCWithLocation(rfcID)
	if err != nil {
		return nil, err
	}
	plan.SourceRFC.Title = rfc.Sidecar.Title

	dir := s.planDocDir(StatusInProgress, planName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errs.Wrap(errs.KindPermissionDenied, err, "create plan directory").WithFilePath(dir)
	}

	planData, err := json.MarshalIndent(plan, "", "  ")
	if err != nil {
		return nil, errs.Wrap(errs.KindJSONSerializationErr, err, "marshal plan")
	}
	if err := atomicWriteFile(filepath.Join(dir, "plan.json"), planData); err != nil {
		return nil, err
	}

	ref := RFCReference{
		RFCID:    rfcID,
		RFCHash:  rfcHash,
		RFCPath:  filepath.Join(string(status), rfc.Sidecar.Filename),
		LastSync: now,
	}
	refData, err := json.MarshalIndent(ref, "", "  ")
	if err != nil {
		return nil, errs.Wrap(errs.KindJSONSerializationErr, err, "marshal rfc reference")
	}
	if err := atomicWriteFile(filepath.Join(dir, "rfc_reference.json"), refData); err != nil {
		return nil, err
	}

	if err := s.updateRFCSidecar(rfcID, func(sc *RFCSidecar) {
		if !containsString(sc.DerivedPlans, planName) {
			sc.DerivedPlans = append(sc.DerivedPlans, planName)
		}
	}); err != nil {
		return nil, err
	}

	return &plan, nil
}

// findPlanDir locates which status folder currently holds planName.
func (s *Store) findPlanDir(planName string) (Status, string, error) {
	for _, status := range statuses {
		dir := s.planDocDir(status, planName)
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			return status, dir, nil
		}
	}
	return "", "", errs.New(errs.KindFileNotFound, "plan not found: "+planName)
}

func (s *Store) loadPlanWithReference(planName string) (*Plan, *RFCReference, string, error) {
	_, dir, err := s.findPlanDir(planName)
	if err != nil {
		return nil, nil, "", err
	}
	planData, err := os.ReadFile(filepath.Join(dir, "plan.json"))
	if err != nil {
		return nil, nil, "", errs.Wrap(errs.KindFileNotFound, err, "read plan.json").WithFilePath(dir)
	}
	var plan Plan
	if err := json.Unmarshal(planData, &plan); err != nil {
		return nil, nil, "", errs.Wrap(errs.KindJSONSerializationErr, err, "unmarshal plan.json")
	}
	refData, err := os.ReadFile(filepath.Join(dir, "rfc_reference.json"))
	if err != nil {
		return nil, nil, "", errs.Wrap(errs.KindFileNotFound, err, "read rfc_reference.json").WithFilePath(dir)
	}
	var ref RFCReference
	if err := json.Unmarshal(refData, &ref); err != nil {
		return nil, nil, "", errs.Wrap(errs.KindJSONSerializationErr, err, "unmarshal rfc_reference.json")
	}
	return &plan, &ref, dir, nil
}

// UpdateOptions configures UpdateFromRFC.
type UpdateOptions struct {
	Force            bool
	PreserveProgress bool
	// Regenerate produces new plan JSON from the current RFC content and
	// hash. Required whenever drift is detected (or Force is set).
	Regenerate func(ctx context.Context, rfcMarkdown, rfcHash string) ([]byte, error)
}

// UpdateResult reports whether UpdateFromRFC found drift and regenerated.
type UpdateResult struct {
	Drifted bool
	Plan    *Plan
}

// UpdateFromRFC recomputes the source RFC's current hash and, if it
// differs from the plan's recorded rfc_hash (or Force is set),
// regenerates the plan via opts.Regenerate — the drift-detection half of
// spec.md §4.8's core invariant ("a plan with a live RFC reference
// cannot silently drift").
func (s *Store) UpdateFromRFC(ctx context.Context, planName string, opts UpdateOptions) (*UpdateResult, error) {
	unlock := s.lock("plan:" + planName)
	defer unlock()

	plan, ref, dir, err := s.loadPlanWithReference(planName)
	if err != nil {
		return nil, err
	}

	rfc, err := s.LoadRFC(ref.RFCID)
	if err != nil {
		return nil, err
	}
	currentHash := RFCHash(rfc.Markdown)

	if currentHash == ref.RFCHash && !opts.Force {
		return &UpdateResult{Drifted: false, Plan: plan}, nil
	}

	if opts.Regenerate == nil {
		return nil, errs.New(errs.KindInvalidConfiguration, "plan has drifted from its rfc but no regenerate callback was supplied")
	}
	newPlanJSON, err := opts.Regenerate(ctx, rfc.Markdown, currentHash)
	if err != nil {
		return nil, errs.Wrap(errs.KindToolExecutionError, err, "regenerate plan from rfc")
	}
	if err := validatePlanJSON(newPlanJSON); err != nil {
		return nil, err
	}
	var newPlan Plan
	if err := json.Unmarshal(newPlanJSON, &newPlan); err != nil {
		return nil, errs.Wrap(errs.KindJSONSerializationErr, err, "unmarshal regenerated plan")
	}

	if opts.PreserveProgress {
		preserveTaskStatus(plan.Tasks, newPlan.Tasks)
	}
	newPlan.Created = plan.Created
	newPlan.SourceRFC = plan.SourceRFC
	newPlan.Updated = time.Now()

	planData, err := json.MarshalIndent(newPlan, "", "  ")
	if err != nil {
		return nil, errs.Wrap(errs.KindJSONSerializationErr, err, "marshal regenerated plan")
	}
	if err := atomicWriteFile(filepath.Join(dir, "plan.json"), planData); err != nil {
		return nil, err
	}

	ref.SyncHistory = append(ref.SyncHistory, SyncEntry{
		Timestamp:       newPlan.Updated,
		PreviousHash:    ref.RFCHash,
		NewHash:         currentHash,
		ChangesDetected: true,
	})
	ref.RFCHash = currentHash
	ref.LastSync = newPlan.Updated
	refData, err := json.MarshalIndent(ref, "", "  ")
	if err != nil {
		return nil, errs.Wrap(errs.KindJSONSerializationErr, err, "marshal rfc reference")
	}
	if err := atomicWriteFile(filepath.Join(dir, "rfc_reference.json"), refData); err != nil {
		return nil, err
	}

	return &UpdateResult{Drifted: true, Plan: &newPlan}, nil
}

// preserveTaskStatus carries forward old[i].Status onto the matching (by
// Name) task in newTasks, so a plan regenerated after an RFC edit doesn't
// lose in-flight task progress.
func preserveTaskStatus(old, newTasks []Task) {
	byName := make(map[string]string, len(old))
	for _, t := range old {
		if t.Status != "" {
			byName[t.Name] = t.Status
		}
	}
	for i := range newTasks {
		if status, ok := byName[newTasks[i].Name]; ok {
			newTasks[i].Status = status
		}
	}
}

// MovePlan transitions planName between status folders by moving its
// whole directory, spec.md §4.8 Plan "Move".
func (s *Store) MovePlan(ctx context.Context, planName string, to string) error {
	target, err := normalizeStatus(to)
	if err != nil {
		return err
	}

	unlock := s.lock("plan:" + planName)
	defer unlock()

	current, dir, err := s.findPlanDir(planName)
	if err != nil {
		return err
	}
	if current == target {
		return nil
	}
	targetDir := s.planDocDir(target, planName)
	if err := os.MkdirAll(s.planDir(target), 0o755); err != nil {
		return errs.Wrap(errs.KindPermissionDenied, err, "create plan status directory").WithFilePath(s.planDir(target))
	}
	if err := os.Rename(dir, targetDir); err != nil {
		return errs.Wrap(errs.KindDiskFull, err, "move plan directory").WithFilePath(dir)
	}
	return nil
}

// DeletePlan removes planName's directory and unlinks it from its source
// RFC's derived_plans, spec.md §4.8 Plan "Delete".
func (s *Store) DeletePlan(ctx context.Context, planName string) error {
	unlock := s.lock("plan:" + planName)
	defer unlock()

	_, dir, err := s.findPlanDir(planName)
	if err != nil {
		return err
	}

	var rfcID string
	if refData, err := os.ReadFile(filepath.Join(dir, "rfc_reference.json")); err == nil {
		var ref RFCReference
		if json.Unmarshal(refData, &ref) == nil {
			rfcID = ref.RFCID
		}
	}

	if err := os.RemoveAll(dir); err != nil {
		return errs.Wrap(errs.KindDiskFull, err, "remove plan directory").WithFilePath(dir)
	}

	if rfcID == "" {
		return nil
	}
	return s.updateRFCSidecar(rfcID, func(sc *RFCSidecar) {
		sc.DerivedPlans = removeString(sc.DerivedPlans, planName)
	})
}
