package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/dpatel76/SynapseDTE2-sub001/modules/scoping/domain/types"
	"github.com/dpatel76/SynapseDTE2-sub001/modules/scoping/services"
)

type TenantIDGetter func(ctx context.Context) (tenantID string, ok bool)

// WorkflowController translates the HTTP surface into gateway calls. All
// decision/version semantics live behind the gateway; the controller only
// parses, normalizes enum spellings, and maps errors to stable codes.
type WorkflowController struct {
	TenantID TenantIDGetter
	Gateway  *services.WorkflowGateway
	Autosave *services.AutoSaveCoordinator
}

type cycleAPIRequest struct {
	CycleID  string         `json:"cycle_id"`
	ReportID string         `json:"report_id"`
	Phase    string         `json:"phase"`
	Items    []itemAPIEntry `json:"items"`
}

type itemAPIEntry struct {
	ItemID   string `json:"item_id"`
	IsLocked bool   `json:"is_locked"`
	GroupKey string `json:"group_key,omitempty"`
}

type decisionAPIRequest struct {
	VersionID string `json:"version_id"`
	ItemID    string `json:"item_id"`
	Decision  string `json:"decision"`
	Rationale string `json:"rationale,omitempty"`
}

type bulkDecisionAPIRequest struct {
	VersionID string   `json:"version_id"`
	ItemIDs   []string `json:"item_ids"`
	Decision  string   `json:"decision"`
	Rationale string   `json:"rationale,omitempty"`
}

type ownerDecisionAPIRequest struct {
	VersionID string `json:"version_id"`
	ItemID    string `json:"item_id"`
	Decision  string `json:"decision"`
	Notes     string `json:"notes,omitempty"`
}

type versionActionAPIRequest struct {
	VersionID string `json:"version_id"`
	Notes     string `json:"notes,omitempty"`
	Reason    string `json:"reason,omitempty"`
}

type autosaveAPIRequest struct {
	VersionID string `json:"version_id"`
	ItemID    string `json:"item_id"`
	Field     string `json:"field"`
	Value     string `json:"value"`
}

func (c WorkflowController) HandleCycles(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := c.tenant(w, r)
	if !ok {
		return
	}
	if r.Method != http.MethodPost {
		writeError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "use POST")
		return
	}
	var req cycleAPIRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	scope, ok := parseScope(w, r, req.CycleID, req.ReportID, req.Phase)
	if !ok {
		return
	}
	items := make([]types.Item, 0, len(req.Items))
	for _, entry := range req.Items {
		if strings.TrimSpace(entry.ItemID) == "" {
			writeError(w, r, http.StatusBadRequest, "invalid_item", "item_id is required")
			return
		}
		items = append(items, types.Item{ItemID: entry.ItemID, IsLocked: entry.IsLocked, GroupKey: entry.GroupKey})
	}

	version, err := c.Gateway.StartReviewCycle(r.Context(), tenantID, scope, items)
	if err != nil {
		writeWorkflowError(w, r, err, "start cycle failed")
		return
	}
	writeJSON(w, map[string]any{"version": version})
}

func (c WorkflowController) HandleVersions(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := c.tenant(w, r)
	if !ok {
		return
	}
	if r.Method != http.MethodGet {
		writeError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "use GET")
		return
	}
	q := r.URL.Query()
	scope, ok := parseScope(w, r, q.Get("cycle_id"), q.Get("report_id"), q.Get("phase"))
	if !ok {
		return
	}
	versions, err := c.Gateway.ListVersions(r.Context(), tenantID, scope)
	if err != nil {
		writeWorkflowError(w, r, err, "list versions failed")
		return
	}
	writeJSON(w, map[string]any{"scope": scope, "versions": versions})
}

func (c WorkflowController) HandleDecisions(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := c.tenant(w, r)
	if !ok {
		return
	}
	switch r.Method {
	case http.MethodGet:
		versionID := strings.TrimSpace(r.URL.Query().Get("version_id"))
		if versionID == "" {
			writeError(w, r, http.StatusBadRequest, "missing_version_id", "version_id is required")
			return
		}
		rows, counts, err := c.Gateway.ListDecisions(r.Context(), tenantID, versionID)
		if err != nil {
			writeWorkflowError(w, r, err, "list decisions failed")
			return
		}
		writeJSON(w, map[string]any{"version_id": versionID, "decisions": rows, "counts": counts})

	case http.MethodPost:
		var req decisionAPIRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		decision, ok := types.ParseTesterDecision(req.Decision)
		if !ok {
			writeError(w, r, http.StatusBadRequest, "invalid_decision", "decision must be include or exclude")
			return
		}
		write, err := c.Gateway.RecordTesterDecision(r.Context(), tenantID, req.VersionID, req.ItemID, decision, req.Rationale)
		if err != nil {
			writeWorkflowError(w, r, err, "record decision failed")
			return
		}
		writeJSON(w, write)

	default:
		writeError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "use GET or POST")
	}
}

func (c WorkflowController) HandleBulkDecisions(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := c.tenant(w, r)
	if !ok {
		return
	}
	if r.Method != http.MethodPost {
		writeError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "use POST")
		return
	}
	var req bulkDecisionAPIRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if len(req.ItemIDs) == 0 {
		writeError(w, r, http.StatusBadRequest, "missing_item_ids", "item_ids is required")
		return
	}
	decision, ok := types.ParseTesterDecision(req.Decision)
	if !ok {
		writeError(w, r, http.StatusBadRequest, "invalid_decision", "decision must be include or exclude")
		return
	}
	write, err := c.Gateway.BulkRecordTesterDecision(r.Context(), tenantID, req.VersionID, req.ItemIDs, decision, req.Rationale)
	if err != nil {
		writeWorkflowError(w, r, err, "bulk record failed")
		return
	}
	writeJSON(w, write)
}

func (c WorkflowController) HandleOwnerDecisions(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := c.tenant(w, r)
	if !ok {
		return
	}
	if r.Method != http.MethodPost {
		writeError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "use POST")
		return
	}
	var req ownerDecisionAPIRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	decision, ok := types.ParseOwnerDecision(req.Decision)
	if !ok {
		writeError(w, r, http.StatusBadRequest, "invalid_decision", "decision must be approved, rejected or needs_revision")
		return
	}
	write, err := c.Gateway.RecordReportOwnerDecision(r.Context(), tenantID, req.VersionID, req.ItemID, decision, req.Notes)
	if err != nil {
		writeWorkflowError(w, r, err, "record owner decision failed")
		return
	}
	writeJSON(w, write)
}

func (c WorkflowController) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	c.versionAction(w, r, func(ctx context.Context, tenantID string, req versionActionAPIRequest) (types.DecisionVersion, error) {
		return c.Gateway.SubmitVersion(ctx, tenantID, req.VersionID, req.Notes)
	})
}

func (c WorkflowController) HandleApprove(w http.ResponseWriter, r *http.Request) {
	c.versionAction(w, r, func(ctx context.Context, tenantID string, req versionActionAPIRequest) (types.DecisionVersion, error) {
		return c.Gateway.ApproveVersion(ctx, tenantID, req.VersionID, req.Notes)
	})
}

func (c WorkflowController) HandleReject(w http.ResponseWriter, r *http.Request) {
	c.versionAction(w, r, func(ctx context.Context, tenantID string, req versionActionAPIRequest) (types.DecisionVersion, error) {
		return c.Gateway.RejectVersion(ctx, tenantID, req.VersionID, req.Reason)
	})
}

func (c WorkflowController) HandleRequestRevision(w http.ResponseWriter, r *http.Request) {
	c.versionAction(w, r, func(ctx context.Context, tenantID string, req versionActionAPIRequest) (types.DecisionVersion, error) {
		return c.Gateway.RequestRevision(ctx, tenantID, req.VersionID, req.Reason)
	})
}

func (c WorkflowController) HandleResubmit(w http.ResponseWriter, r *http.Request) {
	c.versionAction(w, r, func(ctx context.Context, tenantID string, req versionActionAPIRequest) (types.DecisionVersion, error) {
		return c.Gateway.CreateResubmission(ctx, tenantID, req.VersionID)
	})
}

func (c WorkflowController) HandleResolve(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := c.tenant(w, r)
	if !ok {
		return
	}
	if r.Method != http.MethodPost {
		writeError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "use POST")
		return
	}
	var req versionActionAPIRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	outcome, err := c.Gateway.CheckAndResolve(r.Context(), tenantID, req.VersionID)
	if err != nil {
		writeWorkflowError(w, r, err, "resolve failed")
		return
	}
	writeJSON(w, outcome)
}

// HandleAutosave debounces free-text edits: the commit runs after the quiet
// period, or on the next flush, whichever comes first. Decision toggles do
// not pass through here.
func (c WorkflowController) HandleAutosave(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := c.tenant(w, r)
	if !ok {
		return
	}
	if r.Method != http.MethodPost {
		writeError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "use POST")
		return
	}
	var req autosaveAPIRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.VersionID == "" || req.ItemID == "" {
		writeError(w, r, http.StatusBadRequest, "invalid_request", "version_id and item_id are required")
		return
	}

	key := req.VersionID + "|" + req.ItemID + "|" + req.Field
	switch req.Field {
	case "tester_rationale":
		c.Autosave.Schedule(key, req.Value, func(ctx context.Context, value string) error {
			_, err := c.Gateway.UpdateTesterRationale(ctx, tenantID, req.VersionID, req.ItemID, value)
			return err
		})
	case "owner_notes":
		c.Autosave.Schedule(key, req.Value, func(ctx context.Context, value string) error {
			_, err := c.Gateway.UpdateOwnerNotes(ctx, tenantID, req.VersionID, req.ItemID, value)
			return err
		})
	default:
		writeError(w, r, http.StatusBadRequest, "invalid_field", "field must be tester_rationale or owner_notes")
		return
	}
	writeJSON(w, map[string]any{"scheduled": true, "unsaved_keys": c.Autosave.UnsavedKeys()})
}

// HandleAutosaveFlush commits every pending edit synchronously; the UI calls
// it on navigation-away.
func (c WorkflowController) HandleAutosaveFlush(w http.ResponseWriter, r *http.Request) {
	if _, ok := c.tenant(w, r); !ok {
		return
	}
	if r.Method != http.MethodPost {
		writeError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "use POST")
		return
	}
	c.Autosave.FlushAll(r.Context())
	writeJSON(w, map[string]any{"flushed": true, "unsaved_keys": c.Autosave.UnsavedKeys()})
}

func (c WorkflowController) versionAction(w http.ResponseWriter, r *http.Request, action func(ctx context.Context, tenantID string, req versionActionAPIRequest) (types.DecisionVersion, error)) {
	tenantID, ok := c.tenant(w, r)
	if !ok {
		return
	}
	if r.Method != http.MethodPost {
		writeError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "use POST")
		return
	}
	var req versionActionAPIRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.VersionID) == "" {
		writeError(w, r, http.StatusBadRequest, "missing_version_id", "version_id is required")
		return
	}
	version, err := action(r.Context(), tenantID, req)
	if err != nil {
		writeWorkflowError(w, r, err, "version action failed")
		return
	}
	writeJSON(w, map[string]any{"version": version})
}

func (c WorkflowController) tenant(w http.ResponseWriter, r *http.Request) (string, bool) {
	tenantID, ok := c.TenantID(r.Context())
	if !ok {
		writeError(w, r, http.StatusInternalServerError, "tenant_missing", "tenant missing")
		return "", false
	}
	return tenantID, true
}

func parseScope(w http.ResponseWriter, r *http.Request, cycleID, reportID, rawPhase string) (types.Scope, bool) {
	cycleID = strings.TrimSpace(cycleID)
	reportID = strings.TrimSpace(reportID)
	if cycleID == "" || reportID == "" {
		writeError(w, r, http.StatusBadRequest, "invalid_scope", "cycle_id and report_id are required")
		return types.Scope{}, false
	}
	phase, ok := types.ParsePhase(rawPhase)
	if !ok {
		writeError(w, r, http.StatusBadRequest, "invalid_phase", "phase must be planning, scoping, test-execution or data-profiling")
		return types.Scope{}, false
	}
	return types.Scope{CycleID: cycleID, ReportID: reportID, Phase: phase}, true
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, r, http.StatusBadRequest, "bad_json", "bad json")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	_ = json.NewEncoder(w).Encode(payload)
}
