package handlers

import (
	"context"
	"net/http"

	"github.com/desenyon/infiniteidea-sub000/pkg/backendtypes"
	"github.com/desenyon/infiniteidea-sub000/pkg/blueprint"
	"github.com/desenyon/infiniteidea-sub000/pkg/orchestrator"
	"github.com/desenyon/infiniteidea-sub000/pkg/types"
)

// BlueprintService is the orchestrator surface the API exposes.
// *orchestrator.Orchestrator satisfies it.
type BlueprintService interface {
	GenerateBlueprint(ctx context.Context, req orchestrator.BlueprintGenerationRequest) (*orchestrator.BlueprintGenerationResponse, error)
	RegenerateSection(ctx context.Context, bp *blueprint.Blueprint, section blueprint.SectionName, feedback string) (*orchestrator.SectionResponse, error)
	OptimizeBlueprint(ctx context.Context, bp *blueprint.Blueprint, criteria blueprint.OptimizationCriteria) (*orchestrator.OptimizationResult, error)
	ValidateBlueprint(bp *blueprint.Blueprint) blueprint.ValidationResult
}

type BlueprintHandler struct {
	service BlueprintService
}

func NewBlueprintHandler(service BlueprintService) *BlueprintHandler {
	return &BlueprintHandler{service: service}
}

// Generate handles POST /api/blueprints
func (h *BlueprintHandler) Generate(w http.ResponseWriter, r *http.Request) {
	var body backendtypes.BlueprintRequest
	if !decodeBody(w, r, &body) {
		return
	}

	resp, err := h.service.GenerateBlueprint(r.Context(), orchestrator.BlueprintGenerationRequest{
		Idea:        body.Idea,
		Preferences: body.Preferences,
	})
	if err != nil {
		SendGenerationError(w, r, err)
		return
	}
	SendSuccess(w, r, resp)
}

// Regenerate handles POST /api/blueprints/regenerate
func (h *BlueprintHandler) Regenerate(w http.ResponseWriter, r *http.Request) {
	var body backendtypes.RegenerateRequest
	if !decodeBody(w, r, &body) || !requireBlueprint(w, r, body.Blueprint) {
		return
	}
	section, err := blueprint.ParseSectionName(string(body.Section))
	if err != nil {
		SendError(w, r, types.CodeInvalidRequest, err.Error(), http.StatusBadRequest)
		return
	}

	resp, err := h.service.RegenerateSection(r.Context(), body.Blueprint, section, body.Feedback)
	if err != nil {
		SendGenerationError(w, r, err)
		return
	}
	SendSuccess(w, r, resp)
}

// Optimize handles POST /api/blueprints/optimize
func (h *BlueprintHandler) Optimize(w http.ResponseWriter, r *http.Request) {
	var body backendtypes.OptimizeRequest
	if !decodeBody(w, r, &body) || !requireBlueprint(w, r, body.Blueprint) {
		return
	}

	resp, err := h.service.OptimizeBlueprint(r.Context(), body.Blueprint, body.Criteria)
	if err != nil {
		SendGenerationError(w, r, err)
		return
	}
	SendSuccess(w, r, resp)
}

// Validate handles POST /api/blueprints/validate
func (h *BlueprintHandler) Validate(w http.ResponseWriter, r *http.Request) {
	var body backendtypes.ValidateRequest
	if !decodeBody(w, r, &body) || !requireBlueprint(w, r, body.Blueprint) {
		return
	}
	SendSuccess(w, r, h.service.ValidateBlueprint(body.Blueprint))
}

func decodeBody(w http.ResponseWriter, r *http.Request, target interface{}) bool {
	if !requireMethod(w, r, http.MethodPost) {
		return false
	}
	if err := ParseJSON(r, target); err != nil {
		SendError(w, r, types.CodeInvalidRequest, "Invalid JSON: "+err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}

func requireBlueprint(w http.ResponseWriter, r *http.Request, bp *blueprint.Blueprint) bool {
	if bp == nil {
		SendError(w, r, types.CodeInvalidRequest, "'blueprint' must be provided", http.StatusBadRequest)
		return false
	}
	return true
}
