package handlers

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/jmylchreest/releasarr/internal/category"
	"github.com/jmylchreest/releasarr/internal/models"
	"github.com/jmylchreest/releasarr/internal/service"
)

// SourceService is the subset of service.ReleaseService used for source
// administration.
type SourceService interface {
	Sources(ctx context.Context) ([]service.SourceOverview, error)
	Mappings(ctx context.Context, sourceID models.ULID) ([]*models.CategoryMapping, error)
	PutMapping(ctx context.Context, mapping *models.CategoryMapping) error
	DeleteMapping(ctx context.Context, sourceID models.ULID, externalID int) error
}

// SourceHandler handles source listing and category mapping endpoints.
type SourceHandler struct {
	sources SourceService
}

// NewSourceHandler creates a source handler.
func NewSourceHandler(sources SourceService) *SourceHandler {
	return &SourceHandler{sources: sources}
}

// Register registers the source routes with the API.
func (h *SourceHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "listSources",
		Method:      http.MethodGet,
		Path:        "/api/v1/sources",
		Summary:     "List sources",
		Description: "Lists sources with their effective caps, release counts per category and last ingestion",
		Tags:        []string{"Sources"},
	}, h.List)

	huma.Register(api, huma.Operation{
		OperationID: "listCategories",
		Method:      http.MethodGet,
		Path:        "/api/v1/categories",
		Summary:     "List categories",
		Description: "Lists the canonical categories mappings may target",
		Tags:        []string{"Sources"},
	}, h.Categories)

	huma.Register(api, huma.Operation{
		OperationID: "listCategoryMappings",
		Method:      http.MethodGet,
		Path:        "/api/v1/sources/{id}/category-mappings",
		Summary:     "List category mappings",
		Tags:        []string{"Sources"},
	}, h.ListMappings)

	huma.Register(api, huma.Operation{
		OperationID: "putCategoryMapping",
		Method:      http.MethodPut,
		Path:        "/api/v1/sources/{id}/category-mappings/{external_id}",
		Summary:     "Set a category mapping",
		Description: "Maps one indexer category id of a source to a canonical category. Applies to later batches.",
		Tags:        []string{"Sources"},
	}, h.PutMapping)

	huma.Register(api, huma.Operation{
		OperationID:   "deleteCategoryMapping",
		Method:        http.MethodDelete,
		Path:          "/api/v1/sources/{id}/category-mappings/{external_id}",
		Summary:       "Delete a category mapping",
		Tags:          []string{"Sources"},
		DefaultStatus: http.StatusNoContent,
	}, h.DeleteMapping)
}

// ListSourcesInput is the input for listing sources.
type ListSourcesInput struct{}

// ListSourcesOutput is the output for listing sources.
type ListSourcesOutput struct {
	Body struct {
		Sources []service.SourceOverview `json:"sources"`
	}
}

// List returns every source.
func (h *SourceHandler) List(ctx context.Context, _ *ListSourcesInput) (*ListSourcesOutput, error) {
	sources, err := h.sources.Sources(ctx)
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to list sources", err)
	}
	out := &ListSourcesOutput{}
	out.Body.Sources = sources
	if out.Body.Sources == nil {
		out.Body.Sources = []service.SourceOverview{}
	}
	return out, nil
}

// CategoriesInput is the input for listing categories.
type CategoriesInput struct{}

// CategoriesOutput is the output for listing categories.
type CategoriesOutput struct {
	Body struct {
		Categories []category.Category `json:"categories"`
	}
}

// Categories returns the canonical taxonomy.
func (h *SourceHandler) Categories(_ context.Context, _ *CategoriesInput) (*CategoriesOutput, error) {
	out := &CategoriesOutput{}
	out.Body.Categories = category.All()
	return out, nil
}

// MappingsInput is the input for listing mappings.
type MappingsInput struct {
	ID string `path:"id" doc:"Source ID (ULID)"`
}

// MappingsOutput is the output for listing mappings.
type MappingsOutput struct {
	Body struct {
		Mappings []CategoryMappingResponse `json:"mappings"`
	}
}

// ListMappings returns the category overrides of a source.
func (h *SourceHandler) ListMappings(ctx context.Context, input *MappingsInput) (*MappingsOutput, error) {
	id, err := parseID(input.ID)
	if err != nil {
		return nil, err
	}
	mappings, err := h.sources.Mappings(ctx, id)
	if err != nil {
		return nil, serviceError(err, "failed to list category mappings")
	}

	out := &MappingsOutput{}
	out.Body.Mappings = make([]CategoryMappingResponse, 0, len(mappings))
	for _, m := range mappings {
		out.Body.Mappings = append(out.Body.Mappings, CategoryMappingFromModel(m))
	}
	return out, nil
}

// PutMappingInput is the input for setting a mapping.
type PutMappingInput struct {
	ID         string `path:"id" doc:"Source ID (ULID)"`
	ExternalID int    `path:"external_id" doc:"Indexer category id"`
	Body       struct {
		GroupKey string `json:"group_key" doc:"Canonical category key, see /api/v1/categories"`
		Label    string `json:"label,omitempty" doc:"Indexer label of the category"`
	}
}

// PutMappingOutput is the output for setting a mapping.
type PutMappingOutput struct {
	Body CategoryMappingResponse
}

// PutMapping creates or replaces one override.
func (h *SourceHandler) PutMapping(ctx context.Context, input *PutMappingInput) (*PutMappingOutput, error) {
	id, err := parseID(input.ID)
	if err != nil {
		return nil, err
	}
	mapping := &models.CategoryMapping{
		SourceID:   id,
		ExternalID: input.ExternalID,
		GroupKey:   input.Body.GroupKey,
		Label:      input.Body.Label,
	}
	if err := h.sources.PutMapping(ctx, mapping); err != nil {
		return nil, serviceError(err, "failed to save category mapping")
	}
	return &PutMappingOutput{Body: CategoryMappingFromModel(mapping)}, nil
}

// DeleteMappingInput is the input for deleting a mapping.
type DeleteMappingInput struct {
	ID         string `path:"id" doc:"Source ID (ULID)"`
	ExternalID int    `path:"external_id" doc:"Indexer category id"`
}

// DeleteMappingOutput is the output for deleting a mapping.
type DeleteMappingOutput struct{}

// DeleteMapping removes one override.
func (h *SourceHandler) DeleteMapping(ctx context.Context, input *DeleteMappingInput) (*DeleteMappingOutput, error) {
	id, err := parseID(input.ID)
	if err != nil {
		return nil, err
	}
	if err := h.sources.DeleteMapping(ctx, id, input.ExternalID); err != nil {
		return nil, serviceError(err, "failed to delete category mapping")
	}
	return &DeleteMappingOutput{}, nil
}
