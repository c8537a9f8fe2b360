package llm

import (
	"bytes"
	"fmt"
	"text/template"

	"github.com/jordigilh/realestate-collector/pkg/models"
	sharederrors "github.com/jordigilh/realestate-collector/pkg/shared/errors"
)

// promptData is the template input shared by every entity-specific
// prompt (spec.md §4.D step 1: "render_prompt(job)").
type promptData struct {
	SearchQuery    string
	CommunityName  string
	ArrayKey       string
	EntityTypeName string
}

var promptTemplates = map[models.EntityType]*template.Template{
	models.EntityCommunity: template.Must(template.New("community").Parse(communityPromptTemplate)),
	models.EntityBuilder:   template.Must(template.New("builder").Parse(builderPromptTemplate)),
	models.EntityProperty:  template.Must(template.New("property").Parse(propertyPromptTemplate)),
}

var arrayKeyByEntityType = map[models.EntityType]string{
	models.EntityCommunity: "communities",
	models.EntityBuilder:   "builders",
	models.EntityProperty:  "properties",
}

// RenderPrompt builds the structured text prompt for job, selecting the
// template by job.EntityType (spec.md §4.D: "uses search_query +
// search_filters").
func RenderPrompt(job *models.Job) (string, error) {
	tmpl, ok := promptTemplates[job.EntityType]
	if !ok {
		return "", sharederrors.ValidationError("entity_type", fmt.Sprintf("no prompt template for %q", job.EntityType))
	}

	data := promptData{
		SearchQuery:    job.SearchQuery,
		CommunityName:  job.SearchFilters.CommunityName,
		ArrayKey:       arrayKeyByEntityType[job.EntityType],
		EntityTypeName: string(job.EntityType),
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", sharederrors.FailedToWithDetails("render prompt", "llm", string(job.EntityType), err)
	}
	return buf.String(), nil
}

const responseContract = `
Respond with a single JSON object with one top-level key, "{{.ArrayKey}}",
whose value is an array. Each element MUST include every required
identifying field for the entity, a "confidence" number between 0 and 1,
and a "source_url" string naming where the information was found. Do not
include any text outside the JSON object.`

const communityPromptTemplate = `You are researching master-planned residential communities.

Search query: {{.SearchQuery}}

For each community found, report its name, city, state, postal code, and any
amenities, notable events, awards, admin contacts, builder partners, active
discussion topics, and development phases you can find.
` + responseContract

const builderPromptTemplate = `You are researching home builders.
{{if .CommunityName}}Restrict the search to builders active in the community "{{.CommunityName}}".{{end}}

Search query: {{.SearchQuery}}

For each builder found, report its name, contact email and phone, address,
city, state, postal code, customer rating, and construction specialties.
` + responseContract

const propertyPromptTemplate = `You are researching individual home listings.
{{if .CommunityName}}Restrict the search to listings in the community "{{.CommunityName}}".{{end}}

Search query: {{.SearchQuery}}

For each property found, report its street address, postal code, price,
bedroom and bathroom counts, square footage, listing status, and any home
plan variants offered.
` + responseContract
