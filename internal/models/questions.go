package models

// GenerateRequest asks the generator for interview questions about a job posting.
type GenerateRequest struct {
	Text           string `json:"texto"`
	CompanySearch  bool   `json:"buscar_empresa"`
	MarketAnalysis bool   `json:"analizar_mercado"`
}

// Proposal holds the fields extracted from the job posting.
type Proposal struct {
	Employer     string `json:"empresa"`
	Role         string `json:"puesto"`
	Description  string `json:"descripcion"`
	Requirements string `json:"requisitos"`
}

// SearchDetail describes one optional enrichment search.
type SearchDetail struct {
	Activated      bool    `json:"activada"`
	Sources        int     `json:"fuentes"`
	ElapsedSeconds float64 `json:"tiempo_segundos"`
	Summary        string  `json:"resumen"`
}

// Searches groups the diagnostics of the optional searches.
type Searches struct {
	Company SearchDetail `json:"empresa"`
	Market  SearchDetail `json:"mercado"`
}

// ResearchMetadata aggregates the research performed for a request.
type ResearchMetadata struct {
	Quality      string  `json:"calidad_investigacion"`
	TotalSeconds float64 `json:"tiempo_total_segundos"`
	TotalSources int     `json:"fuentes_totales"`
}

// GenerateResponse is the generator's successful answer.
type GenerateResponse struct {
	Questions []string         `json:"preguntas"`
	Tips      []string         `json:"consejos_conexion"`
	Proposal  Proposal         `json:"propuesta_extraida"`
	Searches  Searches         `json:"busquedas"`
	Metadata  ResearchMetadata `json:"metadatos"`
}

// CatalogQuestion is one entry of the informational question list.
type CatalogQuestion struct {
	Question string `json:"pregunta"`
	Category string `json:"categoria"`
}

// ErrorBody is the structured failure payload of the HTTP collaborators.
type ErrorBody struct {
	Detail string `json:"detail,omitempty"`
	Error  string `json:"error,omitempty"`
}
