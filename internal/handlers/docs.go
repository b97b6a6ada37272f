package handlers

import (
	"encoding/json"
	"net/http"
)

// OpenAPISpec returns the OpenAPI 3.0 specification for the consumption API
func OpenAPISpec(w http.ResponseWriter, r *http.Request) {
	paginationParams := []map[string]interface{}{
		{
			"name":        "start_date",
			"in":          "query",
			"description": "Filter from this block date (YYYY-MM-DD)",
			"required":    false,
			"schema":      map[string]string{"type": "string", "format": "date"},
		},
		{
			"name":        "end_date",
			"in":          "query",
			"description": "Filter up to this block date (YYYY-MM-DD)",
			"required":    false,
			"schema":      map[string]string{"type": "string", "format": "date"},
		},
		{
			"name":        "page",
			"in":          "query",
			"description": "Page number (default: 1)",
			"required":    false,
			"schema":      map[string]interface{}{"type": "integer", "default": 1},
		},
		{
			"name":        "limit",
			"in":          "query",
			"description": "Records per page (default: 100, max: 1000)",
			"required":    false,
			"schema":      map[string]interface{}{"type": "integer", "default": 100},
		},
	}

	recordSchema := map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"id":           map[string]string{"type": "integer"},
			"date":         map[string]string{"type": "string", "format": "date-time"},
			"heures":       map[string]string{"type": "string"},
			"prevision_j1": map[string]string{"type": "number"},
			"prevision_j":  map[string]string{"type": "number"},
			"consommation": map[string]string{"type": "number"},
			"created_at":   map[string]string{"type": "string", "format": "date-time"},
		},
	}

	statsSchema := map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"id":                     map[string]string{"type": "integer"},
			"date":                   map[string]string{"type": "string", "format": "date-time"},
			"avg_consommation_mw":    map[string]interface{}{"type": "number", "nullable": true},
			"peak_consommation_mw":   map[string]interface{}{"type": "number", "nullable": true},
			"avg_forecast_err_j1_mw": map[string]interface{}{"type": "number", "nullable": true},
			"avg_forecast_err_j_mw":  map[string]interface{}{"type": "number", "nullable": true},
			"observation_count":      map[string]string{"type": "integer"},
		},
	}

	spec := map[string]interface{}{
		"openapi": "3.0.0",
		"info": map[string]interface{}{
			"title":       "Consumption Platform API",
			"description": "French electricity consumption data platform: RTE dataset ingestion from data.gouv.fr, consolidated observations and daily statistics",
			"version":     "1.0.0",
		},
		"servers": []map[string]string{
			{"url": "http://localhost:8080", "description": "Local development server"},
		},
		"paths": map[string]interface{}{
			"/api/consumption": map[string]interface{}{
				"get": map[string]interface{}{
					"summary":     "Get consumption records",
					"description": "Retrieve consolidated consumption records with date filtering and pagination",
					"parameters":  paginationParams,
					"responses": map[string]interface{}{
						"200": map[string]interface{}{
							"description": "Successful response",
							"content": map[string]interface{}{
								"application/json": map[string]interface{}{
									"schema": paginatedSchema(recordSchema),
								},
							},
						},
					},
				},
			},
			"/api/consumption/stats": map[string]interface{}{
				"get": map[string]interface{}{
					"summary":     "Get daily statistics",
					"description": "Retrieve pre-calculated per-date consumption statistics",
					"parameters":  paginationParams,
					"responses": map[string]interface{}{
						"200": map[string]interface{}{
							"description": "Successful response",
							"content": map[string]interface{}{
								"application/json": map[string]interface{}{
									"schema": paginatedSchema(statsSchema),
								},
							},
						},
					},
				},
			},
			"/health": map[string]interface{}{
				"get": map[string]interface{}{
					"summary":     "Health check",
					"description": "Check if the API is running",
					"responses": map[string]interface{}{
						"200": map[string]interface{}{
							"description": "API is healthy",
							"content": map[string]interface{}{
								"application/json": map[string]interface{}{
									"schema": map[string]interface{}{
										"type": "object",
										"properties": map[string]interface{}{
											"status": map[string]string{"type": "string"},
										},
									},
								},
							},
						},
					},
				},
			},
			"/metrics": map[string]interface{}{
				"get": map[string]interface{}{
					"summary":     "Prometheus metrics",
					"description": "Prometheus metrics endpoint for monitoring",
					"responses": map[string]interface{}{
						"200": map[string]interface{}{
							"description": "Prometheus metrics in text format",
							"content": map[string]interface{}{
								"text/plain": map[string]interface{}{
									"schema": map[string]string{"type": "string"},
								},
							},
						},
					},
				},
			},
		},
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(spec)
}

// paginatedSchema wraps an item schema in the standard paginated envelope
func paginatedSchema(item map[string]interface{}) map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"data": map[string]interface{}{
				"type":  "array",
				"items": item,
			},
			"total":       map[string]string{"type": "integer"},
			"page":        map[string]string{"type": "integer"},
			"limit":       map[string]string{"type": "integer"},
			"total_pages": map[string]string{"type": "integer"},
		},
	}
}
