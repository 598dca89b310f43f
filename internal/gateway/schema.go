package gateway

// Type is an OpenAPI schema type as understood by the generation service.
type Type string

const (
	TypeObject Type = "OBJECT"
	TypeArray  Type = "ARRAY"
	TypeString Type = "STRING"
)

// Schema is the response schema sent with structured requests. It marshals
// to the REST wire format directly and is converted for the SDK transports.
type Schema struct {
	Type             Type               `json:"type"`
	Properties       map[string]*Schema `json:"properties,omitempty"`
	Items            *Schema            `json:"items,omitempty"`
	Required         []string           `json:"required,omitempty"`
	PropertyOrdering []string           `json:"propertyOrdering,omitempty"`
	Nullable         bool               `json:"nullable,omitempty"`
}

func nullableString() *Schema {
	return &Schema{Type: TypeString, Nullable: true}
}

// ExtractionSchema describes the extracted document. Every scalar is
// nullable so absent fields come back as null rather than invented text.
func ExtractionSchema() *Schema {
	return &Schema{
		Type: TypeObject,
		Properties: map[string]*Schema{
			"document_title":  nullableString(),
			"document_number": nullableString(),
			"revision_date":   nullableString(),
			"summary":         nullableString(),
			"tests": {
				Type: TypeArray,
				Items: &Schema{
					Type: TypeObject,
					Properties: map[string]*Schema{
						"test_name": nullableString(),
						"result":    nullableString(),
					},
					Required:         []string{"test_name", "result"},
					PropertyOrdering: []string{"test_name", "result"},
				},
			},
		},
		Required: []string{"document_title", "document_number", "revision_date", "summary", "tests"},
		PropertyOrdering: []string{
			"document_title",
			"document_number",
			"revision_date",
			"summary",
			"tests",
		},
	}
}

// PopulateSchema describes the reference draft; tests is comma-joined.
func PopulateSchema() *Schema {
	return &Schema{
		Type: TypeObject,
		Properties: map[string]*Schema{
			"title":   nullableString(),
			"number":  nullableString(),
			"summary": nullableString(),
			"tests":   nullableString(),
		},
		Required:         []string{"title", "number", "summary", "tests"},
		PropertyOrdering: []string{"title", "number", "summary", "tests"},
	}
}
