package vector

import (
	"context"

	"github.com/weaviate/weaviate/entities/models"
)

// Class names in the vector index. EpigraphChunk carries one vector per
// retrieval chunk; Epigraph carries one summary vector per record for
// record-level similarity.
const (
	ClassChunk    = "EpigraphChunk"
	ClassEpigraph = "Epigraph"
)

// SchemaClient defines the interface for Weaviate schema operations
type SchemaClient interface {
	ClassExists(ctx context.Context, className string) (bool, error)
	CreateClass(ctx context.Context, class *models.Class) error
	GetClass(ctx context.Context, className string) (*models.Class, error)
	AddProperty(ctx context.Context, className string, property *models.Property) error
}

func chunkProperties() []*models.Property {
	return []*models.Property{
		{Name: "chunkId", DataType: []string{"int"}},
		{Name: "epigraphId", DataType: []string{"int"}},
		{Name: "text", DataType: []string{"text"}},
		{Name: "chunkType", DataType: []string{"string"}},
		{Name: "chunkIndex", DataType: []string{"int"}},
		{Name: "title", DataType: []string{"text"}},
		{Name: "period", DataType: []string{"string"}},
		{Name: "language", DataType: []string{"string"}},
		{Name: "published", DataType: []string{"boolean"}},
	}
}

func epigraphProperties() []*models.Property {
	return []*models.Property{
		{Name: "epigraphId", DataType: []string{"int"}},
		{Name: "title", DataType: []string{"text"}},
		{Name: "period", DataType: []string{"string"}},
		{Name: "language", DataType: []string{"string"}},
		{Name: "published", DataType: []string{"boolean"}},
	}
}

// EnsureSchema checks if the required classes exist and creates them if
// not. Vectors are supplied by the embedding subsystem, so the vectorizer
// is always "none". Existing classes are patched with missing properties.
func EnsureSchema(ctx context.Context, client SchemaClient) error {
	classes := []struct {
		name        string
		description string
		properties  []*models.Property
	}{
		{ClassChunk, "A retrieval chunk of an epigraph", chunkProperties()},
		{ClassEpigraph, "An epigraph record summary", epigraphProperties()},
	}

	for _, c := range classes {
		exists, err := client.ClassExists(ctx, c.name)
		if err != nil {
			return err
		}

		if !exists {
			class := &models.Class{
				Class:       c.name,
				Description: c.description,
				Vectorizer:  "none",
				Properties:  c.properties,
			}
			if err := client.CreateClass(ctx, class); err != nil {
				return err
			}
			continue
		}

		class, err := client.GetClass(ctx, c.name)
		if err != nil {
			return err
		}
		existingProps := make(map[string]bool)
		for _, p := range class.Properties {
			existingProps[p.Name] = true
		}
		for _, p := range c.properties {
			if !existingProps[p.Name] {
				if err := client.AddProperty(ctx, c.name, p); err != nil {
					return err
				}
			}
		}
	}
	return nil
}
