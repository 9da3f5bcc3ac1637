package store

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"qms/virtual-queue/internal/geo"
	"qms/virtual-queue/internal/models"

	"gopkg.in/yaml.v3"
)

// LocationSeed is one location read from a seed file, with the document it
// came from so stores that keep raw documents can persist it as is.
type LocationSeed struct {
	Location models.Location
	Document []byte
}

type seedLocation struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Category string   `json:"category"`
	Services []string `json:"services"`
	Address  string   `json:"address"`
	Phone    string   `json:"phone"`
	Hours    string   `json:"hours"`
}

func ReadLocationSeedFile(path string) ([]LocationSeed, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return DecodeLocationSeed(file)
}

// DecodeLocationSeed reads a YAML (or JSON) list of location documents.
// Coordinates may use any of the shapes understood by geo.FromDocument.
func DecodeLocationSeed(r io.Reader) ([]LocationSeed, error) {
	var docs []map[string]interface{}
	if err := yaml.NewDecoder(r).Decode(&docs); err != nil {
		return nil, fmt.Errorf("decode seed: %w", err)
	}
	seeds := make([]LocationSeed, 0, len(docs))
	for i, doc := range docs {
		raw, err := json.Marshal(doc)
		if err != nil {
			return nil, fmt.Errorf("seed location %d: %w", i, err)
		}
		var seed seedLocation
		if err := json.Unmarshal(raw, &seed); err != nil {
			return nil, fmt.Errorf("seed location %d: %w", i, err)
		}
		if seed.ID == "" {
			return nil, fmt.Errorf("seed location %d: id is required", i)
		}
		seeds = append(seeds, LocationSeed{
			Location: models.Location{
				LocationID:     seed.ID,
				Name:           seed.Name,
				Category:       seed.Category,
				Services:       seed.Services,
				Address:        seed.Address,
				Phone:          seed.Phone,
				Hours:          seed.Hours,
				RawCoordinates: geo.FromDocument(raw),
			}.Normalize(),
			Document: raw,
		})
	}
	return seeds, nil
}
