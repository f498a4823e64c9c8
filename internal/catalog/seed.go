package catalog

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// SeedFile is the on-disk layout of a catalog seed:
//
//	vendors:
//	  - id: spice-route
//	    items:
//	      - {id: sr-paneer, name: Paneer Tikka, category: Starters, price: 120}
type SeedFile struct {
	Vendors []SeedVendor `yaml:"vendors"`
}

type SeedVendor struct {
	ID    string `yaml:"id"`
	Items []Item `yaml:"items"`
}

// LoadSeed reads a YAML seed file and returns its items with vendor ids and
// positions filled in from the file layout.
func LoadSeed(path string) ([]Item, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog seed: %w", err)
	}
	return ParseSeed(data)
}

func ParseSeed(data []byte) ([]Item, error) {
	var seed SeedFile
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("parse catalog seed: %w", err)
	}

	var items []Item
	seen := make(map[string]bool)
	for _, vendor := range seed.Vendors {
		if vendor.ID == "" {
			return nil, fmt.Errorf("parse catalog seed: vendor without id")
		}
		for i, item := range vendor.Items {
			if item.ID == "" {
				return nil, fmt.Errorf("parse catalog seed: vendor %s item %d has no id", vendor.ID, i)
			}
			if seen[item.ID] {
				return nil, fmt.Errorf("parse catalog seed: duplicate item id %s", item.ID)
			}
			if item.Price < 0 {
				return nil, fmt.Errorf("parse catalog seed: item %s has a negative price", item.ID)
			}
			seen[item.ID] = true
			item.VendorID = vendor.ID
			item.Position = i
			items = append(items, item)
		}
	}
	return items, nil
}
