package dataset

import (
	"fmt"
	"os"
	"time"

	"github.com/couchcryptid/swmm-fews-adapter/internal/domain"
	"github.com/couchcryptid/swmm-fews-adapter/internal/units"
	"gopkg.in/yaml.v3"
)

// GlobalAttributes are the CF global attributes written to every output file.
type GlobalAttributes struct {
	Conventions         string `yaml:"conventions"`
	Title               string `yaml:"title"`
	Institution         string `yaml:"institution"`
	Source              string `yaml:"source"`
	History             string `yaml:"history"` // appended to the creation timestamp
	References          string `yaml:"references"`
	MetadataConventions string `yaml:"metadata_conventions"`
	Summary             string `yaml:"summary"`
	CoordinateSystem    string `yaml:"coordinate_system"`
	FeatureType         string `yaml:"feature_type"`
	Comment             string `yaml:"comment"`
}

// DefaultAttributes returns the attributes used when no override file is given.
func DefaultAttributes() GlobalAttributes {
	return GlobalAttributes{
		Conventions:         "CF-1.6",
		Title:               "Data from simulation outputs",
		Institution:         "TRCA",
		Source:              "Don River Hydrology Update Project Number 60528844 December 2018",
		History:             "simulation results from EPA SWMM model",
		References:          "https://trca.ca/",
		MetadataConventions: "Unidata Dataset Discovery v1.0",
		Summary:             "EPA SWMM simulation output",
		CoordinateSystem:    "WGS 1984",
		FeatureType:         "timeSeries",
		Comment:             "created by the EPA-SWMM Delft-FEWS adapter",
	}
}

// LoadAttributes reads YAML overrides on top of the defaults. An empty path
// returns the defaults.
func LoadAttributes(path string) (GlobalAttributes, error) {
	attrs := DefaultAttributes()
	if path == "" {
		return attrs, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return attrs, fmt.Errorf("%w: read dataset attributes: %w", domain.ErrConfig, err)
	}
	if err := yaml.Unmarshal(data, &attrs); err != nil {
		return attrs, fmt.Errorf("%w: parse dataset attributes %s: %w", domain.ErrConfig, path, err)
	}
	return attrs, nil
}

// list renders the attributes in file order, stamping history and
// date_created with now.
func (g GlobalAttributes) list(now time.Time) []units.Attribute {
	stamp := now.UTC().Format("2006-01-02 15:04:05") + " EMT"
	history := stamp
	if g.History != "" {
		history += ": " + g.History
	}
	return []units.Attribute{
		{Name: "Conventions", Value: g.Conventions},
		{Name: "title", Value: g.Title},
		{Name: "institution", Value: g.Institution},
		{Name: "source", Value: g.Source},
		{Name: "history", Value: history},
		{Name: "references", Value: g.References},
		{Name: "Metadata_Conventions", Value: g.MetadataConventions},
		{Name: "summary", Value: g.Summary},
		{Name: "date_created", Value: stamp},
		{Name: "coordinate_system", Value: g.CoordinateSystem},
		{Name: "featureType", Value: g.FeatureType},
		{Name: "comment", Value: g.Comment},
	}
}
