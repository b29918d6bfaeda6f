package crm

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/AngelCh415/dealpipe/internal/models"
)

type seedFile struct {
	Companies []models.Company `yaml:"companies"`
	Deals     []struct {
		ID         string            `yaml:"id"`
		Companies  []string          `yaml:"companies"`
		Properties map[string]string `yaml:"properties"`
	} `yaml:"deals"`
}

// LoadSeed builds a Memory CRM from a YAML fixture. Deal properties use the
// CRM property names and are stored raw, like API records.
func LoadSeed(path string) (*Memory, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed %s: %w", path, err)
	}
	return ParseSeed(b)
}

func ParseSeed(b []byte) (*Memory, error) {
	var f seedFile
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("parse seed: %w", err)
	}
	m := NewMemory()
	for _, c := range f.Companies {
		if c.ID == "" {
			return nil, fmt.Errorf("parse seed: company %q without id", c.Name)
		}
		m.UpsertCompany(c)
	}
	for _, d := range f.Deals {
		if d.ID == "" {
			return nil, errors.New("parse seed: deal without id")
		}
		m.PutDeal(d.ID, d.Properties)
		for _, c := range d.Companies {
			m.Associate(d.ID, c)
		}
	}
	return m, nil
}
