package config

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Transform kinds understood by the transformer's builtin coercions.
const (
	TransformFloat = "float"
	TransformInt   = "int"
	TransformDate  = "date"
)

// Category maps a logical data type to its endpoint and export settings.
type Category struct {
	// Name is the CLI-facing identifier (e.g. "grants").
	Name string
	// Endpoint is the API path, e.g. "/savings/grants".
	Endpoint string
	// IDField names the record identifier column.
	IDField string
	// Label is the display name, also used as the sheet name.
	Label string
	// FileBase is the output filename without timestamp or extension.
	FileBase string
	// Legacy categories point at endpoints the API no longer serves; their
	// failures are expected and logged at warn.
	Legacy bool
	// Transforms maps column name to a transform kind (TransformFloat, ...).
	Transforms map[string]string
}

// TransformColumns returns the transform columns in a stable order.
func (c Category) TransformColumns() []string {
	cols := make([]string, 0, len(c.Transforms))
	for col := range c.Transforms {
		cols = append(cols, col)
	}
	sort.Strings(cols)
	return cols
}

func savingsTransforms() map[string]string {
	return map[string]string{
		"value":   TransformFloat,
		"savings": TransformFloat,
		"date":    TransformDate,
	}
}

// DefaultCategories returns the built-in category table in export order.
func DefaultCategories() []Category {
	return []Category{
		{Name: "grants", Endpoint: "/savings/grants", IDField: "grant_id", Label: "Grant Savings", FileBase: "grants_savings", Transforms: savingsTransforms()},
		{Name: "contracts", Endpoint: "/savings/contracts", IDField: "contract_id", Label: "Contract Savings", FileBase: "contracts_savings", Transforms: savingsTransforms()},
		{Name: "leases", Endpoint: "/savings/leases", IDField: "lease_id", Label: "Lease Savings", FileBase: "leases_savings", Transforms: savingsTransforms()},

		{Name: "departments", Endpoint: "/departments", IDField: "department_id", Label: "Departments", FileBase: "departments", Legacy: true},
		{Name: "employees", Endpoint: "/employees", IDField: "employee_id", Label: "Employees", FileBase: "employees", Legacy: true,
			Transforms: map[string]string{"salary": TransformFloat, "hire_date": TransformDate}},
		{Name: "budget", Endpoint: "/budget", IDField: "budget_id", Label: "Budget Information", FileBase: "budget", Legacy: true,
			Transforms: map[string]string{"amount": TransformFloat, "fiscal_year": TransformInt}},
		{Name: "efficiency_metrics", Endpoint: "/metrics/efficiency", IDField: "metric_id", Label: "Efficiency Metrics", FileBase: "efficiency_metrics", Legacy: true,
			Transforms: map[string]string{"value": TransformFloat, "target": TransformFloat, "date": TransformDate}},
		{Name: "projects", Endpoint: "/projects", IDField: "project_id", Label: "Projects and Initiatives", FileBase: "projects", Legacy: true,
			Transforms: map[string]string{"budget": TransformFloat, "start_date": TransformDate, "end_date": TransformDate}},
	}
}

// categoryFile is the YAML shape of DOGE_CATEGORIES_FILE.
//
//	categories:
//	  - name: grants
//	    endpoint: /savings/grants
//	    transforms:
//	      value: float
type categoryFile struct {
	Categories []categoryEntry `yaml:"categories"`
}

type categoryEntry struct {
	Name       string            `yaml:"name"`
	Endpoint   string            `yaml:"endpoint"`
	IDField    string            `yaml:"id_field"`
	Label      string            `yaml:"label"`
	FileBase   string            `yaml:"file_base"`
	Legacy     *bool             `yaml:"legacy"`
	Transforms map[string]string `yaml:"transforms"`
}

// LoadCategoryFile reads a YAML override file and merges it over base.
//
// Entries whose name matches an existing category override only the fields
// they set; transforms are merged per column. Unknown names are appended, and
// must carry an endpoint. FileBase and Label default to the name.
func LoadCategoryFile(path string, base []Category) ([]Category, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read categories file %q: %w", path, err)
	}
	var f categoryFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("config: parse categories file %q: %w", path, err)
	}
	return mergeCategories(base, f.Categories)
}

func mergeCategories(base []Category, entries []categoryEntry) ([]Category, error) {
	out := make([]Category, len(base))
	index := make(map[string]int, len(base))
	for i, c := range base {
		c.Transforms = copyTransforms(c.Transforms)
		out[i] = c
		index[c.Name] = i
	}

	for i, e := range entries {
		name := strings.TrimSpace(e.Name)
		if name == "" {
			return nil, fmt.Errorf("config: categories[%d]: missing name", i)
		}

		pos, ok := index[name]
		if !ok {
			if strings.TrimSpace(e.Endpoint) == "" {
				return nil, fmt.Errorf("config: categories[%d] %q: new category needs an endpoint", i, name)
			}
			out = append(out, Category{Name: name, Label: name, FileBase: name})
			pos = len(out) - 1
			index[name] = pos
		}

		c := &out[pos]
		if e.Endpoint != "" {
			c.Endpoint = e.Endpoint
		}
		if e.IDField != "" {
			c.IDField = e.IDField
		}
		if e.Label != "" {
			c.Label = e.Label
		}
		if e.FileBase != "" {
			c.FileBase = e.FileBase
		}
		if e.Legacy != nil {
			c.Legacy = *e.Legacy
		}
		for col, kind := range e.Transforms {
			if c.Transforms == nil {
				c.Transforms = map[string]string{}
			}
			c.Transforms[col] = strings.ToLower(strings.TrimSpace(kind))
		}
	}
	return out, nil
}

func copyTransforms(in map[string]string) map[string]string {
	if in == nil {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
