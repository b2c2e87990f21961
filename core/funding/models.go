// Package funding holds the funding tree (source > program > type) and the
// per country financings of each academic year.
package funding

import (
	"github.com/go-playground/validator/v10"

	"github.com/uclouvain/osis-partnership-sub000/core"
)

type Source struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

type Program struct {
	ID       int    `json:"id"`
	Name     string `json:"name"`
	SourceID int    `json:"source_id"`
}

type Type struct {
	ID        int    `json:"id"`
	Name      string `json:"name"`
	URL       string `json:"url"`
	ProgramID int    `json:"program_id"`
	IsActive  bool   `json:"is_active"`
}

// Tree nodes

type SourceNode struct {
	Source
	Programs []ProgramNode `json:"programs"`
}

type ProgramNode struct {
	Program
	Types []Type `json:"types"`
}

// BuildTree nests programs and types below their parents, keeping the input order.
func BuildTree(sources []Source, programs []Program, types []Type) []SourceNode {
	typesByProgram := make(map[int][]Type)
	for _, t := range types {
		typesByProgram[t.ProgramID] = append(typesByProgram[t.ProgramID], t)
	}
	programsBySource := make(map[int][]ProgramNode)
	for _, p := range programs {
		node := ProgramNode{Program: p, Types: typesByProgram[p.ID]}
		if node.Types == nil {
			node.Types = []Type{}
		}
		programsBySource[p.SourceID] = append(programsBySource[p.SourceID], node)
	}
	tree := make([]SourceNode, 0, len(sources))
	for _, s := range sources {
		node := SourceNode{Source: s, Programs: programsBySource[s.ID]}
		if node.Programs == nil {
			node.Programs = []ProgramNode{}
		}
		tree = append(tree, node)
	}
	return tree
}

type SourceData struct {
	Name string `json:"name" validate:"required,max=100"`
}

func (d *SourceData) Validate(validate *validator.Validate) error {
	d.Name = core.CleanString(d.Name)
	return validate.Struct(d)
}

type ProgramData struct {
	Name     string `json:"name" validate:"required,max=100"`
	SourceID int    `json:"source_id" validate:"required"`
}

func (d *ProgramData) Validate(validate *validator.Validate) error {
	d.Name = core.CleanString(d.Name)
	return validate.Struct(d)
}

type TypeData struct {
	Name      string `json:"name" validate:"required,max=100"`
	URL       string `json:"url" validate:"omitempty,url,max=255"`
	ProgramID int    `json:"program_id" validate:"required"`
	IsActive  bool   `json:"is_active"`
}

func (d *TypeData) Validate(validate *validator.Validate) error {
	d.Name = core.CleanString(d.Name)
	d.URL = core.CleanString(d.URL)
	return validate.Struct(d)
}

// Filter narrows the funding lists; zero fields are ignored.
type Filter struct {
	Search     string
	SourceID   int
	ProgramID  int
	ActiveOnly bool
	Limit      uint64
}

func (f *Filter) Clean() {
	if f != nil {
		f.Search = core.CleanString(f.Search)
	}
}

// Financing links a name and url to countries for an academic year.
type Financing struct {
	ID           int    `json:"id"`
	Name         string `json:"name"`
	URL          string `json:"url"`
	AcademicYear int    `json:"academic_year"`
	TypeID       *int   `json:"type_id"`
	CountryIDs   []int  `json:"countries"`
}

// CountryFinancing is a country with its financing for a given year; Name is empty when there is none.
type CountryFinancing struct {
	CountryID   int    `json:"country_id"`
	CountryName string `json:"country_name"`
	CountryISO  string `json:"country"`
	FinancingID int    `json:"financing_id,omitempty"`
	Name        string `json:"name"`
	URL         string `json:"url"`
}

// FinancingOrderings maps the public ordering names of financing lists to CountryFinancing fields.
var FinancingOrderings = []string{"country_name", "name", "url"}

// ImportResult sums up a financing import.
type ImportResult struct {
	Financings int      `json:"financings"`
	Countries  int      `json:"countries"`
	Warnings   []string `json:"warnings"`
}
