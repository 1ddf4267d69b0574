package models

// InferredField is one field observed across sampled documents.
// Name uses dot notation for nested paths ("address.city").
type InferredField struct {
	Name            string          `json:"name"`
	ObservedTypes   map[string]int  `json:"observed_types"`
	DataType        UnifiedDataType `json:"data_type"`
	OccurrenceCount int             `json:"occurrence_count"`
	IsNullable      bool            `json:"is_nullable"`
	IsPrimaryKey    bool            `json:"is_primary_key"`
	IsAutoIncrement bool            `json:"is_auto_increment"`
	OrdinalPosition int             `json:"ordinal_position"`
}

// HasMixedTypes reports whether more than one non-null type name was observed.
func (f *InferredField) HasMixedTypes() bool {
	n := 0
	for name := range f.ObservedTypes {
		if name != "null" {
			n++
		}
	}
	return n > 1
}

// InferredSchema is the finalized structure of one schemaless collection.
type InferredSchema struct {
	Collection        string          `json:"collection"`
	Database          string          `json:"database,omitempty"`
	DocumentsAnalyzed int             `json:"documents_analyzed"`
	Fields            []InferredField `json:"fields"`
	Warnings          []string        `json:"warnings"`
}

// ToTable converts the inferred fields into a Table, nested paths included.
func (s *InferredSchema) ToTable() Table {
	t := Table{
		Name:        s.Collection,
		Schema:      s.Database,
		Columns:     make([]Column, 0, len(s.Fields)),
		ForeignKeys: []ForeignKey{},
		Indexes:     []Index{},
		Constraints: []Constraint{},
	}
	var pk []string
	for _, f := range s.Fields {
		t.Columns = append(t.Columns, Column{
			Name:            f.Name,
			DataType:        f.DataType,
			IsNullable:      f.IsNullable,
			IsPrimaryKey:    f.IsPrimaryKey,
			IsAutoIncrement: f.IsAutoIncrement,
		})
		if f.IsPrimaryKey {
			pk = append(pk, f.Name)
		}
	}
	if len(pk) > 0 {
		t.PrimaryKey = &PrimaryKey{Name: "_id_", Columns: pk}
	}
	t.NormalizeOrdinals()
	return t
}
