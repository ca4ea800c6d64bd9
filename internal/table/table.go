// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

// Package table defines the report tables and fills them from a snapshot of
// the processor's P-state registers.
package table

import (
	"fmt"
	"log/slog"
	"slices"
)

// Field represents the values for a field in a table
type Field struct {
	Name        string
	Description string // optional description of the field
	Values      []string
}

// TableValues combines the table definition with the resulting fields and their values
type TableValues struct {
	TableDefinition
	Fields []Field
}

type FieldsRetriever func(*Snapshot) []Field

// TableDefinition defines the structure of a table in the report
type TableDefinition struct {
	Name     string
	Families []int // CPUID families the table applies to. If empty, it will be present for all families.
	// Fields function is called to retrieve field values from the snapshot
	FieldsFunc  FieldsRetriever
	HasRows     bool   // table is meant to be displayed in row form, i.e., a field may have multiple values
	NoDataFound string // message to display when no data is found
}

// IsTableForFamily reports whether the table applies to the given family.
func IsTableForFamily(table TableDefinition, family int) bool {
	return len(table.Families) == 0 || slices.Contains(table.Families, family)
}

// ProcessTables fills the tables that apply to the snapshot's processor.
func ProcessTables(tables []TableDefinition, snapshot *Snapshot) (allTableValues []TableValues) {
	for _, table := range tables {
		if !IsTableForFamily(table, snapshot.Variant.Family) {
			continue
		}
		allTableValues = append(allTableValues, GetValuesForTable(table, snapshot))
	}
	return
}

// GetFieldIndex returns the index of a field with the given name in the TableValues structure.
func GetFieldIndex(fieldName string, tableValues TableValues) (int, error) {
	for i, field := range tableValues.Fields {
		if field.Name == fieldName {
			if len(field.Values) == 0 {
				return -1, fmt.Errorf("field [%s] does not have associated value(s)", field.Name)
			}
			return i, nil
		}
	}
	return -1, fmt.Errorf("field [%s] not found in table [%s]", fieldName, tableValues.Name)
}

// GetValuesForTable returns the fields and their values for the table
func GetValuesForTable(table TableDefinition, snapshot *Snapshot) TableValues {
	// FieldsFunc can't be nil
	if table.FieldsFunc == nil {
		panic(fmt.Sprintf("table %s, FieldsFunc cannot be nil", table.Name))
	}
	tableValues := TableValues{
		TableDefinition: table,
		Fields:          table.FieldsFunc(snapshot),
	}
	if err := validateTableValues(tableValues); err != nil {
		slog.Error("table validation failed", "table", table.Name, "error", err)
		return TableValues{
			TableDefinition: table,
			Fields:          []Field{},
		}
	}
	return tableValues
}

func validateTableValues(tableValues TableValues) error {
	if tableValues.Name == "" {
		return fmt.Errorf("table name cannot be empty")
	}
	// no field values is a valid state
	if len(tableValues.Fields) == 0 {
		return nil
	}
	for i, field := range tableValues.Fields {
		if field.Name == "" {
			return fmt.Errorf("table %s, field %d, name cannot be empty", tableValues.Name, i)
		}
	}
	// the number of entries in each field must be the same
	numEntries := len(tableValues.Fields[0].Values)
	for i, field := range tableValues.Fields {
		if len(field.Values) != numEntries {
			return fmt.Errorf("table %s, field %d, %s, number of entries must be the same for all fields, expected %d, got %d", tableValues.Name, i, field.Name, numEntries, len(field.Values))
		}
	}
	return nil
}
