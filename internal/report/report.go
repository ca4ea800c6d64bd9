// Package report renders report tables as txt, json, yaml or xlsx.
package report

// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

import (
	"fmt"
	"strings"

	"amdmsrtweaker/internal/table"
)

const (
	FormatTxt  = "txt"
	FormatJson = "json"
	FormatYaml = "yaml"
	FormatXlsx = "xlsx"
)

const noDataFound = "No data found."

var FormatOptions = []string{FormatTxt, FormatJson, FormatYaml, FormatXlsx}

// Create generates a report in the specified format from the table values.
// All fields of a table must have the same number of values.
func Create(format string, allTableValues []table.TableValues) (out []byte, err error) {
	// make sure that all fields have the same number of values
	for _, tableValue := range allTableValues {
		numRows := -1
		for _, fieldValues := range tableValue.Fields {
			if numRows == -1 {
				numRows = len(fieldValues.Values)
				continue
			}
			if len(fieldValues.Values) != numRows {
				return nil, fmt.Errorf("table %s: expected %d value(s) for field %s, found %d", tableValue.Name, numRows, fieldValues.Name, len(fieldValues.Values))
			}
		}
	}
	switch format {
	case FormatTxt:
		return createTextReport(allTableValues)
	case FormatJson:
		return createJsonReport(allTableValues)
	case FormatYaml:
		return createYamlReport(allTableValues)
	case FormatXlsx:
		return createXlsxReport(allTableValues)
	}
	return nil, fmt.Errorf("expected one of %s, got %s", strings.Join(FormatOptions, ", "), format)
}

// records flattens a table into one map per row.
func records(tableValues table.TableValues) []map[string]string {
	var recs []map[string]string
	if len(tableValues.Fields) == 0 {
		return recs
	}
	numRecords := len(tableValues.Fields[0].Values)
	if numRecords == 0 {
		// insert an empty record
		rec := make(map[string]string)
		for _, field := range tableValues.Fields {
			rec[field.Name] = ""
		}
		return append(recs, rec)
	}
	for recordIdx := range numRecords {
		rec := make(map[string]string)
		for _, field := range tableValues.Fields {
			rec[field.Name] = field.Values[recordIdx]
		}
		recs = append(recs, rec)
	}
	return recs
}
