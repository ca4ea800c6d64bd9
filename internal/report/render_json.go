package report

// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

import (
	"encoding/json"

	"amdmsrtweaker/internal/table"

	"gopkg.in/yaml.v2"
)

func createJsonReport(allTableValues []table.TableValues) (out []byte, err error) {
	oReport := make(map[string][]map[string]string)
	for _, tableValues := range allTableValues {
		oReport[tableValues.Name] = records(tableValues)
	}
	return json.MarshalIndent(oReport, "", " ")
}

// createYamlReport keeps the table order of the text report.
func createYamlReport(allTableValues []table.TableValues) (out []byte, err error) {
	var oReport yaml.MapSlice
	for _, tableValues := range allTableValues {
		var oTable []yaml.MapSlice
		for recordIdx := range records(tableValues) {
			var oRecord yaml.MapSlice
			for _, field := range tableValues.Fields {
				var value string
				if recordIdx < len(field.Values) {
					value = field.Values[recordIdx]
				}
				oRecord = append(oRecord, yaml.MapItem{Key: field.Name, Value: value})
			}
			oTable = append(oTable, oRecord)
		}
		oReport = append(oReport, yaml.MapItem{Key: tableValues.Name, Value: oTable})
	}
	return yaml.Marshal(oReport)
}
