package report

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"strconv"
)

// VariableInfo names a variable code for column headings.
type VariableInfo struct {
	Label string `json:"label"`
	Units string `json:"units"`
}

//go:embed variables.json
var variablesJSON []byte

var variables = map[int64]VariableInfo{}

func init() {
	var parsed map[string]VariableInfo
	if err := json.Unmarshal(variablesJSON, &parsed); err != nil {
		panic(fmt.Sprintf("report: parse variables: %v", err))
	}
	for key, info := range parsed {
		code, err := strconv.ParseInt(key, 10, 64)
		if err != nil {
			panic(fmt.Sprintf("report: variable code %q: %v", key, err))
		}
		variables[code] = info
	}
}

// LookupVariable returns the label and units for code. Unknown codes get a
// generated label and "-" units.
func LookupVariable(code int64) VariableInfo {
	if info, ok := variables[code]; ok {
		return info
	}
	return VariableInfo{Label: fmt.Sprintf("Var%d", code), Units: "-"}
}
