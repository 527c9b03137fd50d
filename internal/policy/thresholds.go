package policy

import (
	"encoding/json"
	"fmt"
	"os"

	"answergate/domain/verdict"
	"answergate/internal/errors"
)

// DefaultRules returns the threshold table used when no file is configured.
// Trustworthiness gates both actions; helpfulness only escalates, with a low
// threshold so that only clearly unhelpful answers reach an SME queue.
func DefaultRules() verdict.RuleTable {
	return verdict.RuleTable{
		verdict.MetricTrustworthiness: {
			Threshold: 0.7,
			Direction: verdict.DirectionBelow,
			Roles:     []verdict.Role{verdict.RoleEscalation, verdict.RoleGuardrail},
		},
		verdict.MetricResponseHelpfulness: {
			Threshold: 0.23,
			Direction: verdict.DirectionBelow,
			Roles:     []verdict.Role{verdict.RoleEscalation},
		},
	}
}

// LoadRules reads a threshold table from a JSON file. An empty path yields
// the defaults. Malformed tables are CONFIG_INVALID and fatal at startup:
// a missing direction or role must never be papered over per request.
func LoadRules(path string) (verdict.RuleTable, error) {
	if path == "" {
		return DefaultRules(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WithCode(errors.CodeConfigInvalid, fmt.Errorf("cannot read thresholds file %s: %w", path, err))
	}

	var rules verdict.RuleTable
	if err := json.Unmarshal(data, &rules); err != nil {
		return nil, errors.WithCode(errors.CodeConfigInvalid, err)
	}

	if err := verdict.ValidateRules(rules); err != nil {
		return nil, errors.WithCode(errors.CodeConfigInvalid, err)
	}

	return rules, nil
}
