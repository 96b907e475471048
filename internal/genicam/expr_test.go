package genicam

import "testing"

func TestEvalExpression(t *testing.T) {
	tests := []struct {
		name string
		expr string
		env  map[string]float64
		want float64
	}{
		{"integer literal", "42", nil, 42},
		{"hex literal", "0x10", nil, 16},
		{"addition", "1+2", nil, 3},
		{"precedence", "2+3*4", nil, 14},
		{"parens", "(2+3)*4", nil, 20},
		{"variable", "TriggerSelector*4", map[string]float64{"TriggerSelector": 3}, 12},
		{"ternary", "1 ? 10 : 20", nil, 10},
		{"ternary false", "0 ? 10 : 20", nil, 20},
		{"shift", "1<<4", nil, 16},
		{"bitand", "0xff & 0x0f", nil, 15},
		{"bitor", "0x10 | 0x01", nil, 17},
		{"compare", "3 > 2", nil, 1},
		{"function", "SQRT(16)", nil, 4},
		{"neg function", "NEG(5)", nil, -5},
		{"unary minus", "-5+2", nil, -3},
		{"power", "2**3", nil, 8},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := EvalExpression(tc.expr, tc.env)
			if err != nil {
				t.Fatalf("EvalExpression(%q): %v", tc.expr, err)
			}
			if got != tc.want {
				t.Errorf("EvalExpression(%q) = %v, want %v", tc.expr, got, tc.want)
			}
		})
	}
}

func TestEvalExpressionErrors(t *testing.T) {
	tests := []string{
		"1 +",
		"1 2",
		"UNKNOWNFUNC(1)",
		"(1+2",
	}
	for _, expr := range tests {
		if _, err := EvalExpression(expr, nil); err == nil {
			t.Errorf("EvalExpression(%q): expected error, got none", expr)
		}
	}
}
