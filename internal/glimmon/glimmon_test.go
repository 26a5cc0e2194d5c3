package glimmon

import (
	"errors"
	"strings"
	"testing"
)

const sample = `#$Revision: 1.42 $
XMSID TEXTONLY ROWCOL 1 1 COLOR GREEN "Version : $Name: OCC_1.9 $"
XMSID TEXTONLY ROWCOL 2 1 COLOR GREEN "Database : op2024"
MLMDEFTOL 1
MLMTHROW 0

MLOAD 1CRAT
MLIMIT SET 0 DEFAULT PPENG -20.0 -15.5 35 40
MLIMIT SET 1 SWITCHSTATE ON PPENG -10 -5 25 30
MLMTOL 2
MLIMSW AOPCADMD
MLMENABLE 1

MLOAD AOPCADMD
MLIMIT SET 0 DEFAULT EXPST NPNT
`

func TestParseSample(t *testing.T) {
	spec, err := Parse(strings.NewReader(sample))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if spec.Revision != "1.42" {
		t.Fatalf("revision: %q", spec.Revision)
	}
	if spec.Version != "Name: OCC_1.9" {
		t.Fatalf("version: %q", spec.Version)
	}
	if spec.Database != "op2024" {
		t.Fatalf("database: %q", spec.Database)
	}
	if spec.DefaultTolerance == nil || *spec.DefaultTolerance != 1 || spec.Throw == nil || *spec.Throw != 0 {
		t.Fatalf("globals: %v %v", spec.DefaultTolerance, spec.Throw)
	}

	crat := spec.Signals["1CRAT"]
	if crat == nil || crat.Type != TypeLimit {
		t.Fatalf("1CRAT: %+v", crat)
	}
	if len(crat.SetKeys) != 2 || crat.DefaultSet == nil || *crat.DefaultSet != 0 {
		t.Fatalf("sets: %v default %v", crat.SetKeys, crat.DefaultSet)
	}
	s0 := crat.Sets[0]
	if *s0.WarningLow != -20 || *s0.CautionLow != -15.5 || *s0.CautionHigh != 35 || *s0.WarningHigh != 40 {
		t.Fatalf("set 0: %+v", s0)
	}
	if crat.Sets[1].SwitchState != "ON" {
		t.Fatalf("switch state: %q", crat.Sets[1].SwitchState)
	}
	if crat.Switch != "AOPCADMD" || *crat.Tolerance != 2 || *crat.Enable != 1 {
		t.Fatalf("signal fields: %+v", crat)
	}

	mode := spec.Signals["AOPCADMD"]
	if mode == nil || mode.Type != TypeExpectedState || mode.Sets[0].ExpectedState != "NPNT" {
		t.Fatalf("AOPCADMD: %+v", mode)
	}
}

func TestParseErrors(t *testing.T) {
	cases := map[string]int{
		"MLIMIT SET 0 PPENG 1 2 3 4\n":            1,
		"MLOAD X\nMLIMIT SET zero PPENG 1 2 3 4\n": 2,
		"MLOAD X\nMLIMIT SET 0 PPENG 1 2 3\n":      2,
		"MLOAD X\n\nMLMTOL\n":                      3,
		"MLMENABLE 1\n":                            1,
	}
	for input, line := range cases {
		_, err := Parse(strings.NewReader(input))
		var syn *SyntaxError
		if !errors.As(err, &syn) {
			t.Fatalf("%q: expected SyntaxError, got %v", input, err)
		}
		if syn.Line != line {
			t.Fatalf("%q: line %d, want %d", input, syn.Line, line)
		}
	}
}
