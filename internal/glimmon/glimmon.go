// Package glimmon reads GRETA limit monitoring specification files
// (G_LIMMON.dec and its variants).
//
// Only limit and expected-state records are read. Equations defining derived
// signals are ignored, and signals whose limits come from the telemetry
// database carry no limit sets.
package glimmon

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"regexp"
	"slices"
	"strconv"
	"strings"
)

const (
	TypeLimit         = "limit"
	TypeExpectedState = "expected_state"
)

type Spec struct {
	Revision         string             `json:"revision,omitempty" yaml:"revision,omitempty"`
	Version          string             `json:"version,omitempty" yaml:"version,omitempty"`
	Database         string             `json:"database,omitempty" yaml:"database,omitempty"`
	DefaultTolerance *int               `json:"mlmdeftol,omitempty" yaml:"mlmdeftol,omitempty"`
	Throw            *int               `json:"mlmthrow,omitempty" yaml:"mlmthrow,omitempty"`
	Signals          map[string]*Signal `json:"signals" yaml:"signals"`
}

type Signal struct {
	Name       string            `json:"name" yaml:"name"`
	Type       string            `json:"type,omitempty" yaml:"type,omitempty"`
	Sets       map[int]*LimitSet `json:"sets,omitempty" yaml:"sets,omitempty"`
	SetKeys    []int             `json:"setkeys,omitempty" yaml:"setkeys,omitempty"`
	DefaultSet *int              `json:"default,omitempty" yaml:"default,omitempty"`
	Tolerance  *int              `json:"mlmtol,omitempty" yaml:"mlmtol,omitempty"`
	Switch     string            `json:"mlimsw,omitempty" yaml:"mlimsw,omitempty"`
	Enable     *int              `json:"mlmenable,omitempty" yaml:"mlmenable,omitempty"`
}

type LimitSet struct {
	SwitchState   string   `json:"switchstate,omitempty" yaml:"switchstate,omitempty"`
	WarningLow    *float64 `json:"warning_low,omitempty" yaml:"warning_low,omitempty"`
	CautionLow    *float64 `json:"caution_low,omitempty" yaml:"caution_low,omitempty"`
	CautionHigh   *float64 `json:"caution_high,omitempty" yaml:"caution_high,omitempty"`
	WarningHigh   *float64 `json:"warning_high,omitempty" yaml:"warning_high,omitempty"`
	ExpectedState string   `json:"expst,omitempty" yaml:"expst,omitempty"`
}

var (
	reRevision    = regexp.MustCompile(`^#\$Revision\s*:\s*([0-9.]+).*$`)
	reVersion     = regexp.MustCompile(`.*Version\s*:\s*[$]?([A-Za-z0-9_.: \t-]*)[$]?"\s*$`)
	reDatabase    = regexp.MustCompile(`.*Database\s*:\s*(\w*)"\s*$`)
	reVersionLine = regexp.MustCompile(`^XMSID TEXTONLY ROWCOL.*COLOR.*Version`)
	reDBLine      = regexp.MustCompile(`^XMSID TEXTONLY ROWCOL.*COLOR.*Database`)
)

// SyntaxError locates a record that could not be read.
type SyntaxError struct {
	Line int
	Msg  string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("glimmon line %d: %s", e.Line, e.Msg)
}

func ParseFile(path string) (*Spec, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Parse(f)
}

func Parse(r io.Reader) (*Spec, error) {
	p := &parser{spec: &Spec{Signals: map[string]*Signal{}}}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 8192), 1024*1024)
	for scanner.Scan() {
		p.lineNo++
		if err := p.line(scanner.Text()); err != nil {
			return nil, err
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return p.spec, nil
}

type parser struct {
	spec    *Spec
	current *Signal
	lineNo  int
}

func (p *parser) errorf(format string, args ...any) error {
	return &SyntaxError{Line: p.lineNo, Msg: fmt.Sprintf(format, args...)}
}

func (p *parser) line(line string) error {
	words := strings.Fields(line)
	if len(words) == 0 {
		return nil
	}
	switch words[0] {
	case "MLOAD":
		if len(words) < 2 {
			return p.errorf("MLOAD without signal name")
		}
		p.current = &Signal{Name: words[1]}
		p.spec.Signals[words[1]] = p.current
		return nil
	case "MLIMIT":
		return p.limit(words)
	case "MLMTOL":
		return p.signalInt(words, func(s *Signal, v int) { s.Tolerance = &v })
	case "MLMENABLE":
		return p.signalInt(words, func(s *Signal, v int) { s.Enable = &v })
	case "MLIMSW":
		if p.current == nil {
			return p.errorf("MLIMSW before MLOAD")
		}
		if len(words) < 2 {
			return p.errorf("MLIMSW without value")
		}
		p.current.Switch = words[1]
		return nil
	case "MLMDEFTOL":
		v, err := p.intAt(words, 1)
		if err != nil {
			return err
		}
		p.spec.DefaultTolerance = &v
		return nil
	case "MLMTHROW":
		v, err := p.intAt(words, 1)
		if err != nil {
			return err
		}
		p.spec.Throw = &v
		return nil
	}
	switch {
	case reVersionLine.MatchString(line):
		if m := reVersion.FindStringSubmatch(line); m != nil {
			p.spec.Version = strings.TrimSpace(m[1])
		}
	case reDBLine.MatchString(line):
		if m := reDatabase.FindStringSubmatch(line); m != nil {
			p.spec.Database = strings.TrimSpace(m[1])
		}
	case strings.HasPrefix(line, "#$Revision"):
		if m := reRevision.FindStringSubmatch(line); m != nil {
			p.spec.Revision = strings.TrimSpace(m[1])
		}
	}
	return nil
}

// MLIMIT SET <n> [DEFAULT] [SWITCHSTATE <s>] [PPENG <wl> <cl> <ch> <wh>] [EXPST <s>]
func (p *parser) limit(words []string) error {
	if p.current == nil {
		return p.errorf("MLIMIT before MLOAD")
	}
	setNum, err := p.intAt(words, 2)
	if err != nil {
		return err
	}
	set := &LimitSet{}
	sig := p.current
	if sig.Sets == nil {
		sig.Sets = map[int]*LimitSet{}
	}
	sig.Sets[setNum] = set
	sig.SetKeys = append(sig.SetKeys, setNum)

	if slices.Contains(words, "DEFAULT") {
		n := setNum
		sig.DefaultSet = &n
	}
	if i := slices.Index(words, "SWITCHSTATE"); i >= 0 {
		if i+1 >= len(words) {
			return p.errorf("SWITCHSTATE without value")
		}
		set.SwitchState = words[i+1]
	}
	if i := slices.Index(words, "PPENG"); i >= 0 {
		sig.Type = TypeLimit
		vals := make([]*float64, 4)
		for k := range vals {
			v, err := p.floatAt(words, i+1+k)
			if err != nil {
				return err
			}
			vals[k] = &v
		}
		set.WarningLow, set.CautionLow, set.CautionHigh, set.WarningHigh = vals[0], vals[1], vals[2], vals[3]
	}
	if i := slices.Index(words, "EXPST"); i >= 0 {
		if i+1 >= len(words) {
			return p.errorf("EXPST without value")
		}
		sig.Type = TypeExpectedState
		set.ExpectedState = words[i+1]
	}
	return nil
}

func (p *parser) signalInt(words []string, set func(*Signal, int)) error {
	if p.current == nil {
		return p.errorf("%s before MLOAD", words[0])
	}
	v, err := p.intAt(words, 1)
	if err != nil {
		return err
	}
	set(p.current, v)
	return nil
}

func (p *parser) intAt(words []string, i int) (int, error) {
	if i >= len(words) {
		return 0, p.errorf("%s: missing field %d", words[0], i)
	}
	v, err := strconv.Atoi(words[i])
	if err != nil {
		return 0, p.errorf("%s: %q is not an integer", words[0], words[i])
	}
	return v, nil
}

func (p *parser) floatAt(words []string, i int) (float64, error) {
	if i >= len(words) {
		return 0, p.errorf("%s: missing field %d", words[0], i)
	}
	v, err := strconv.ParseFloat(words[i], 64)
	if err != nil {
		return 0, p.errorf("%s: %q is not a number", words[0], words[i])
	}
	return v, nil
}
