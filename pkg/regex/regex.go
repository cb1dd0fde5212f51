package regex

import (
	"fmt"

	"github.com/dlclark/regexp2"
)

type Pattern struct {
	Expression *regexp2.Regexp
}

func Compile(pattern string) (*Pattern, error) {
	exp, err := regexp2.Compile(pattern, regexp2.RE2)
	if err != nil {
		return nil, fmt.Errorf("compile regex %q: %w", pattern, err)
	}

	return &Pattern{Expression: exp}, nil
}

func CompileAll(patterns []string) ([]*Pattern, error) {
	compiled := make([]*Pattern, 0, len(patterns))
	for _, p := range patterns {
		c, err := Compile(p)
		if err != nil {
			return nil, err
		}
		compiled = append(compiled, c)
	}

	return compiled, nil
}

func Check(s string, pattern *Pattern) (bool, error) {
	match, err := pattern.Expression.MatchString(s)
	if err != nil {
		return false, fmt.Errorf("match regex %q: %w", pattern.Expression.String(), err)
	}

	return match, nil
}

// CheckAny returns true at the first pattern matching s.
func CheckAny(s string, patterns []*Pattern) (bool, error) {
	for _, p := range patterns {
		match, err := Check(s, p)
		if err != nil {
			return false, err
		}
		if match {
			return true, nil
		}
	}

	return false, nil
}
