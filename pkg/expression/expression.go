package expression

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/hardup/hardup/pkg/fileid"
	"github.com/hardup/hardup/pkg/regex"
)

type CompiledExpression struct {
	Program *vm.Program
	Text    string
}

// File is the environment a filter expression is evaluated against.
type File struct {
	Path    string
	Name    string
	Dir     string
	Ext     string
	Size    int64
	Mode    uint32
	Uid     uint32
	Gid     uint32
	Nlink   uint64
	ModTime time.Time
}

func NewFile(path string, st fileid.Stat) File {
	return File{
		Path:    path,
		Name:    filepath.Base(path),
		Dir:     filepath.Dir(path),
		Ext:     strings.ToLower(filepath.Ext(path)),
		Size:    st.Size,
		Mode:    st.Mode & 0o7777,
		Uid:     st.Uid,
		Gid:     st.Gid,
		Nlink:   st.Nlink,
		ModTime: st.ModTime,
	}
}

func (f File) AgeHours() float64 {
	return time.Since(f.ModTime).Hours()
}

func (f File) AgeDays() float64 {
	return f.AgeHours() / 24
}

// RegexMatch checks the full path against pattern.
func (f File) RegexMatch(pattern string) bool {
	compiled, err := regex.Compile(pattern)
	if err != nil {
		return false
	}

	match, err := regex.Check(f.Path, compiled)
	if err != nil {
		return false
	}

	return match
}

func Compile(text string) (*CompiledExpression, error) {
	program, err := expr.Compile(text, expr.Env(File{}), expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("compile expression %q: %w", text, err)
	}

	return &CompiledExpression{Program: program, Text: text}, nil
}

func CheckFileMatch(f File, expression *CompiledExpression) (bool, error) {
	result, err := expr.Run(expression.Program, f)
	if err != nil {
		return false, fmt.Errorf("check expression: %w", err)
	}

	match, ok := result.(bool)
	if !ok {
		return false, fmt.Errorf("type assert expression result: %T", result)
	}

	return match, nil
}
