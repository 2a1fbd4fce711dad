package cpu

import (
	"io/fs"
	"iter"
	"log"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
)

var (
	rePragmaOnce = regexp.MustCompile(`^@pragma\s+once\s*;$`)
	reInclude    = regexp.MustCompile(`^@include\s+("[^"]+"|<[^>]+>)\s*;$`)
)

// sourceExtensions are tried, in order, for an include without one.
var sourceExtensions = [...]string{".qasm", ".asm"}

// removeComments drops // and /* */ comments outside of string quotes.
// A block comment becomes a single space.
func removeComments(code string) string {
	var out strings.Builder
	out.Grow(len(code))

	quoted := false
	for n := 0; n < len(code); n++ {
		c := code[n]
		switch {
		case quoted:
			out.WriteByte(c)
			if c == '\\' && n+1 < len(code) {
				n++
				out.WriteByte(code[n])
			} else if c == '"' || c == '\n' {
				quoted = false
			}
		case c == '"':
			quoted = true
			out.WriteByte(c)
		case strings.HasPrefix(code[n:], "//"):
			end := strings.IndexByte(code[n:], '\n')
			if end < 0 {
				return out.String()
			}
			n += end - 1
		case strings.HasPrefix(code[n:], "/*"):
			end := strings.Index(code[n+2:], "*/")
			if end < 0 {
				return out.String()
			}
			out.WriteByte(' ')
			n += end + 3
		default:
			out.WriteByte(c)
		}
	}

	return out.String()
}

// splitStatements splits code on ';' outside of string quotes. Runs of
// whitespace outside of quotes collapse to one space. Empty statements are
// dropped.
func splitStatements(code string) (statements []string) {
	var stmt strings.Builder
	flush := func() {
		text := strings.TrimSpace(stmt.String())
		if len(text) != 0 {
			statements = append(statements, text)
		}
		stmt.Reset()
	}

	quoted := false
	space := false
	for n := 0; n < len(code); n++ {
		c := code[n]
		if quoted {
			stmt.WriteByte(c)
			if c == '\\' && n+1 < len(code) {
				n++
				stmt.WriteByte(code[n])
			} else if c == '"' {
				quoted = false
			}
			continue
		}

		switch c {
		case ' ', '\t', '\r', '\n', '\v', '\f':
			space = true
			continue
		case ';':
			space = false
			flush()
			continue
		}

		if space {
			stmt.WriteByte(' ')
			space = false
		}
		if c == '"' {
			quoted = true
		}
		stmt.WriteByte(c)
	}
	flush()

	return
}

// skipQuoted returns the index after the string quote opened at code[n].
func skipQuoted(code string, n int) int {
	for n++; n < len(code); n++ {
		switch code[n] {
		case '\\':
			n++
		case '"':
			return n + 1
		}
	}
	return len(code)
}

// directives yields the start and end of each '@' directive outside of
// string quotes. A directive runs through its terminating ';'.
func directives(code string) iter.Seq2[int, int] {
	return func(yield func(start, end int) bool) {
		for n := 0; n < len(code); {
			if code[n] == '"' {
				n = skipQuoted(code, n)
				continue
			}
			if code[n] != '@' {
				n++
				continue
			}

			start := n
			for n < len(code) && code[n] != ';' {
				if code[n] == '"' {
					n = skipQuoted(code, n)
				} else {
					n++
				}
			}
			if n == len(code) {
				return
			}
			n++
			if !yield(start, n) {
				return
			}
		}
	}
}

// replaceDirectives splices the result of fn in place of each directive.
func replaceDirectives(code string, fn func(directive string) (string, error)) (text string, err error) {
	var out strings.Builder
	last := 0
	for start, end := range directives(code) {
		var replacement string
		replacement, err = fn(code[start:end])
		if err != nil {
			return
		}
		out.WriteString(code[last:start])
		out.WriteString(replacement)
		last = end
	}
	out.WriteString(code[last:])

	text = out.String()
	return
}

// cutPragmaOnce keeps the code before its first "@pragma once;".
func cutPragmaOnce(code string) string {
	for start, end := range directives(code) {
		if rePragmaOnce.MatchString(code[start:end]) {
			return code[:start]
		}
	}
	return code
}

// removeDirectives drops the '@' directives left after include resolution.
func (asm *Assembler) removeDirectives(code string) string {
	text, _ := replaceDirectives(code, func(directive string) (string, error) {
		if asm.Verbose {
			log.Printf("assembler: ignoring %v", directive)
		}
		return " ", nil
	})
	return text
}

// includer expands @include directives.
//
// Files are cached by absolute path. A file seen again contributes only the
// code before its "@pragma once;".
type includer struct {
	Verbose      bool
	IncludePaths []string

	cache map[string]string
	stack []string
}

// resolve strips comments from code and splices in its includes. dir is the
// directory of the file code came from.
func (inc *includer) resolve(code string, dir string) (text string, err error) {
	text, err = replaceDirectives(removeComments(code), func(directive string) (string, error) {
		if rePragmaOnce.MatchString(directive) {
			return " ", nil
		}
		match := reInclude.FindStringSubmatch(directive)
		if match == nil {
			return directive, nil
		}
		included, incErr := inc.include(match[1], dir)
		if incErr != nil {
			return "", incErr
		}
		return " " + included + " ;", nil
	})
	return
}

// include loads one file named by a quoted ("name") or bracketed (<name>)
// target. Quoted names are relative to dir. Bracketed names are looked up
// in dir, then in each include path.
func (inc *includer) include(target string, dir string) (text string, err error) {
	name := target[1 : len(target)-1]
	dirs := []string{dir}
	if target[0] == '<' {
		dirs = append(dirs, inc.IncludePaths...)
	}

	path, ok := findSource(name, dirs)
	if !ok {
		err = ErrInclude{Path: name, Err: fs.ErrNotExist}
		return
	}

	if inc.circular(path) {
		err = ErrInclude{Path: name, Err: ErrIncludeCircular}
		return
	}

	content, cached := inc.cache[path]
	if cached {
		content = cutPragmaOnce(removeComments(content))
	} else {
		var data []byte
		data, err = os.ReadFile(path)
		if err != nil {
			err = ErrInclude{Path: name, Err: err}
			return
		}
		content = string(data)
		if inc.cache == nil {
			inc.cache = make(map[string]string)
		}
		inc.cache[path] = content
	}

	if inc.Verbose {
		log.Printf("include: %v (%v)", name, path)
	}

	inc.stack = append(inc.stack, path)
	text, err = inc.resolve(content, filepath.Dir(path))
	inc.stack = inc.stack[:len(inc.stack)-1]

	return
}

// circular is true when including path would repeat the most recent run of
// the include stack: the run from the last inclusion of path to the top
// equals the run of the same length just before it.
func (inc *includer) circular(path string) bool {
	size := len(inc.stack)
	index := -1
	for n := size - 1; n >= 0; n-- {
		if inc.stack[n] == path {
			index = n
			break
		}
	}
	if index < 0 {
		return false
	}

	previous := index*2 - size
	if previous < 0 || previous == index {
		return false
	}

	return slices.Equal(inc.stack[index:], inc.stack[previous:index])
}

// findSource locates name in the first directory that has it, trying the
// source extensions when name has none of them. The result is absolute.
func findSource(name string, dirs []string) (path string, ok bool) {
	candidates := []string{name}
	if ext := filepath.Ext(name); !slices.Contains(sourceExtensions[:], ext) {
		for _, ext := range sourceExtensions {
			candidates = append(candidates, name+ext)
		}
	}

	for _, dir := range dirs {
		for _, candidate := range candidates {
			if !filepath.IsAbs(candidate) {
				candidate = filepath.Join(dir, candidate)
			}
			info, err := os.Stat(candidate)
			if err != nil || info.IsDir() {
				continue
			}
			path, err = filepath.Abs(candidate)
			if err != nil {
				continue
			}
			ok = true
			return
		}
	}

	return
}
