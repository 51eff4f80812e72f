// Package incres resolves include/incbin file references against a
// search-path list, and implements Merlin's ProDOS-style `USE N/file`
// prefix substitution (§6). Grounded on the teacher's deleted `loader`
// package, which performed the same "search a path list, read once"
// resolution for ARM source includes.
package incres

import (
	"fmt"
	"os"
	"path/filepath"
)

// Resolver holds the ordered include-path list every `-i<dir>`-style
// flag and config entry contributes, plus the cwd fallback search order
// the Line Source component needs (§1, §6).
type Resolver struct {
	Paths []string
}

func New(paths []string) *Resolver {
	return &Resolver{Paths: paths}
}

// Resolve finds name on the search path, trying the literal name first,
// then each configured directory joined with name, matching the
// teacher's loader path-search order (direct, then each -I directory).
func (r *Resolver) Resolve(name string) (string, error) {
	if filepath.IsAbs(name) {
		if _, err := os.Stat(name); err == nil {
			return name, nil
		}
		return "", fmt.Errorf("include file not found: %s", name)
	}
	if _, err := os.Stat(name); err == nil {
		return name, nil
	}
	for _, dir := range r.Paths {
		candidate := filepath.Join(dir, name)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("include file not found: %s", name)
}

// ReadLines resolves name and splits it into source lines for the Line
// Source to push as a new include frame (§1, §5 I/O: "include files may
// be re-opened multiple times").
func (r *Resolver) ReadLines(name string) ([]string, error) {
	path, err := r.Resolve(name)
	if err != nil {
		return nil, err
	}
	return r.readLinesAt(path)
}

// ReadLinesForUse is ReadLines via the ProDOS USE N/file resolution instead
// of the plain search-path one (§6).
func (r *Resolver) ReadLinesForUse(operand string) ([]string, error) {
	path, err := r.ResolveMerlinUse(operand)
	if err != nil {
		return nil, err
	}
	return r.readLinesAt(path)
}

func (r *Resolver) readLinesAt(path string) ([]string, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- resolved against a user-controlled include path, by design
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return splitLines(string(data)), nil
}

func splitLines(s string) []string {
	var lines []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			line := s[start:i]
			if len(line) > 0 && line[len(line)-1] == '\r' {
				line = line[:len(line)-1]
			}
			lines = append(lines, line)
			start = i + 1
		}
	}
	if start < len(s) {
		lines = append(lines, s[start:])
	}
	return lines
}

// ReadBinary resolves name and reads a byte range for INCBIN (§1, §5:
// "Binary include reads a file range into a single DATA atom in one
// shot"). offset/length of 0 mean "from the start"/"to EOF".
func (r *Resolver) ReadBinary(name string, offset, length int64) ([]byte, error) {
	path, err := r.Resolve(name)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path) // #nosec G304 -- resolved against a user-controlled include path, by design
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	if offset > 0 {
		if _, err := f.Seek(offset, 0); err != nil {
			return nil, fmt.Errorf("seeking %s: %w", path, err)
		}
	}
	if length <= 0 {
		info, err := f.Stat()
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", path, err)
		}
		length = info.Size() - offset
		if length < 0 {
			length = 0
		}
	}
	buf := make([]byte, length)
	n, err := readFull(f, buf)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return buf[:n], nil
}

func readFull(f *os.File, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := f.Read(buf[total:])
		total += n
		if err != nil {
			if total == len(buf) {
				return total, nil
			}
			return total, err
		}
		if n == 0 {
			break
		}
	}
	return total, nil
}

// ResolveMerlinUse implements Merlin's `USE N/file` ProDOS-path form
// (§6): a leading digit prefix selects a numbered ProDOS volume; prefix
// `4` reads its base directory from VASM_MERLIN_PREFIX_4 (default "./"),
// other digit prefixes have no configured base and fall through to a
// plain relative lookup.
func (r *Resolver) ResolveMerlinUse(operand string) (string, error) {
	prefix, rest, ok := splitProdosPrefix(operand)
	if !ok {
		return r.Resolve(operand)
	}
	if prefix == "4" {
		base := os.Getenv("VASM_MERLIN_PREFIX_4")
		if base == "" {
			base = "./"
		}
		return r.Resolve(filepath.Join(base, rest))
	}
	return r.Resolve(rest)
}

func splitProdosPrefix(operand string) (prefix, rest string, ok bool) {
	if len(operand) < 2 || operand[0] < '0' || operand[0] > '9' || operand[1] != '/' {
		return "", operand, false
	}
	return operand[:1], operand[2:], true
}
