package scatter

import (
	"bufio"
	"io"
	"math/rand/v2"
	"os"
	"strconv"
	"strings"
	"unicode"
)

const (
	// DefaultCount is the fragment count used when no naming is selected.
	DefaultCount = 10

	// TokenLength is the length of a generated random name.
	TokenLength = 64

	tokenAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

// NameSource produces the ordered, distinct fragment names for one run.
// The number of names is the fragment count.
//
// Implementations are [Count] and [NameList].
type NameSource interface {
	Names() ([]string, error)
}

// Count generates N names, either the decimal strings 0..N-1 or, when
// Random is set, random fixed-length alphanumeric tokens.
type Count struct {
	N      int
	Random bool
}

// Names implements NameSource.
func (c Count) Names() ([]string, error) {
	if c.N <= 0 {
		return nil, configErrorf("fragment count must be positive, got %d", c.N)
	}
	if c.Random {
		return RandomNames(c.N, nil), nil
	}
	return SequentialNames(c.N), nil
}

// NameList reads names from a newline-delimited file, one per line.
type NameList struct {
	Path string
}

// Names implements NameSource.
func (l NameList) Names() ([]string, error) {
	f, err := os.Open(l.Path)
	if err != nil {
		return nil, configErrorf("open name list: %v", err)
	}
	defer f.Close()
	return ReadNames(f)
}

// DefaultNaming returns the naming used when nothing is selected.
func DefaultNaming() NameSource {
	return Count{N: DefaultCount}
}

// SequentialNames returns "0", "1", ... up to n-1.
func SequentialNames(n int) []string {
	names := make([]string, n)
	for i := range names {
		names[i] = strconv.Itoa(i)
	}
	return names
}

// RandomNames returns n distinct tokens of TokenLength characters drawn
// uniformly from A-Z and 0-9. A nil r uses the package-level generator.
func RandomNames(n int, r *rand.Rand) []string {
	intN := rand.IntN
	if r != nil {
		intN = r.IntN
	}

	names := make([]string, 0, n)
	seen := make(map[string]struct{}, n)
	buf := make([]byte, TokenLength)
	for len(names) < n {
		for i := range buf {
			buf[i] = tokenAlphabet[intN(len(tokenAlphabet))]
		}
		name := string(buf)
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		names = append(names, name)
	}
	return names
}

// ReadNames parses a newline-delimited name list. Trailing whitespace is
// stripped from each line. Blank lines, duplicates, and an empty list are
// configuration errors.
func ReadNames(r io.Reader) ([]string, error) {
	var names []string
	seen := make(map[string]int)
	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		name := strings.TrimRightFunc(sc.Text(), unicode.IsSpace)
		if name == "" {
			return nil, configErrorf("name list line %d is blank", line)
		}
		if first, dup := seen[name]; dup {
			return nil, configErrorf("name list line %d repeats %q from line %d", line, name, first)
		}
		seen[name] = line
		names = append(names, name)
	}
	if err := sc.Err(); err != nil {
		return nil, configErrorf("read name list: %v", err)
	}
	if len(names) == 0 {
		return nil, configErrorf("name list is empty")
	}
	return names, nil
}
