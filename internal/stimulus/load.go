package stimulus

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

// LoadPools reads pools from a file with [patterned] and [random] sections,
// one sequence per line. Lines starting with # are comments.
func LoadPools(path string) (Pools, error) {
	file, err := os.Open(path)
	if err != nil {
		return Pools{}, err
	}
	defer func() {
		if cerr := file.Close(); cerr != nil {
			// Best-effort close for read-only pool file.
			_ = cerr
		}
	}()
	return ParsePools(file)
}

// ParsePools parses the pool file format and validates the result.
func ParsePools(r io.Reader) (Pools, error) {
	var pools Pools
	var target *[]string
	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := normalizeLine(scanner.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]") {
			switch strings.ToLower(strings.Trim(line, "[]")) {
			case "patterned":
				target = &pools.Patterned
			case "random":
				target = &pools.Random
			default:
				return Pools{}, fmt.Errorf("line %d: unknown section %s", lineNo, line)
			}
			continue
		}
		if target == nil {
			return Pools{}, fmt.Errorf("line %d: sequence outside of a section", lineNo)
		}
		*target = append(*target, line)
	}
	if err := scanner.Err(); err != nil {
		return Pools{}, err
	}
	if err := pools.Validate(); err != nil {
		return Pools{}, err
	}
	return pools, nil
}
