package fileops

import (
	"fmt"
	"regexp"
	"strings"

	"pkt.systems/filed/internal/pathguard"
)

// SearchInFile returns every line matching pattern with its 1-based line
// number. By default the pattern is a literal substring; with useRegex it
// is compiled as a regular expression matched per line.
func (o *Ops) SearchInFile(res pathguard.Resolved, pattern string, useRegex bool) (string, error) {
	content, err := o.readTextFile(res)
	if err != nil {
		return "", err
	}
	match := func(line string) bool { return strings.Contains(line, pattern) }
	if useRegex {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return "", invalidf("Invalid regex pattern: %v", err)
		}
		match = re.MatchString
	}
	lines, _ := splitLines(content)
	var hits []string
	for i, line := range lines {
		if match(line) {
			hits = append(hits, fmt.Sprintf("Line %d: %s", i+1, line))
		}
	}
	if len(hits) == 0 {
		return fmt.Sprintf("No matches found in %s", res.Rel), nil
	}
	return fmt.Sprintf("Found %d matching line(s) in %s:\n%s", len(hits), res.Rel, strings.Join(hits, "\n")), nil
}

// ReplaceInFile replaces literal occurrences of search with replace,
// either the first occurrence or all of them. Zero matches is not an
// error; the result says so and the file is left untouched.
func (o *Ops) ReplaceInFile(res pathguard.Resolved, search, replace string, all bool) (string, error) {
	if search == "" {
		return "", invalidf("Search text must not be empty")
	}
	content, err := o.readTextFile(res)
	if err != nil {
		return "", err
	}
	count := strings.Count(content, search)
	if count == 0 {
		return fmt.Sprintf("No occurrences of search text found in %s", res.Rel), nil
	}
	if !all {
		count = 1
	}
	updated := strings.Replace(content, search, replace, count)
	if err := o.writeTextFile(res, updated); err != nil {
		return "", err
	}
	return fmt.Sprintf("Successfully replaced %d occurrence(s) in %s", count, res.Rel), nil
}

// FindAndReplaceLines replaces every line containing linePattern as a
// substring with replacement, verbatim. Zero matching lines is not an
// error.
func (o *Ops) FindAndReplaceLines(res pathguard.Resolved, linePattern, replacement string) (string, error) {
	if linePattern == "" {
		return "", invalidf("Line pattern must not be empty")
	}
	content, err := o.readTextFile(res)
	if err != nil {
		return "", err
	}
	lines, trailing := splitLines(content)
	count := 0
	for i, line := range lines {
		if strings.Contains(line, linePattern) {
			lines[i] = replacement
			count++
		}
	}
	if count == 0 {
		return fmt.Sprintf("No lines matching pattern found in %s", res.Rel), nil
	}
	if err := o.writeTextFile(res, joinLines(lines, trailing)); err != nil {
		return "", err
	}
	return fmt.Sprintf("Successfully replaced %d line(s) in %s", count, res.Rel), nil
}
