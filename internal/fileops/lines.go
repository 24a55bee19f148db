package fileops

import (
	"fmt"
	"strings"

	"pkt.systems/filed/internal/pathguard"
)

// splitLines breaks content into lines without their terminators. A file
// ending in a newline has that recorded in trailing, not as an extra empty
// line, so joinLines can round-trip the content byte for byte.
func splitLines(content string) (lines []string, trailing bool) {
	if content == "" {
		return nil, false
	}
	if strings.HasSuffix(content, "\n") {
		trailing = true
		content = strings.TrimSuffix(content, "\n")
	}
	return strings.Split(content, "\n"), trailing
}

func joinLines(lines []string, trailing bool) string {
	if len(lines) == 0 {
		return ""
	}
	out := strings.Join(lines, "\n")
	if trailing {
		out += "\n"
	}
	return out
}

// ReadLines returns the numbered lines in the 1-based inclusive range
// [start, end]. The end is clamped to the file length; a start beyond the
// file is an error.
func (o *Ops) ReadLines(res pathguard.Resolved, start, end int) (string, error) {
	if start < 1 {
		return "", invalidf("Line numbers must start at 1")
	}
	if end < start {
		return "", invalidf("Invalid line range: start %d is greater than end %d", start, end)
	}
	content, err := o.readTextFile(res)
	if err != nil {
		return "", err
	}
	lines, _ := splitLines(content)
	if start > len(lines) {
		return "", invalidf("Start line %d exceeds file length (%d lines)", start, len(lines))
	}
	if end > len(lines) {
		end = len(lines)
	}
	numbered := make([]string, 0, end-start+1)
	for i := start; i <= end; i++ {
		numbered = append(numbered, fmt.Sprintf("%d: %s", i, lines[i-1]))
	}
	return fmt.Sprintf("Lines %d-%d of %s:\n%s", start, end, res.Rel, strings.Join(numbered, "\n")), nil
}

// WriteLines splices replacement lines into the file starting at the
// 1-based start line, overwriting exactly len(lines) original lines. A
// replacement running past the end of the file extends it.
func (o *Ops) WriteLines(res pathguard.Resolved, lines []string, start int) (string, error) {
	if start < 1 {
		return "", invalidf("Line numbers must start at 1")
	}
	content, err := o.readTextFile(res)
	if err != nil {
		return "", err
	}
	fileLines, trailing := splitLines(content)
	if len(fileLines) == 0 {
		if start != 1 {
			return "", invalidf("Start line %d exceeds file length (0 lines)", start)
		}
	} else if start > len(fileLines) {
		return "", invalidf("Start line %d exceeds file length (%d lines)", start, len(fileLines))
	}
	tail := start - 1 + len(lines)
	out := make([]string, 0, len(fileLines)+len(lines))
	out = append(out, fileLines[:start-1]...)
	out = append(out, lines...)
	if tail < len(fileLines) {
		out = append(out, fileLines[tail:]...)
	}
	if err := o.writeTextFile(res, joinLines(out, trailing)); err != nil {
		return "", err
	}
	return fmt.Sprintf("Successfully replaced %d line(s) starting at line %d in %s", len(lines), start, res.Rel), nil
}

// InsertLines inserts content's lines before the given 1-based line
// number. Position len+1 appends after the last line.
func (o *Ops) InsertLines(res pathguard.Resolved, content string, lineNumber int) (string, error) {
	if lineNumber < 1 {
		return "", invalidf("Line numbers must start at 1")
	}
	existing, err := o.readTextFile(res)
	if err != nil {
		return "", err
	}
	fileLines, trailing := splitLines(existing)
	if lineNumber > len(fileLines)+1 {
		return "", invalidf("Insert line %d exceeds file length (%d lines)", lineNumber, len(fileLines))
	}
	inserted, _ := splitLines(content)
	out := make([]string, 0, len(fileLines)+len(inserted))
	out = append(out, fileLines[:lineNumber-1]...)
	out = append(out, inserted...)
	out = append(out, fileLines[lineNumber-1:]...)
	if err := o.writeTextFile(res, joinLines(out, trailing)); err != nil {
		return "", err
	}
	return fmt.Sprintf("Successfully inserted %d line(s) at line %d in %s", len(inserted), lineNumber, res.Rel), nil
}

// DeleteLines removes the 1-based inclusive line range [start, end],
// clamping end to the file length.
func (o *Ops) DeleteLines(res pathguard.Resolved, start, end int) (string, error) {
	if start < 1 {
		return "", invalidf("Line numbers must start at 1")
	}
	if end < start {
		return "", invalidf("Invalid line range: start %d is greater than end %d", start, end)
	}
	content, err := o.readTextFile(res)
	if err != nil {
		return "", err
	}
	fileLines, trailing := splitLines(content)
	if start > len(fileLines) {
		return "", invalidf("Start line %d exceeds file length (%d lines)", start, len(fileLines))
	}
	if end > len(fileLines) {
		end = len(fileLines)
	}
	out := make([]string, 0, len(fileLines)-(end-start+1))
	out = append(out, fileLines[:start-1]...)
	out = append(out, fileLines[end:]...)
	if err := o.writeTextFile(res, joinLines(out, trailing)); err != nil {
		return "", err
	}
	return fmt.Sprintf("Successfully deleted lines %d-%d from %s", start, end, res.Rel), nil
}

// AppendLines appends content to the file, inserting a newline separator
// only when the file does not already end with one.
func (o *Ops) AppendLines(res pathguard.Resolved, content string) (string, error) {
	existing, err := o.readTextFile(res)
	if err != nil {
		return "", err
	}
	appended, _ := splitLines(content)
	var updated string
	switch {
	case existing == "" || strings.HasSuffix(existing, "\n"):
		updated = existing + content
	default:
		updated = existing + "\n" + content
	}
	if err := o.writeTextFile(res, updated); err != nil {
		return "", err
	}
	return fmt.Sprintf("Successfully appended %d line(s) to %s", len(appended), res.Rel), nil
}
