package rpc

import (
	"context"

	"pkt.systems/filed/internal/scopes"
)

// Tool names. Each file operation is exposed as its own tool.
const (
	toolCreateFile          = "create_file"
	toolReadFile            = "read_file"
	toolWriteFile           = "write_file"
	toolDeleteFile          = "delete_file"
	toolListFiles           = "list_files"
	toolListFilesRecursive  = "list_files_recursive"
	toolReadLines           = "read_lines"
	toolWriteLines          = "write_lines"
	toolInsertLines         = "insert_lines"
	toolDeleteLines         = "delete_lines"
	toolAppendLines         = "append_lines"
	toolSearchInFile        = "search_in_file"
	toolReplaceInFile       = "replace_in_file"
	toolFindAndReplaceLines = "find_and_replace_lines"
	toolCopyFile            = "copy_file"
	toolMoveFile            = "move_file"
	toolGetFileInfo         = "get_file_info"
	toolFileExists          = "file_exists"
	toolCreateDirectory     = "create_directory"
	toolDeleteDirectory     = "delete_directory"
	toolMoveDirectory       = "move_directory"
)

// toolOrder fixes the tools/list enumeration order.
var toolOrder = []string{
	toolCreateFile,
	toolReadFile,
	toolWriteFile,
	toolDeleteFile,
	toolListFiles,
	toolListFilesRecursive,
	toolReadLines,
	toolWriteLines,
	toolInsertLines,
	toolDeleteLines,
	toolAppendLines,
	toolSearchInFile,
	toolReplaceInFile,
	toolFindAndReplaceLines,
	toolCopyFile,
	toolMoveFile,
	toolGetFileInfo,
	toolFileExists,
	toolCreateDirectory,
	toolDeleteDirectory,
	toolMoveDirectory,
}

// Argument names shared across tool schemas.
const (
	argFilePath        = "file_path"
	argContent         = "content"
	argDirectoryPath   = "directory_path"
	argPattern         = "pattern"
	argStartLine       = "start_line"
	argEndLine         = "end_line"
	argLines           = "lines"
	argLineNumber      = "line_number"
	argUseRegex        = "use_regex"
	argSearchText      = "search_text"
	argReplacementText = "replacement_text"
	argReplaceAll      = "replace_all"
	argLinePattern     = "line_pattern"
	argSourcePath      = "source_path"
	argDestinationPath = "destination_path"
	argRecursive       = "recursive"
)

// contentPolicy selects which write constraints the policy stage applies
// before a tool runs.
type contentPolicy int

const (
	// policyNone applies no content checks.
	policyNone contentPolicy = iota
	// policySize checks the content argument against the size ceiling.
	policySize
	// policyCreate checks the file extension and the content size.
	policyCreate
)

type toolRunner func(ctx context.Context, call *toolCall) (string, error)

// toolDefinition couples a tool's public surface with the metadata the
// request pipeline needs: the scope it requires, the path arguments to
// confine, the content policy to apply, and the runner to execute.
type toolDefinition struct {
	Name        string
	Description string
	InputSchema map[string]any
	scope       scopes.Scope
	policy      contentPolicy
	pathArgs    []string
	defaults    map[string]any
	run         toolRunner
}

// allowedArguments derives the accepted argument set from a schema so the
// pipeline rejects arguments the schema does not declare.
func allowedArguments(schema map[string]any) map[string]struct{} {
	out := make(map[string]struct{})
	if props, ok := schema["properties"].(map[string]any); ok {
		for key := range props {
			out[key] = struct{}{}
		}
	}
	return out
}

func inputSchema(properties map[string]any, required ...string) map[string]any {
	schema := map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties":           properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

func stringProp(description string) map[string]any {
	return map[string]any{"type": "string", "description": description}
}

func lineProp(description string) map[string]any {
	return map[string]any{"type": "integer", "minimum": 1, "description": description}
}

func boolProp(description string, fallback bool) map[string]any {
	return map[string]any{"type": "boolean", "default": fallback, "description": description}
}

func linesProp(description string) map[string]any {
	return map[string]any{
		"type":        "array",
		"items":       map[string]any{"type": "string"},
		"description": description,
	}
}

func (d *Dispatcher) buildToolRegistry() map[string]toolDefinition {
	return map[string]toolDefinition{
		toolCreateFile: {
			Name:        toolCreateFile,
			Description: "Create a new file with the given content, creating parent directories as needed",
			InputSchema: inputSchema(map[string]any{
				argFilePath: stringProp("Relative path of the file to create"),
				argContent:  stringProp("Content to write"),
			}, argFilePath, argContent),
			scope:    scopes.ScopeWrite,
			policy:   policyCreate,
			pathArgs: []string{argFilePath},
			run:      d.runCreateFile,
		},
		toolReadFile: {
			Name:        toolReadFile,
			Description: "Read the full contents of a text file",
			InputSchema: inputSchema(map[string]any{
				argFilePath: stringProp("Relative path of the file to read"),
			}, argFilePath),
			scope:    scopes.ScopeRead,
			pathArgs: []string{argFilePath},
			run:      d.runReadFile,
		},
		toolWriteFile: {
			Name:        toolWriteFile,
			Description: "Overwrite the contents of an existing file",
			InputSchema: inputSchema(map[string]any{
				argFilePath: stringProp("Relative path of the file to overwrite"),
				argContent:  stringProp("Replacement content"),
			}, argFilePath, argContent),
			scope:    scopes.ScopeEdit,
			policy:   policySize,
			pathArgs: []string{argFilePath},
			run:      d.runWriteFile,
		},
		toolDeleteFile: {
			Name:        toolDeleteFile,
			Description: "Delete a single file",
			InputSchema: inputSchema(map[string]any{
				argFilePath: stringProp("Relative path of the file to delete"),
			}, argFilePath),
			scope:    scopes.ScopeDelete,
			pathArgs: []string{argFilePath},
			run:      d.runDeleteFile,
		},
		toolListFiles: {
			Name:        toolListFiles,
			Description: "List files and directories in the given path",
			InputSchema: inputSchema(map[string]any{
				argDirectoryPath: stringProp("Relative directory path to list, defaults to the base directory"),
			}),
			scope:    scopes.ScopeRead,
			pathArgs: []string{argDirectoryPath},
			defaults: map[string]any{argDirectoryPath: "."},
			run:      d.runListFiles,
		},
		toolListFilesRecursive: {
			Name:        toolListFilesRecursive,
			Description: "List the full subtree under a directory, annotating files with their size; an optional glob pattern filters entries, with ** crossing directories",
			InputSchema: inputSchema(map[string]any{
				argDirectoryPath: stringProp("Relative directory path to list, defaults to the base directory"),
				argPattern:       stringProp("Glob pattern matched against paths relative to the listed directory"),
			}),
			scope:    scopes.ScopeRead,
			pathArgs: []string{argDirectoryPath},
			defaults: map[string]any{argDirectoryPath: "."},
			run:      d.runListFilesRecursive,
		},
		toolReadLines: {
			Name:        toolReadLines,
			Description: "Read a 1-based inclusive line range from a file, numbering each line",
			InputSchema: inputSchema(map[string]any{
				argFilePath:  stringProp("Relative path of the file to read"),
				argStartLine: lineProp("First line to read"),
				argEndLine:   lineProp("Last line to read; clamped to the file length"),
			}, argFilePath, argStartLine, argEndLine),
			scope:    scopes.ScopeRead,
			pathArgs: []string{argFilePath},
			run:      d.runReadLines,
		},
		toolWriteLines: {
			Name:        toolWriteLines,
			Description: "Replace lines starting at a 1-based position with the given lines, extending the file if the replacement runs past the end",
			InputSchema: inputSchema(map[string]any{
				argFilePath:  stringProp("Relative path of the file to modify"),
				argLines:     linesProp("Replacement lines"),
				argStartLine: lineProp("First line to replace"),
			}, argFilePath, argLines, argStartLine),
			scope:    scopes.ScopeEdit,
			pathArgs: []string{argFilePath},
			run:      d.runWriteLines,
		},
		toolInsertLines: {
			Name:        toolInsertLines,
			Description: "Insert content's lines before the given 1-based line number",
			InputSchema: inputSchema(map[string]any{
				argFilePath:   stringProp("Relative path of the file to modify"),
				argContent:    stringProp("Lines to insert"),
				argLineNumber: lineProp("Position to insert before; length+1 appends"),
			}, argFilePath, argContent, argLineNumber),
			scope:    scopes.ScopeEdit,
			pathArgs: []string{argFilePath},
			run:      d.runInsertLines,
		},
		toolDeleteLines: {
			Name:        toolDeleteLines,
			Description: "Delete a 1-based inclusive line range from a file",
			InputSchema: inputSchema(map[string]any{
				argFilePath:  stringProp("Relative path of the file to modify"),
				argStartLine: lineProp("First line to delete"),
				argEndLine:   lineProp("Last line to delete; clamped to the file length"),
			}, argFilePath, argStartLine, argEndLine),
			scope:    scopes.ScopeEdit,
			pathArgs: []string{argFilePath},
			run:      d.runDeleteLines,
		},
		toolAppendLines: {
			Name:        toolAppendLines,
			Description: "Append content to an existing file, adding a newline separator only when the file does not already end with one",
			InputSchema: inputSchema(map[string]any{
				argFilePath: stringProp("Relative path of the file to append to"),
				argContent:  stringProp("Content to append"),
			}, argFilePath, argContent),
			scope:    scopes.ScopeEdit,
			pathArgs: []string{argFilePath},
			run:      d.runAppendLines,
		},
		toolSearchInFile: {
			Name:        toolSearchInFile,
			Description: "Find every line matching a pattern, reporting 1-based line numbers; literal substring match by default, regular expression when use_regex is set",
			InputSchema: inputSchema(map[string]any{
				argFilePath: stringProp("Relative path of the file to search"),
				argPattern:  stringProp("Text or regular expression to match per line"),
				argUseRegex: boolProp("Treat pattern as a regular expression", false),
			}, argFilePath, argPattern),
			scope:    scopes.ScopeRead,
			pathArgs: []string{argFilePath},
			run:      d.runSearchInFile,
		},
		toolReplaceInFile: {
			Name:        toolReplaceInFile,
			Description: "Replace literal occurrences of a search text, either the first or all of them",
			InputSchema: inputSchema(map[string]any{
				argFilePath:        stringProp("Relative path of the file to modify"),
				argSearchText:      stringProp("Literal text to search for"),
				argReplacementText: stringProp("Replacement text"),
				argReplaceAll:      boolProp("Replace every occurrence instead of just the first", true),
			}, argFilePath, argSearchText, argReplacementText),
			scope:    scopes.ScopeEdit,
			pathArgs: []string{argFilePath},
			run:      d.runReplaceInFile,
		},
		toolFindAndReplaceLines: {
			Name:        toolFindAndReplaceLines,
			Description: "Replace every line containing a substring with a replacement line, verbatim",
			InputSchema: inputSchema(map[string]any{
				argFilePath:        stringProp("Relative path of the file to modify"),
				argLinePattern:     stringProp("Substring selecting the lines to replace"),
				argReplacementText: stringProp("Line that replaces each matching line"),
			}, argFilePath, argLinePattern, argReplacementText),
			scope:    scopes.ScopeEdit,
			pathArgs: []string{argFilePath},
			run:      d.runFindAndReplaceLines,
		},
		toolCopyFile: {
			Name:        toolCopyFile,
			Description: "Copy a file to a new path, creating destination parents and preserving metadata",
			InputSchema: inputSchema(map[string]any{
				argSourcePath:      stringProp("Relative path of the file to copy"),
				argDestinationPath: stringProp("Relative destination path; must not exist"),
			}, argSourcePath, argDestinationPath),
			scope:    scopes.ScopeWrite,
			pathArgs: []string{argSourcePath, argDestinationPath},
			run:      d.runCopyFile,
		},
		toolMoveFile: {
			Name:        toolMoveFile,
			Description: "Move a file to a new path, creating destination parents",
			InputSchema: inputSchema(map[string]any{
				argSourcePath:      stringProp("Relative path of the file to move"),
				argDestinationPath: stringProp("Relative destination path; must not exist"),
			}, argSourcePath, argDestinationPath),
			scope:    scopes.ScopeEdit,
			pathArgs: []string{argSourcePath, argDestinationPath},
			run:      d.runMoveFile,
		},
		toolGetFileInfo: {
			Name:        toolGetFileInfo,
			Description: "Report type, size, modification time, and permissions for a file or directory",
			InputSchema: inputSchema(map[string]any{
				argFilePath: stringProp("Relative path to inspect"),
			}, argFilePath),
			scope:    scopes.ScopeRead,
			pathArgs: []string{argFilePath},
			run:      d.runGetFileInfo,
		},
		toolFileExists: {
			Name:        toolFileExists,
			Description: "Report whether a path exists and whether it is a file or a directory; absence is a normal result",
			InputSchema: inputSchema(map[string]any{
				argFilePath: stringProp("Relative path to check"),
			}, argFilePath),
			scope:    scopes.ScopeRead,
			pathArgs: []string{argFilePath},
			run:      d.runFileExists,
		},
		toolCreateDirectory: {
			Name:        toolCreateDirectory,
			Description: "Create a directory and any missing parents",
			InputSchema: inputSchema(map[string]any{
				argDirectoryPath: stringProp("Relative path of the directory to create"),
			}, argDirectoryPath),
			scope:    scopes.ScopeWrite,
			pathArgs: []string{argDirectoryPath},
			run:      d.runCreateDirectory,
		},
		toolDeleteDirectory: {
			Name:        toolDeleteDirectory,
			Description: "Delete a directory; without recursive the directory must be empty",
			InputSchema: inputSchema(map[string]any{
				argDirectoryPath: stringProp("Relative path of the directory to delete"),
				argRecursive:     boolProp("Delete the directory and everything under it", false),
			}, argDirectoryPath),
			scope:    scopes.ScopeDelete,
			pathArgs: []string{argDirectoryPath},
			run:      d.runDeleteDirectory,
		},
		toolMoveDirectory: {
			Name:        toolMoveDirectory,
			Description: "Move a whole directory subtree to a new path",
			InputSchema: inputSchema(map[string]any{
				argSourcePath:      stringProp("Relative path of the directory to move"),
				argDestinationPath: stringProp("Relative destination path; must not exist"),
			}, argSourcePath, argDestinationPath),
			scope:    scopes.ScopeEdit,
			pathArgs: []string{argSourcePath, argDestinationPath},
			run:      d.runMoveDirectory,
		},
	}
}

func (d *Dispatcher) runCreateFile(_ context.Context, call *toolCall) (string, error) {
	content, err := requireString(call.args, argContent)
	if err != nil {
		return "", err
	}
	return d.ops.CreateFile(call.path(argFilePath), content)
}

func (d *Dispatcher) runReadFile(_ context.Context, call *toolCall) (string, error) {
	return d.ops.ReadFile(call.path(argFilePath))
}

func (d *Dispatcher) runWriteFile(_ context.Context, call *toolCall) (string, error) {
	content, err := requireString(call.args, argContent)
	if err != nil {
		return "", err
	}
	return d.ops.WriteFile(call.path(argFilePath), content)
}

func (d *Dispatcher) runDeleteFile(_ context.Context, call *toolCall) (string, error) {
	return d.ops.DeleteFile(call.path(argFilePath))
}

func (d *Dispatcher) runListFiles(_ context.Context, call *toolCall) (string, error) {
	return d.ops.ListFiles(call.path(argDirectoryPath))
}

func (d *Dispatcher) runListFilesRecursive(_ context.Context, call *toolCall) (string, error) {
	pattern, err := optionalString(call.args, argPattern, "")
	if err != nil {
		return "", err
	}
	return d.ops.ListFilesRecursive(call.path(argDirectoryPath), pattern)
}

func (d *Dispatcher) runReadLines(_ context.Context, call *toolCall) (string, error) {
	start, err := requireInt(call.args, argStartLine)
	if err != nil {
		return "", err
	}
	end, err := requireInt(call.args, argEndLine)
	if err != nil {
		return "", err
	}
	return d.ops.ReadLines(call.path(argFilePath), start, end)
}

func (d *Dispatcher) runWriteLines(_ context.Context, call *toolCall) (string, error) {
	lines, err := requireStringSlice(call.args, argLines)
	if err != nil {
		return "", err
	}
	start, err := requireInt(call.args, argStartLine)
	if err != nil {
		return "", err
	}
	return d.ops.WriteLines(call.path(argFilePath), lines, start)
}

func (d *Dispatcher) runInsertLines(_ context.Context, call *toolCall) (string, error) {
	content, err := requireString(call.args, argContent)
	if err != nil {
		return "", err
	}
	lineNumber, err := requireInt(call.args, argLineNumber)
	if err != nil {
		return "", err
	}
	return d.ops.InsertLines(call.path(argFilePath), content, lineNumber)
}

func (d *Dispatcher) runDeleteLines(_ context.Context, call *toolCall) (string, error) {
	start, err := requireInt(call.args, argStartLine)
	if err != nil {
		return "", err
	}
	end, err := requireInt(call.args, argEndLine)
	if err != nil {
		return "", err
	}
	return d.ops.DeleteLines(call.path(argFilePath), start, end)
}

func (d *Dispatcher) runAppendLines(_ context.Context, call *toolCall) (string, error) {
	content, err := requireString(call.args, argContent)
	if err != nil {
		return "", err
	}
	return d.ops.AppendLines(call.path(argFilePath), content)
}

func (d *Dispatcher) runSearchInFile(_ context.Context, call *toolCall) (string, error) {
	pattern, err := requireString(call.args, argPattern)
	if err != nil {
		return "", err
	}
	useRegex, err := optionalBool(call.args, argUseRegex, false)
	if err != nil {
		return "", err
	}
	return d.ops.SearchInFile(call.path(argFilePath), pattern, useRegex)
}

func (d *Dispatcher) runReplaceInFile(_ context.Context, call *toolCall) (string, error) {
	search, err := requireString(call.args, argSearchText)
	if err != nil {
		return "", err
	}
	replacement, err := requireString(call.args, argReplacementText)
	if err != nil {
		return "", err
	}
	all, err := optionalBool(call.args, argReplaceAll, true)
	if err != nil {
		return "", err
	}
	return d.ops.ReplaceInFile(call.path(argFilePath), search, replacement, all)
}

func (d *Dispatcher) runFindAndReplaceLines(_ context.Context, call *toolCall) (string, error) {
	linePattern, err := requireString(call.args, argLinePattern)
	if err != nil {
		return "", err
	}
	replacement, err := requireString(call.args, argReplacementText)
	if err != nil {
		return "", err
	}
	return d.ops.FindAndReplaceLines(call.path(argFilePath), linePattern, replacement)
}

func (d *Dispatcher) runCopyFile(_ context.Context, call *toolCall) (string, error) {
	return d.ops.CopyFile(call.path(argSourcePath), call.path(argDestinationPath))
}

func (d *Dispatcher) runMoveFile(_ context.Context, call *toolCall) (string, error) {
	return d.ops.MoveFile(call.path(argSourcePath), call.path(argDestinationPath))
}

func (d *Dispatcher) runGetFileInfo(_ context.Context, call *toolCall) (string, error) {
	return d.ops.GetFileInfo(call.path(argFilePath))
}

func (d *Dispatcher) runFileExists(_ context.Context, call *toolCall) (string, error) {
	return d.ops.FileExists(call.path(argFilePath))
}

func (d *Dispatcher) runCreateDirectory(_ context.Context, call *toolCall) (string, error) {
	return d.ops.CreateDirectory(call.path(argDirectoryPath))
}

func (d *Dispatcher) runDeleteDirectory(_ context.Context, call *toolCall) (string, error) {
	recursive, err := optionalBool(call.args, argRecursive, false)
	if err != nil {
		return "", err
	}
	return d.ops.DeleteDirectory(call.path(argDirectoryPath), recursive)
}

func (d *Dispatcher) runMoveDirectory(_ context.Context, call *toolCall) (string, error) {
	return d.ops.MoveDirectory(call.path(argSourcePath), call.path(argDestinationPath))
}
