package tools

import (
	"context"
	"errors"
	"io/fs"
	"math"
)

func pathParam(desc, example string) Param {
	return Param{Name: "path", Type: TypeString, Description: desc, Example: example, Required: true}
}

func (tb *Toolbox) fileTools() []builtin {
	return []builtin{
		{
			spec:    ToolSpec{Name: "pwd", Description: "Get the current working directory"},
			handler: tb.pwd,
		},
		{
			spec: ToolSpec{
				Name:        "ls",
				Description: "List the contents of a directory",
				Params:      []Param{pathParam("The directory to list", "/home/user/project")},
			},
			handler: bind(tb.ls),
		},
		{
			spec: ToolSpec{
				Name:        "recursive_ls_paginated",
				Description: "Recursively list the files below a directory with pagination (page starts at 0)",
				Params: []Param{
					pathParam("The directory to list", "src"),
					{Name: "current_page", Type: "int", Description: "Page number, starting from 0", Example: "0", Required: true},
					{Name: "page_size", Type: "int", Description: "Number of results per page (max 100)", Example: "50", Required: true},
				},
			},
			handler: bind(tb.recursiveLs),
		},
		{
			spec: ToolSpec{
				Name:        "cd",
				Description: "Change the current working directory",
				Params:      []Param{pathParam("The directory to change to", "../other-project")},
			},
			handler: bind(tb.cd),
		},
		{
			spec: ToolSpec{
				Name:        "file_get_contents",
				Description: "Read the contents of a file",
				Params: []Param{
					pathParam("The file to read", "README.md"),
					{Name: "offset", Type: "int", Description: "Byte offset to start reading from, default 0", Example: "0"},
					{Name: "length", Type: "int", Description: "Number of bytes to read, default the rest of the file", Example: "4096"},
				},
			},
			handler: bind(tb.fileGetContents),
		},
		{
			spec: ToolSpec{
				Name:        "file_put_contents",
				Description: "Write contents to a file, replacing it if it exists",
				Params: []Param{
					pathParam("The file to write to", "notes.txt"),
					{Name: "contents", Type: TypeString, Description: "The contents to write", Example: "hello world\n", Required: true},
				},
			},
			handler: bind(tb.filePutContents),
		},
		{
			spec: ToolSpec{
				Name:        "file_exists",
				Description: "Check if a file or directory exists",
				Params:      []Param{pathParam("The path to check", "go.mod")},
			},
			handler: bind(tb.fileExists),
		},
		{
			spec: ToolSpec{
				Name:        "file_delete",
				Description: "Delete a file",
				Params:      []Param{pathParam("The file to delete", "build/output.log")},
			},
			handler: bind(tb.fileDelete),
		},
		{
			spec: ToolSpec{
				Name:        "file_rename",
				Description: "Rename or move a file",
				Params: []Param{
					{Name: "old_path", Type: TypeString, Description: "The file to rename", Example: "draft.txt", Required: true},
					{Name: "new_path", Type: TypeString, Description: "The new file path", Example: "final.txt", Required: true},
				},
			},
			handler: bind(tb.fileRename),
		},
	}
}

type pathArgs struct {
	Path string `arg:"path"`
}

func (tb *Toolbox) pwd(_ context.Context, _ Call) (any, error) {
	return map[string]any{"directory": tb.Cwd()}, nil
}

func (tb *Toolbox) ls(ctx context.Context, args pathArgs) (any, error) {
	path := tb.resolvePath(args.Path)
	entries, err := tb.opts.Files.ReadDir(ctx, path)
	if err != nil {
		return errorResult("not a valid directory: %q: %v", path, err), nil
	}
	files := make([]string, 0, len(entries))
	for _, e := range entries {
		files = append(files, e.Name())
	}
	return map[string]any{"files": files}, nil
}

type recursiveLsArgs struct {
	Path        string `arg:"path"`
	CurrentPage int    `arg:"current_page"`
	PageSize    int    `arg:"page_size"`
}

func (tb *Toolbox) recursiveLs(ctx context.Context, args recursiveLsArgs) (any, error) {
	path := tb.resolvePath(args.Path)
	if info, err := tb.opts.Files.Stat(ctx, path); err != nil || !info.IsDir() {
		return errorResult("not a valid directory: %q", path), nil
	}
	if args.CurrentPage < 0 {
		return errorResult("current_page must not be negative"), nil
	}
	if args.PageSize <= 0 {
		return errorResult("page_size must be positive"), nil
	}
	if args.PageSize > maxPageSize {
		args.PageSize = maxPageSize
	}

	if args.CurrentPage > math.MaxInt/args.PageSize {
		return errorResult("current_page %d is out of range", args.CurrentPage), nil
	}

	skip := args.CurrentPage * args.PageSize
	files := make([]string, 0, args.PageSize+1)
	err := tb.opts.Files.WalkDir(ctx, path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			// Unreadable subtrees are skipped, not fatal.
			if p == path {
				return err
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		if skip > 0 {
			skip--
			return nil
		}
		files = append(files, p)
		if len(files) > args.PageSize {
			return fs.SkipAll
		}
		return nil
	})
	if err != nil {
		return errorResult("walk %q: %v", path, err), nil
	}

	last := len(files) <= args.PageSize
	if !last {
		files = files[:args.PageSize]
	}
	return map[string]any{
		"files":        files,
		"current_page": args.CurrentPage,
		"page_size":    args.PageSize,
		"is_last_page": last,
	}, nil
}

func (tb *Toolbox) cd(ctx context.Context, args pathArgs) (any, error) {
	path := tb.resolvePath(args.Path)
	info, err := tb.opts.Files.Stat(ctx, path)
	if err != nil || !info.IsDir() {
		return errorResult("not a valid directory: %q", path), nil
	}
	tb.setCwd(path)
	tb.logger.Debug("changed directory", "cwd", path)
	return map[string]any{"success": true, "current_directory": path}, nil
}

type readArgs struct {
	Path   string `arg:"path"`
	Offset int64  `arg:"offset"`
	Length *int64 `arg:"length"`
}

func (tb *Toolbox) fileGetContents(ctx context.Context, args readArgs) (any, error) {
	path := tb.resolvePath(args.Path)
	if info, err := tb.opts.Files.Stat(ctx, path); err != nil || info.IsDir() {
		return errorResult("not a valid file: %q", path), nil
	}
	if args.Offset < 0 {
		return errorResult("offset must not be negative"), nil
	}
	length := int64(-1)
	if args.Length != nil {
		if *args.Length < 0 {
			return errorResult("length must not be negative"), nil
		}
		length = *args.Length
	}

	data, size, err := tb.opts.Files.ReadRange(ctx, path, args.Offset, length)
	if err != nil {
		return errorResult("failed to read file %q: %v", path, err), nil
	}
	return map[string]any{"contents": string(data), "file_size": size}, nil
}

type writeArgs struct {
	Path     string `arg:"path"`
	Contents string `arg:"contents"`
}

func (tb *Toolbox) filePutContents(ctx context.Context, args writeArgs) (any, error) {
	path := tb.resolvePath(args.Path)
	res := map[string]any{"success": true, "file_path": path}
	if err := tb.opts.Files.WriteFile(ctx, path, []byte(args.Contents), 0o644); err != nil {
		res["success"] = false
		res["error"] = err.Error()
	}
	return res, nil
}

func (tb *Toolbox) fileExists(ctx context.Context, args pathArgs) (any, error) {
	path := tb.resolvePath(args.Path)
	_, err := tb.opts.Files.Stat(ctx, path)
	res := map[string]any{"exists": err == nil, "file_path": path}
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		res["error"] = err.Error()
	}
	return res, nil
}

func (tb *Toolbox) fileDelete(ctx context.Context, args pathArgs) (any, error) {
	path := tb.resolvePath(args.Path)
	res := map[string]any{"success": true, "file_path": path}
	if err := tb.opts.Files.Remove(ctx, path); err != nil {
		res["success"] = false
		res["error"] = err.Error()
	}
	return res, nil
}

type renameArgs struct {
	OldPath string `arg:"old_path"`
	NewPath string `arg:"new_path"`
}

func (tb *Toolbox) fileRename(ctx context.Context, args renameArgs) (any, error) {
	oldPath, newPath := tb.resolvePath(args.OldPath), tb.resolvePath(args.NewPath)
	res := map[string]any{"success": true, "old_path": oldPath, "new_path": newPath}
	if err := tb.opts.Files.Rename(ctx, oldPath, newPath); err != nil {
		res["success"] = false
		res["error"] = err.Error()
	}
	return res, nil
}
