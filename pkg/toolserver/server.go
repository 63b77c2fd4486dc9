// Package toolserver implements the lightweight in-container tool server
// (spec.md §4.6): an HTTP service inside each sandbox container, listening
// on whatever address it is started with (sandbox.StartToolServer uses
// ":8751", every interface, so the host can reach it through Docker's
// published port), exposing read_file, list_dir, grep, and apply_patch
// to the agent loop running in TestGenerator. Grounded on the teacher's
// pkg/mcp ToolExecutor.Execute dispatch shape (normalize name, route,
// parse arguments, call, convert result, return) and pkg/api's echo/v5
// server wiring, generalized from remote MCP tool calls to a small fixed
// set of filesystem tools served from inside a disposable container.
package toolserver

import (
	"bufio"
	"context"
	"net"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	echo "github.com/labstack/echo/v5"

	"github.com/prbench/prbench/pkg/bencherrors"
)

const maxGrepMatches = 500

// Server serves the fixed filesystem tool set rooted at WorkspaceDir.
// Every path argument is resolved relative to WorkspaceDir and confined
// to it; no handler ever touches a path that escapes the root.
type Server struct {
	echo         *echo.Echo
	httpServer   *http.Server
	WorkspaceDir string
}

// New creates a Server rooted at workspaceDir.
func New(workspaceDir string) *Server {
	e := echo.New()
	s := &Server{echo: e, WorkspaceDir: workspaceDir}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.echo.POST("/tools/read_file", s.readFileHandler)
	s.echo.POST("/tools/list_dir", s.listDirHandler)
	s.echo.POST("/tools/grep", s.grepHandler)
	s.echo.POST("/tools/apply_patch", s.applyPatchHandler)
}

// Start binds to addr (e.g. "127.0.0.1:8751", or ":8751" for every
// interface) and serves until the listener is closed.
func (s *Server) Start(addr string) error {
	s.httpServer = &http.Server{Addr: addr, Handler: s.echo}
	return s.httpServer.ListenAndServe()
}

// StartWithListener serves on a pre-created listener, used by tests to
// bind an OS-assigned port.
func (s *Server) StartWithListener(ln net.Listener) error {
	s.httpServer = &http.Server{Handler: s.echo}
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// resolvePath confines rel to s.WorkspaceDir, rejecting any path that
// escapes it via ".." or an absolute override.
func (s *Server) resolvePath(rel string) (string, error) {
	clean := filepath.Clean("/" + rel) // force rel to be treated as workspace-absolute
	full := filepath.Join(s.WorkspaceDir, clean)
	if !strings.HasPrefix(full, filepath.Clean(s.WorkspaceDir)+string(filepath.Separator)) && full != filepath.Clean(s.WorkspaceDir) {
		return "", bencherrors.New(bencherrors.Fatal, "path escapes workspace root", nil)
	}
	return full, nil
}

func (s *Server) readFileHandler(c *echo.Context) error {
	var req ReadFileRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ReadFileResponse{Error: err.Error()})
	}

	full, err := s.resolvePath(req.Path)
	if err != nil {
		return c.JSON(http.StatusOK, ReadFileResponse{Error: err.Error()})
	}

	data, err := os.ReadFile(full)
	if err != nil {
		return c.JSON(http.StatusOK, ReadFileResponse{Error: err.Error()})
	}

	return c.JSON(http.StatusOK, ReadFileResponse{Content: string(data)})
}

func (s *Server) listDirHandler(c *echo.Context) error {
	var req ListDirRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ListDirResponse{Error: err.Error()})
	}

	full, err := s.resolvePath(req.Path)
	if err != nil {
		return c.JSON(http.StatusOK, ListDirResponse{Error: err.Error()})
	}

	entries, err := os.ReadDir(full)
	if err != nil {
		return c.JSON(http.StatusOK, ListDirResponse{Error: err.Error()})
	}

	out := make([]DirEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, DirEntry{Name: e.Name(), IsDir: e.IsDir()})
	}

	return c.JSON(http.StatusOK, ListDirResponse{Entries: out})
}

func (s *Server) grepHandler(c *echo.Context) error {
	var req GrepRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, GrepResponse{Error: err.Error()})
	}

	root, err := s.resolvePath(req.Path)
	if err != nil {
		return c.JSON(http.StatusOK, GrepResponse{Error: err.Error()})
	}

	matches, err := grepTree(root, req.Pattern)
	if err != nil {
		return c.JSON(http.StatusOK, GrepResponse{Error: err.Error()})
	}

	return c.JSON(http.StatusOK, GrepResponse{Matches: matches})
}

func grepTree(root, pattern string) ([]GrepMatch, error) {
	var matches []GrepMatch
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}
		if len(matches) >= maxGrepMatches {
			return nil
		}

		f, openErr := os.Open(path)
		if openErr != nil {
			return nil // unreadable file (permissions, binary device node) — skip, don't abort the walk
		}
		defer f.Close()

		scanner := bufio.NewScanner(f)
		lineNo := 0
		for scanner.Scan() {
			lineNo++
			if strings.Contains(scanner.Text(), pattern) {
				rel, _ := filepath.Rel(root, path)
				matches = append(matches, GrepMatch{Path: rel, Line: lineNo, Text: scanner.Text()})
				if len(matches) >= maxGrepMatches {
					break
				}
			}
		}
		return nil
	})
	return matches, err
}

func (s *Server) applyPatchHandler(c *echo.Context) error {
	var req ApplyPatchRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ApplyPatchResponse{Error: err.Error()})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 30*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, "git", "apply", "--whitespace=nowarn", "-")
	cmd.Dir = s.WorkspaceDir
	cmd.Stdin = strings.NewReader(req.Patch)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return c.JSON(http.StatusOK, ApplyPatchResponse{Applied: false, Error: strings.TrimSpace(string(output))})
	}

	return c.JSON(http.StatusOK, ApplyPatchResponse{Applied: true})
}
