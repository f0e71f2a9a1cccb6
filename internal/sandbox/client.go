// Package sandbox talks to the external code-execution service (a Judge0
// compatible API). The client is stateless; identical requests may be
// retried freely.
package sandbox

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

var (
	ErrUnsupportedLanguage = errors.New("unsupported language")
	ErrSandboxUnavailable  = errors.New("sandbox unavailable")
)

type Status string

const (
	StatusOK           Status = "ok"
	StatusCompileError Status = "compile_error"
	StatusRuntimeError Status = "runtime_error"
	StatusTimeLimit    Status = "time_limit"
)

type Request struct {
	SourceCode string
	Language   string
	Stdin      string
}

type Result struct {
	Stdout        string
	Stderr        string
	CompileOutput string
	Status        Status
	StatusID      int
	Description   string
	TimeMs        int64
	MemoryKB      int64
}

// Executor runs source code once. *Client implements it; tests fake it.
type Executor interface {
	Execute(ctx context.Context, req Request) (Result, error)
}

type Config struct {
	BaseURL   string
	AuthToken string
	Timeout   time.Duration
	Languages LanguageTable
}

type Client struct {
	base      string
	token     string
	http      *http.Client
	languages LanguageTable
}

func New(cfg Config) *Client {
	h := &http.Client{Timeout: cfg.Timeout}
	if cfg.Timeout <= 0 {
		h.Timeout = 30 * time.Second
	}
	langs := cfg.Languages
	if langs.IDs == nil {
		langs = DefaultLanguages()
	}
	return &Client{
		base:      strings.TrimSuffix(cfg.BaseURL, "/"),
		token:     cfg.AuthToken,
		http:      h,
		languages: langs,
	}
}

type submissionReq struct {
	SourceCode string `json:"source_code"`
	LanguageID int    `json:"language_id"`
	Stdin      string `json:"stdin"`
}

type submissionResp struct {
	Stdout        *string `json:"stdout"`
	Stderr        *string `json:"stderr"`
	CompileOutput *string `json:"compile_output"`
	Message       *string `json:"message"`
	Status        struct {
		ID          int    `json:"id"`
		Description string `json:"description"`
	} `json:"status"`
	Time   *string `json:"time"`
	Memory *int64  `json:"memory"`
}

// Supports reports whether language has a sandbox mapping.
func (c *Client) Supports(language string) bool {
	_, err := c.languages.Resolve(language)
	return err == nil
}

// Execute submits the program and waits for its verdict.
func (c *Client) Execute(ctx context.Context, req Request) (Result, error) {
	langID, err := c.languages.Resolve(req.Language)
	if err != nil {
		return Result{}, err
	}
	body, err := json.Marshal(submissionReq{
		SourceCode: encode(req.SourceCode),
		LanguageID: langID,
		Stdin:      encode(req.Stdin),
	})
	if err != nil {
		return Result{}, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.base+"/submissions?base64_encoded=true&wait=true", bytes.NewReader(body))
	if err != nil {
		return Result{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	if c.token != "" {
		httpReq.Header.Set("X-Auth-Token", c.token)
	}

	res, err := c.http.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return Result{}, ctx.Err()
		}
		return Result{}, fmt.Errorf("%w: %v", ErrSandboxUnavailable, err)
	}
	defer res.Body.Close()
	if res.StatusCode/100 != 2 {
		msg, _ := io.ReadAll(io.LimitReader(res.Body, 512))
		return Result{}, fmt.Errorf("%w: %s: %s", ErrSandboxUnavailable, res.Status, strings.TrimSpace(string(msg)))
	}

	var sr submissionResp
	if err := json.NewDecoder(res.Body).Decode(&sr); err != nil {
		return Result{}, fmt.Errorf("%w: decode response: %v", ErrSandboxUnavailable, err)
	}
	out := Result{
		StatusID:    sr.Status.ID,
		Description: sr.Status.Description,
	}
	if out.Stdout, err = decode(sr.Stdout); err != nil {
		return Result{}, fmt.Errorf("%w: stdout: %v", ErrSandboxUnavailable, err)
	}
	if out.Stderr, err = decode(sr.Stderr); err != nil {
		return Result{}, fmt.Errorf("%w: stderr: %v", ErrSandboxUnavailable, err)
	}
	if out.CompileOutput, err = decode(sr.CompileOutput); err != nil {
		return Result{}, fmt.Errorf("%w: compile_output: %v", ErrSandboxUnavailable, err)
	}
	if sr.Time != nil {
		if secs, err := strconv.ParseFloat(*sr.Time, 64); err == nil {
			out.TimeMs = int64(secs*1000 + 0.5)
		}
	}
	if sr.Memory != nil {
		out.MemoryKB = *sr.Memory
	}
	status, err := classify(out)
	if err != nil {
		return Result{}, err
	}
	out.Status = status
	return out, nil
}

// classify maps Judge0 status ids onto our coarse statuses.
//
//	3 accepted, 4 wrong answer, 5 time limit, 6 compilation error,
//	7-12 runtime errors, 13 internal error, 14 exec format error.
func classify(r Result) (Status, error) {
	switch {
	case r.StatusID == 13 || r.StatusID == 14:
		return "", fmt.Errorf("%w: %s", ErrSandboxUnavailable, r.Description)
	case r.StatusID == 6 || strings.TrimSpace(r.CompileOutput) != "":
		return StatusCompileError, nil
	case r.StatusID == 5:
		return StatusTimeLimit, nil
	case r.StatusID >= 7 && r.StatusID <= 12:
		return StatusRuntimeError, nil
	case strings.TrimSpace(r.Stderr) != "":
		return StatusRuntimeError, nil
	case r.StatusID == 1 || r.StatusID == 2:
		// still queued although we asked to wait
		return "", fmt.Errorf("%w: submission not finished (%s)", ErrSandboxUnavailable, r.Description)
	default:
		return StatusOK, nil
	}
}

func encode(s string) string {
	return base64.StdEncoding.EncodeToString([]byte(s))
}

func decode(s *string) (string, error) {
	if s == nil {
		return "", nil
	}
	// Judge0 wraps base64 output at 60 columns.
	clean := strings.NewReplacer("\n", "", "\r", "").Replace(*s)
	b, err := base64.StdEncoding.DecodeString(clean)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
