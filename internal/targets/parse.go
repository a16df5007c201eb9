// Package targets parses request templates from the supported target file
// formats: line-oriented "http", a JSON array, and the multi-line "file"
// format.
package targets

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/muhadif/culverin/internal/models"
)

// Load reads targets from path ("stdin" reads standard input) in the given
// format. bodyDir resolves relative Body: paths in the file format.
func Load(path, format, bodyDir string) ([]models.Target, error) {
	var r io.Reader
	if path == "stdin" {
		r = os.Stdin
	} else {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open targets file: %w", err)
		}
		defer f.Close()
		r = f
	}

	switch format {
	case "http":
		return ParseHTTP(r)
	case "json":
		return ParseJSON(r)
	case "file":
		return ParseFile(r, bodyDir)
	default:
		return nil, fmt.Errorf("unsupported targets format %q", format)
	}
}

// ParseHTTP parses the line-oriented format: one "<METHOD> <URL>" per line.
// Blank lines and lines starting with # are skipped.
func ParseHTTP(r io.Reader) ([]models.Target, error) {
	var targets []models.Target

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		method, rawURL, ok := strings.Cut(line, " ")
		if !ok {
			return nil, fmt.Errorf("invalid target line %q", line)
		}
		u, err := parseURL(strings.TrimSpace(rawURL))
		if err != nil {
			return nil, err
		}

		targets = append(targets, models.Target{Method: method, URL: u})
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read targets: %w", err)
	}

	return targets, nil
}

// ParseJSON parses a single JSON array of target objects.
func ParseJSON(r io.Reader) ([]models.Target, error) {
	var targets []models.Target
	if err := json.NewDecoder(r).Decode(&targets); err != nil {
		return nil, fmt.Errorf("parse JSON targets: %w", err)
	}
	for i := range targets {
		u, err := parseURL(targets[i].URL)
		if err != nil {
			return nil, err
		}
		targets[i].URL = u
	}
	return targets, nil
}

// ParseFile parses the multi-line format. Each request starts with
// "<METHOD> <URL>" or "<METHOD> <path> HTTP/1.1", followed by "Name: Value"
// header lines. A body comes from a literal "Body:" header (the value is a
// file path when one exists at it, literal bytes otherwise), or from the
// lines after an empty line in the HTTP/1.1 form. Requests are separated by
// blank lines; # starts a comment.
func ParseFile(r io.Reader, bodyDir string) ([]models.Target, error) {
	const (
		stateIdle = iota
		stateHeaders
		stateBody
	)

	var (
		targets   []models.Target
		cur       models.Target
		bodyLines []string
		httpForm  bool
		state     = stateIdle
	)

	finish := func() error {
		if len(bodyLines) > 0 {
			cur.Body = []byte(strings.Join(bodyLines, "\n"))
		}
		u, err := resolveURL(cur.URL, cur.Headers)
		if err != nil {
			return err
		}
		cur.URL = u
		targets = append(targets, cur)
		cur = models.Target{}
		bodyLines = nil
		httpForm = false
		state = stateIdle
		return nil
	}

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		raw := sc.Text()
		line := strings.TrimSpace(raw)

		if state != stateBody && strings.HasPrefix(line, "#") {
			continue
		}

		switch state {
		case stateIdle:
			if line == "" {
				continue
			}
			fields := strings.Fields(line)
			switch {
			case len(fields) == 3 && strings.HasPrefix(fields[2], "HTTP/"):
				cur.Method, cur.URL = fields[0], fields[1]
				httpForm = true
			case len(fields) == 2:
				cur.Method, cur.URL = fields[0], fields[1]
			default:
				return nil, fmt.Errorf("invalid request line %q", line)
			}
			state = stateHeaders

		case stateHeaders:
			if line == "" {
				if httpForm {
					state = stateBody
					continue
				}
				if err := finish(); err != nil {
					return nil, err
				}
				continue
			}
			name, value, ok := strings.Cut(line, ":")
			if !ok {
				return nil, fmt.Errorf("invalid header line %q", line)
			}
			name = strings.TrimSpace(name)
			value = strings.TrimSpace(value)
			if name == "Body" {
				body, err := readBody(value, bodyDir)
				if err != nil {
					return nil, err
				}
				cur.Body = body
				continue
			}
			cur.Headers = append(cur.Headers, models.Header{Name: name, Value: value})

		case stateBody:
			if line == "" {
				if err := finish(); err != nil {
					return nil, err
				}
				continue
			}
			bodyLines = append(bodyLines, raw)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read targets: %w", err)
	}

	if state != stateIdle {
		if err := finish(); err != nil {
			return nil, err
		}
	}

	return targets, nil
}

// ParseHeaders parses "Name: Value" strings as passed on the command line.
func ParseHeaders(raw []string) ([]models.Header, error) {
	var headers []models.Header
	for _, s := range raw {
		name, value, ok := strings.Cut(s, ":")
		if !ok {
			return nil, fmt.Errorf("invalid header %q: expected Name: Value", s)
		}
		headers = append(headers, models.Header{
			Name:  strings.TrimSpace(name),
			Value: strings.TrimSpace(value),
		})
	}
	return headers, nil
}

func readBody(value, bodyDir string) ([]byte, error) {
	path := value
	if bodyDir != "" && !filepath.IsAbs(path) {
		path = filepath.Join(bodyDir, path)
	}
	if b, err := os.ReadFile(path); err == nil {
		return b, nil
	}
	return []byte(value), nil
}

func parseURL(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse URL %q: %w", raw, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("parse URL %q: missing scheme or host", raw)
	}
	return u.String(), nil
}

// resolveURL completes a path-only request line against the Host header.
func resolveURL(raw string, headers []models.Header) (string, error) {
	if strings.HasPrefix(raw, "/") {
		for _, h := range headers {
			if strings.EqualFold(h.Name, "Host") {
				return parseURL("http://" + h.Value + raw)
			}
		}
		return "", fmt.Errorf("request path %q needs a Host header", raw)
	}
	return parseURL(raw)
}
