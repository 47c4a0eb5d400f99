package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/hyperjump/toolkeeper/internal/cli"
	"github.com/hyperjump/toolkeeper/internal/models"
)

const (
	defaultServerURL = "http://localhost:8080"
	tokenEnv         = "TOOLKEEPER_TOKEN"
)

// apiClient calls a running toolkeeper server.
type apiClient struct {
	baseURL string
	token   string
	http    *http.Client
}

func newAPIClient(baseURL, token string) *apiClient {
	return &apiClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: 2 * time.Minute},
	}
}

// apiError is a non-2xx answer from the server.
type apiError struct {
	Status  int
	Message string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.Status, e.Message)
}

func (c *apiClient) do(method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(resp.Body)
		var e struct {
			Error string `json:"error"`
		}
		msg := strings.TrimSpace(string(b))
		if json.Unmarshal(b, &e) == nil && e.Error != "" {
			msg = e.Error
		}
		return &apiError{Status: resp.StatusCode, Message: msg}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *apiClient) login(username, password string) (string, error) {
	var token struct {
		Token string `json:"token"`
	}
	err := c.do(http.MethodPost, "/api/auth/login", map[string]string{"username": username, "password": password}, &token)
	return token.Token, err
}

func (c *apiClient) search(query string) (*models.SearchResult, error) {
	var result models.SearchResult
	if err := c.do(http.MethodPost, "/api/tools/search", models.SearchRequest{Query: query}, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *apiClient) list(params models.ListParams) (*models.ListResponse, error) {
	q := url.Values{}
	for key, value := range map[string]string{
		"name":     params.Name,
		"category": params.Category,
		"location": params.Location,
		"status":   params.Status,
		"tags":     params.Tags,
	} {
		if value != "" {
			q.Set(key, value)
		}
	}
	if params.Limit > 0 {
		q.Set("limit", strconv.Itoa(params.Limit))
	}
	if params.Offset > 0 {
		q.Set("offset", strconv.Itoa(params.Offset))
	}
	path := "/api/tools"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var page models.ListResponse
	if err := c.do(http.MethodGet, path, nil, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// clientFlags registers the flags shared by the client commands.
func clientFlags(fs *flag.FlagSet) (serverURL, token *string) {
	serverURL = fs.String("server", defaultServerURL, "server URL")
	token = fs.String("token", os.Getenv(tokenEnv), "bearer token (default $"+tokenEnv+")")
	return serverURL, token
}

func parseOutput(s string) cli.OutputFormat {
	format, err := cli.ParseOutputFormat(s)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	return format
}

func exitOnAPIError(action string, err error) {
	fmt.Fprintf(os.Stderr, "%s failed: %v\n", action, err)
	var apiErr *apiError
	if errors.As(err, &apiErr) && apiErr.Status == http.StatusUnauthorized {
		fmt.Fprintf(os.Stderr, "Run `toolkeeper login` and set %s.\n", tokenEnv)
	}
	os.Exit(1)
}

func runLogin() {
	fs := flag.NewFlagSet("login", flag.ExitOnError)
	serverURL := fs.String("server", defaultServerURL, "server URL")
	username := fs.String("username", "", "user name")
	password := fs.String("password", os.Getenv("TOOLKEEPER_PASSWORD"), "password (default $TOOLKEEPER_PASSWORD)")
	register := fs.Bool("register", false, "create the user first")
	_ = fs.Parse(os.Args[2:])

	c := newAPIClient(*serverURL, "")
	if *register {
		body := map[string]string{"username": *username, "password": *password}
		if err := c.do(http.MethodPost, "/api/auth/register", body, nil); err != nil {
			exitOnAPIError("Register", err)
		}
	}
	token, err := c.login(*username, *password)
	if err != nil {
		exitOnAPIError("Login", err)
	}
	fmt.Println(token)
}

// printSearchUsage prints search subcommand usage.
func printSearchUsage(fs *flag.FlagSet) {
	fmt.Fprintf(fs.Output(), "Usage: toolkeeper search [flags] <query>\n\n")
	fmt.Fprintf(fs.Output(), "Query is all remaining arguments joined by spaces. Multi-word queries work with or without quotes.\n\n")
	fs.PrintDefaults()
	fmt.Fprintf(fs.Output(), `
Examples:
  toolkeeper search is the cordless drill available
  toolkeeper search "what voltage is the drill?"
  toolkeeper search --output json which tools are in the garage
`)
}

// buildSearchQuery joins all positional args with spaces so multi-word queries
// work the same with or without shell quoting.
func buildSearchQuery(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

// searchArgsReorder moves any flags (and their values) that appear after the query
// to the front so flag.Parse sees them. The flag package stops at the first
// non-flag argument.
func searchArgsReorder(args []string) []string {
	for i, a := range args {
		if len(a) > 0 && a[0] == '-' {
			if i == 0 {
				return args
			}
			reordered := make([]string, 0, len(args))
			reordered = append(reordered, args[i:]...)
			reordered = append(reordered, args[:i]...)
			return reordered
		}
	}
	return args
}

func runSearch() {
	fs := flag.NewFlagSet("search", flag.ExitOnError)
	serverURL, token := clientFlags(fs)
	outputFormat := fs.String("output", "text", "output format: text, compact, or json")
	fs.Usage = func() { printSearchUsage(fs) }
	_ = fs.Parse(searchArgsReorder(os.Args[2:]))

	queryStr := buildSearchQuery(fs.Args())
	if queryStr == "" {
		printSearchUsage(fs)
		os.Exit(1)
	}
	format := parseOutput(*outputFormat)

	result, err := newAPIClient(*serverURL, *token).search(queryStr)
	if err != nil {
		exitOnAPIError("Search", err)
	}
	if err := cli.WriteSearchResults(os.Stdout, result, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

func runList() {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	serverURL, token := clientFlags(fs)
	outputFormat := fs.String("output", "text", "output format: text, compact, or json")
	var params models.ListParams
	fs.StringVar(&params.Name, "name", "", "name substring")
	fs.StringVar(&params.Category, "category", "", "comma-separated categories")
	fs.StringVar(&params.Location, "location", "", "comma-separated locations")
	fs.StringVar(&params.Status, "status", "", "comma-separated statuses")
	fs.StringVar(&params.Tags, "tags", "", "comma-separated tags")
	fs.IntVar(&params.Limit, "limit", 0, "page size (default: server default)")
	fs.IntVar(&params.Offset, "offset", 0, "number of tools to skip")
	_ = fs.Parse(os.Args[2:])
	format := parseOutput(*outputFormat)

	page, err := newAPIClient(*serverURL, *token).list(params)
	if err != nil {
		exitOnAPIError("List", err)
	}
	if err := cli.WriteToolList(os.Stdout, page, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}
