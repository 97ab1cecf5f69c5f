// Command docctl is a small client for the docfind HTTP API: it adds,
// lists, and deletes documents and runs searches from the command line.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"
)

func main() {
	baseURL := flag.String("addr", "http://localhost:8080", "docfind base URL")
	timeout := flag.Duration("timeout", 10*time.Second, "request timeout")
	flag.Usage = usage
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		usage()
		os.Exit(2)
	}

	client := &client{
		base: *baseURL,
		http: &http.Client{Timeout: *timeout},
	}

	var err error
	switch args[0] {
	case "add":
		err = client.add(args[1:])
	case "list":
		err = client.list()
	case "get":
		err = requireArg(args, "get <id>", func(id string) error { return client.get(id) })
	case "delete":
		err = requireArg(args, "delete <id>", func(id string) error { return client.delete(id) })
	case "search":
		err = requireArg(args, "search <query>", func(q string) error { return client.search(q) })
	case "stats":
		err = client.stats()
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "docctl: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, `usage: docctl [flags] <command>

commands:
  add <file>...    add documents from text files
  list             list all documents
  get <id>         show one document
  delete <id>      delete a document
  search <query>   run a search
  stats            show usage statistics

flags:
`)
	flag.PrintDefaults()
}

func requireArg(args []string, form string, fn func(string) error) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: docctl %s", form)
	}
	return fn(args[1])
}

type client struct {
	base string
	http *http.Client
}

func (c *client) add(paths []string) error {
	if len(paths) == 0 {
		return fmt.Errorf("usage: docctl add <file>...")
	}
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		body, err := json.Marshal(map[string]string{
			"path":  path,
			"title": filepath.Base(path),
			"body":  string(data),
		})
		if err != nil {
			return err
		}
		resp, err := c.http.Post(c.base+"/api/v1/documents", "application/json", bytes.NewReader(body))
		if err != nil {
			return err
		}
		var doc struct {
			ID string `json:"id"`
		}
		if err := decode(resp, &doc); err != nil {
			return fmt.Errorf("adding %s: %w", path, err)
		}
		fmt.Printf("added %s as %s\n", path, doc.ID)
	}
	return nil
}

func (c *client) list() error {
	resp, err := c.http.Get(c.base + "/api/v1/documents")
	if err != nil {
		return err
	}
	var listing struct {
		Documents []struct {
			ID        string    `json:"id"`
			Path      string    `json:"path"`
			Title     string    `json:"title"`
			CreatedAt time.Time `json:"created_at"`
		} `json:"documents"`
		Count int `json:"count"`
	}
	if err := decode(resp, &listing); err != nil {
		return err
	}
	for _, d := range listing.Documents {
		fmt.Printf("%s  %s  %s\n", d.ID, d.CreatedAt.Format("2006-01-02 15:04"), d.Path)
	}
	fmt.Printf("%d document(s)\n", listing.Count)
	return nil
}

func (c *client) get(id string) error {
	resp, err := c.http.Get(c.base + "/api/v1/documents/" + url.PathEscape(id))
	if err != nil {
		return err
	}
	return dump(resp)
}

func (c *client) delete(id string) error {
	req, err := http.NewRequest(http.MethodDelete, c.base+"/api/v1/documents/"+url.PathEscape(id), nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		data, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, data)
	}
	fmt.Printf("deleted %s\n", id)
	return nil
}

func (c *client) search(q string) error {
	resp, err := c.http.Get(c.base + "/api/v1/search?q=" + url.QueryEscape(q))
	if err != nil {
		return err
	}
	var result struct {
		Results []struct {
			ItemID      string  `json:"item_id"`
			TotalWeight float64 `json:"total_weight"`
		} `json:"results"`
		MaxWeight    float64 `json:"max_weight"`
		MatchedItems int     `json:"matched_items"`
		TotalItems   int     `json:"total_items"`
		CacheHit     bool    `json:"cache_hit"`
		LatencyMs    int64   `json:"latency_ms"`
	}
	if err := decode(resp, &result); err != nil {
		return err
	}
	for _, r := range result.Results {
		fmt.Printf("%-24s  weight %.1f\n", r.ItemID, r.TotalWeight)
	}
	fmt.Printf("%d/%d matched, max weight %.1f, %dms", result.MatchedItems, result.TotalItems, result.MaxWeight, result.LatencyMs)
	if result.CacheHit {
		fmt.Print(" (cached)")
	}
	fmt.Println()
	return nil
}

func (c *client) stats() error {
	resp, err := c.http.Get(c.base + "/api/v1/analytics")
	if err != nil {
		return err
	}
	return dump(resp)
}

func decode(resp *http.Response, out any) error {
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		data, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("status %d: %s", resp.StatusCode, bytes.TrimSpace(data))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func dump(resp *http.Response) error {
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("status %d: %s", resp.StatusCode, bytes.TrimSpace(data))
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, data, "", "  "); err != nil {
		os.Stdout.Write(data)
		return nil
	}
	buf.WriteByte('\n')
	_, err = buf.WriteTo(os.Stdout)
	return err
}
