// Command tagcache-cli is a thin HTTP client for a running tagcached
// instance, styled after cmd/bench's flag-driven entry point in the teacher
// repo: one subcommand per cache operation, exit codes per spec §6.4.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

// Exit codes (spec §6.4).
const (
	exitOK        = 0
	exitUsage     = 1
	exitNetwork   = 2
	exitNotFound  = 3
	exitServerErr = 4
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("tagcache-cli", flag.ContinueOnError)
	addr := fs.String("addr", "http://127.0.0.1:8080", "tagcached HTTP base URL")
	token := fs.String("token", "", "bearer token for authenticated endpoints")
	timeout := fs.Duration("timeout", 5*time.Second, "request timeout")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}

	rest := fs.Args()
	if len(rest) == 0 {
		fmt.Fprintln(os.Stderr, "usage: tagcache-cli [-addr url] [-token t] <put|get|del|inv-tag|keys-by-tag|stats|flush> [args...]")
		return exitUsage
	}

	client := &http.Client{Timeout: *timeout}
	cmd, cmdArgs := rest[0], rest[1:]

	switch cmd {
	case "put":
		return doPut(client, *addr, *token, cmdArgs)
	case "get":
		return doGet(client, *addr, *token, cmdArgs)
	case "del":
		return doDel(client, *addr, *token, cmdArgs)
	case "inv-tag":
		return doInvTag(client, *addr, *token, cmdArgs)
	case "keys-by-tag":
		return doKeysByTag(client, *addr, *token, cmdArgs)
	case "stats":
		return doStats(client, *addr, *token)
	case "flush":
		return doFlush(client, *addr, *token)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", cmd)
		return exitUsage
	}
}

func newRequest(method, url string, body any, token string) (*http.Request, error) {
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		r = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, url, r)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req, nil
}

func doPut(client *http.Client, addr, token string, args []string) int {
	if len(args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: put <key> <value> [tag1,tag2,...] [ttl_ms]")
		return exitUsage
	}
	body := map[string]any{"key": args[0], "value": args[1]}
	if len(args) >= 3 && args[2] != "" {
		body["tags"] = strings.Split(args[2], ",")
	}
	if len(args) >= 4 {
		var ms int64
		fmt.Sscanf(args[3], "%d", &ms)
		body["ttl_ms"] = ms
	}
	req, err := newRequest(http.MethodPost, addr+"/put", body, token)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitUsage
	}
	return doRequestPrint(client, req)
}

func doGet(client *http.Client, addr, token string, args []string) int {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "usage: get <key>")
		return exitUsage
	}
	req, err := newRequest(http.MethodGet, addr+"/get/"+args[0], nil, token)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitUsage
	}
	resp, err := client.Do(req)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitNetwork
	}
	defer resp.Body.Close()
	var out map[string]string
	_ = json.NewDecoder(resp.Body).Decode(&out)
	if resp.StatusCode >= 500 {
		return exitServerErr
	}
	if resp.StatusCode >= 400 {
		fmt.Fprintln(os.Stderr, out["error"])
		return exitUsage
	}
	if errMsg, ok := out["error"]; ok && errMsg == "not_found" {
		fmt.Println("(not found)")
		return exitNotFound
	}
	fmt.Println(out["value"])
	return exitOK
}

func doDel(client *http.Client, addr, token string, args []string) int {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "usage: del <key>")
		return exitUsage
	}
	req, err := newRequest(http.MethodPost, addr+"/invalidate-key", map[string]string{"key": args[0]}, token)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitUsage
	}
	return doRequestPrint(client, req)
}

func doInvTag(client *http.Client, addr, token string, args []string) int {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "usage: inv-tag <tag>")
		return exitUsage
	}
	req, err := newRequest(http.MethodPost, addr+"/invalidate-tag", map[string]string{"tag": args[0]}, token)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitUsage
	}
	return doRequestPrint(client, req)
}

func doKeysByTag(client *http.Client, addr, token string, args []string) int {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "usage: keys-by-tag <tag>")
		return exitUsage
	}
	req, err := newRequest(http.MethodGet, addr+"/keys-by-tag?tag="+args[0], nil, token)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitUsage
	}
	return doRequestPrint(client, req)
}

func doStats(client *http.Client, addr, token string) int {
	req, err := newRequest(http.MethodGet, addr+"/stats", nil, token)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitUsage
	}
	return doRequestPrint(client, req)
}

func doFlush(client *http.Client, addr, token string) int {
	req, err := newRequest(http.MethodPost, addr+"/flush", nil, token)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitUsage
	}
	return doRequestPrint(client, req)
}

func doRequestPrint(client *http.Client, req *http.Request) int {
	resp, err := client.Do(req)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitNetwork
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	fmt.Println(string(b))
	if resp.StatusCode >= 500 {
		return exitServerErr
	}
	if resp.StatusCode >= 400 {
		return exitUsage
	}
	return exitOK
}
